package viewport

import (
	"math"
	"testing"
)

func TestCamera_RoundTrip(t *testing.T) {
	c := NewCamera(800, 600)
	c.SetZoom(1.5)
	c.SetPan(37, -12)

	wx, wy := 123.4, -56.7
	sx, sy := c.WorldToScreen(wx, wy)
	gx, gy := c.ScreenToWorld(sx, sy)

	if math.Abs(gx-wx) > 1e-9 || math.Abs(gy-wy) > 1e-9 {
		t.Errorf("round trip drifted: (%.6f,%.6f) -> (%.6f,%.6f)", wx, wy, gx, gy)
	}
}

func TestCamera_ZoomClamped(t *testing.T) {
	c := NewCamera(800, 600)

	// 1. Wheel out far past the floor.
	for i := 0; i < 100; i++ {
		c.ZoomBy(-WheelZoomStep)
	}
	if c.Zoom != c.MinZoom {
		t.Errorf("zoom under floor: %.3f", c.Zoom)
	}

	// 2. Button in far past the ceiling.
	for i := 0; i < 100; i++ {
		c.ZoomBy(ButtonZoomStep)
	}
	if c.Zoom != c.MaxZoom {
		t.Errorf("zoom over ceiling: %.3f", c.Zoom)
	}

	// 3. Direct set is clamped the same way.
	c.SetZoom(99)
	if c.Zoom != c.MaxZoom {
		t.Errorf("SetZoom escaped the clamp: %.3f", c.Zoom)
	}
	c.SetZoom(-1)
	if c.Zoom != c.MinZoom {
		t.Errorf("SetZoom escaped the floor: %.3f", c.Zoom)
	}
}

func TestCamera_Reset(t *testing.T) {
	c := NewCamera(800, 600)
	c.SetZoom(2)
	c.PanBy(100, 50)

	c.Reset()

	if c.Zoom != 1 || c.PanX != 0 || c.PanY != 0 {
		t.Errorf("reset left state behind: zoom=%.2f pan=(%.1f,%.1f)", c.Zoom, c.PanX, c.PanY)
	}
}

func TestCamera_CenterOnPlacesPointAtCanvasCenter(t *testing.T) {
	c := NewCamera(800, 600)
	c.SetZoom(2)

	if !c.CenterOn(150, 75) {
		t.Fatalf("centering from origin should apply")
	}

	sx, sy := c.WorldToScreen(150, 75)
	if sx != 400 || sy != 300 {
		t.Errorf("world point not at canvas center: (%.1f,%.1f)", sx, sy)
	}
}

func TestCamera_CenterOnSkipsTinyMoves(t *testing.T) {
	c := NewCamera(800, 600)
	c.CenterOn(100, 100)
	panX, panY := c.PanX, c.PanY

	// A target a hair away must not move the camera at all.
	if c.CenterOn(101, 100) {
		t.Errorf("sub-epsilon recenter should be skipped")
	}
	if c.PanX != panX || c.PanY != panY {
		t.Errorf("skipped recenter still moved pan")
	}

	if !c.CenterOn(400, 400) {
		t.Errorf("large recenter should apply")
	}
}

func TestEdgePan_DirectionAndBands(t *testing.T) {
	e := NewEdgePan()
	w, h := 800.0, 600.0

	// Pointer at the right edge pans left, continuously.
	dx, dy := e.Vector(w-1, h/2, w, h)
	if dx >= 0 || dy != 0 {
		t.Errorf("right band should pan left only, got (%.1f,%.1f)", dx, dy)
	}

	// Left band pans right, top band pans down.
	dx, _ = e.Vector(2, h/2, w, h)
	if dx <= 0 {
		t.Errorf("left band should pan right, got dx=%.1f", dx)
	}
	_, dy = e.Vector(w/2, 2, w, h)
	if dy <= 0 {
		t.Errorf("top band should pan down, got dy=%.1f", dy)
	}

	// Corner pans diagonally.
	dx, dy = e.Vector(w-1, h-1, w, h)
	if dx >= 0 || dy >= 0 {
		t.Errorf("corner should pan diagonally, got (%.1f,%.1f)", dx, dy)
	}

	// Center of the canvas is inert.
	dx, dy = e.Vector(w/2, h/2, w, h)
	if dx != 0 || dy != 0 {
		t.Errorf("center should not auto-pan, got (%.1f,%.1f)", dx, dy)
	}
	if e.Active(w/2, h/2, w, h) {
		t.Errorf("Active should be false at center")
	}
}

func TestPanSpring_ConvergesToTarget(t *testing.T) {
	s := NewPanSpring(60)
	s.Start(0, 0, 200, -100)

	var x, y float64
	done := false
	for i := 0; i < 600 && !done; i++ {
		x, y, done = s.Step()
	}

	if !done {
		t.Fatalf("spring did not converge within 10 seconds of frames")
	}
	if x != 200 || y != -100 {
		t.Errorf("spring rested off target: (%.2f,%.2f)", x, y)
	}
	if s.Active() {
		t.Errorf("spring still active after resting")
	}
}

func TestPanSpring_CancelHoldsPosition(t *testing.T) {
	s := NewPanSpring(60)
	s.Start(0, 0, 100, 100)
	s.Step()
	s.Step()
	x, y, _ := s.Step()

	s.Cancel()
	cx, cy, done := s.Step()
	if !done || cx != x || cy != y {
		t.Errorf("cancelled spring should hold at (%.2f,%.2f), got (%.2f,%.2f)", x, y, cx, cy)
	}
}
