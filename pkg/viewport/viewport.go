package viewport

import "math"

const (
	// DefaultMinZoom and DefaultMaxZoom bound the zoom factor.
	DefaultMinZoom = 0.25
	DefaultMaxZoom = 4.0
	// WheelZoomStep is the zoom change per wheel notch; buttons take the
	// larger step.
	WheelZoomStep  = 0.1
	ButtonZoomStep = 0.25
	// DefaultRecenterEpsilon is the pan distance below which programmatic
	// centering is skipped, so selection changes do not micro-jitter an
	// already centered view.
	DefaultRecenterEpsilon = 5.0
)

// Camera is the single owner of the view transform between world space
// (where the simulation lays nodes out) and screen space. The mapping is
//
//	screen = world*zoom + pan
//	world  = (screen - pan) / zoom
//
// Zooming is applied about the pan origin rather than the cursor; the
// cursor-anchored variant is deliberately not implemented.
type Camera struct {
	Zoom             float64
	PanX, PanY       float64
	Width, Height    float64
	MinZoom, MaxZoom float64
	RecenterEpsilon  float64
}

// NewCamera creates a camera over a canvas of the given screen size, at
// zoom 1 with no pan.
func NewCamera(width, height float64) *Camera {
	return &Camera{
		Zoom:            1.0,
		Width:           width,
		Height:          height,
		MinZoom:         DefaultMinZoom,
		MaxZoom:         DefaultMaxZoom,
		RecenterEpsilon: DefaultRecenterEpsilon,
	}
}

// Reset restores zoom 1 and zero pan.
func (c *Camera) Reset() {
	c.Zoom = 1.0
	c.PanX, c.PanY = 0, 0
}

// Resize updates the canvas size the camera projects into.
func (c *Camera) Resize(width, height float64) {
	c.Width, c.Height = width, height
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float64) (float64, float64) {
	return wx*c.Zoom + c.PanX, wy*c.Zoom + c.PanY
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float64) (float64, float64) {
	return (sx - c.PanX) / c.Zoom, (sy - c.PanY) / c.Zoom
}

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom].
func (c *Camera) SetZoom(z float64) {
	if z < c.MinZoom {
		z = c.MinZoom
	}
	if z > c.MaxZoom {
		z = c.MaxZoom
	}
	c.Zoom = z
}

// ZoomBy adjusts zoom by a step, clamped. Wheel handlers pass
// ±WheelZoomStep, zoom buttons ±ButtonZoomStep.
func (c *Camera) ZoomBy(delta float64) {
	c.SetZoom(c.Zoom + delta)
}

// PanBy shifts the view by a screen-space delta. Background drags feed
// this 1:1 with pointer movement.
func (c *Camera) PanBy(dx, dy float64) {
	c.PanX += dx
	c.PanY += dy
}

// SetPan sets the pan offset directly.
func (c *Camera) SetPan(x, y float64) {
	c.PanX, c.PanY = x, y
}

// panFor returns the pan that would place the world point at the canvas
// center at the current zoom.
func (c *Camera) panFor(wx, wy float64) (float64, float64) {
	return c.Width/2 - wx*c.Zoom, c.Height/2 - wy*c.Zoom
}

// CenterTarget returns the pan that centers the given world point, and
// whether applying it is worthwhile: moves shorter than RecenterEpsilon
// report false and should be skipped entirely.
func (c *Camera) CenterTarget(wx, wy float64) (px, py float64, ok bool) {
	px, py = c.panFor(wx, wy)
	if math.Hypot(px-c.PanX, py-c.PanY) < c.RecenterEpsilon {
		return px, py, false
	}
	return px, py, true
}

// CenterOn immediately centers the view on a world point, honoring the
// epsilon skip. Reports whether the pan changed.
func (c *Camera) CenterOn(wx, wy float64) bool {
	px, py, ok := c.CenterTarget(wx, wy)
	if !ok {
		return false
	}
	c.PanX, c.PanY = px, py
	return true
}
