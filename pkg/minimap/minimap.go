package minimap

import (
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/viewport"
)

const (
	// MarginFrac expands the framed world bounds by a share of the larger
	// axis so border nodes do not touch the overlay edge.
	MarginFrac = 0.1
	// MinWorldSize is the smallest world extent the overlay frames. Tiny
	// or single-node graphs render at a sane scale instead of blowing a
	// few pixels up to fill the overlay.
	MinWorldSize = 200.0
	// MinRectSize keeps the viewport box visible as at least a dot when
	// the camera is zoomed deep into a large graph.
	MinRectSize = 2.0
)

// Rect is an axis-aligned rectangle in overlay units.
type Rect struct {
	X, Y, W, H float64
}

// Projector maps world space into a fixed-size minimap overlay with a
// uniform scale, so the overlay never distorts the layout's aspect ratio.
// Project and Unproject are exact inverses of each other.
type Projector struct {
	OverlayW, OverlayH float64

	scale            float64
	offsetX, offsetY float64
}

// NewProjector frames the given world points into an overlay of the given
// size. The frame is the points' bounding box grown by MarginFrac and
// never smaller than MinWorldSize on either axis; with no points it frames
// a MinWorldSize square around the origin.
func NewProjector(points []graph.Point, overlayW, overlayH float64) *Projector {
	minX, minY := 0.0, 0.0
	maxX, maxY := 0.0, 0.0
	for i, p := range points {
		if i == 0 {
			minX, maxX = p.X, p.X
			minY, maxY = p.Y, p.Y
			continue
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	w, h := maxX-minX, maxY-minY
	margin := w
	if h > margin {
		margin = h
	}
	margin *= MarginFrac
	minX, maxX = minX-margin, maxX+margin
	minY, maxY = minY-margin, maxY+margin
	w, h = maxX-minX, maxY-minY

	if w < MinWorldSize {
		pad := (MinWorldSize - w) / 2
		minX -= pad
		w = MinWorldSize
	}
	if h < MinWorldSize {
		pad := (MinWorldSize - h) / 2
		minY -= pad
		h = MinWorldSize
	}

	// Uniform scale: the tighter axis wins, the other is centered.
	scale := overlayW / w
	if s := overlayH / h; s < scale {
		scale = s
	}

	return &Projector{
		OverlayW: overlayW,
		OverlayH: overlayH,
		scale:    scale,
		offsetX:  (overlayW-w*scale)/2 - minX*scale,
		offsetY:  (overlayH-h*scale)/2 - minY*scale,
	}
}

// Project converts a world point to overlay coordinates.
func (p *Projector) Project(wx, wy float64) (float64, float64) {
	return wx*p.scale + p.offsetX, wy*p.scale + p.offsetY
}

// Unproject converts overlay coordinates back to world space. Overlay
// clicks go through here to become recenter targets.
func (p *Projector) Unproject(ox, oy float64) (float64, float64) {
	return (ox - p.offsetX) / p.scale, (oy - p.offsetY) / p.scale
}

// ViewportRect projects the camera's visible world region into the
// overlay, enforcing MinRectSize and keeping the box inside the overlay
// even when the camera has wandered past the framed bounds.
func (p *Projector) ViewportRect(cam *viewport.Camera) Rect {
	wx, wy := cam.ScreenToWorld(0, 0)
	ww := cam.Width / cam.Zoom
	wh := cam.Height / cam.Zoom

	x, y := p.Project(wx, wy)
	w := ww * p.scale
	h := wh * p.scale

	if w < MinRectSize {
		x -= (MinRectSize - w) / 2
		w = MinRectSize
	}
	if h < MinRectSize {
		y -= (MinRectSize - h) / 2
		h = MinRectSize
	}

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > p.OverlayW {
		x = p.OverlayW - w
	}
	if y+h > p.OverlayH {
		y = p.OverlayH - h
	}
	if w > p.OverlayW {
		x, w = 0, p.OverlayW
	}
	if h > p.OverlayH {
		y, h = 0, p.OverlayH
	}

	return Rect{X: x, Y: y, W: w, H: h}
}
