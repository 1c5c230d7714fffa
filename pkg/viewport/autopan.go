package viewport

// EdgePan computes the auto-pan applied while a node drag holds the
// pointer near a canvas edge. Inside the band the view pans at constant
// speed away from that edge, bringing off-screen drop targets into reach
// without interrupting the drag.
type EdgePan struct {
	// Band is the distance from each edge, in screen units, inside which
	// auto-pan engages.
	Band float64
	// Speed is the pan applied per frame while engaged, in screen units.
	Speed float64
}

// NewEdgePan returns edge-pan tuning for a pixel-addressed canvas.
func NewEdgePan() EdgePan {
	return EdgePan{Band: 36, Speed: 12}
}

// Vector returns the per-frame pan delta for a pointer at (x, y) on a
// canvas of the given size. Zero outside the bands; the pan direction is
// opposite the edge so content beyond it slides into view. Corners pan
// diagonally.
func (e EdgePan) Vector(x, y, width, height float64) (dx, dy float64) {
	switch {
	case x <= e.Band:
		dx = e.Speed
	case x >= width-e.Band:
		dx = -e.Speed
	}
	switch {
	case y <= e.Band:
		dy = e.Speed
	case y >= height-e.Band:
		dy = -e.Speed
	}
	return dx, dy
}

// Active reports whether a pointer position engages auto-pan.
func (e EdgePan) Active(x, y, width, height float64) bool {
	dx, dy := e.Vector(x, y, width, height)
	return dx != 0 || dy != 0
}
