package viewport

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// PanSpring animates the camera pan toward a target with a critically
// damped spring, so programmatic recentering glides instead of teleporting.
// The render loop steps it once per frame and writes the result back into
// the camera.
type PanSpring struct {
	spring harmonica.Spring
	x, y   float64
	vx, vy float64
	tx, ty float64
	active bool
}

// NewPanSpring creates a spring stepped at the given frame rate.
func NewPanSpring(fps int) *PanSpring {
	if fps <= 0 {
		fps = 30
	}
	return &PanSpring{
		spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0),
	}
}

// Start begins an animation from the current pan to the target pan. A
// Start while active retargets the spring, keeping its momentum.
func (p *PanSpring) Start(fromX, fromY, toX, toY float64) {
	if !p.active {
		p.x, p.y = fromX, fromY
		p.vx, p.vy = 0, 0
	}
	p.tx, p.ty = toX, toY
	p.active = true
}

// Active reports whether an animation is in flight.
func (p *PanSpring) Active() bool {
	return p.active
}

// Cancel stops the animation where it is. User pans during an animation
// call this so the spring never fights the hand.
func (p *PanSpring) Cancel() {
	p.active = false
}

// Step advances one frame and returns the new pan. done is true on the
// frame the spring comes to rest, after which the spring deactivates.
func (p *PanSpring) Step() (x, y float64, done bool) {
	if !p.active {
		return p.x, p.y, true
	}
	p.x, p.vx = p.spring.Update(p.x, p.vx, p.tx)
	p.y, p.vy = p.spring.Update(p.y, p.vy, p.ty)

	if math.Abs(p.x-p.tx) < 0.5 && math.Abs(p.y-p.ty) < 0.5 &&
		math.Abs(p.vx) < 0.5 && math.Abs(p.vy) < 0.5 {
		p.x, p.y = p.tx, p.ty
		p.active = false
		return p.x, p.y, true
	}
	return p.x, p.y, false
}
