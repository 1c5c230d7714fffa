package engine

import "math"

// The four forces below recompute every relevant pair each tick; nothing
// is cached between ticks. All of them write velocities except centering,
// which translates positions directly. Link, charge and collision follow
// the d3-force formulations, alpha scaling included.

// applyLink pulls each relation toward its resting distance. The
// correction splits between the endpoints by degree bias so a hub drags
// its leaves rather than the other way around.
func (s *Simulation) applyLink(alpha float64) {
	for i, l := range s.links {
		x := l.target.x + l.target.vx - l.source.x - l.source.vx
		y := l.target.y + l.target.vy - l.source.y - l.source.vy
		d := math.Sqrt(x*x + y*y)
		if d == 0 {
			x, y = jiggle(i), jiggle(i+1)
			d = math.Sqrt(x*x + y*y)
		}
		k := (d - l.distance) / d * alpha * l.strength
		x *= k
		y *= k
		l.target.vx -= x * l.bias
		l.target.vy -= y * l.bias
		l.source.vx += x * (1 - l.bias)
		l.source.vy += y * (1 - l.bias)
	}
}

// applyCharge is the O(n^2) many-body pass; graphs in this app are tens
// to low hundreds of tasks. Beyond ChargeDistanceMax the interaction is
// cut off so far-apart clusters stop shoving each other.
func (s *Simulation) applyCharge(alpha float64) {
	maxD2 := s.cfg.ChargeDistanceMax * s.cfg.ChargeDistanceMax
	for i := 0; i < len(s.nodes); i++ {
		a := s.nodes[i]
		for j := i + 1; j < len(s.nodes); j++ {
			b := s.nodes[j]
			dx := b.x - a.x
			dy := b.y - a.y
			d2 := dx*dx + dy*dy
			if d2 >= maxD2 {
				continue
			}
			if d2 == 0 {
				dx, dy = jiggle(i), jiggle(j)
				d2 = dx*dx + dy*dy
			}
			if d2 < 1 {
				d2 = 1 // singularity guard for overlapping nodes
			}
			w := s.cfg.Charge * alpha / d2
			a.vx += dx * w
			a.vy += dy * w
			b.vx -= dx * w
			b.vy -= dy * w
		}
	}
}

// applyCenter translates the whole layout so its centroid sits on the
// centering target. A seeded layout whose centroid already is the target
// does not move at all.
func (s *Simulation) applyCenter() {
	if len(s.nodes) == 0 {
		return
	}
	var sx, sy float64
	for _, n := range s.nodes {
		sx += n.x
		sy += n.y
	}
	sx = sx/float64(len(s.nodes)) - s.centerX
	sy = sy/float64(len(s.nodes)) - s.centerY
	for _, n := range s.nodes {
		n.x -= sx
		n.y -= sy
	}
}

// applyCollide separates overlapping circles at their padded priority
// radii, working on predicted positions. Larger nodes yield less.
func (s *Simulation) applyCollide() {
	for i := 0; i < len(s.nodes); i++ {
		a := s.nodes[i]
		ra := a.radius + s.cfg.CollidePadding
		ax := a.x + a.vx
		ay := a.y + a.vy
		for j := i + 1; j < len(s.nodes); j++ {
			b := s.nodes[j]
			rb := b.radius + s.cfg.CollidePadding
			r := ra + rb
			dx := ax - (b.x + b.vx)
			dy := ay - (b.y + b.vy)
			d2 := dx*dx + dy*dy
			if d2 >= r*r {
				continue
			}
			d := math.Sqrt(d2)
			if d == 0 {
				dx, dy = jiggle(i), jiggle(j)
				d = math.Sqrt(dx*dx + dy*dy)
			}
			k := (r - d) / d
			dx *= k
			dy *= k
			wb := rb * rb / (ra*ra + rb*rb)
			a.vx += dx * wb
			a.vy += dy * wb
			b.vx -= dx * (1 - wb)
			b.vy -= dy * (1 - wb)
		}
	}
}

// jiggle breaks exact coincidence with a tiny deterministic offset, so
// identical inputs still settle to identical layouts.
func jiggle(i int) float64 {
	return (float64(i%10) + 1) * 1e-6
}
