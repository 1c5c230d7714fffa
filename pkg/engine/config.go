package engine

import (
	"math"
	"time"
)

// Config holds the tunable parameters of the force simulation. Zero values
// are replaced with defaults at load time, so callers only set what they
// want to override. The yaml tags exist for scenario files.
type Config struct {
	// TickInterval is the wall-clock delay between integration steps when
	// the simulation runs as a background stream. Zero means no delay,
	// which headless callers use to settle a layout as fast as possible.
	TickInterval time.Duration `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty"`

	// AlphaMin is the temperature below which the simulation pauses.
	AlphaMin float64 `json:"alpha_min,omitempty" yaml:"alpha_min,omitempty"`
	// AlphaDecay is the per-tick convergence rate toward the alpha target.
	AlphaDecay float64 `json:"alpha_decay,omitempty" yaml:"alpha_decay,omitempty"`
	// AlphaCarry is the starting temperature when any node already has a
	// position, either carried over or seeded. Fresh graphs start at 1.
	AlphaCarry float64 `json:"alpha_carry,omitempty" yaml:"alpha_carry,omitempty"`
	// DragAlphaTarget is the sustained temperature floor while a pin is
	// active, keeping neighbors responsive to the dragged node.
	DragAlphaTarget float64 `json:"drag_alpha_target,omitempty" yaml:"drag_alpha_target,omitempty"`
	// ReheatAlpha is the temperature a reheat bumps the simulation to.
	ReheatAlpha float64 `json:"reheat_alpha,omitempty" yaml:"reheat_alpha,omitempty"`
	// VelocityDecay is the per-tick friction applied to node velocities.
	VelocityDecay float64 `json:"velocity_decay,omitempty" yaml:"velocity_decay,omitempty"`

	// LinkDistanceMin and LinkDistanceMax bound the resting length of a
	// relation edge. Weight 1 rests at the min, weight 0 at the max.
	LinkDistanceMin float64 `json:"link_distance_min,omitempty" yaml:"link_distance_min,omitempty"`
	LinkDistanceMax float64 `json:"link_distance_max,omitempty" yaml:"link_distance_max,omitempty"`

	// Charge is the many-body strength. Negative repels.
	Charge float64 `json:"charge,omitempty" yaml:"charge,omitempty"`
	// ChargeDistanceMax cuts off repulsion beyond this distance so distant
	// components do not push each other off the canvas.
	ChargeDistanceMax float64 `json:"charge_distance_max,omitempty" yaml:"charge_distance_max,omitempty"`

	// CollidePadding is added to every node's priority radius when
	// resolving overlaps, leaving a visible gap between circles.
	CollidePadding float64 `json:"collide_padding,omitempty" yaml:"collide_padding,omitempty"`

	// MaxVelocity clamps per-axis node speed to keep a badly conditioned
	// graph from exploding in the first hot ticks.
	MaxVelocity float64 `json:"max_velocity,omitempty" yaml:"max_velocity,omitempty"`
}

// DefaultConfig returns the standard simulation tuning. AlphaDecay is
// chosen so a fresh simulation cools from 1.0 to AlphaMin in about 300
// ticks.
func DefaultConfig() Config {
	return Config{
		TickInterval:      16 * time.Millisecond,
		AlphaMin:          0.001,
		AlphaDecay:        1 - math.Pow(0.001, 1.0/300),
		AlphaCarry:        0.3,
		DragAlphaTarget:   0.3,
		ReheatAlpha:       0.3,
		VelocityDecay:     0.4,
		LinkDistanceMin:   40,
		LinkDistanceMax:   160,
		Charge:            -120,
		ChargeDistanceMax: 500,
		CollidePadding:    4,
		MaxVelocity:       100,
	}
}

// withDefaults fills zero fields from DefaultConfig. TickInterval is left
// alone: zero is a meaningful value there.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AlphaMin == 0 {
		c.AlphaMin = d.AlphaMin
	}
	if c.AlphaDecay == 0 {
		c.AlphaDecay = d.AlphaDecay
	}
	if c.AlphaCarry == 0 {
		c.AlphaCarry = d.AlphaCarry
	}
	if c.DragAlphaTarget == 0 {
		c.DragAlphaTarget = d.DragAlphaTarget
	}
	if c.ReheatAlpha == 0 {
		c.ReheatAlpha = d.ReheatAlpha
	}
	if c.VelocityDecay == 0 {
		c.VelocityDecay = d.VelocityDecay
	}
	if c.LinkDistanceMin == 0 {
		c.LinkDistanceMin = d.LinkDistanceMin
	}
	if c.LinkDistanceMax == 0 {
		c.LinkDistanceMax = d.LinkDistanceMax
	}
	if c.Charge == 0 {
		c.Charge = d.Charge
	}
	if c.ChargeDistanceMax == 0 {
		c.ChargeDistanceMax = d.ChargeDistanceMax
	}
	if c.CollidePadding == 0 {
		c.CollidePadding = d.CollidePadding
	}
	if c.MaxVelocity == 0 {
		c.MaxVelocity = d.MaxVelocity
	}
	return c
}
