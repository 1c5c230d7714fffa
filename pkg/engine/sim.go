package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gravitask/gravitask/pkg/graph"
)

var (
	// ErrEmptyGraph means there were no tasks left after normalization.
	ErrEmptyGraph = errors.New("engine: no tasks to lay out")
	// ErrZeroCanvas means the canvas has no usable area.
	ErrZeroCanvas = errors.New("engine: canvas has no area")
	// ErrNotRunning is returned by pin operations once the simulation has
	// been stopped or superseded. This is a caller bug, unlike malformed
	// graph data which is cleaned up silently.
	ErrNotRunning = errors.New("engine: simulation is not running")
	// ErrNotPinned is returned when moving or releasing a pin that was
	// never begun.
	ErrNotPinned = errors.New("engine: node has no active pin")
)

// Simulation runs the force-directed layout for one task graph. Starting
// it again reconciles the new data against the running layout instead of
// scrambling it: nodes keep their positions and momentum by ID, so a sync
// refresh mid-session only moves what actually changed.
//
// All mutation goes through the lock. The integrator holds it per step and
// releases it before emitting, so pin updates from the UI interleave
// between ticks and are visible to the very next integration.
type Simulation struct {
	cfg Config

	// holdIDs are pinned at their starting positions on every load,
	// before the first tick. Only the headless held-layout path sets it.
	holdIDs []string

	mu               sync.Mutex
	nodes            []*node
	byID             map[string]*node
	links            []*link
	width, height    float64
	centerX, centerY float64
	alpha            float64
	alphaTarget      float64
	tick             int
	pins             int
	settled          bool
	running          bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a simulation with the given tuning. Zero config fields fall
// back to defaults.
func New(cfg Config) *Simulation {
	return &Simulation{cfg: cfg.withDefaults()}
}

// Start builds the working set from the given tasks and relations and
// begins streaming one layout snapshot per tick. A previous stream, if
// any, is stopped and its channel closed before the new one begins.
//
// Carry-over rules: a task already in the layout keeps its position,
// velocity and pin unless it arrives with an explicit Position, which is
// adopted as a seed with velocity zeroed and any pin cleared. New tasks
// without positions are placed on a deterministic phyllotaxis spiral
// around the centering target.
//
// A graph where every node is new and unseeded starts hot (alpha 1);
// anything with existing positions starts at the carry temperature so a
// refresh nudges rather than reshuffles.
func (s *Simulation) Start(tasks []*graph.Task, relations []*graph.Relation, width, height float64) (<-chan Snapshot, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrZeroCanvas
	}
	tasks, relations = graph.Normalize(tasks, relations)
	if len(tasks) == 0 {
		return nil, ErrEmptyGraph
	}

	s.Stop()

	s.mu.Lock()
	s.load(tasks, relations, width, height)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Snapshot, 1)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true
	nodes, links := len(s.nodes), len(s.links)
	s.mu.Unlock()

	log.Printf("Simulation started: nodes=%d links=%d", nodes, links)
	go s.run(ctx, out, done)
	return out, nil
}

// Stop halts the stream and closes its channel. Safe to call at any time,
// including before the first Start.
func (s *Simulation) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether a stream is active. A settled simulation is
// still running; only Stop or a superseding Start ends it.
func (s *Simulation) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Alpha returns the current temperature.
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// BeginPin fixes a node at its current position and raises the alpha
// target to the drag floor so the rest of the layout keeps responding for
// as long as the pin is held. Pinning an already pinned node is a no-op.
func (s *Simulation) BeginPin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	n := s.byID[id]
	if n == nil {
		return fmt.Errorf("engine: unknown node %q", id)
	}
	if n.state == StatePinned {
		return nil
	}
	x, y := n.x, n.y
	n.fx, n.fy = &x, &y
	n.vx, n.vy = 0, 0
	n.state = StatePinned
	s.pins++
	s.alphaTarget = s.cfg.DragAlphaTarget
	s.settled = false
	return nil
}

// MovePin updates an active pin to a new world position. The node will
// sit exactly there after the next integration.
func (s *Simulation) MovePin(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	n := s.byID[id]
	if n == nil {
		return fmt.Errorf("engine: unknown node %q", id)
	}
	if n.fx == nil {
		return ErrNotPinned
	}
	n.fx, n.fy = &x, &y
	return nil
}

// EndPin releases a pin, leaving the node where it was dropped with no
// momentum. When the last pin is released the alpha target drops back to
// zero and the layout cools normally.
func (s *Simulation) EndPin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	n := s.byID[id]
	if n == nil {
		return fmt.Errorf("engine: unknown node %q", id)
	}
	if n.fx == nil {
		return ErrNotPinned
	}
	n.fx, n.fy = nil, nil
	n.state = StateFree
	if s.pins > 0 {
		s.pins--
	}
	if s.pins == 0 {
		s.alphaTarget = 0
	}
	return nil
}

// Reheat bumps the temperature back to the reheat level without touching
// positions, letting the user shake a stuck layout loose.
func (s *Simulation) Reheat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	if s.alpha < s.cfg.ReheatAlpha {
		s.alpha = s.cfg.ReheatAlpha
	}
	s.settled = false
	return nil
}

// run is the integration loop. With a tick interval it paces itself on a
// ticker and idles while settled; without one it steps flat out and exits
// at settle, which is the headless layout path.
func (s *Simulation) run(ctx context.Context, out chan Snapshot, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var tickC <-chan time.Time
	if s.cfg.TickInterval > 0 {
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if tickC != nil {
			select {
			case <-ctx.Done():
				log.Printf("Simulation stream stopped")
				return
			case <-tickC:
			}
		} else if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.settled {
			s.mu.Unlock()
			if tickC == nil {
				return
			}
			continue
		}
		s.step()
		snap := s.snapshot()
		s.mu.Unlock()

		sendLatest(out, snap)
	}
}

// step advances the simulation by one tick. Lock held by the caller.
func (s *Simulation) step() {
	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay
	s.tick++

	s.applyLink(s.alpha)
	s.applyCharge(s.alpha)
	s.applyCenter()
	s.applyCollide()
	s.integrate()

	SimAlpha.Set(s.alpha)
	SimTicksTotal.Inc()

	if s.alpha < s.cfg.AlphaMin && s.alphaTarget < s.cfg.AlphaMin {
		s.settled = true
	}
}

// integrate applies velocity decay and moves every free node. Pinned
// nodes snap to their pin exactly and shed all velocity.
func (s *Simulation) integrate() {
	friction := 1 - s.cfg.VelocityDecay
	for _, n := range s.nodes {
		if n.fx != nil {
			n.x, n.vx = *n.fx, 0
			n.y, n.vy = *n.fy, 0
			continue
		}
		n.vx = clampF(n.vx*friction, -s.cfg.MaxVelocity, s.cfg.MaxVelocity)
		n.vy = clampF(n.vy*friction, -s.cfg.MaxVelocity, s.cfg.MaxVelocity)
		n.x += n.vx
		n.y += n.vy
	}
}

// load reconciles the incoming graph into the working set. Lock held by
// the caller. Inputs are assumed normalized.
func (s *Simulation) load(tasks []*graph.Task, relations []*graph.Relation, width, height float64) {
	old := s.byID
	s.width, s.height = width, height

	nodes := make([]*node, 0, len(tasks))
	byID := make(map[string]*node, len(tasks))
	fresh := make([]*node, 0)
	var seedX, seedY float64
	seeds := 0
	carried := false

	for i, t := range tasks {
		n := &node{
			id:     t.ID,
			index:  i,
			radius: t.Priority.Radius(),
			state:  StateFree,
		}
		switch {
		case t.Position != nil:
			n.x, n.y = t.Position.X, t.Position.Y
			n.state = StateSeeded
			seedX += n.x
			seedY += n.y
			seeds++
		case old[t.ID] != nil:
			prev := old[t.ID]
			n.x, n.y = prev.x, prev.y
			n.vx, n.vy = prev.vx, prev.vy
			n.fx, n.fy = prev.fx, prev.fy
			n.state = prev.state
			carried = true
		default:
			fresh = append(fresh, n)
		}
		nodes = append(nodes, n)
		byID[t.ID] = n
	}

	// The centering target is the centroid of this load's seeds when any
	// exist, otherwise the canvas center.
	if seeds > 0 {
		s.centerX = seedX / float64(seeds)
		s.centerY = seedY / float64(seeds)
	} else {
		s.centerX = width / 2
		s.centerY = height / 2
	}

	// Nodes with no position land on a golden-angle spiral around the
	// centering target, by node index so replays are identical.
	const spiralRadius = 10
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	for _, n := range fresh {
		r := spiralRadius * math.Sqrt(0.5+float64(n.index))
		a := float64(n.index) * goldenAngle
		n.x = s.centerX + r*math.Cos(a)
		n.y = s.centerY + r*math.Sin(a)
	}

	// Held nodes are pinned where they start, seed or spiral, so no tick
	// ever moves them. Unknown ids are ignored.
	for _, id := range s.holdIDs {
		n := byID[id]
		if n == nil {
			continue
		}
		x, y := n.x, n.y
		n.fx, n.fy = &x, &y
		n.vx, n.vy = 0, 0
		n.state = StatePinned
	}

	// Weighted-degree counts drive link strength and bias.
	counts := make(map[string]int, len(nodes))
	for _, r := range relations {
		counts[r.Source]++
		counts[r.Target]++
	}

	links := make([]*link, 0, len(relations))
	for _, r := range relations {
		src, tgt := byID[r.Source], byID[r.Target]
		cs, ct := counts[r.Source], counts[r.Target]
		ln := &link{
			source:   src,
			target:   tgt,
			weight:   r.Weight,
			distance: s.cfg.LinkDistanceMax - r.Weight*(s.cfg.LinkDistanceMax-s.cfg.LinkDistanceMin),
			strength: (0.1 + 0.9*r.Weight) / float64(minInt(cs, ct)),
			bias:     float64(cs) / float64(cs+ct),
		}
		src.degree += r.Weight
		tgt.degree += r.Weight
		links = append(links, ln)
	}

	s.nodes = nodes
	s.byID = byID
	s.links = links
	s.tick = 0
	s.settled = false
	s.pins = 0
	for _, n := range nodes {
		if n.state == StatePinned {
			s.pins++
		}
	}
	// A reload can drop the node a drag was holding; without the pin the
	// drag temperature floor must not linger.
	if s.pins == 0 && s.alphaTarget == s.cfg.DragAlphaTarget {
		s.alphaTarget = 0
	}

	if carried || seeds > 0 {
		s.alpha = s.cfg.AlphaCarry
	} else {
		s.alpha = 1.0
	}

	SimNodes.Set(float64(len(nodes)))
	SimRunsTotal.Inc()
}

// Layout settles a graph synchronously and returns the final frame. This
// is the path the layout endpoint and the scenario runner use; maxTicks
// bounds runaway configs and defaults to 1000.
func Layout(cfg Config, tasks []*graph.Task, relations []*graph.Relation, width, height float64, maxTicks int) (Snapshot, error) {
	return LayoutHeld(cfg, tasks, relations, width, height, maxTicks, nil)
}

// LayoutHeld is Layout with the listed tasks held at their starting
// positions for the whole settle, the way an active pin holds a dragged
// node. Held tasks do not raise the drag temperature floor, so the
// layout still cools and stops normally.
func LayoutHeld(cfg Config, tasks []*graph.Task, relations []*graph.Relation, width, height float64, maxTicks int, held []string) (Snapshot, error) {
	if maxTicks <= 0 {
		maxTicks = 1000
	}
	cfg.TickInterval = 0
	sim := New(cfg)
	sim.holdIDs = held
	stream, err := sim.Start(tasks, relations, width, height)
	if err != nil {
		return Snapshot{}, err
	}
	defer sim.Stop()

	var last Snapshot
	for snap := range stream {
		last = snap
		if snap.Tick >= maxTicks {
			break
		}
	}
	return last, nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
