package scene

import (
	"log"
	"sync"

	"github.com/gravitask/gravitask/pkg/engine"
	"github.com/gravitask/gravitask/pkg/gesture"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/minimap"
	"github.com/gravitask/gravitask/pkg/viewport"
)

// Scene is the composition root of the graph view: it owns the simulation
// handle, the camera, the gesture recognizer and the selection state, and
// turns all of them into render frames. Everything except the snapshot
// consumer runs on the caller's goroutine; the consumer only touches the
// latest-snapshot slot.
//
// Persistence and networking stay outside: the scene reports selections
// and link requests through callbacks and lets the owner decide what they
// mean.
type Scene struct {
	// OnSelect fires when the selection changes; empty means cleared.
	OnSelect func(id string)
	// OnLink fires when a linking gesture completes with two distinct
	// nodes. The owner creates the relation and feeds the graph back in
	// through SetGraph.
	OnLink func(source, target string)

	sim    *engine.Simulation
	cam    *viewport.Camera
	edge   viewport.EdgePan
	spring *viewport.PanSpring
	rec    *gesture.Recognizer

	mu   sync.RWMutex
	last *engine.Snapshot
	// gen fences the snapshot consumer: a superseded stream may still
	// hold a buffered frame, and it must not land after a restart.
	gen int

	graph    *graph.Graph
	adjacent map[string][]string

	selected string
	linkFrom string

	// pending marks a graph waiting for a usable canvas size.
	pending bool

	px, py   float64
	lastProj *minimap.Projector

	minimapW, minimapH float64
}

// Options tune a scene. Zero values fall back to defaults.
type Options struct {
	Engine   engine.Config
	MinimapW float64
	MinimapH float64
	// DragThreshold overrides the click-vs-drag distance, in the same
	// units the caller reports pointer positions in.
	DragThreshold float64
}

// New creates a scene over a canvas of the given screen size.
func New(width, height float64, opts Options) *Scene {
	if opts.MinimapW == 0 {
		opts.MinimapW = 24
	}
	if opts.MinimapH == 0 {
		opts.MinimapH = 10
	}
	rec := gesture.NewRecognizer()
	if opts.DragThreshold > 0 {
		rec.Threshold = opts.DragThreshold
	}
	return &Scene{
		sim:      engine.New(opts.Engine),
		cam:      viewport.NewCamera(width, height),
		edge:     viewport.NewEdgePan(),
		spring:   viewport.NewPanSpring(30),
		rec:      rec,
		graph:    graph.NewGraph(),
		minimapW: opts.MinimapW,
		minimapH: opts.MinimapH,
	}
}

// Camera exposes the view transform. All mutation still goes through the
// scene's own operations.
func (s *Scene) Camera() *viewport.Camera {
	return s.cam
}

// SetGraph replaces the scene's data and reconciles the simulation: nodes
// that survive keep their positions and momentum, per the engine's rules.
// An empty graph is a valid blank state, and a zero-size canvas defers
// the restart until Resize provides one.
func (s *Scene) SetGraph(g *graph.Graph) {
	if g == nil {
		g = graph.NewGraph()
	}
	s.graph = g.Clone()
	s.adjacent = s.graph.Adjacency()
	if s.graph.Task(s.selected) == nil {
		s.setSelected("")
	}
	if s.linkFrom != "" && s.graph.Task(s.linkFrom) == nil {
		s.linkFrom = ""
	}
	s.restart()
}

// Resize updates the canvas size and restarts any deferred simulation.
func (s *Scene) Resize(width, height float64) {
	s.cam.Resize(width, height)
	if s.pending {
		s.restart()
	}
}

func (s *Scene) restart() {
	if len(s.graph.Tasks) == 0 {
		s.sim.Stop()
		s.mu.Lock()
		s.gen++
		s.last = nil
		s.mu.Unlock()
		s.pending = false
		return
	}

	stream, err := s.sim.Start(s.graph.Tasks, s.graph.Relations, s.cam.Width, s.cam.Height)
	switch err {
	case nil:
		s.pending = false
	case engine.ErrZeroCanvas:
		s.pending = true
		return
	default:
		log.Printf("scene: simulation start failed: %v", err)
		return
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	go func() {
		for snap := range stream {
			snap := snap
			s.mu.Lock()
			if s.gen == gen {
				s.last = &snap
			}
			s.mu.Unlock()
		}
	}()
}

// Close stops the simulation stream.
func (s *Scene) Close() {
	s.sim.Stop()
}

// latest returns the most recent snapshot, or nil before the first tick.
func (s *Scene) latest() *engine.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Positions returns the current world position of every node, keyed by
// task ID. The cache writer persists these periodically and at shutdown.
func (s *Scene) Positions() map[string]graph.Point {
	snap := s.latest()
	if snap == nil {
		return nil
	}
	out := make(map[string]graph.Point, len(snap.Nodes))
	for _, n := range snap.Nodes {
		out[n.ID] = graph.Point{X: n.X, Y: n.Y}
	}
	return out
}

// Selected returns the selected task ID, empty for none.
func (s *Scene) Selected() string {
	return s.selected
}

// SelectedTask returns the selected task's data, or nil.
func (s *Scene) SelectedTask() *graph.Task {
	if s.selected == "" {
		return nil
	}
	return s.graph.Task(s.selected)
}

// Linking returns the armed linking source, empty when linking mode is
// off.
func (s *Scene) Linking() string {
	return s.linkFrom
}

// StartLinking arms linking mode from the current selection. Without a
// selection it does nothing.
func (s *Scene) StartLinking() {
	if s.selected != "" {
		s.linkFrom = s.selected
	}
}

// CancelLinking disarms linking mode.
func (s *Scene) CancelLinking() {
	s.linkFrom = ""
}

// ClearSelection disarms linking mode and drops the selection.
func (s *Scene) ClearSelection() {
	s.linkFrom = ""
	s.setSelected("")
}

// Reheat shakes the layout without moving the camera or selection.
func (s *Scene) Reheat() {
	if err := s.sim.Reheat(); err != nil {
		log.Printf("scene: reheat ignored: %v", err)
	}
}

// PointerDown feeds a press at screen coordinates.
func (s *Scene) PointerDown(x, y float64) {
	s.spring.Cancel()
	s.px, s.py = x, y
	s.rec.Down(x, y, s.hitTest(x, y))
}

// PointerMove feeds movement with the button held.
func (s *Scene) PointerMove(x, y float64) {
	s.px, s.py = x, y
	s.apply(s.rec.Move(x, y))
}

// PointerUp feeds the release.
func (s *Scene) PointerUp(x, y float64) {
	s.px, s.py = x, y
	s.apply(s.rec.Up(x, y))
}

// CancelGesture aborts any in-flight gesture, releasing a held pin.
func (s *Scene) CancelGesture() {
	s.apply(s.rec.Cancel())
}

// WheelZoom applies one wheel notch; positive zooms in.
func (s *Scene) WheelZoom(dir int) {
	s.spring.Cancel()
	if dir >= 0 {
		s.cam.ZoomBy(viewport.WheelZoomStep)
	} else {
		s.cam.ZoomBy(-viewport.WheelZoomStep)
	}
}

// ZoomIn and ZoomOut apply the larger button step.
func (s *Scene) ZoomIn()  { s.spring.Cancel(); s.cam.ZoomBy(viewport.ButtonZoomStep) }
func (s *Scene) ZoomOut() { s.spring.Cancel(); s.cam.ZoomBy(-viewport.ButtonZoomStep) }

// ResetView restores zoom 1 and zero pan.
func (s *Scene) ResetView() {
	s.spring.Cancel()
	s.cam.Reset()
}

// MinimapClick recenters the view on the world point under an overlay
// click, animated by the pan spring.
func (s *Scene) MinimapClick(ox, oy float64) {
	if s.lastProj == nil {
		return
	}
	wx, wy := s.lastProj.Unproject(ox, oy)
	s.centerOn(wx, wy)
}

func (s *Scene) centerOn(wx, wy float64) {
	px, py, ok := s.cam.CenterTarget(wx, wy)
	if !ok {
		return
	}
	s.spring.Start(s.cam.PanX, s.cam.PanY, px, py)
}

// apply routes a recognizer command into the simulation, the camera, the
// selection and the callbacks. Engine pin errors are logged and swallowed:
// a lost pin must never take the UI down.
func (s *Scene) apply(cmd gesture.Command) {
	switch cmd.Kind {
	case gesture.DragBegin:
		if err := s.sim.BeginPin(cmd.NodeID); err != nil {
			log.Printf("scene: pin begin failed: %v", err)
			return
		}
		wx, wy := s.cam.ScreenToWorld(cmd.X, cmd.Y)
		if err := s.sim.MovePin(cmd.NodeID, wx, wy); err != nil {
			log.Printf("scene: pin move failed: %v", err)
		}

	case gesture.DragMove:
		// World coordinates derive from the camera as it is now, not as
		// it was at press time; auto-pan may have moved it since.
		wx, wy := s.cam.ScreenToWorld(cmd.X, cmd.Y)
		if err := s.sim.MovePin(cmd.NodeID, wx, wy); err != nil {
			log.Printf("scene: pin move failed: %v", err)
		}

	case gesture.DragEnd:
		if err := s.sim.EndPin(cmd.NodeID); err != nil {
			log.Printf("scene: pin end failed: %v", err)
		}

	case gesture.Pan:
		s.spring.Cancel()
		s.cam.PanBy(cmd.DX, cmd.DY)

	case gesture.Select:
		if s.linkFrom != "" {
			from := s.linkFrom
			s.linkFrom = ""
			if cmd.NodeID != from && s.OnLink != nil {
				s.OnLink(from, cmd.NodeID)
			}
			// Clicking the armed source cancels linking and keeps the
			// selection as it was.
			return
		}
		s.selectNode(cmd.NodeID)

	case gesture.ClearSelect:
		s.linkFrom = ""
		s.selectNode("")
	}
}

// selectNode updates the selection, fires the callback and recenters, all
// only when the selection actually changed. Re-selecting the same node
// never re-centers; that is what keeps the camera calm across repeated
// clicks and layout ticks.
func (s *Scene) selectNode(id string) {
	if id == s.selected {
		return
	}
	s.setSelected(id)
	if id == "" {
		return
	}
	if snap := s.latest(); snap != nil {
		if n := snap.Node(id); n != nil {
			s.centerOn(n.X, n.Y)
		}
	}
}

func (s *Scene) setSelected(id string) {
	if id == s.selected {
		return
	}
	s.selected = id
	if s.OnSelect != nil {
		s.OnSelect(id)
	}
}

// hitTest returns the node whose circle covers the screen point, nearest
// center first. Hit radii are the same priority radii the collision force
// and the renderer use.
func (s *Scene) hitTest(sx, sy float64) string {
	snap := s.latest()
	if snap == nil {
		return ""
	}
	wx, wy := s.cam.ScreenToWorld(sx, sy)
	bestID := ""
	bestD := 0.0
	for _, n := range snap.Nodes {
		dx, dy := n.X-wx, n.Y-wy
		d2 := dx*dx + dy*dy
		if d2 > n.Radius*n.Radius {
			continue
		}
		if bestID == "" || d2 < bestD {
			bestID, bestD = n.ID, d2
		}
	}
	return bestID
}
