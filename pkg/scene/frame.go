package scene

import (
	"github.com/gravitask/gravitask/pkg/engine"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/minimap"
)

// Emphasis tells the renderer how prominently to draw an element relative
// to the current selection.
type Emphasis int

const (
	// EmphasisNormal is the no-selection appearance.
	EmphasisNormal Emphasis = iota
	// EmphasisHighlight marks the selection and its neighborhood.
	EmphasisHighlight
	// EmphasisDim fades everything outside the neighborhood.
	EmphasisDim
)

// FrameNode is a node ready to draw: screen coordinates, screen radius,
// emphasis, and the task it stands for.
type FrameNode struct {
	ID       string
	X, Y     float64
	Radius   float64
	Emphasis Emphasis
	Pinned   bool
	Selected bool
	Task     *graph.Task
}

// FrameEdge is a relation ready to draw in screen space.
type FrameEdge struct {
	X1, Y1, X2, Y2 float64
	Weight         float64
	Emphasis       Emphasis
}

// MinimapFrame is the overlay content: node dots and the viewport box,
// both in overlay units.
type MinimapFrame struct {
	W, H float64
	Dots []graph.Point
	View minimap.Rect
}

// Frame is everything a renderer needs for one screen.
type Frame struct {
	Nodes    []FrameNode
	Edges    []FrameEdge
	Minimap  *MinimapFrame
	Alpha    float64
	Tick     int
	Zoom     float64
	Selected string
	LinkFrom string
	Dragging bool
}

// Frame assembles the current render state. It also advances the
// per-frame animations: the pan spring, and edge auto-pan while a drag
// holds the pointer in the band. During auto-pan the dragged pin is
// re-derived from the moved camera so the node stays under the pointer.
func (s *Scene) Frame() *Frame {
	if s.spring.Active() {
		x, y, _ := s.spring.Step()
		s.cam.SetPan(x, y)
	}

	if id := s.rec.DragNode(); id != "" {
		if dx, dy := s.edge.Vector(s.px, s.py, s.cam.Width, s.cam.Height); dx != 0 || dy != 0 {
			s.cam.PanBy(dx, dy)
			wx, wy := s.cam.ScreenToWorld(s.px, s.py)
			// The pointer has not moved but the world under it has.
			_ = s.sim.MovePin(id, wx, wy)
		}
	}

	f := &Frame{
		Zoom:     s.cam.Zoom,
		Selected: s.selected,
		LinkFrom: s.linkFrom,
		Dragging: s.rec.Dragging(),
	}

	snap := s.latest()
	if snap == nil {
		s.lastProj = nil
		return f
	}
	f.Alpha = snap.Alpha
	f.Tick = snap.Tick

	highlight := s.highlightSet()

	byID := make(map[string]*FrameNode, len(snap.Nodes))
	f.Nodes = make([]FrameNode, 0, len(snap.Nodes))
	dots := make([]graph.Point, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		sx, sy := s.cam.WorldToScreen(n.X, n.Y)
		fn := FrameNode{
			ID:       n.ID,
			X:        sx,
			Y:        sy,
			Radius:   n.Radius * s.cam.Zoom,
			Emphasis: s.emphasisFor(n.ID, highlight),
			Pinned:   n.State == engine.StatePinned,
			Selected: n.ID == s.selected,
			Task:     s.graph.Task(n.ID),
		}
		f.Nodes = append(f.Nodes, fn)
		byID[n.ID] = &f.Nodes[len(f.Nodes)-1]
		dots = append(dots, graph.Point{X: n.X, Y: n.Y})
	}

	f.Edges = make([]FrameEdge, 0, len(s.graph.Relations))
	for _, r := range s.graph.Relations {
		a, b := byID[r.Source], byID[r.Target]
		if a == nil || b == nil {
			continue
		}
		em := EmphasisNormal
		if s.selected != "" {
			if r.Source == s.selected || r.Target == s.selected {
				em = EmphasisHighlight
			} else {
				em = EmphasisDim
			}
		}
		f.Edges = append(f.Edges, FrameEdge{
			X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y,
			Weight:   r.Weight,
			Emphasis: em,
		})
	}

	// Rebuild the minimap projector from live positions; the layout
	// breathes while it cools, and the frame has to follow it.
	proj := minimap.NewProjector(dots, s.minimapW, s.minimapH)
	s.lastProj = proj
	mm := &MinimapFrame{
		W:    s.minimapW,
		H:    s.minimapH,
		Dots: make([]graph.Point, 0, len(dots)),
		View: proj.ViewportRect(s.cam),
	}
	for _, d := range dots {
		ox, oy := proj.Project(d.X, d.Y)
		mm.Dots = append(mm.Dots, graph.Point{X: ox, Y: oy})
	}
	f.Minimap = mm

	return f
}

// highlightSet returns the selection plus its direct neighbors, or nil
// when nothing is selected.
func (s *Scene) highlightSet() map[string]bool {
	if s.selected == "" {
		return nil
	}
	set := map[string]bool{s.selected: true}
	for _, id := range s.adjacent[s.selected] {
		set[id] = true
	}
	return set
}

func (s *Scene) emphasisFor(id string, highlight map[string]bool) Emphasis {
	if highlight == nil {
		return EmphasisNormal
	}
	if highlight[id] {
		return EmphasisHighlight
	}
	return EmphasisDim
}
