package gesture

// The recognizer turns raw pointer events into graph commands. It knows
// nothing about cameras, simulations or selection rules: it only decides
// what kind of gesture the pointer is performing and reports it. Screen
// coordinates go in, screen coordinates come out; the composition layer
// converts to world space with a fresh camera read per move, which matters
// while auto-pan shifts the view under a stationary pointer.

// Kind identifies what a pointer event amounted to.
type Kind int

const (
	// None means the event changed no observable state.
	None Kind = iota
	// Select is a sub-threshold press-release on a node.
	Select
	// ClearSelect is a sub-threshold press-release on the background.
	ClearSelect
	// DragBegin starts a node drag; exactly one DragEnd will follow.
	DragBegin
	// DragMove updates an active node drag.
	DragMove
	// DragEnd finishes a node drag.
	DragEnd
	// Pan is a background drag step, 1:1 with pointer movement.
	Pan
)

// Command is the recognizer's output for one pointer event.
type Command struct {
	Kind   Kind
	NodeID string
	// X, Y is the pointer position in screen units.
	X, Y float64
	// DX, DY is the movement delta, set for Pan.
	DX, DY float64
}

type state int

const (
	stateIdle state = iota
	// statePendingDrag is a node press that has not yet moved past the
	// threshold; release from here is a click.
	statePendingDrag
	stateDragging
	statePendingPan
	statePanning
)

// DefaultThreshold is the screen-unit movement that separates a click
// from a drag. Movement must exceed it, not merely reach it.
const DefaultThreshold = 3.0

// Recognizer is the per-gesture state machine. One pointer, one gesture
// at a time: a gesture that starts on a node can only ever drag that
// node, and one that starts on the background can only ever pan.
type Recognizer struct {
	Threshold float64

	state          state
	nodeID         string
	startX, startY float64
	lastX, lastY   float64
}

// NewRecognizer returns a recognizer with the default drag threshold.
// Cell-addressed canvases lower the threshold to match their coarser
// coordinates.
func NewRecognizer() *Recognizer {
	return &Recognizer{Threshold: DefaultThreshold}
}

// Down feeds a pointer press. nodeID is the hit-test result at the press
// position, empty for the background.
func (r *Recognizer) Down(x, y float64, nodeID string) Command {
	r.startX, r.startY = x, y
	r.lastX, r.lastY = x, y
	r.nodeID = nodeID
	if nodeID != "" {
		r.state = statePendingDrag
	} else {
		r.state = statePendingPan
	}
	return Command{Kind: None, X: x, Y: y}
}

// Move feeds pointer movement with the button held.
func (r *Recognizer) Move(x, y float64) Command {
	defer func() { r.lastX, r.lastY = x, y }()

	switch r.state {
	case statePendingDrag:
		if !r.pastThreshold(x, y) {
			return Command{Kind: None, X: x, Y: y}
		}
		r.state = stateDragging
		return Command{Kind: DragBegin, NodeID: r.nodeID, X: x, Y: y}

	case stateDragging:
		return Command{Kind: DragMove, NodeID: r.nodeID, X: x, Y: y}

	case statePendingPan:
		if !r.pastThreshold(x, y) {
			return Command{Kind: None, X: x, Y: y}
		}
		r.state = statePanning
		// Catch up the movement swallowed while under the threshold.
		return Command{Kind: Pan, X: x, Y: y, DX: x - r.startX, DY: y - r.startY}

	case statePanning:
		return Command{Kind: Pan, X: x, Y: y, DX: x - r.lastX, DY: y - r.lastY}
	}
	return Command{Kind: None, X: x, Y: y}
}

// Up feeds the pointer release and ends the gesture.
func (r *Recognizer) Up(x, y float64) Command {
	st, id := r.state, r.nodeID
	r.state = stateIdle
	r.nodeID = ""

	switch st {
	case statePendingDrag:
		return Command{Kind: Select, NodeID: id, X: x, Y: y}
	case stateDragging:
		return Command{Kind: DragEnd, NodeID: id, X: x, Y: y}
	case statePendingPan:
		return Command{Kind: ClearSelect, X: x, Y: y}
	}
	return Command{Kind: None, X: x, Y: y}
}

// Cancel aborts the gesture in progress, emitting DragEnd if a node was
// mid-drag so the pin is never leaked.
func (r *Recognizer) Cancel() Command {
	st, id := r.state, r.nodeID
	r.state = stateIdle
	r.nodeID = ""
	if st == stateDragging {
		return Command{Kind: DragEnd, NodeID: id, X: r.lastX, Y: r.lastY}
	}
	return Command{Kind: None}
}

// Dragging reports whether a node drag is active.
func (r *Recognizer) Dragging() bool {
	return r.state == stateDragging
}

// DragNode returns the node being dragged, or empty.
func (r *Recognizer) DragNode() string {
	if r.state == stateDragging {
		return r.nodeID
	}
	return ""
}

func (r *Recognizer) pastThreshold(x, y float64) bool {
	dx := x - r.startX
	dy := y - r.startY
	return dx*dx+dy*dy > r.Threshold*r.Threshold
}
