package engine

// SnapshotNode is one node's layout state at a tick, deep-copied so
// consumers can hold it across frames without racing the integrator.
type SnapshotNode struct {
	ID     string    `json:"id"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	VX     float64   `json:"vx"`
	VY     float64   `json:"vy"`
	Radius float64   `json:"radius"`
	State  NodeState `json:"state"`
}

// Snapshot is the per-tick layout frame streamed to the renderer.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes"`
	Alpha float64        `json:"alpha"`
	Tick  int            `json:"tick"`
}

// Node returns the snapshot entry for id, or nil.
func (s *Snapshot) Node(id string) *SnapshotNode {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// snapshot builds a frame from the current working set. Callers hold the
// simulation lock.
func (s *Simulation) snapshot() Snapshot {
	out := Snapshot{
		Nodes: make([]SnapshotNode, 0, len(s.nodes)),
		Alpha: s.alpha,
		Tick:  s.tick,
	}
	for _, n := range s.nodes {
		out.Nodes = append(out.Nodes, SnapshotNode{
			ID:     n.id,
			X:      n.x,
			Y:      n.y,
			VX:     n.vx,
			VY:     n.vy,
			Radius: n.radius,
			State:  n.state,
		})
	}
	return out
}

// sendLatest delivers a snapshot without ever blocking the integrator: if
// the consumer has not drained the previous frame it is dropped in favor
// of the new one. Renderers only ever want the freshest layout.
func sendLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
