package engine

import "testing"

func TestSendLatest_DropsStaleFrame(t *testing.T) {
	ch := make(chan Snapshot, 1)

	sendLatest(ch, Snapshot{Tick: 1})
	// Consumer is slow: newer frames replace the undrained one instead
	// of blocking the integrator.
	sendLatest(ch, Snapshot{Tick: 2})
	sendLatest(ch, Snapshot{Tick: 3})

	got := <-ch
	if got.Tick != 3 {
		t.Errorf("delivered tick = %d, want the freshest (3)", got.Tick)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra frame with tick %d", extra.Tick)
	default:
	}
}

func TestSnapshot_NodeLookup(t *testing.T) {
	snap := Snapshot{Nodes: []SnapshotNode{{ID: "a", X: 1}, {ID: "b", X: 2}}}

	if n := snap.Node("b"); n == nil || n.X != 2 {
		t.Errorf("Node(b) = %+v, want the b entry", n)
	}
	if n := snap.Node("missing"); n != nil {
		t.Errorf("Node(missing) = %+v, want nil", n)
	}
}
