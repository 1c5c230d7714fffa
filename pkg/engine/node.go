package engine

// NodeState records who owns a node's position. Every node is in exactly
// one state; the ambiguous "has coordinates, so it must be seeded" check
// this replaces misread nodes that settled at the origin.
type NodeState string

const (
	// StateFree means the simulation owns the position.
	StateFree NodeState = "free"
	// StateSeeded means the position came in explicitly (saved layout,
	// server layout pass). The simulation refines it but starts from it.
	StateSeeded NodeState = "seeded"
	// StatePinned means the user owns the position via an active pin.
	StatePinned NodeState = "pinned"
)

// node is the simulation's private working copy of a task. Caller data is
// never mutated; positions flow back out through snapshots only.
type node struct {
	id     string
	index  int
	x, y   float64
	vx, vy float64
	// fx, fy fix the node while non-nil. Integration snaps the node to
	// them and zeroes velocity, so a pinned node tracks the pointer
	// exactly.
	fx, fy *float64
	radius float64
	// degree is the weighted relation count, used to bias link forces
	// toward moving the less connected endpoint.
	degree float64
	state  NodeState
}

// link is the working form of a relation: resolved endpoints plus the
// force parameters derived from the weight at build time.
type link struct {
	source, target *node
	weight         float64
	// distance is the resting length: heavier relations rest shorter.
	distance float64
	// strength scales the spring, weight-scaled and divided by the
	// smaller endpoint degree the way d3-force does.
	strength float64
	// bias splits each correction between the endpoints by degree.
	bias float64
}
