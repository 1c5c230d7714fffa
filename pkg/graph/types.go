package graph

import "time"

// Priority represents the urgency tier of a task. It is the one display
// field the layout engine interprets: each tier maps to a fixed collision
// radius so urgent tasks claim more space on the canvas.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status represents the workflow state of a task. Status only affects
// rendering color, never physics.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Radius returns the node radius in world units for a priority tier.
// Collision, hit-testing and rendering all use this same function so a
// node occupies exactly the space it is drawn in.
func (p Priority) Radius() float64 {
	switch p {
	case PriorityLow:
		return 10
	case PriorityHigh:
		return 18
	case PriorityCritical:
		return 22
	default:
		return 14 // medium, and anything unrecognized
	}
}

// Point is a position in world coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Task represents a single unit of work. All display fields are opaque to
// the layout engine except Priority. Position is nil until a layout pass,
// a sync, or the user has produced one; (0,0) with a non-nil Position is a
// real location, not "unset".
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Position    *Point     `json:"position,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Relation represents a weighted undirected dependency edge between two
// tasks. Weight is clamped to [0,1]: heavier relations pull their
// endpoints closer together and render thicker.
type Relation struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// ClampWeight normalizes a relation weight into [0,1].
func ClampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
