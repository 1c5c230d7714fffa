package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Seed is the import document format: one JSON object carrying tasks and
// edges. It exists for seeding a graph from a file; nothing exports it.
type Seed struct {
	Tasks []*Task     `json:"tasks"`
	Edges []*Relation `json:"edges"`
}

// ParseSeed decodes a seed document and normalizes it: missing statuses
// and priorities get defaults, zero timestamps are stamped now, and the
// usual cleanup rules apply (duplicate IDs dropped, weights clamped,
// dangling edges filtered).
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}

	now := time.Now().UTC()
	for _, t := range s.Tasks {
		if t == nil {
			continue
		}
		if t.Title == "" {
			t.Title = t.ID
		}
		if t.Status == "" {
			t.Status = StatusTodo
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
	}

	s.Tasks, s.Edges = Normalize(s.Tasks, s.Edges)
	return &s, nil
}
