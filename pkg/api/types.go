package api

import (
	"time"

	"github.com/gravitask/gravitask/pkg/graph"
)

// GraphResponse matches the response for GET /v1/graph
type GraphResponse struct {
	Tasks   []*graph.Task     `json:"tasks"`
	Edges   []*graph.Relation `json:"edges"`
	Version int64             `json:"version"`
}

// TaskPatch matches the PATCH /v1/tasks/{id} body schema. Nil fields are
// left untouched; UpdatedAt is the client's local stamp and drives the
// last-write-wins check against the stored copy.
type TaskPatch struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Status      *graph.Status   `json:"status,omitempty"`
	Priority    *graph.Priority `json:"priority,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	ClearDueAt  bool            `json:"clear_due_at,omitempty"`
	Position    *graph.Point    `json:"position,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// LayoutRequest matches the POST /v1/layout body schema
type LayoutRequest struct {
	Mode   string  `json:"mode,omitempty"` // pca (default) or force
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LayoutResponse matches the response for POST /v1/layout
type LayoutResponse struct {
	Mode      string                 `json:"mode"`
	Positions map[string]graph.Point `json:"positions"`
	Ticks     int                    `json:"ticks,omitempty"`
	Cached    bool                   `json:"cached,omitempty"`
}

// WatchEvent is one change notification pushed over /v1/watch
type WatchEvent struct {
	Type    string    `json:"type"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
}

// HealthResponse matches the response for GET /v1/health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tasks   int    `json:"tasks"`
}
