package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/gravitask/gravitask/pkg/graph"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
	// Version is the daemon version.
	Version string `json:"version"`
	// Tasks is the number of tasks the daemon currently holds.
	Tasks int `json:"tasks"`
}

// GraphResponse is the full graph as the server holds it.
type GraphResponse struct {
	Tasks []*graph.Task     `json:"tasks"`
	Edges []*graph.Relation `json:"edges"`
	// Version increments on every mutation; the watch feed carries it.
	Version int64 `json:"version"`
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Status      *graph.Status   `json:"status,omitempty"`
	Priority    *graph.Priority `json:"priority,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	// ClearDueAt removes the deadline; DueAt cannot express that.
	ClearDueAt bool `json:"clear_due_at,omitempty"`
	Position   *graph.Point    `json:"position,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// LayoutRequest asks the daemon to lay out its current graph.
type LayoutRequest struct {
	// Mode is "pca" (default) or "force".
	Mode   string  `json:"mode,omitempty"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LayoutResponse carries the computed coordinates per task id.
type LayoutResponse struct {
	Mode      string                 `json:"mode"`
	Positions map[string]graph.Point `json:"positions"`
	// Ticks is how many simulation steps force mode ran; zero for pca.
	Ticks int `json:"ticks,omitempty"`
	// Cached reports a layout served from the cache.
	Cached bool `json:"cached,omitempty"`
}

// WatchEvent is one change notification from the daemon's feed.
type WatchEvent struct {
	Type    string    `json:"type"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
}

// ErrorResponse is the daemon's error body shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UnreachableError wraps a transport failure: the daemon could not be
// reached at all. The sync loop keeps queued work and retries later.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("daemon unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// RejectedError means the daemon answered and refused (4xx). Replaying
// the same request will fail the same way, so queued work is dropped.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon rejected request (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("daemon rejected request (%d)", e.StatusCode)
}

// IsUnreachable reports whether err is a transport failure worth
// retrying against the same daemon.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// IsRejected reports whether the daemon examined and refused the request.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
