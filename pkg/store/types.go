package store

import (
	"encoding/json"
	"time"
)

// OpKind identifies a queued mutation awaiting sync to the server.
type OpKind string

const (
	OpCreateTask OpKind = "create_task"
	OpUpdateTask OpKind = "update_task"
	OpDeleteTask OpKind = "delete_task"
	OpCreateEdge OpKind = "create_edge"
	OpDeleteEdge OpKind = "delete_edge"
)

// Op is one entry in the offline mutation queue. Payload is the JSON the
// sync loop will replay against the server: a full task for create/update,
// an id for delete, a relation for edge ops.
type Op struct {
	OpID       int64           `json:"op_id"`
	Kind       OpKind          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}

// Meta keys used by the sync loop. The graph version doubles as the
// change cursor: pulls are always whole-graph, so there is nothing finer
// to resume from.
const (
	// MetaLastSyncAt records when the last full sync completed.
	MetaLastSyncAt = "last_sync_at"
	// MetaGraphVersion is the server graph version at the last pull.
	MetaGraphVersion = "graph_version"
)
