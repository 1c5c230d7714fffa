package sync

import (
	"context"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/store"
)

// OpQueue is the slice of the store the queue helpers write to.
type OpQueue interface {
	EnqueueOp(ctx context.Context, kind store.OpKind, payload any) (int64, error)
}

// idPayload carries just a task id, for task deletes.
type idPayload struct {
	ID string `json:"id"`
}

// QueueCreateTask records a locally created task for replay.
func QueueCreateTask(ctx context.Context, q OpQueue, t *graph.Task) (int64, error) {
	return q.EnqueueOp(ctx, store.OpCreateTask, t)
}

// QueueUpdateTask records a task's full local row. The flush turns the
// row into a patch stamped with its UpdatedAt, which lets the daemon
// refuse replays older than what it already holds.
func QueueUpdateTask(ctx context.Context, q OpQueue, t *graph.Task) (int64, error) {
	return q.EnqueueOp(ctx, store.OpUpdateTask, t)
}

// QueueDeleteTask records a local task deletion.
func QueueDeleteTask(ctx context.Context, q OpQueue, id string) (int64, error) {
	return q.EnqueueOp(ctx, store.OpDeleteTask, idPayload{ID: id})
}

// QueueCreateEdge records a locally created relation.
func QueueCreateEdge(ctx context.Context, q OpQueue, rel *graph.Relation) (int64, error) {
	return q.EnqueueOp(ctx, store.OpCreateEdge, rel)
}

// QueueDeleteEdge records a local relation removal.
func QueueDeleteEdge(ctx context.Context, q OpQueue, source, target string) (int64, error) {
	return q.EnqueueOp(ctx, store.OpDeleteEdge, graph.Relation{Source: source, Target: target})
}

// patchFromTask spreads a full local row into a patch. Every field the
// row carries is set, so an offline edit replays as a whole-row write;
// a nil local position stays off the wire because the daemon's copy may
// have coordinates this replica never computed.
func patchFromTask(t *graph.Task) client.TaskPatch {
	p := client.TaskPatch{
		Title:       &t.Title,
		Description: &t.Description,
		Category:    &t.Category,
		Status:      &t.Status,
		Priority:    &t.Priority,
		Tags:        &t.Tags,
		Position:    t.Position,
		UpdatedAt:   &t.UpdatedAt,
	}
	if t.DueAt != nil {
		p.DueAt = t.DueAt
	} else {
		p.ClearDueAt = true
	}
	return p
}
