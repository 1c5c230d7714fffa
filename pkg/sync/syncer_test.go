package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/store"
)

// fakeDaemon stands in for the HTTP client: it records replayed ops in
// order and serves a canned graph.
type fakeDaemon struct {
	mu       sync.Mutex
	calls    []string
	fetches  int
	graph    *client.GraphResponse
	fetchErr error
	failCall string
	failWith error
	onFetch  func()
	events   chan client.WatchEvent
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		graph:  &client.GraphResponse{Version: 7},
		events: make(chan client.WatchEvent, 8),
	}
}

func (f *fakeDaemon) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failCall != "" && call == f.failCall {
		return f.failWith
	}
	return nil
}

func (f *fakeDaemon) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDaemon) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeDaemon) setGraph(g *client.GraphResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graph = g
	f.fetchErr = nil
}

func (f *fakeDaemon) FetchGraph(ctx context.Context) (*client.GraphResponse, error) {
	f.mu.Lock()
	f.fetches++
	g := f.graph
	err := f.fetchErr
	fn := f.onFetch
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (f *fakeDaemon) CreateTask(ctx context.Context, t *graph.Task) (*graph.Task, error) {
	return t, f.record("create:" + t.ID)
}

func (f *fakeDaemon) UpdateTask(ctx context.Context, id string, patch client.TaskPatch) (*graph.Task, error) {
	return &graph.Task{ID: id}, f.record("update:" + id)
}

func (f *fakeDaemon) DeleteTask(ctx context.Context, id string) error {
	return f.record("delete:" + id)
}

func (f *fakeDaemon) CreateEdge(ctx context.Context, rel *graph.Relation) error {
	return f.record(fmt.Sprintf("edge:%s->%s", rel.Source, rel.Target))
}

func (f *fakeDaemon) DeleteEdge(ctx context.Context, source, target string) error {
	return f.record(fmt.Sprintf("unedge:%s->%s", source, target))
}

// Watch forwards events from the test's channel and closes the feed on
// cancel, matching the real client's contract.
func (f *fakeDaemon) Watch(ctx context.Context) (<-chan client.WatchEvent, error) {
	out := make(chan client.WatchEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-f.events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "gravitask.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueueHelpers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := QueueCreateTask(ctx, st, &graph.Task{ID: "t1", Title: "Write draft"}); err != nil {
		t.Fatalf("QueueCreateTask failed: %v", err)
	}
	if _, err := QueueUpdateTask(ctx, st, &graph.Task{ID: "t1", Title: "Revise draft"}); err != nil {
		t.Fatalf("QueueUpdateTask failed: %v", err)
	}
	if _, err := QueueDeleteTask(ctx, st, "t1"); err != nil {
		t.Fatalf("QueueDeleteTask failed: %v", err)
	}
	if _, err := QueueCreateEdge(ctx, st, &graph.Relation{Source: "a", Target: "b", Weight: 0.5}); err != nil {
		t.Fatalf("QueueCreateEdge failed: %v", err)
	}
	if _, err := QueueDeleteEdge(ctx, st, "a", "b"); err != nil {
		t.Fatalf("QueueDeleteEdge failed: %v", err)
	}

	ops, err := st.PendingOps(ctx, 10)
	if err != nil {
		t.Fatalf("PendingOps failed: %v", err)
	}
	if len(ops) != 5 {
		t.Fatalf("expected 5 queued ops, got %d", len(ops))
	}

	wantKinds := []store.OpKind{
		store.OpCreateTask, store.OpUpdateTask, store.OpDeleteTask,
		store.OpCreateEdge, store.OpDeleteEdge,
	}
	for i, want := range wantKinds {
		if ops[i].Kind != want {
			t.Errorf("op %d: expected kind %s, got %s", i, want, ops[i].Kind)
		}
	}
}

func TestPatchFromTask(t *testing.T) {
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := updated.Add(48 * time.Hour)

	// A row without a deadline replays as a clear.
	bare := &graph.Task{ID: "t1", Title: "Write draft", Status: graph.StatusTodo, UpdatedAt: updated}
	p := patchFromTask(bare)
	if !p.ClearDueAt {
		t.Error("expected ClearDueAt for a row without a deadline")
	}
	if p.DueAt != nil {
		t.Error("expected DueAt to stay unset")
	}
	if p.Position != nil {
		t.Error("expected nil local position to stay off the wire")
	}
	if p.UpdatedAt == nil || !p.UpdatedAt.Equal(updated) {
		t.Errorf("expected UpdatedAt %v, got %v", updated, p.UpdatedAt)
	}

	// A full row carries everything through.
	full := &graph.Task{
		ID:        "t2",
		Title:     "Ship release",
		Status:    graph.StatusInProgress,
		Priority:  graph.PriorityHigh,
		DueAt:     &due,
		Position:  &graph.Point{X: 12, Y: 34},
		UpdatedAt: updated,
	}
	p = patchFromTask(full)
	if p.ClearDueAt {
		t.Error("ClearDueAt must not be set when the row has a deadline")
	}
	if p.DueAt == nil || !p.DueAt.Equal(due) {
		t.Errorf("expected DueAt %v, got %v", due, p.DueAt)
	}
	if p.Status == nil || *p.Status != graph.StatusInProgress {
		t.Errorf("expected status in_progress, got %v", p.Status)
	}
	if p.Position == nil || p.Position.X != 12 {
		t.Errorf("expected position carried through, got %v", p.Position)
	}
}

func TestSyncer_FlushOrderAndPull(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := QueueCreateTask(ctx, st, &graph.Task{ID: "t1", Title: "Write draft"}); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}
	if _, err := QueueUpdateTask(ctx, st, &graph.Task{ID: "t1", Title: "Revise draft", UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}
	if _, err := QueueCreateEdge(ctx, st, &graph.Relation{Source: "t1", Target: "t2", Weight: 1}); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}

	fake := newFakeDaemon()
	fake.setGraph(&client.GraphResponse{
		Tasks: []*graph.Task{
			{ID: "srv-1", Title: "From server", Status: graph.StatusTodo, Priority: graph.PriorityMedium},
		},
		Version: 7,
	})

	s := NewSyncer(st, fake, Options{})
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// 1. Ops replayed in enqueue order.
	want := []string{"create:t1", "update:t1", "edge:t1->t2"}
	got := fake.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// 2. Queue drained.
	if n, _ := st.OpCount(ctx); n != 0 {
		t.Errorf("expected empty queue, got %d ops", n)
	}

	// 3. Local graph replaced with the server's copy.
	g, err := st.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if len(g.Tasks) != 1 || g.Tasks[0].ID != "srv-1" {
		t.Fatalf("expected server graph locally, got %d tasks", len(g.Tasks))
	}

	// 4. Meta and state record the pull.
	if v, _ := st.GetMeta(ctx, store.MetaGraphVersion); v != "7" {
		t.Errorf("expected stored version 7, got %q", v)
	}
	snap := s.Snapshot()
	if snap.Version != 7 {
		t.Errorf("expected state version 7, got %d", snap.Version)
	}
	if snap.Pending != 0 {
		t.Errorf("expected no pending ops, got %d", snap.Pending)
	}
	if snap.LastSync.IsZero() {
		t.Error("expected LastSync to be stamped")
	}
}

func TestSyncer_RejectedOpDropped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := QueueCreateTask(ctx, st, &graph.Task{ID: id, Title: id}); err != nil {
			t.Fatalf("queueing failed: %v", err)
		}
	}

	fake := newFakeDaemon()
	fake.failCall = "create:t2"
	fake.failWith = &client.RejectedError{StatusCode: 409, Message: "task t2 already exists"}

	s := NewSyncer(st, fake, Options{})
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// The rejected op is dropped and the ones behind it still flush.
	want := []string{"create:t1", "create:t2", "create:t3"}
	got := fake.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(got), got)
	}
	if n, _ := st.OpCount(ctx); n != 0 {
		t.Errorf("expected empty queue after dropping the conflict, got %d ops", n)
	}
}

func TestSyncer_UnreachableKeepsQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := QueueCreateTask(ctx, st, &graph.Task{ID: id, Title: id}); err != nil {
			t.Fatalf("queueing failed: %v", err)
		}
	}

	fake := newFakeDaemon()
	fake.failCall = "create:t2"
	fake.failWith = &client.UnreachableError{Err: errors.New("connection refused")}

	s := NewSyncer(st, fake, Options{})
	err := s.Sync(ctx)
	if err == nil {
		t.Fatal("expected Sync to fail when the daemon is unreachable")
	}

	// The pass stopped at t2; t3 was never attempted so order holds.
	got := fake.recorded()
	if len(got) != 2 || got[1] != "create:t2" {
		t.Fatalf("expected flush to stop at create:t2, got %v", got)
	}
	if fake.fetchCount() != 0 {
		t.Error("expected no pull after a failed flush")
	}

	// Failed and unattempted ops stay queued, with the failure recorded.
	ops, _ := st.PendingOps(ctx, 10)
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops kept, got %d", len(ops))
	}
	if ops[0].Attempts != 1 {
		t.Errorf("expected 1 attempt on the failed op, got %d", ops[0].Attempts)
	}
	if ops[0].LastError == "" {
		t.Error("expected the failure cause to be recorded")
	}
	if snap := s.Snapshot(); snap.Pending != 2 {
		t.Errorf("expected 2 pending in state, got %d", snap.Pending)
	}
}

func TestSyncer_PullSkipsReplaceWhenQueueRefills(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.UpsertTask(ctx, &graph.Task{ID: "local-1", Title: "Edited mid-pull", Status: graph.StatusTodo, Priority: graph.PriorityMedium}); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	fake := newFakeDaemon()
	fake.setGraph(&client.GraphResponse{
		Tasks:   []*graph.Task{{ID: "srv-1", Title: "From server", Status: graph.StatusTodo, Priority: graph.PriorityMedium}},
		Version: 9,
	})
	// Simulate the user editing while the fetch is in flight.
	fake.onFetch = func() {
		if _, err := QueueCreateTask(context.Background(), st, &graph.Task{ID: "mid-edit", Title: "Raced the pull"}); err != nil {
			t.Errorf("mid-pull enqueue failed: %v", err)
		}
	}

	s := NewSyncer(st, fake, Options{})
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// The replace was skipped: local state is ahead of the fetched copy.
	g, err := st.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if g.Task("local-1") == nil {
		t.Error("expected the local task to survive the skipped replace")
	}
	if g.Task("srv-1") != nil {
		t.Error("expected the server graph not to be applied")
	}
	if n, _ := st.OpCount(ctx); n != 1 {
		t.Errorf("expected the mid-pull op to stay queued, got %d", n)
	}
	if v, _ := st.GetMeta(ctx, store.MetaGraphVersion); v != "" {
		t.Errorf("expected no version recorded for a skipped pull, got %q", v)
	}
}

func TestSyncer_RestoreSeedsState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SetMeta(ctx, store.MetaGraphVersion, "41"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	last := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := st.SetMeta(ctx, store.MetaLastSyncAt, last.Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if _, err := QueueDeleteTask(ctx, st, "t9"); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}

	s := NewSyncer(st, newFakeDaemon(), Options{})
	snap := s.Snapshot()
	if snap.Version != 41 {
		t.Errorf("expected restored version 41, got %d", snap.Version)
	}
	if !snap.LastSync.Equal(last) {
		t.Errorf("expected restored last sync %v, got %v", last, snap.LastSync)
	}
	if snap.Pending != 1 {
		t.Errorf("expected 1 pending op restored, got %d", snap.Pending)
	}
	if snap.Status != StatusOffline {
		t.Errorf("expected offline before the first cycle, got %s", snap.Status)
	}
}

func TestSyncer_PruneDropsExpiredOps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := QueueDeleteTask(ctx, st, "t-old"); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}

	// Let the first op age well past a short retention window.
	time.Sleep(150 * time.Millisecond)
	if _, err := QueueDeleteTask(ctx, st, "t-new"); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}

	s := NewSyncer(st, newFakeDaemon(), Options{Retention: 50 * time.Millisecond})
	s.pruneStale(ctx)

	// Only the expired op is gone; the fresh one stays replayable.
	ops, err := st.PendingOps(ctx, 10)
	if err != nil {
		t.Fatalf("PendingOps failed: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op after pruning, got %d", len(ops))
	}
	if !strings.Contains(string(ops[0].Payload), "t-new") {
		t.Errorf("wrong op survived: %s", ops[0].Payload)
	}
	if snap := s.Snapshot(); snap.Pending != 1 {
		t.Errorf("expected pending refreshed to 1, got %d", snap.Pending)
	}

	// A negative retention keeps everything.
	keep := NewSyncer(st, newFakeDaemon(), Options{Retention: -1})
	time.Sleep(150 * time.Millisecond)
	keep.pruneStale(ctx)
	if n, _ := st.OpCount(ctx); n != 1 {
		t.Errorf("expected disabled pruning to keep the op, got %d", n)
	}
}

func TestSyncer_RunWakesOnWatch(t *testing.T) {
	st := newTestStore(t)
	fake := newFakeDaemon()

	states := make(chan State, 32)
	s := NewSyncer(st, fake, Options{
		Interval: time.Hour,
		OnChange: func(st State) {
			select {
			case states <- st:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The loop syncs once at startup without waiting for the ticker.
	waitFor(t, func() bool { return fake.fetchCount() >= 1 }, "initial sync")
	waitFor(t, s.Online, "online state")
	waitFor(t, func() bool { return len(states) > 0 }, "state callback")

	// An event at the stored version is our own echo: no extra cycle.
	fake.events <- client.WatchEvent{Type: "task_updated", Version: 7}
	time.Sleep(150 * time.Millisecond)
	if n := fake.fetchCount(); n != 1 {
		t.Fatalf("stale watch event triggered a cycle: %d fetches", n)
	}

	// A version past the stored one wakes the loop immediately.
	fake.setGraph(&client.GraphResponse{Version: 8})
	fake.events <- client.WatchEvent{Type: "task_created", Version: 8}
	waitFor(t, func() bool { return fake.fetchCount() >= 2 }, "watch wake")
	waitFor(t, func() bool { return s.Snapshot().Version == 8 }, "version advance")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestSyncer_OfflineAndRecovery(t *testing.T) {
	st := newTestStore(t)
	fake := newFakeDaemon()
	fake.mu.Lock()
	fake.fetchErr = &client.UnreachableError{Err: errors.New("connection refused")}
	fake.mu.Unlock()

	s := NewSyncer(st, fake, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return fake.fetchCount() >= 1 }, "first attempt")
	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.Status == StatusOffline && snap.LastErr != ""
	}, "offline state")

	// The daemon comes back; Nudge skips the failure hold-off.
	fake.setGraph(&client.GraphResponse{Version: 3})
	s.Nudge()
	waitFor(t, func() bool { return fake.fetchCount() >= 2 }, "retry after nudge")
	waitFor(t, s.Online, "recovery")
	if snap := s.Snapshot(); snap.LastErr != "" {
		t.Errorf("expected LastErr cleared on recovery, got %q", snap.LastErr)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
