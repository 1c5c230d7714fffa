package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/store"
)

const (
	// DefaultInterval paces full sync cycles when the watch feed is quiet.
	DefaultInterval = 30 * time.Second

	// DefaultRetention bounds how long undeliverable ops stay queued.
	DefaultRetention = 30 * 24 * time.Hour

	// flushBatch bounds how many queued ops one store read returns.
	flushBatch = 50
)

// errMalformedOp marks a queued op that can never replay successfully.
// Such ops are dropped like rejections; retrying cannot fix the payload.
var errMalformedOp = errors.New("malformed op payload")

// Status is the connectivity state the UI surfaces.
type Status string

const (
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusOnline  Status = "online"
)

// State is a snapshot of the synchronizer for status bars and callbacks.
type State struct {
	Status Status
	// Pending is the number of ops still queued locally.
	Pending int
	// Version is the server graph version at the last pull.
	Version int64
	// LastSync is when the last full cycle completed.
	LastSync time.Time
	// LastErr is the most recent failure, cleared on success.
	LastErr string
}

// ClientInterface defines the slice of the daemon SDK the synchronizer
// drives. *client.Client satisfies it.
type ClientInterface interface {
	FetchGraph(ctx context.Context) (*client.GraphResponse, error)
	CreateTask(ctx context.Context, task *graph.Task) (*graph.Task, error)
	UpdateTask(ctx context.Context, id string, patch client.TaskPatch) (*graph.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CreateEdge(ctx context.Context, rel *graph.Relation) error
	DeleteEdge(ctx context.Context, source, target string) error
	Watch(ctx context.Context) (<-chan client.WatchEvent, error)
}

// StoreInterface defines the store operations the synchronizer needs.
// *store.Store satisfies it.
type StoreInterface interface {
	PendingOps(ctx context.Context, limit int) ([]store.Op, error)
	AckOp(ctx context.Context, opID int64) error
	FailOp(ctx context.Context, opID int64, cause string) error
	OpCount(ctx context.Context) (int, error)
	PruneOps(ctx context.Context, before time.Time) (int64, error)
	ReplaceGraph(ctx context.Context, g *graph.Graph) error
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}

// Options tune the synchronizer. Zero values pick the defaults.
type Options struct {
	// Interval paces background cycles; DefaultInterval when zero.
	Interval time.Duration
	// Backoff spaces retries after failed cycles; client.SyncBackoff()
	// when nil.
	Backoff client.BackoffStrategy
	// Retention drops queued ops older than this when Run starts; ops
	// that old predate anything the daemon still knows. DefaultRetention
	// when zero, negative keeps everything.
	Retention time.Duration
	// OnChange fires after every state transition, from the sync
	// goroutine. Keep it cheap and hand off to your own loop.
	OnChange func(State)
}

// Syncer keeps the local store converged with the daemon: queued local
// mutations flush out in enqueue order, then the remote graph is pulled
// back in. One Syncer owns the loop; callers observe it through Snapshot
// or the OnChange callback.
type Syncer struct {
	store     StoreInterface
	client    ClientInterface
	interval  time.Duration
	backoff   client.BackoffStrategy
	retention time.Duration
	onChange  func(State)

	mu       sync.Mutex
	state    State
	failures int
	// holdOff blocks cycles until the instant passes. Armed after a
	// failure, cleared by success, Nudge, or a watch event.
	holdOff time.Time

	wake chan struct{}
}

// NewSyncer creates a synchronizer over a local store and a daemon client.
func NewSyncer(st StoreInterface, c ClientInterface, opts Options) *Syncer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Backoff == nil {
		opts.Backoff = client.SyncBackoff()
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}
	s := &Syncer{
		store:     st,
		client:    c,
		interval:  opts.Interval,
		backoff:   opts.Backoff,
		retention: opts.Retention,
		onChange:  opts.OnChange,
		wake:      make(chan struct{}, 1),
	}
	s.state.Status = StatusOffline
	s.restore(context.Background())
	return s
}

// restore seeds version, last-sync and queue depth from the store so the
// status surface has history before the first cycle runs.
func (s *Syncer) restore(ctx context.Context) {
	if v, err := s.store.GetMeta(ctx, store.MetaGraphVersion); err == nil && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.state.Version = n
		}
	}
	if v, err := s.store.GetMeta(ctx, store.MetaLastSyncAt); err == nil && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			s.state.LastSync = t
		}
	}
	if n, err := s.store.OpCount(ctx); err == nil {
		s.state.Pending = n
		QueuedOps.Set(float64(n))
	}
}

// Run drives sync cycles until ctx is cancelled: one immediately, then
// on every tick and every wake. A second goroutine follows the daemon's
// watch feed and wakes the loop when the remote version moves.
func (s *Syncer) Run(ctx context.Context) {
	log.Println("Sync loop started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	go s.followWatch(ctx)

	s.pruneStale(ctx)
	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Sync loop stopping due to context cancellation")
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.wake:
			s.cycle(ctx)
		}
	}
}

// Nudge requests a cycle as soon as possible, skipping any backoff
// hold-off. Call it after enqueueing local work.
func (s *Syncer) Nudge() {
	s.mu.Lock()
	s.holdOff = time.Time{}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Snapshot returns the current sync state.
func (s *Syncer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Online reports whether the last cycle reached the daemon.
func (s *Syncer) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == StatusOnline
}

// pruneStale drops ops that outlived the retention window. They were
// queued while the daemon stayed unreachable; replaying them now would
// resurrect state everything else moved past long ago.
func (s *Syncer) pruneStale(ctx context.Context) {
	if s.retention < 0 {
		return
	}
	dropped, err := s.store.PruneOps(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Printf("Failed to prune op queue: %v", err)
		return
	}
	if dropped > 0 {
		log.Printf("Dropped %d queued ops older than %s", dropped, s.retention)
		s.refreshPending(ctx)
	}
}

// cycle runs one flush + pull pass. Failures arm a hold-off window so a
// dead daemon is not hammered on every tick.
func (s *Syncer) cycle(ctx context.Context) {
	s.mu.Lock()
	if time.Now().Before(s.holdOff) {
		s.mu.Unlock()
		return
	}
	s.state.Status = StatusSyncing
	s.mu.Unlock()
	s.notify()

	err := s.Sync(ctx)

	s.mu.Lock()
	if err != nil {
		s.state.Status = StatusOffline
		s.state.LastErr = err.Error()
		delay := s.backoff.Next(s.failures)
		s.failures++
		s.holdOff = time.Now().Add(delay)
		s.mu.Unlock()
		CyclesTotal.WithLabelValues("error").Inc()
		s.notify()
		log.Printf("Sync cycle failed, holding off %s: %v", delay.Round(time.Millisecond), err)
		return
	}
	s.state.Status = StatusOnline
	s.state.LastErr = ""
	s.failures = 0
	s.holdOff = time.Time{}
	s.mu.Unlock()
	CyclesTotal.WithLabelValues("ok").Inc()
	s.notify()
}

// Sync performs one flush + pull pass against the daemon. It returns nil
// when the daemon was reached, queued work flushed and the local graph
// refreshed. Rejected ops are dropped, not errors: by the time the
// daemon refuses a replay, its copy has won.
func (s *Syncer) Sync(ctx context.Context) error {
	s.refreshPending(ctx)
	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.pull(ctx)
}

// flush replays queued ops in enqueue order. A transport failure stops
// the pass where it stands so later ops never jump an earlier one they
// may depend on.
func (s *Syncer) flush(ctx context.Context) error {
	for {
		ops, err := s.store.PendingOps(ctx, flushBatch)
		if err != nil {
			return fmt.Errorf("reading op queue: %w", err)
		}
		if len(ops) == 0 {
			s.setPending(0)
			return nil
		}
		for _, op := range ops {
			err := s.push(ctx, op)
			switch {
			case err == nil:
			case client.IsRejected(err) || errors.Is(err, errMalformedOp):
				ConflictsTotal.Inc()
				log.Printf("Dropping op %d (%s): %v", op.OpID, op.Kind, err)
			default:
				if ferr := s.store.FailOp(ctx, op.OpID, err.Error()); ferr != nil {
					log.Printf("Failed to record op %d failure: %v", op.OpID, ferr)
				}
				s.refreshPending(ctx)
				return fmt.Errorf("replaying op %d (%s): %w", op.OpID, op.Kind, err)
			}
			if err := s.store.AckOp(ctx, op.OpID); err != nil {
				return fmt.Errorf("acking op %d: %w", op.OpID, err)
			}
		}
	}
}

// push replays one queued op against the daemon.
func (s *Syncer) push(ctx context.Context, op store.Op) error {
	switch op.Kind {
	case store.OpCreateTask:
		var t graph.Task
		if err := json.Unmarshal(op.Payload, &t); err != nil {
			return fmt.Errorf("%w: %v", errMalformedOp, err)
		}
		_, err := s.client.CreateTask(ctx, &t)
		return err
	case store.OpUpdateTask:
		var t graph.Task
		if err := json.Unmarshal(op.Payload, &t); err != nil {
			return fmt.Errorf("%w: %v", errMalformedOp, err)
		}
		_, err := s.client.UpdateTask(ctx, t.ID, patchFromTask(&t))
		return err
	case store.OpDeleteTask:
		var p idPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", errMalformedOp, err)
		}
		return s.client.DeleteTask(ctx, p.ID)
	case store.OpCreateEdge:
		var r graph.Relation
		if err := json.Unmarshal(op.Payload, &r); err != nil {
			return fmt.Errorf("%w: %v", errMalformedOp, err)
		}
		return s.client.CreateEdge(ctx, &r)
	case store.OpDeleteEdge:
		var r graph.Relation
		if err := json.Unmarshal(op.Payload, &r); err != nil {
			return fmt.Errorf("%w: %v", errMalformedOp, err)
		}
		return s.client.DeleteEdge(ctx, r.Source, r.Target)
	default:
		return fmt.Errorf("%w: unknown kind %q", errMalformedOp, op.Kind)
	}
}

// pull fetches the daemon's graph and swaps it into the local store.
// When new ops appeared while the pass ran, the swap is skipped: the
// local copy is ahead of what the daemon returned, and the next cycle
// reconciles.
func (s *Syncer) pull(ctx context.Context) error {
	resp, err := s.client.FetchGraph(ctx)
	if err != nil {
		return fmt.Errorf("fetching remote graph: %w", err)
	}

	n, err := s.store.OpCount(ctx)
	if err != nil {
		return fmt.Errorf("checking op queue: %w", err)
	}
	if n > 0 {
		log.Printf("Skipping graph replace: %d ops queued since flush", n)
		s.setPending(n)
		return nil
	}

	g := graph.NewGraph()
	g.Tasks, g.Relations = graph.Normalize(resp.Tasks, resp.Edges)
	if err := s.store.ReplaceGraph(ctx, g); err != nil {
		return fmt.Errorf("replacing local graph: %w", err)
	}

	now := time.Now().UTC()
	if err := s.store.SetMeta(ctx, store.MetaGraphVersion, strconv.FormatInt(resp.Version, 10)); err != nil {
		log.Printf("Failed to persist graph version: %v", err)
	}
	if err := s.store.SetMeta(ctx, store.MetaLastSyncAt, now.Format(time.RFC3339Nano)); err != nil {
		log.Printf("Failed to persist sync timestamp: %v", err)
	}

	s.mu.Lock()
	s.state.Version = resp.Version
	s.state.LastSync = now
	s.state.Pending = 0
	s.mu.Unlock()
	QueuedOps.Set(0)
	return nil
}

// followWatch keeps a watch subscription open and wakes the loop when
// the daemon reports a version past the one last pulled. Dial failures
// back off like cycles do.
func (s *Syncer) followWatch(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		events, err := s.client.Watch(ctx)
		if err != nil {
			delay := s.backoff.Next(attempt)
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		for ev := range events {
			s.onRemoteChange(ev)
		}
		// Feed closed: the daemon went away or hung up. Pause one base
		// delay before redialing so a half-down daemon is not spun on.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff.Next(0)):
		}
	}
}

// onRemoteChange wakes the loop for versions the store has not pulled
// yet. Events echoing this replica's own pushes arrive at or below the
// stored version and are dropped instead of scheduling a no-op cycle.
// A fresh event also proves the daemon is reachable, so it clears any
// failure hold-off.
func (s *Syncer) onRemoteChange(ev client.WatchEvent) {
	s.mu.Lock()
	stale := ev.Version <= s.state.Version
	if !stale {
		s.holdOff = time.Time{}
	}
	s.mu.Unlock()
	if stale {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// notify hands the current state to the OnChange callback.
func (s *Syncer) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

// refreshPending re-reads the queue depth into state.
func (s *Syncer) refreshPending(ctx context.Context) {
	if n, err := s.store.OpCount(ctx); err == nil {
		s.setPending(n)
	}
}

func (s *Syncer) setPending(n int) {
	s.mu.Lock()
	s.state.Pending = n
	s.mu.Unlock()
	QueuedOps.Set(float64(n))
}
