package api

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// Interfaces for dependencies to enable mocking

type StoreInterface interface {
	LoadGraph(ctx context.Context) (*graph.Graph, error)
	GetTask(ctx context.Context, id string) (*graph.Task, error)
	UpsertTask(ctx context.Context, t *graph.Task) error
	DeleteTask(ctx context.Context, id string) error
	UpsertEdge(ctx context.Context, r *graph.Relation) error
	DeleteEdge(ctx context.Context, source, target string) error
	UpdatePositions(ctx context.Context, positions map[string]graph.Point) error
	TaskCount(ctx context.Context) (int, error)
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}

// LayoutCacheInterface is the optional layout-result cache seam.
type LayoutCacheInterface interface {
	Get(fingerprint string) (map[string]graph.Point, bool)
	Set(fingerprint string, positions map[string]graph.Point)
}

// Fingerprinter derives the cache key for a layout request. The redis
// package provides the blake3 implementation; tests can substitute.
type Fingerprinter func(g *graph.Graph, width, height float64, mode string) string

// Server encapsulates the HTTP API of the graph daemon. It owns the
// monotonic graph version: every accepted mutation bumps it and fans a
// change event out to watch subscribers.
type Server struct {
	store  StoreInterface
	server *http.Server
	hub    *Hub

	cache       LayoutCacheInterface
	fingerprint Fingerprinter

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string

	// Shared-secret auth for mutating routes; empty disables auth.
	token string

	// Static file serving for the bundled status page.
	staticFS fs.FS

	buildVersion string
	version      atomic.Int64
}

// NewServer creates a new API server instance. addr defaults to :8780.
func NewServer(st StoreInterface, addr string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store: st,
		hub:   NewHub(),
	}

	// Register routes
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/graph", s.handleGraph)
	mux.HandleFunc("/v1/tasks", s.withAuth(s.handleTasks))
	mux.HandleFunc("/v1/tasks/", s.withAuth(s.handleTaskByID))
	mux.HandleFunc("/v1/edges", s.withAuth(s.handleEdges))
	mux.HandleFunc("/v1/layout", s.withAuth(s.handleLayout))
	mux.HandleFunc("/v1/watch", s.hub.HandleWatch)
	mux.Handle("/", s.handleStatic())

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := withLogging(withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8780"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.seedVersion()

	return s
}

// SetLayoutCache wires the optional redis-backed layout cache.
func (s *Server) SetLayoutCache(c LayoutCacheInterface, fp Fingerprinter) {
	s.cache = c
	s.fingerprint = fp
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// SetToken sets the shared bearer token required on mutating routes.
func (s *Server) SetToken(token string) {
	s.token = token
}

// SetStaticFS enables serving of the bundled web assets at the root path.
func (s *Server) SetStaticFS(fsys fs.FS) {
	s.staticFS = fsys
}

// SetBuildVersion sets the version string reported by the health check.
func (s *Server) SetBuildVersion(v string) {
	s.buildVersion = v
}

// Handler exposes the middleware-wrapped mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Version returns the current graph version.
func (s *Server) Version() int64 {
	return s.version.Load()
}

// seedVersion restores the persisted graph version so watch subscribers
// see a monotonic sequence across daemon restarts.
func (s *Server) seedVersion() {
	raw, err := s.store.GetMeta(context.Background(), store.MetaGraphVersion)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_load_graph_version","error":"%v"}`+"\n", err)
		return
	}
	if raw == "" {
		return
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"invalid_graph_version","value":"%s"}`+"\n", raw)
		return
	}
	s.version.Store(v)
	GraphVersion.Set(float64(v))
}

// bumpVersion advances the graph version, persists it best-effort and
// notifies watch subscribers.
func (s *Server) bumpVersion(ctx context.Context, eventType string) int64 {
	v := s.version.Add(1)
	GraphVersion.Set(float64(v))
	if err := s.store.SetMeta(ctx, store.MetaGraphVersion, strconv.FormatInt(v, 10)); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_persist_graph_version","trace_id":"%s","error":"%v"}`+"\n", getTraceID(ctx), err)
	}
	s.hub.Broadcast(WatchEvent{Type: eventType, Version: v, At: time.Now().UTC()})
	return v
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		fmt.Printf(`{"level":"info","msg":"server_starting_tls","addr":"%s"}`+"\n", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
	} else {
		fmt.Printf(`{"level":"info","msg":"server_starting","addr":"%s"}`+"\n", s.server.Addr)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println(`{"level":"info","msg":"server_stopping"}`)
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness plus the store's task count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	count, err := s.store.TaskCount(r.Context())
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"health_store_check_failed","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"store_unavailable"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, HealthResponse{Status: "ok", Version: s.buildVersion, Tasks: count})
}

// handleGraph returns the full task graph with its version.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	g, err := s.store.LoadGraph(r.Context())
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_load_graph","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, GraphResponse{
		Tasks:   g.Tasks,
		Edges:   g.Relations,
		Version: s.version.Load(),
	})
}

// handleTasks creates a task.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var task graph.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if task.ID == "" || task.Title == "" {
		http.Error(w, `{"error":"missing_required_fields"}`, http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetTask(r.Context(), task.ID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_check_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, fmt.Sprintf(`{"error":"task %s already exists"}`, task.ID), http.StatusConflict)
		return
	}

	// Server-authoritative stamps and enum defaults.
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = graph.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = graph.PriorityMedium
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	if err := s.store.UpsertTask(r.Context(), &task); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_store_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	v := s.bumpVersion(r.Context(), "task_created")
	fmt.Printf(`{"level":"info","msg":"task_created","trace_id":"%s","task_id":"%s","version":%d}`+"\n", getTraceID(r.Context()), task.ID, v)

	writeJSON(w, r, &task)
}

// handleTaskByID patches or deletes one task addressed by path.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, `{"error":"invalid_task_id"}`, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		s.patchTask(w, r, id)
	case http.MethodDelete:
		s.deleteTask(w, r, id)
	default:
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request, id string) {
	var patch TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}

	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_load_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, `{"error":"task_not_found"}`, http.StatusNotFound)
		return
	}

	// Last write wins: a patch stamped older than the stored copy lost
	// the race and is refused, so the queued client op gets dropped.
	if patch.UpdatedAt != nil && task.UpdatedAt.After(*patch.UpdatedAt) {
		fmt.Printf(`{"level":"info","msg":"stale_update_rejected","trace_id":"%s","task_id":"%s","stored":"%s","patch":"%s"}`+"\n",
			getTraceID(r.Context()), id, task.UpdatedAt.Format(time.RFC3339), patch.UpdatedAt.Format(time.RFC3339))
		http.Error(w, `{"error":"stale_update"}`, http.StatusConflict)
		return
	}

	applyPatch(task, patch)
	task.UpdatedAt = time.Now().UTC()

	if err := s.store.UpsertTask(r.Context(), task); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_store_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	v := s.bumpVersion(r.Context(), "task_updated")
	fmt.Printf(`{"level":"info","msg":"task_updated","trace_id":"%s","task_id":"%s","version":%d}`+"\n", getTraceID(r.Context()), id, v)

	writeJSON(w, r, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_load_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, `{"error":"task_not_found"}`, http.StatusNotFound)
		return
	}

	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_delete_task","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	v := s.bumpVersion(r.Context(), "task_deleted")
	fmt.Printf(`{"level":"info","msg":"task_deleted","trace_id":"%s","task_id":"%s","version":%d}`+"\n", getTraceID(r.Context()), id, v)

	w.WriteHeader(http.StatusNoContent)
}

// handleEdges creates or deletes a relation.
func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createEdge(w, r)
	case http.MethodDelete:
		s.removeEdge(w, r)
	default:
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (s *Server) createEdge(w http.ResponseWriter, r *http.Request) {
	var rel graph.Relation
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if rel.Source == "" || rel.Target == "" || rel.Source == rel.Target {
		http.Error(w, `{"error":"invalid_edge"}`, http.StatusBadRequest)
		return
	}

	// Both endpoints must exist; an edge to a deleted task is refused so
	// the client drops the queued op.
	for _, id := range []string{rel.Source, rel.Target} {
		task, err := s.store.GetTask(r.Context(), id)
		if err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_check_edge_endpoint","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
			http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			return
		}
		if task == nil {
			http.Error(w, fmt.Sprintf(`{"error":"task %s not found"}`, id), http.StatusNotFound)
			return
		}
	}

	rel.Weight = graph.ClampWeight(rel.Weight)

	if err := s.store.UpsertEdge(r.Context(), &rel); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_store_edge","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	v := s.bumpVersion(r.Context(), "edge_created")
	fmt.Printf(`{"level":"info","msg":"edge_created","trace_id":"%s","source":"%s","target":"%s","version":%d}`+"\n", getTraceID(r.Context()), rel.Source, rel.Target, v)

	writeJSON(w, r, &rel)
}

func (s *Server) removeEdge(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		http.Error(w, `{"error":"missing_required_fields"}`, http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteEdge(r.Context(), source, target); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_delete_edge","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	v := s.bumpVersion(r.Context(), "edge_deleted")
	fmt.Printf(`{"level":"info","msg":"edge_deleted","trace_id":"%s","source":"%s","target":"%s","version":%d}`+"\n", getTraceID(r.Context()), source, target, v)

	w.WriteHeader(http.StatusNoContent)
}

// handleLayout runs the server-side auto-layout pass and persists the
// resulting positions.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req LayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		http.Error(w, `{"error":"invalid_canvas"}`, http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = "pca"
	}
	if req.Mode != "pca" && req.Mode != "force" {
		http.Error(w, `{"error":"invalid_mode","valid":["pca","force"]}`, http.StatusBadRequest)
		return
	}

	g, err := s.store.LoadGraph(r.Context())
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_load_graph","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if len(g.Tasks) == 0 {
		writeJSON(w, r, LayoutResponse{Mode: req.Mode, Positions: map[string]graph.Point{}})
		return
	}

	var key string
	if s.cache != nil && s.fingerprint != nil {
		key = s.fingerprint(g, req.Width, req.Height, req.Mode)
		if key != "" {
			if positions, ok := s.cache.Get(key); ok {
				LayoutRequestsTotal.WithLabelValues(req.Mode, "hit").Inc()
				writeJSON(w, r, LayoutResponse{Mode: req.Mode, Positions: positions, Cached: true})
				return
			}
		}
	}

	var positions map[string]graph.Point
	var ticks int
	switch req.Mode {
	case "force":
		positions, ticks, err = forceLayout(g, req.Width, req.Height)
		if err != nil {
			fmt.Printf(`{"level":"error","msg":"layout_failed","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
			http.Error(w, `{"error":"layout_failed"}`, http.StatusInternalServerError)
			return
		}
	default:
		positions = pcaLayout(g, req.Width, req.Height)
	}

	if err := s.store.UpdatePositions(r.Context(), positions); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_persist_layout","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	if key != "" {
		s.cache.Set(key, positions)
	}

	v := s.bumpVersion(r.Context(), "layout_applied")
	LayoutRequestsTotal.WithLabelValues(req.Mode, "miss").Inc()
	fmt.Printf(`{"level":"info","msg":"layout_applied","trace_id":"%s","mode":"%s","tasks":%d,"ticks":%d,"version":%d}`+"\n",
		getTraceID(r.Context()), req.Mode, len(positions), ticks, v)

	writeJSON(w, r, LayoutResponse{Mode: req.Mode, Positions: positions, Ticks: ticks})
}

// handleStatic serves the bundled status page for any path the API does
// not claim. Unknown paths fall back to index.html so the page owns its
// own routing; without assets everything is a 404.
func (s *Server) handleStatic() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.staticFS == nil || strings.HasPrefix(r.URL.Path, "/v1/") {
			http.NotFound(w, r)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			name = "index.html"
		}

		file, err := s.staticFS.Open(name)
		if err != nil {
			name = "index.html"
			if file, err = s.staticFS.Open(name); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		defer file.Close()

		switch {
		case strings.HasSuffix(name, ".css"):
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case strings.HasSuffix(name, ".js"):
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		case strings.HasSuffix(name, ".svg"):
			w.Header().Set("Content-Type", "image/svg+xml")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		if _, err := io.Copy(w, file); err != nil {
			fmt.Printf(`{"level":"error","msg":"static_serve_failed","path":"%s","error":"%v"}`+"\n", r.URL.Path, err)
		}
	})
}

// applyPatch folds the non-nil patch fields into the task.
func applyPatch(t *graph.Task, p TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.DueAt != nil {
		due := *p.DueAt
		t.DueAt = &due
	}
	if p.ClearDueAt {
		t.DueAt = nil
	}
	if p.Position != nil {
		pos := *p.Position
		t.Position = &pos
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_response","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// Middleware: Auth
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// No token configured means a private local daemon.
		if s.token == "" {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"unauthorized","reason":"missing_token"}`, http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, `{"error":"unauthorized","reason":"invalid_token_format"}`, http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.token)) != 1 {
			http.Error(w, `{"error":"unauthorized","reason":"invalid_token"}`, http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Printf(`{"level":"error","msg":"panic_recovered","error":"%v","path":"%s"}`+"\n", err, r.URL.Path)
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 1. Extract or Generate Trace ID
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		// 2. Inject into Context
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		// 3. Set response header
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		RequestDuration.WithLabelValues(metricPath(r.URL.Path), strconv.Itoa(ww.status)).Observe(duration.Seconds())
		fmt.Printf(`{"level":"info","msg":"http_request","trace_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`+"\n",
			traceID, r.Method, r.URL.Path, ww.status, duration.Milliseconds())
	})
}

// metricPath collapses per-task paths so the histogram label stays
// bounded.
func metricPath(p string) string {
	if strings.HasPrefix(p, "/v1/tasks/") {
		return "/v1/tasks/{id}"
	}
	return p
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback if random fails (unlikely)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack forwards to the wrapped writer so the watch endpoint can
// upgrade; embedding alone would hide the method.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
