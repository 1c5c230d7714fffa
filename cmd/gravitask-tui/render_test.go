package main

import (
	"os"
	"strings"
	"testing"

	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/scene"
)

func TestPlotLine(t *testing.T) {
	collect := func(x1, y1, x2, y2 int) [][2]int {
		var cells [][2]int
		plotLine(x1, y1, x2, y2, func(x, y, i int) {
			cells = append(cells, [2]int{x, y})
		})
		return cells
	}

	// 1. Horizontal: every cell between the endpoints, inclusive.
	h := collect(0, 0, 4, 0)
	if len(h) != 5 {
		t.Fatalf("horizontal cells = %d, want 5", len(h))
	}
	for i, c := range h {
		if c != [2]int{i, 0} {
			t.Fatalf("horizontal cell %d = %v", i, c)
		}
	}

	// 2. Perfect diagonal steps both axes each iteration.
	d := collect(0, 0, 3, 3)
	if len(d) != 4 {
		t.Fatalf("diagonal cells = %d, want 4", len(d))
	}
	if d[0] != [2]int{0, 0} || d[3] != [2]int{3, 3} {
		t.Fatalf("diagonal endpoints = %v %v", d[0], d[3])
	}

	// 3. Direction does not change the cell set.
	fwd := collect(1, 1, 7, 3)
	rev := collect(7, 3, 1, 1)
	if len(fwd) != len(rev) {
		t.Fatalf("forward %d cells, reverse %d", len(fwd), len(rev))
	}
	seen := make(map[[2]int]bool, len(fwd))
	for _, c := range fwd {
		seen[c] = true
	}
	for _, c := range rev {
		if !seen[c] {
			t.Fatalf("reverse visited %v which forward did not", c)
		}
	}

	// 4. Degenerate segment plots exactly one cell.
	if p := collect(2, 2, 2, 2); len(p) != 1 || p[0] != [2]int{2, 2} {
		t.Fatalf("point segment = %v", p)
	}
}

func TestEdgeRune(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy int
		heavy  bool
		want   rune
	}{
		{"flat", 10, 1, false, '─'},
		{"flat heavy", 10, 1, true, '━'},
		{"steep", 1, 10, false, '│'},
		{"steep heavy", 1, 10, true, '┃'},
		{"down right", 5, 5, false, '╲'},
		{"up right", 5, -5, false, '╱'},
		{"down left", -5, 5, false, '╱'},
		{"up left", -5, -5, false, '╲'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := edgeRune(tt.dx, tt.dy, tt.heavy); got != tt.want {
				t.Errorf("edgeRune(%d, %d, %v) = %q, want %q", tt.dx, tt.dy, tt.heavy, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 16); got != "short" {
		t.Errorf("short title changed: %q", got)
	}
	got := truncate("a very long task title indeed", 16)
	if r := []rune(got); len(r) != 16 || r[15] != '…' {
		t.Errorf("truncated = %q (%d runes)", got, len(r))
	}
	if got := truncate("héllo wörld étc étc", 8); len([]rune(got)) != 8 {
		t.Errorf("unicode truncate = %q", got)
	}
	if got := truncate("anything", 1); got != "…" {
		t.Errorf("max 1 = %q", got)
	}
}

func TestMinimapRect(t *testing.T) {
	mm := &scene.MinimapFrame{W: 24, H: 10}

	left, top, w, h, ok := minimapRect(80, 24, mm)
	if !ok {
		t.Fatal("expected the overlay to fit an 80x24 canvas")
	}
	if w != 26 || h != 12 {
		t.Errorf("box = %dx%d, want 26x12", w, h)
	}
	if left != 53 || top != 11 {
		t.Errorf("box origin = (%d,%d), want (53,11)", left, top)
	}
	if left+w >= 80 || top+h >= 24 {
		t.Errorf("box leaves no margin: origin (%d,%d) size %dx%d", left, top, w, h)
	}

	if _, _, _, _, ok := minimapRect(30, 10, mm); ok {
		t.Error("overlay should not fit a 30x10 canvas")
	}
	if _, _, _, _, ok := minimapRect(80, 24, nil); ok {
		t.Error("nil minimap should not place a box")
	}
}

func TestCanvasBounds(t *testing.T) {
	c := newCanvas(4, 2)

	// Out-of-range writes are dropped, not panics.
	c.set(-1, 0, 'x', inkLabel)
	c.set(4, 0, 'x', inkLabel)
	c.set(0, 2, 'x', inkLabel)
	c.text(-2, 0, "abc", inkLabel)

	out := c.String()
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("canvas rows = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "c") {
		t.Errorf("clipped text should keep its in-range tail: %q", lines[0])
	}
	if strings.Contains(out, "a") || strings.Contains(out, "b") {
		t.Errorf("off-canvas text leaked: %q", out)
	}
}

func TestCanvasSetIfEmpty(t *testing.T) {
	c := newCanvas(3, 1)
	c.set(1, 0, '─', inkEdgeHi)
	c.setIfEmpty(1, 0, '·', inkEdgeDim)
	if c.runes[0][1] != '─' || c.inks[0][1] != inkEdgeHi {
		t.Errorf("setIfEmpty overwrote an occupied cell: %q", c.runes[0][1])
	}
	c.setIfEmpty(2, 0, '·', inkEdgeDim)
	if c.runes[0][2] != '·' {
		t.Errorf("setIfEmpty skipped an empty cell")
	}
}

func TestRenderCanvas(t *testing.T) {
	task := func(id, title string, p graph.Priority, s graph.Status) *graph.Task {
		return &graph.Task{ID: id, Title: title, Priority: p, Status: s}
	}

	f := &scene.Frame{
		Zoom: 1,
		Nodes: []scene.FrameNode{
			{ID: "a", X: 80, Y: 48, Radius: 14, Task: task("a", "alpha", graph.PriorityMedium, graph.StatusTodo)},
			{ID: "b", X: 240, Y: 48, Radius: 14, Task: task("b", "bravo", graph.PriorityMedium, graph.StatusDone)},
		},
		Edges: []scene.FrameEdge{
			{X1: 80, Y1: 48, X2: 240, Y2: 48, Weight: 0.5},
		},
	}

	out := renderCanvas(f, 40, 12)
	lines := strings.Split(out, "\n")
	if len(lines) != 12 {
		t.Fatalf("canvas rows = %d, want 12", len(lines))
	}
	if !strings.Contains(out, "█") {
		t.Error("medium-priority nodes at zoom 1 should render as discs")
	}
	if !strings.Contains(out, "─") {
		t.Error("the connecting edge never rendered")
	}
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "bravo") {
		t.Error("labels missing at zoom 1")
	}

	// Zoomed out: small discs collapse to glyphs and labels disappear.
	for i := range f.Nodes {
		f.Nodes[i].Radius = 3.5
	}
	f.Zoom = 0.25
	out = renderCanvas(f, 40, 12)
	if strings.Contains(out, "alpha") {
		t.Error("labels should hide below the zoom threshold")
	}
	if strings.Contains(out, "█") {
		t.Error("a 3.5px radius should not fill whole cells")
	}

	// Nil frame still yields a full blank grid.
	blank := renderCanvas(nil, 10, 3)
	if got := strings.Split(blank, "\n"); len(got) != 3 {
		t.Fatalf("blank canvas rows = %d, want 3", len(got))
	}
}

func TestLoadConfig_SeedRequiresOffline(t *testing.T) {
	if _, err := loadConfig([]string{"-seed", "tasks.json"}); err == nil {
		t.Fatal("expected -seed without -offline to be rejected")
	} else if !strings.Contains(err.Error(), "requires -offline") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := loadConfig([]string{"-offline", "-seed", "tasks.json"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.offline || cfg.seedPath == "" {
		t.Fatalf("offline seed config = %+v", cfg)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"GRAVITASK_TUI_DB", "GRAVITASK_API", "GRAVITASK_TOKEN"} {
		os.Unsetenv(key)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.endpoint != defaultEndpoint {
		t.Errorf("endpoint = %q, want %q", cfg.endpoint, defaultEndpoint)
	}
	if !strings.HasSuffix(cfg.dbPath, "gravitask-cache.db") {
		t.Errorf("dbPath = %q", cfg.dbPath)
	}
	if cfg.offline || cfg.token != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	os.Setenv("GRAVITASK_API", "http://10.0.0.5:9000")
	defer os.Unsetenv("GRAVITASK_API")
	os.Setenv("GRAVITASK_TOKEN", "tkn")
	defer os.Unsetenv("GRAVITASK_TOKEN")

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.endpoint != "http://10.0.0.5:9000" || cfg.token != "tkn" {
		t.Errorf("env config = %+v", cfg)
	}

	// Flags still win over the environment.
	cfg, err = loadConfig([]string{"-api", "http://127.0.0.1:8001"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.endpoint != "http://127.0.0.1:8001" {
		t.Errorf("flag should override env, got %q", cfg.endpoint)
	}
}
