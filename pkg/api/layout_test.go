package api

import (
	"math"
	"testing"

	"github.com/gravitask/gravitask/pkg/graph"
)

func layoutGraph(taskIDs []string, rels []*graph.Relation) *graph.Graph {
	g := graph.NewGraph()
	for _, id := range taskIDs {
		g.AddTask(&graph.Task{ID: id, Title: id, Status: graph.StatusTodo, Priority: graph.PriorityMedium})
	}
	for _, r := range rels {
		g.AddRelation(r)
	}
	return g
}

func dist(a, b graph.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestPCALayout_SeparatesClusters(t *testing.T) {
	// Two tight cliques with no cross links.
	g := layoutGraph([]string{"a1", "a2", "a3", "b1", "b2", "b3"}, []*graph.Relation{
		{Source: "a1", Target: "a2", Weight: 1},
		{Source: "a1", Target: "a3", Weight: 1},
		{Source: "a2", Target: "a3", Weight: 1},
		{Source: "b1", Target: "b2", Weight: 1},
		{Source: "b1", Target: "b3", Weight: 1},
		{Source: "b2", Target: "b3", Weight: 1},
	})

	pos := pcaLayout(g, 800, 600)
	if len(pos) != 6 {
		t.Fatalf("Positions = %d, want 6", len(pos))
	}

	clusterA := []string{"a1", "a2", "a3"}
	clusterB := []string{"b1", "b2", "b3"}

	var intra, inter float64
	var nIntra, nInter int
	for _, ids := range [][]string{clusterA, clusterB} {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				intra += dist(pos[ids[i]], pos[ids[j]])
				nIntra++
			}
		}
	}
	for _, a := range clusterA {
		for _, b := range clusterB {
			inter += dist(pos[a], pos[b])
			nInter++
		}
	}
	intra /= float64(nIntra)
	inter /= float64(nInter)

	if intra >= inter {
		t.Errorf("Mean intra-cluster distance %g should be below inter-cluster %g", intra, inter)
	}
}

func TestPCALayout_FitsCanvas(t *testing.T) {
	g := layoutGraph([]string{"a", "b", "c", "d"}, []*graph.Relation{
		{Source: "a", Target: "b", Weight: 1},
		{Source: "c", Target: "d", Weight: 0.3},
	})

	pos := pcaLayout(g, 800, 600)
	for id, p := range pos {
		if p.X < 0 || p.X > 800 || p.Y < 0 || p.Y > 600 {
			t.Errorf("Task %s at %v is outside the 800x600 canvas", id, p)
		}
	}
}

func TestPCALayout_SmallGraphs(t *testing.T) {
	if got := pcaLayout(graph.NewGraph(), 800, 600); len(got) != 0 {
		t.Errorf("Empty graph positions = %d, want 0", len(got))
	}

	g := layoutGraph([]string{"only"}, nil)
	got := pcaLayout(g, 800, 600)
	if p := got["only"]; p.X != 400 || p.Y != 300 {
		t.Errorf("Single task at %v, want canvas center (400,300)", p)
	}
}

func TestPCALayout_NoVarianceFallsBackToRing(t *testing.T) {
	// No edges, identical priorities: nothing for PCA to separate.
	g := layoutGraph([]string{"a", "b", "c", "d", "e"}, nil)

	pos := pcaLayout(g, 800, 600)
	if len(pos) != 5 {
		t.Fatalf("Positions = %d, want 5", len(pos))
	}

	seen := make(map[graph.Point]string)
	for id, p := range pos {
		if other, dup := seen[p]; dup {
			t.Errorf("Tasks %s and %s share position %v", id, other, p)
		}
		seen[p] = id
		if p.X < 0 || p.X > 800 || p.Y < 0 || p.Y > 600 {
			t.Errorf("Task %s at %v is outside the canvas", id, p)
		}
	}
}

func TestPCALayout_PrioritySpreads(t *testing.T) {
	g := graph.NewGraph()
	g.AddTask(&graph.Task{ID: "low", Title: "low", Priority: graph.PriorityLow})
	g.AddTask(&graph.Task{ID: "crit", Title: "crit", Priority: graph.PriorityCritical})

	pos := pcaLayout(g, 800, 600)
	if pos["low"].X == pos["crit"].X {
		t.Error("Differing priorities should separate along the principal axis")
	}
	// One-dimensional data collapses the second axis to the center line.
	if pos["low"].Y != 300 || pos["crit"].Y != 300 {
		t.Errorf("Y = %g and %g, want both on the 300 center line", pos["low"].Y, pos["crit"].Y)
	}
}

func TestPCALayout_Deterministic(t *testing.T) {
	g := layoutGraph([]string{"a", "b", "c"}, []*graph.Relation{
		{Source: "a", Target: "b", Weight: 0.9},
	})

	first := pcaLayout(g, 800, 600)
	second := pcaLayout(g, 800, 600)
	for id, p := range first {
		if second[id] != p {
			t.Errorf("Task %s moved between identical runs: %v then %v", id, p, second[id])
		}
	}
}

func TestForceLayout_SettlesAllTasks(t *testing.T) {
	g := layoutGraph([]string{"a", "b", "c"}, []*graph.Relation{
		{Source: "a", Target: "b", Weight: 1},
	})

	pos, ticks, err := forceLayout(g, 800, 600)
	if err != nil {
		t.Fatalf("forceLayout failed: %v", err)
	}
	if len(pos) != 3 {
		t.Errorf("Positions = %d, want 3", len(pos))
	}
	if ticks == 0 {
		t.Error("Settling should take at least one tick")
	}

	// The linked pair should rest closer than the free rider.
	if dist(pos["a"], pos["b"]) >= dist(pos["a"], pos["c"]) {
		t.Errorf("Linked pair at %g should rest closer than unlinked %g",
			dist(pos["a"], pos["b"]), dist(pos["a"], pos["c"]))
	}
}
