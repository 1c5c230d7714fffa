package engine

import (
	"fmt"
	"math"
	"testing"

	"github.com/gravitask/gravitask/pkg/graph"
)

// settleDistance runs a two-node graph with one relation of the given
// weight to convergence and returns the final separation.
func settleDistance(t *testing.T, weight float64) float64 {
	t.Helper()
	tasks := []*graph.Task{
		{ID: "a", Priority: graph.PriorityMedium},
		{ID: "b", Priority: graph.PriorityMedium},
	}
	relations := []*graph.Relation{{Source: "a", Target: "b", Weight: weight}}

	snap, err := Layout(DefaultConfig(), tasks, relations, 800, 600, 0)
	if err != nil {
		t.Fatalf("layout at weight %.1f failed: %v", weight, err)
	}
	return dist(*snap.Node("a"), *snap.Node("b"))
}

func TestLink_DistanceDecreasesWithWeight(t *testing.T) {
	weights := []float64{0.1, 0.5, 0.9}
	var distances []float64
	for _, w := range weights {
		distances = append(distances, settleDistance(t, w))
	}

	for i := 1; i < len(distances); i++ {
		if distances[i] >= distances[i-1] {
			t.Errorf("heavier relation did not settle closer: w=%.1f gave %.1f, w=%.1f gave %.1f",
				weights[i-1], distances[i-1], weights[i], distances[i])
		}
	}
}

func TestLink_RestingLengthDerivation(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		weight float64
		want   float64
	}{
		{0, cfg.LinkDistanceMax},
		{1, cfg.LinkDistanceMin},
		{0.5, (cfg.LinkDistanceMax + cfg.LinkDistanceMin) / 2},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("w=%.1f", tc.weight), func(t *testing.T) {
			sim := New(testConfig())
			tasks := []*graph.Task{{ID: "a"}, {ID: "b"}}
			rels := []*graph.Relation{{Source: "a", Target: "b", Weight: tc.weight}}
			if _, err := sim.Start(tasks, rels, 800, 600); err != nil {
				t.Fatalf("start failed: %v", err)
			}
			defer sim.Stop()

			sim.mu.Lock()
			got := sim.links[0].distance
			sim.mu.Unlock()
			if got != tc.want {
				t.Errorf("resting length for weight %.1f: expected %.1f, got %.1f",
					tc.weight, tc.want, got)
			}
		})
	}
}

func TestCharge_PushesNodesApart(t *testing.T) {
	sim := New(testConfig())
	tasks := []*graph.Task{
		{ID: "a", Position: &graph.Point{X: 400, Y: 300}},
		{ID: "b", Position: &graph.Point{X: 401, Y: 300}},
	}
	if _, err := sim.Start(tasks, nil, 800, 600); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sim.Stop()

	sim.mu.Lock()
	sim.applyCharge(1.0)
	avx := sim.byID["a"].vx
	bvx := sim.byID["b"].vx
	sim.mu.Unlock()

	if avx >= 0 {
		t.Errorf("left node should be pushed left, got vx=%.2f", avx)
	}
	if bvx <= 0 {
		t.Errorf("right node should be pushed right, got vx=%.2f", bvx)
	}
}

func TestCharge_CutoffBeyondMaxDistance(t *testing.T) {
	sim := New(testConfig())
	tasks := []*graph.Task{
		{ID: "a", Position: &graph.Point{X: 0, Y: 0}},
		{ID: "b", Position: &graph.Point{X: 2000, Y: 0}},
	}
	if _, err := sim.Start(tasks, nil, 4000, 600); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sim.Stop()

	sim.mu.Lock()
	sim.applyCharge(1.0)
	avx := sim.byID["a"].vx
	sim.mu.Unlock()

	if avx != 0 {
		t.Errorf("nodes beyond the cutoff should not interact, got vx=%.4f", avx)
	}
}

func TestCenter_TranslatesCentroidToTarget(t *testing.T) {
	sim := New(testConfig())
	tasks := []*graph.Task{
		{ID: "a", Position: &graph.Point{X: 0, Y: 0}},
		{ID: "b", Position: &graph.Point{X: 10, Y: 0}},
	}
	if _, err := sim.Start(tasks, nil, 800, 600); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sim.Stop()

	sim.mu.Lock()
	// Knock a node away, then let centering pull the group back.
	sim.byID["a"].x = 100
	sim.applyCenter()
	cx := (sim.byID["a"].x + sim.byID["b"].x) / 2
	cy := (sim.byID["a"].y + sim.byID["b"].y) / 2
	// Relative geometry is preserved; only the group moves.
	gap := sim.byID["a"].x - sim.byID["b"].x
	sim.mu.Unlock()

	if cx != 5 || cy != 0 {
		t.Errorf("centroid should return to (5,0), got (%.2f,%.2f)", cx, cy)
	}
	if gap != 90 {
		t.Errorf("translation changed relative positions: gap=%.2f", gap)
	}
}

func TestCollide_SeparatesByPriorityRadius(t *testing.T) {
	// Two critical tasks dropped on top of each other must end at least
	// their summed radii apart.
	tasks := []*graph.Task{
		{ID: "a", Priority: graph.PriorityCritical, Position: &graph.Point{X: 100, Y: 100}},
		{ID: "b", Priority: graph.PriorityCritical, Position: &graph.Point{X: 103, Y: 100}},
	}

	snap, err := Layout(DefaultConfig(), tasks, nil, 800, 600, 0)
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}

	want := graph.PriorityCritical.Radius() * 2
	if got := dist(*snap.Node("a"), *snap.Node("b")); got < want {
		t.Errorf("overlapping criticals should separate to >= %.1f, got %.1f", want, got)
	}
}

func TestCollide_LargerNodeYieldsLess(t *testing.T) {
	sim := New(testConfig())
	tasks := []*graph.Task{
		{ID: "big", Priority: graph.PriorityCritical, Position: &graph.Point{X: 100, Y: 100}},
		{ID: "small", Priority: graph.PriorityLow, Position: &graph.Point{X: 110, Y: 100}},
	}
	if _, err := sim.Start(tasks, nil, 800, 600); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sim.Stop()

	sim.mu.Lock()
	sim.applyCollide()
	big := math.Abs(sim.byID["big"].vx)
	small := math.Abs(sim.byID["small"].vx)
	sim.mu.Unlock()

	if big >= small {
		t.Errorf("larger node should move less: big=%.3f small=%.3f", big, small)
	}
}
