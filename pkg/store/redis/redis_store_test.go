package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gravitask/gravitask/pkg/graph"
)

func setupCache(t *testing.T, ttl time.Duration) (*LayoutCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewLayoutCache(client, ttl), mr
}

func TestLayoutCache(t *testing.T) {
	cache, _ := setupCache(t, 0)

	positions := map[string]graph.Point{
		"a": {X: 10, Y: 20},
		"b": {X: -3.5, Y: 99},
	}

	t.Run("Set and Get", func(t *testing.T) {
		cache.Clear()
		cache.Set("fp1", positions)

		got, ok := cache.Get("fp1")
		if !ok {
			t.Fatal("Expected to find cached layout")
		}
		if len(got) != 2 || got["a"] != positions["a"] || got["b"] != positions["b"] {
			t.Errorf("Cached layout doesn't match: got %+v, want %+v", got, positions)
		}
	})

	t.Run("Get non-existent", func(t *testing.T) {
		cache.Clear()
		_, ok := cache.Get("nope")
		if ok {
			t.Error("Expected miss for unknown fingerprint")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		cache.Clear()
		cache.Set("fp1", positions)
		cache.Set("fp1", map[string]graph.Point{"a": {X: 1, Y: 2}})

		got, ok := cache.Get("fp1")
		if !ok {
			t.Fatal("Expected to find cached layout")
		}
		if len(got) != 1 || got["a"] != (graph.Point{X: 1, Y: 2}) {
			t.Errorf("Overwrite did not stick: %+v", got)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		cache.Set("fp1", positions)
		cache.Set("fp2", positions)
		cache.Clear()

		if _, ok := cache.Get("fp1"); ok {
			t.Error("Expected fp1 gone after clear")
		}
		if _, ok := cache.Get("fp2"); ok {
			t.Error("Expected fp2 gone after clear")
		}
	})
}

func TestLayoutCache_TTL(t *testing.T) {
	cache, mr := setupCache(t, time.Minute)

	cache.Set("fp1", map[string]graph.Point{"a": {X: 1, Y: 1}})
	if _, ok := cache.Get("fp1"); !ok {
		t.Fatal("Expected hit before expiry")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := cache.Get("fp1"); ok {
		t.Error("Expected miss after TTL expiry")
	}
}

func TestFingerprint(t *testing.T) {
	build := func(order []string) *graph.Graph {
		g := graph.NewGraph()
		for _, id := range order {
			g.AddTask(&graph.Task{ID: id, Title: "x", Priority: graph.PriorityHigh})
		}
		g.AddRelation(&graph.Relation{Source: "a", Target: "b", Weight: 0.5})
		return g
	}

	// 1. Input order does not change the fingerprint.
	fp1 := Fingerprint(build([]string{"a", "b"}), 800, 600, "force")
	fp2 := Fingerprint(build([]string{"b", "a"}), 800, 600, "force")
	if fp1 == "" || fp1 != fp2 {
		t.Errorf("fingerprint should be order-independent: %s vs %s", fp1, fp2)
	}

	// 2. Anything the solver reads changes it.
	if Fingerprint(build([]string{"a", "b"}), 801, 600, "force") == fp1 {
		t.Error("canvas size should change the fingerprint")
	}
	if Fingerprint(build([]string{"a", "b"}), 800, 600, "pca") == fp1 {
		t.Error("mode should change the fingerprint")
	}
	g := build([]string{"a", "b"})
	g.Tasks[0].Priority = graph.PriorityLow
	if Fingerprint(g, 800, 600, "force") == fp1 {
		t.Error("priority should change the fingerprint")
	}

	// 3. Fields the solver never reads do not.
	g = build([]string{"a", "b"})
	g.Tasks[0].Title = "renamed"
	g.Tasks[0].Status = graph.StatusDone
	if Fingerprint(g, 800, 600, "force") != fp1 {
		t.Error("title and status must not change the fingerprint")
	}
}
