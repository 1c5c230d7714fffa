// Seeds a running daemon with a clustered random project graph. Handy
// for eyeballing layout quality and for load-testing the sync path:
//
//	go run ./deploy/dogfood -clusters 6 -size 8
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
)

var (
	apiURL   = flag.String("api", "http://127.0.0.1:8780", "daemon endpoint")
	token    = flag.String("token", "", "bearer token if the daemon requires one")
	clusters = flag.Int("clusters", 4, "number of loosely connected clusters")
	size     = flag.Int("size", 6, "tasks per cluster")
	seed     = flag.Int64("seed", 0, "rng seed, 0 picks one from the clock")
	layout   = flag.Bool("layout", true, "run a force layout after seeding")
)

var verbs = []string{"Draft", "Review", "Ship", "Refactor", "Test", "Document", "Deploy", "Profile", "Migrate", "Design"}
var nouns = []string{"the parser", "the billing flow", "the onboarding page", "the cache layer", "the release notes",
	"the import job", "the search index", "the settings panel", "the metrics dashboard", "the API client"}
var categories = []string{"backend", "frontend", "infra", "docs", "research"}

func main() {
	flag.Parse()
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	log.Printf("Seeding %s with %d clusters of %d (seed %d)", *apiURL, *clusters, *size, *seed)

	c := client.NewClient(*apiURL)
	if *token != "" {
		c.SetToken(*token)
	}
	ctx := context.Background()
	if _, err := c.Ping(ctx); err != nil {
		log.Fatalf("Daemon not reachable: %v", err)
	}

	start := time.Now()
	var ids [][]string
	var tasks, edges int
	seen := make(map[[2]string]bool)
	link := func(source, target string, weight float64) {
		// The daemon upserts duplicate pairs, so skip them here to keep
		// the edge count honest.
		if source == target || seen[[2]string{source, target}] {
			return
		}
		seen[[2]string{source, target}] = true
		rel := &graph.Relation{Source: source, Target: target, Weight: graph.ClampWeight(weight)}
		if err := c.CreateEdge(ctx, rel); err != nil {
			log.Fatalf("Failed to link tasks: %v", err)
		}
		edges++
	}

	for ci := 0; ci < *clusters; ci++ {
		cluster := make([]string, 0, *size)
		category := categories[ci%len(categories)]
		for ti := 0; ti < *size; ti++ {
			t := &graph.Task{
				ID:       uuid.NewString(),
				Title:    fmt.Sprintf("%s %s", verbs[rng.Intn(len(verbs))], nouns[rng.Intn(len(nouns))]),
				Category: category,
				Status:   randomStatus(rng),
				Priority: randomPriority(rng),
				Tags:     []string{"dogfood", fmt.Sprintf("cluster-%d", ci)},
			}
			if _, err := c.CreateTask(ctx, t); err != nil {
				log.Fatalf("Failed to create task: %v", err)
			}
			cluster = append(cluster, t.ID)
			tasks++
		}

		// Chain the cluster so it hangs together, then sprinkle a few
		// extra dependencies for visual interest.
		for i := 1; i < len(cluster); i++ {
			link(cluster[i-1], cluster[i], 0.5+rng.Float64()*1.5)
		}
		for i := 0; i < len(cluster)/3; i++ {
			link(cluster[rng.Intn(len(cluster))], cluster[rng.Intn(len(cluster))], 0.3+rng.Float64())
		}
		ids = append(ids, cluster)
	}

	// Light bridges between neighboring clusters keep the graph one
	// component without collapsing the cluster structure.
	for ci := 1; ci < len(ids); ci++ {
		prev, cur := ids[ci-1], ids[ci]
		link(prev[rng.Intn(len(prev))], cur[rng.Intn(len(cur))], 0.2)
	}
	log.Printf("Pushed %d tasks and %d edges in %s", tasks, edges, time.Since(start).Round(time.Millisecond))

	if *layout {
		resp, err := c.ComputeLayout(ctx, client.LayoutRequest{Mode: "force", Width: 1600, Height: 1000})
		if err != nil {
			log.Fatalf("Layout failed: %v", err)
		}
		log.Printf("Layout placed %d tasks in %d ticks", len(resp.Positions), resp.Ticks)
	}
}

func randomStatus(rng *rand.Rand) graph.Status {
	switch r := rng.Float64(); {
	case r < 0.5:
		return graph.StatusTodo
	case r < 0.75:
		return graph.StatusInProgress
	case r < 0.85:
		return graph.StatusBlocked
	default:
		return graph.StatusDone
	}
}

func randomPriority(rng *rand.Rand) graph.Priority {
	switch r := rng.Float64(); {
	case r < 0.35:
		return graph.PriorityLow
	case r < 0.75:
		return graph.PriorityMedium
	case r < 0.95:
		return graph.PriorityHigh
	default:
		return graph.PriorityCritical
	}
}
