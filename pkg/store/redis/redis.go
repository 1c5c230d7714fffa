package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"lukechampine.com/blake3"

	"github.com/gravitask/gravitask/pkg/graph"
)

const layoutsSet = "gravitask:layouts"

// LayoutCache stores computed layouts keyed by a content fingerprint, so
// repeated layout requests for the same graph and canvas come back
// without another solver run. It is best-effort by design: every failure
// is logged and treated as a miss.
type LayoutCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLayoutCache wraps a redis client. ttl zero means entries never
// expire on their own.
func NewLayoutCache(client *redis.Client, ttl time.Duration) *LayoutCache {
	return &LayoutCache{client: client, ttl: ttl}
}

func (c *LayoutCache) makeKey(fingerprint string) string {
	return fmt.Sprintf("gravitask:layout:%s", fingerprint)
}

// Set stores the positions under the fingerprint.
func (c *LayoutCache) Set(fingerprint string, positions map[string]graph.Point) {
	key := c.makeKey(fingerprint)
	data, err := json.Marshal(positions)
	if err != nil {
		log.Printf("Failed to marshal layout: %v", err)
		return
	}
	ctx := context.Background()
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("Failed to SET key %s: %v", key, err)
		return
	}
	if err := c.client.SAdd(ctx, layoutsSet, key).Err(); err != nil {
		log.Printf("Failed to SADD key %s to set: %v", key, err)
	}
}

// Get returns the cached positions for the fingerprint, if present.
func (c *LayoutCache) Get(fingerprint string) (map[string]graph.Point, bool) {
	key := c.makeKey(fingerprint)
	ctx := context.Background()
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false
		}
		log.Printf("Failed to GET key %s: %v", key, err)
		return nil, false
	}
	var positions map[string]graph.Point
	if err := json.Unmarshal([]byte(data), &positions); err != nil {
		log.Printf("Failed to unmarshal layout from key %s: %v", key, err)
		return nil, false
	}
	return positions, true
}

// Clear drops every cached layout.
func (c *LayoutCache) Clear() {
	ctx := context.Background()
	keys, err := c.client.SMembers(ctx, layoutsSet).Result()
	if err != nil {
		log.Printf("Failed to SMEMBERS %s during clear: %v", layoutsSet, err)
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			log.Printf("Failed to DEL keys: %v", err)
		}
	}
	if err := c.client.Del(ctx, layoutsSet).Err(); err != nil {
		log.Printf("Failed to DEL set %s: %v", layoutsSet, err)
	}
}

// Fingerprint identifies a layout request by content: the same graph
// shape, canvas and mode always hash the same, regardless of input
// order. Everything that changes the solver's output is included; title
// and status, which the solver never reads, are not.
func Fingerprint(g *graph.Graph, width, height float64, mode string) string {
	type fpTask struct {
		ID       string       `json:"id"`
		Priority string       `json:"priority"`
		Position *graph.Point `json:"position,omitempty"`
	}
	type fpEdge struct {
		Source string  `json:"source"`
		Target string  `json:"target"`
		Weight float64 `json:"weight"`
	}
	type fpReq struct {
		Mode   string   `json:"mode"`
		Width  float64  `json:"width"`
		Height float64  `json:"height"`
		Tasks  []fpTask `json:"tasks"`
		Edges  []fpEdge `json:"edges"`
	}

	req := fpReq{Mode: mode, Width: width, Height: height}
	for _, t := range g.Tasks {
		req.Tasks = append(req.Tasks, fpTask{ID: t.ID, Priority: string(t.Priority), Position: t.Position})
	}
	sort.Slice(req.Tasks, func(i, j int) bool { return req.Tasks[i].ID < req.Tasks[j].ID })
	for _, r := range g.Relations {
		req.Edges = append(req.Edges, fpEdge{Source: r.Source, Target: r.Target, Weight: r.Weight})
	}
	sort.Slice(req.Edges, func(i, j int) bool {
		if req.Edges[i].Source != req.Edges[j].Source {
			return req.Edges[i].Source < req.Edges[j].Source
		}
		return req.Edges[i].Target < req.Edges[j].Target
	})

	data, err := json.Marshal(req)
	if err != nil {
		// Empty means unkeyable; callers skip the cache.
		log.Printf("Failed to fingerprint layout request: %v", err)
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
