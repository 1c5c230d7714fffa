// Package scenario settles declarative layout topologies headlessly and
// checks the final frame against invariants.
//
// Metrics available to invariants:
//
//	settle_ticks      tick count when the run stopped
//	final_alpha       temperature at the last tick
//	attraction_ratio  mean unrelated-pair distance over mean
//	                  related-pair distance; above 1 means relations pulled
//	max_displacement  farthest any seeded task ended from its seed
//	pin_drift         farthest any pinned task ended from its pin
package scenario

import (
	"fmt"
	"log"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gravitask/gravitask/pkg/engine"
	"github.com/gravitask/gravitask/pkg/graph"
)

// Load reads and validates a scenario from a YAML file.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Validate checks the scenario is runnable and fills defaults: canvas
// 800x600, tick cap 1000, priority medium.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if s.Canvas.Width <= 0 {
		s.Canvas.Width = 800
	}
	if s.Canvas.Height <= 0 {
		s.Canvas.Height = 600
	}
	if s.MaxTicks <= 0 {
		s.MaxTicks = 1000
	}
	if len(s.Topology.Tasks) == 0 {
		return fmt.Errorf("scenario %s has no tasks", s.Name)
	}

	seen := make(map[string]bool, len(s.Topology.Tasks))
	for i, t := range s.Topology.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d has no id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
		switch graph.Priority(t.Priority) {
		case "", graph.PriorityLow, graph.PriorityMedium, graph.PriorityHigh, graph.PriorityCritical:
		default:
			return fmt.Errorf("task %s: unknown priority %q", t.ID, t.Priority)
		}
		if (t.X == nil) != (t.Y == nil) {
			return fmt.Errorf("task %s: x and y must be set together", t.ID)
		}
		if t.Pinned && t.X == nil {
			return fmt.Errorf("task %s: pinned tasks need a seeded position", t.ID)
		}
	}

	for i, r := range s.Topology.Relations {
		if r.Source == "" || r.Target == "" {
			return fmt.Errorf("relation %d is missing an endpoint", i)
		}
		if r.Source == r.Target {
			return fmt.Errorf("relation %d links %s to itself", i, r.Source)
		}
		if !seen[r.Source] || !seen[r.Target] {
			return fmt.Errorf("relation %d references an unknown task", i)
		}
	}
	return nil
}

// build turns the topology into engine inputs.
func (s *Scenario) build() ([]*graph.Task, []*graph.Relation) {
	tasks := make([]*graph.Task, 0, len(s.Topology.Tasks))
	for _, ts := range s.Topology.Tasks {
		t := &graph.Task{
			ID:       ts.ID,
			Title:    ts.Title,
			Status:   graph.StatusTodo,
			Priority: graph.Priority(ts.Priority),
		}
		if t.Title == "" {
			t.Title = ts.ID
		}
		if t.Priority == "" {
			t.Priority = graph.PriorityMedium
		}
		if ts.X != nil && ts.Y != nil {
			t.Position = &graph.Point{X: *ts.X, Y: *ts.Y}
		}
		tasks = append(tasks, t)
	}

	rels := make([]*graph.Relation, 0, len(s.Topology.Relations))
	for _, rs := range s.Topology.Relations {
		w := 1.0
		if rs.Weight != nil {
			w = graph.ClampWeight(*rs.Weight)
		}
		rels = append(rels, &graph.Relation{Source: rs.Source, Target: rs.Target, Weight: w})
	}
	return tasks, rels
}

// RunScenario settles the scenario's topology to a decay stop and
// evaluates its invariants against the final frame.
func RunScenario(s Scenario) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}

	log.Printf("Running scenario: %s (%d tasks, %d relations)", s.Name, len(s.Topology.Tasks), len(s.Topology.Relations))

	cfg := engine.DefaultConfig()
	if s.Engine != nil {
		cfg = *s.Engine
	}

	var held []string
	for _, ts := range s.Topology.Tasks {
		if ts.Pinned {
			held = append(held, ts.ID)
		}
	}

	tasks, relations := s.build()
	snap, err := engine.LayoutHeld(cfg, tasks, relations, s.Canvas.Width, s.Canvas.Height, s.MaxTicks, held)
	if err != nil {
		return Result{}, fmt.Errorf("failed to settle scenario: %w", err)
	}

	res := Result{
		ScenarioName: s.Name,
		Tasks:        len(tasks),
		Relations:    len(relations),
		Ticks:        snap.Tick,
		FinalAlpha:   snap.Alpha,
		Metrics:      measure(s, snap),
	}
	evaluateInvariants(&res, s.Invariants)

	res.Success = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.Success = false
			break
		}
	}
	return res, nil
}

// measure derives the invariant metrics from the final frame.
func measure(s Scenario, snap engine.Snapshot) map[string]float64 {
	m := map[string]float64{
		"settle_ticks": float64(snap.Tick),
		"final_alpha":  snap.Alpha,
	}

	pos := make(map[string]graph.Point, len(snap.Nodes))
	for _, n := range snap.Nodes {
		pos[n.ID] = graph.Point{X: n.X, Y: n.Y}
	}

	var maxDisp, pinDrift float64
	for _, ts := range s.Topology.Tasks {
		if ts.X == nil || ts.Y == nil {
			continue
		}
		p, ok := pos[ts.ID]
		if !ok {
			continue
		}
		d := math.Hypot(p.X-*ts.X, p.Y-*ts.Y)
		if d > maxDisp {
			maxDisp = d
		}
		if ts.Pinned && d > pinDrift {
			pinDrift = d
		}
	}
	m["max_displacement"] = maxDisp
	m["pin_drift"] = pinDrift

	related := make(map[[2]string]bool, 2*len(s.Topology.Relations))
	for _, r := range s.Topology.Relations {
		related[[2]string{r.Source, r.Target}] = true
		related[[2]string{r.Target, r.Source}] = true
	}
	var sumRel, sumUnrel float64
	var nRel, nUnrel int
	nodes := snap.Nodes
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			d := math.Hypot(nodes[i].X-nodes[j].X, nodes[i].Y-nodes[j].Y)
			if related[[2]string{nodes[i].ID, nodes[j].ID}] {
				sumRel += d
				nRel++
			} else {
				sumUnrel += d
				nUnrel++
			}
		}
	}
	// The ratio only exists when both kinds of pair do.
	if nRel > 0 && nUnrel > 0 {
		m["attraction_ratio"] = (sumUnrel / float64(nUnrel)) / (sumRel / float64(nRel))
	}
	return m
}

func evaluateInvariants(res *Result, invariants []Invariant) {
	for _, inv := range invariants {
		expected := fmt.Sprintf("%s %.2f", inv.Condition, inv.Value)

		actual, ok := res.Metrics[inv.Metric]
		if !ok {
			res.Invariants = append(res.Invariants, InvariantResult{
				Metric: inv.Metric, Expected: expected, Actual: "N/A", Passed: false,
			})
			continue
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Expected: expected,
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
}
