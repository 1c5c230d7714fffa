package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestLoad(t *testing.T) {
	doc := `
name: two-clusters
description: Linked pairs settle closer than strangers
canvas:
  width: 640
  height: 480
engine:
  alpha_decay: 0.02
topology:
  tasks:
    - id: a1
      priority: high
    - id: a2
    - id: anchor
      x: 100
      y: 120
      pinned: true
  relations:
    - source: a1
      target: a2
    - source: a1
      target: anchor
      weight: 0.25
invariants:
  - metric: settle_ticks
    condition: "<="
    value: 600
`
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("writing scenario file failed: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Name != "two-clusters" {
		t.Errorf("expected name two-clusters, got %q", s.Name)
	}
	if s.Canvas.Width != 640 || s.Canvas.Height != 480 {
		t.Errorf("unexpected canvas: %+v", s.Canvas)
	}
	if s.MaxTicks != 1000 {
		t.Errorf("expected default tick cap 1000, got %d", s.MaxTicks)
	}
	if s.Engine == nil || s.Engine.AlphaDecay != 0.02 {
		t.Errorf("expected engine override alpha_decay 0.02, got %+v", s.Engine)
	}
	if len(s.Topology.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(s.Topology.Tasks))
	}
	anchor := s.Topology.Tasks[2]
	if !anchor.Pinned || anchor.X == nil || *anchor.X != 100 {
		t.Errorf("anchor not parsed as pinned at x=100: %+v", anchor)
	}
	if len(s.Topology.Relations) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(s.Topology.Relations))
	}
	if s.Topology.Relations[0].Weight != nil {
		t.Error("expected omitted weight to stay unset")
	}
	if s.Topology.Relations[1].Weight == nil || *s.Topology.Relations[1].Weight != 0.25 {
		t.Errorf("expected weight 0.25, got %v", s.Topology.Relations[1].Weight)
	}
	if len(s.Invariants) != 1 || s.Invariants[0].Condition != "<=" {
		t.Errorf("invariants not parsed: %+v", s.Invariants)
	}
}

func TestScenarioValidate(t *testing.T) {
	base := func() Scenario {
		return Scenario{
			Name: "ok",
			Topology: Topology{
				Tasks: []TaskSpec{{ID: "a"}, {ID: "b"}},
				Relations: []RelationSpec{
					{Source: "a", Target: "b"},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(s *Scenario) {},
		},
		{
			name:    "no name",
			mutate:  func(s *Scenario) { s.Name = "" },
			wantErr: "no name",
		},
		{
			name:    "no tasks",
			mutate:  func(s *Scenario) { s.Topology.Tasks = nil },
			wantErr: "no tasks",
		},
		{
			name:    "duplicate id",
			mutate:  func(s *Scenario) { s.Topology.Tasks[1].ID = "a" },
			wantErr: "duplicate task id",
		},
		{
			name:    "unknown priority",
			mutate:  func(s *Scenario) { s.Topology.Tasks[0].Priority = "urgent" },
			wantErr: "unknown priority",
		},
		{
			name:    "x without y",
			mutate:  func(s *Scenario) { s.Topology.Tasks[0].X = fp(10) },
			wantErr: "set together",
		},
		{
			name:    "pinned without seed",
			mutate:  func(s *Scenario) { s.Topology.Tasks[0].Pinned = true },
			wantErr: "seeded position",
		},
		{
			name:    "self relation",
			mutate:  func(s *Scenario) { s.Topology.Relations[0].Target = "a" },
			wantErr: "itself",
		},
		{
			name:    "dangling relation",
			mutate:  func(s *Scenario) { s.Topology.Relations[0].Target = "ghost" },
			wantErr: "unknown task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid scenario, got %v", err)
				}
				if s.Canvas.Width != 800 || s.Canvas.Height != 600 {
					t.Errorf("expected default canvas, got %+v", s.Canvas)
				}
				if s.MaxTicks != 1000 {
					t.Errorf("expected default tick cap, got %d", s.MaxTicks)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRunScenario_ChainSettles(t *testing.T) {
	s := Scenario{
		Name: "chain",
		Topology: Topology{
			Tasks: []TaskSpec{
				{ID: "plan"}, {ID: "draft"}, {ID: "review"}, {ID: "ship"},
			},
			Relations: []RelationSpec{
				{Source: "plan", Target: "draft"},
				{Source: "draft", Target: "review"},
				{Source: "review", Target: "ship"},
			},
		},
		Invariants: []Invariant{
			{Metric: "settle_ticks", Condition: "<=", Value: 1000},
			{Metric: "final_alpha", Condition: "<", Value: 0.01},
		},
	}

	res, err := RunScenario(s)
	if err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, invariants: %+v", res.Invariants)
	}
	if res.Ticks <= 0 || res.Ticks > 1000 {
		t.Errorf("unexpected tick count %d", res.Ticks)
	}
	if res.Tasks != 4 || res.Relations != 3 {
		t.Errorf("unexpected sizes: %d tasks, %d relations", res.Tasks, res.Relations)
	}
	for _, key := range []string{"settle_ticks", "final_alpha", "max_displacement", "pin_drift", "attraction_ratio"} {
		if _, ok := res.Metrics[key]; !ok {
			t.Errorf("missing metric %s", key)
		}
	}
}

func TestRunScenario_RelationsPullClustersTogether(t *testing.T) {
	s := Scenario{
		Name: "two-cliques",
		Topology: Topology{
			Tasks: []TaskSpec{
				{ID: "a1"}, {ID: "a2"}, {ID: "a3"},
				{ID: "b1"}, {ID: "b2"}, {ID: "b3"},
			},
			Relations: []RelationSpec{
				{Source: "a1", Target: "a2"}, {Source: "a2", Target: "a3"}, {Source: "a1", Target: "a3"},
				{Source: "b1", Target: "b2"}, {Source: "b2", Target: "b3"}, {Source: "b1", Target: "b3"},
			},
		},
		Invariants: []Invariant{
			{Metric: "attraction_ratio", Condition: ">", Value: 1.2},
		},
	}

	res, err := RunScenario(s)
	if err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
	if !res.Success {
		t.Errorf("expected related pairs to settle closer, invariants: %+v", res.Invariants)
	}
	if ratio := res.Metrics["attraction_ratio"]; ratio <= 1.2 {
		t.Errorf("expected attraction ratio above 1.2, got %.3f", ratio)
	}
}

func TestRunScenario_PinnedAnchorHolds(t *testing.T) {
	s := Scenario{
		Name: "anchored",
		Topology: Topology{
			Tasks: []TaskSpec{
				{ID: "anchor", X: fp(200), Y: fp(150), Pinned: true},
				{ID: "b"}, {ID: "c"}, {ID: "d"},
			},
			Relations: []RelationSpec{
				{Source: "anchor", Target: "b"},
				{Source: "anchor", Target: "c"},
				{Source: "anchor", Target: "d"},
			},
		},
		Invariants: []Invariant{
			{Metric: "pin_drift", Condition: "<=", Value: 0.0001},
		},
	}

	res, err := RunScenario(s)
	if err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
	if !res.Success {
		t.Errorf("expected the pin to hold, invariants: %+v", res.Invariants)
	}
	if drift := res.Metrics["pin_drift"]; drift != 0 {
		t.Errorf("expected zero pin drift, got %f", drift)
	}
}

func TestRunScenario_FailingInvariant(t *testing.T) {
	s := Scenario{
		Name: "too-strict",
		Topology: Topology{
			Tasks: []TaskSpec{{ID: "a"}, {ID: "b"}},
		},
		Invariants: []Invariant{
			{Metric: "settle_ticks", Condition: "<=", Value: 1},
			{Metric: "no_such_metric", Condition: ">", Value: 0},
		},
	}

	res, err := RunScenario(s)
	if err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
	if res.Success {
		t.Error("expected failure against an unreachable tick budget")
	}
	if len(res.Invariants) != 2 {
		t.Fatalf("expected 2 invariant results, got %d", len(res.Invariants))
	}
	if res.Invariants[0].Passed {
		t.Error("expected the tick budget invariant to fail")
	}
	if res.Invariants[0].Actual == "N/A" {
		t.Error("expected a numeric actual for a known metric")
	}
	if res.Invariants[1].Actual != "N/A" || res.Invariants[1].Passed {
		t.Errorf("expected an unknown metric to fail as N/A, got %+v", res.Invariants[1])
	}
}

func TestRunScenario_InvalidScenario(t *testing.T) {
	if _, err := RunScenario(Scenario{Name: "empty"}); err == nil {
		t.Fatal("expected an error for a scenario with no tasks")
	}
}
