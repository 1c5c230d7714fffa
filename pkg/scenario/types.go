package scenario

import (
	"github.com/gravitask/gravitask/pkg/engine"
)

// Scenario describes one headless layout run: a named topology, the
// canvas it settles on, optional engine overrides, and the invariants
// the final frame must satisfy.
type Scenario struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Canvas      Canvas `json:"canvas" yaml:"canvas"`
	// MaxTicks bounds the run for configs that never cool. Defaults to
	// 1000.
	MaxTicks   int            `json:"max_ticks,omitempty" yaml:"max_ticks,omitempty"`
	Engine     *engine.Config `json:"engine,omitempty" yaml:"engine,omitempty"`
	Topology   Topology       `json:"topology" yaml:"topology"`
	Invariants []Invariant    `json:"invariants,omitempty" yaml:"invariants,omitempty"`
}

// Canvas is the world rectangle the layout settles on. Zero dimensions
// default to 800x600.
type Canvas struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Topology declares the tasks and relations under test.
type Topology struct {
	Tasks     []TaskSpec     `json:"tasks" yaml:"tasks"`
	Relations []RelationSpec `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// TaskSpec is one task in a scenario. X and Y seed a position when both
// are present. Pinned holds the task at its seed for the whole run and
// requires one.
type TaskSpec struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Priority string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	X        *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y        *float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Pinned   bool     `json:"pinned,omitempty" yaml:"pinned,omitempty"`
}

// RelationSpec is one weighted edge in a scenario. An omitted weight
// means full strength.
type RelationSpec struct {
	Source string   `json:"source" yaml:"source"`
	Target string   `json:"target" yaml:"target"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Invariant is one assertion over the run's metrics, e.g.
// {metric: settle_ticks, condition: "<=", value: 400}.
type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Condition string  `json:"condition" yaml:"condition"` // ">", ">=", "<", "<=", "=="
	Value     float64 `json:"value" yaml:"value"`
}

// InvariantResult reports one evaluated invariant.
type InvariantResult struct {
	Metric   string `json:"metric"`
	Expected string `json:"expected"` // e.g. "<= 400.00"
	Actual   string `json:"actual"`   // e.g. "312.0000"
	Passed   bool   `json:"passed"`
}

// Result captures the final state of a scenario run for reporting.
type Result struct {
	ScenarioName string             `json:"scenario_name"`
	Tasks        int                `json:"tasks"`
	Relations    int                `json:"relations"`
	Ticks        int                `json:"ticks"`
	FinalAlpha   float64            `json:"final_alpha"`
	Metrics      map[string]float64 `json:"metrics"`
	Invariants   []InvariantResult  `json:"invariants"`
	Success      bool               `json:"success"`
}
