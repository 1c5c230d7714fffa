package graph

// Graph is a snapshot of the task graph: tasks in insertion order plus the
// relations between them. Slices keep iteration deterministic, which the
// layout engine relies on for reproducible initial placement.
type Graph struct {
	Tasks     []*Task     `json:"tasks"`
	Relations []*Relation `json:"relations"`
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Tasks:     make([]*Task, 0),
		Relations: make([]*Relation, 0),
	}
}

// AddTask appends a task to the graph.
func (g *Graph) AddTask(t *Task) {
	g.Tasks = append(g.Tasks, t)
}

// AddRelation appends a relation to the graph.
func (g *Graph) AddRelation(r *Relation) {
	g.Relations = append(g.Relations, r)
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(id string) *Task {
	for _, t := range g.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Clone returns a deep copy. Callers that hand graphs across goroutine
// boundaries clone first so readers never observe concurrent mutation.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Tasks:     make([]*Task, 0, len(g.Tasks)),
		Relations: make([]*Relation, 0, len(g.Relations)),
	}
	for _, t := range g.Tasks {
		c := *t
		if t.Position != nil {
			p := *t.Position
			c.Position = &p
		}
		if t.DueAt != nil {
			d := *t.DueAt
			c.DueAt = &d
		}
		if t.Tags != nil {
			c.Tags = append([]string(nil), t.Tags...)
		}
		out.Tasks = append(out.Tasks, &c)
	}
	for _, r := range g.Relations {
		c := *r
		out.Relations = append(out.Relations, &c)
	}
	return out
}

// Adjacency returns the undirected neighbor index, taskID -> neighbor IDs.
// Used for highlight sets and degree-biased link forces.
func (g *Graph) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Tasks))
	for _, r := range g.Relations {
		adj[r.Source] = append(adj[r.Source], r.Target)
		adj[r.Target] = append(adj[r.Target], r.Source)
	}
	return adj
}

// Normalize returns a cleaned copy of the inputs: duplicate task IDs are
// dropped (first occurrence wins), relation weights are clamped to [0,1],
// and relations with a missing endpoint or identical endpoints are
// filtered out. Malformed entries are a data-quality condition, not an
// error; rendering proceeds with whatever survives.
func Normalize(tasks []*Task, relations []*Relation) ([]*Task, []*Relation) {
	seen := make(map[string]bool, len(tasks))
	outTasks := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		outTasks = append(outTasks, t)
	}

	outRels := make([]*Relation, 0, len(relations))
	for _, r := range relations {
		if r == nil || r.Source == r.Target {
			continue
		}
		if !seen[r.Source] || !seen[r.Target] {
			continue
		}
		c := *r
		c.Weight = ClampWeight(r.Weight)
		outRels = append(outRels, &c)
	}
	return outTasks, outRels
}
