package api

import (
	"math"
	"math/rand"

	"github.com/gravitask/gravitask/pkg/engine"
	"github.com/gravitask/gravitask/pkg/graph"
)

const (
	layoutMargin  = 40.0
	powerMaxIters = 64
	powerEpsilon  = 1e-9
)

// pcaLayout projects tasks onto the plane spanned by the top two principal
// components of their feature rows and scales the result to the canvas.
// A task's features are its adjacency weights to every other task plus its
// priority rank, so strongly related tasks land near each other and
// heavier tasks drift apart from lighter ones. The solver reads nothing
// else; the cache fingerprint depends on that.
func pcaLayout(g *graph.Graph, width, height float64) map[string]graph.Point {
	n := len(g.Tasks)
	out := make(map[string]graph.Point, n)
	switch n {
	case 0:
		return out
	case 1:
		out[g.Tasks[0].ID] = graph.Point{X: width / 2, Y: height / 2}
		return out
	}

	index := make(map[string]int, n)
	for i, t := range g.Tasks {
		index[t.ID] = i
	}

	// n adjacency columns plus one priority column.
	d := n + 1
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, d)
	}
	for _, r := range g.Relations {
		si, ok1 := index[r.Source]
		ti, ok2 := index[r.Target]
		if !ok1 || !ok2 {
			continue
		}
		x[si][ti] = r.Weight
		x[ti][si] = r.Weight
	}
	for i, t := range g.Tasks {
		x[i][n] = priorityRank(t.Priority)
	}

	centerColumns(x)

	v1, ok1 := principalComponent(x, nil)
	v2, ok2 := principalComponent(x, v1)

	px := make([]float64, n)
	py := make([]float64, n)
	if ok1 {
		for i := range x {
			px[i] = dot(x[i], v1)
		}
	}
	if ok2 {
		for i := range x {
			py[i] = dot(x[i], v2)
		}
	}

	if spread(px) < powerEpsilon && spread(py) < powerEpsilon {
		// No variance at all: an unlinked graph of identical tasks.
		return ringLayout(g, width, height)
	}

	sx := scaleToAxis(px, layoutMarginFor(width, height), width)
	sy := scaleToAxis(py, layoutMarginFor(width, height), height)
	for i, t := range g.Tasks {
		out[t.ID] = graph.Point{X: sx[i], Y: sy[i]}
	}
	return out
}

// forceLayout settles the force engine headless and returns the final
// positions and how many ticks convergence took.
func forceLayout(g *graph.Graph, width, height float64) (map[string]graph.Point, int, error) {
	snap, err := engine.Layout(engine.Config{}, g.Tasks, g.Relations, width, height, 0)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string]graph.Point, len(snap.Nodes))
	for _, node := range snap.Nodes {
		out[node.ID] = graph.Point{X: node.X, Y: node.Y}
	}
	return out, snap.Tick, nil
}

// principalComponent runs matrix-free power iteration on the covariance of
// the centered rows: each step multiplies by XᵀX without materializing it.
// exclude, when set, is projected out each step so the result is the next
// component down. ok is false when the data has no variance along any
// remaining direction.
func principalComponent(x [][]float64, exclude []float64) ([]float64, bool) {
	if len(x) == 0 {
		return nil, false
	}
	d := len(x[0])

	rng := rand.New(rand.NewSource(1))
	v := make([]float64, d)
	for j := range v {
		v[j] = rng.Float64() - 0.5
	}
	if exclude != nil {
		deflate(v, exclude)
	}
	if !normalize(v) {
		return nil, false
	}

	u := make([]float64, len(x))
	w := make([]float64, d)
	for iter := 0; iter < powerMaxIters; iter++ {
		// u = X v, then w = Xᵀ u.
		for i := range x {
			u[i] = dot(x[i], v)
		}
		for j := 0; j < d; j++ {
			w[j] = 0
		}
		for i := range x {
			if u[i] == 0 {
				continue
			}
			row := x[i]
			for j := 0; j < d; j++ {
				w[j] += row[j] * u[i]
			}
		}
		if exclude != nil {
			deflate(w, exclude)
		}
		if !normalize(w) {
			return nil, false
		}

		converged := math.Abs(1-math.Abs(dot(w, v))) < powerEpsilon
		copy(v, w)
		if converged {
			break
		}
	}
	return v, true
}

// ringLayout is the zero-variance fallback: the same golden-angle spiral
// the engine seeds fresh nodes with, scaled to fill the canvas.
func ringLayout(g *graph.Graph, width, height float64) map[string]graph.Point {
	n := len(g.Tasks)
	out := make(map[string]graph.Point, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	maxR := 10 * math.Sqrt(0.5+float64(n-1))
	fit := (math.Min(width, height)/2 - layoutMarginFor(width, height)) / math.Max(maxR, 1)

	for i, t := range g.Tasks {
		r := 10 * math.Sqrt(0.5+float64(i)) * fit
		a := float64(i) * golden
		out[t.ID] = graph.Point{
			X: width/2 + r*math.Cos(a),
			Y: height/2 + r*math.Sin(a),
		}
	}
	return out
}

func priorityRank(p graph.Priority) float64 {
	switch p {
	case graph.PriorityLow:
		return 0
	case graph.PriorityHigh:
		return 2.0 / 3
	case graph.PriorityCritical:
		return 1
	default:
		return 1.0 / 3
	}
}

func layoutMarginFor(width, height float64) float64 {
	return math.Min(layoutMargin, math.Min(width, height)*0.1)
}

func centerColumns(x [][]float64) {
	if len(x) == 0 {
		return
	}
	d := len(x[0])
	for j := 0; j < d; j++ {
		var mean float64
		for i := range x {
			mean += x[i][j]
		}
		mean /= float64(len(x))
		for i := range x {
			x[i][j] -= mean
		}
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// deflate removes the component of v along the unit vector axis.
func deflate(v, axis []float64) {
	p := dot(v, axis)
	for j := range v {
		v[j] -= p * axis[j]
	}
}

func normalize(v []float64) bool {
	norm := math.Sqrt(dot(v, v))
	if norm < 1e-12 {
		return false
	}
	for j := range v {
		v[j] /= norm
	}
	return true
}

func spread(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// scaleToAxis maps values into [margin, size-margin]. A degenerate axis
// collapses to the center line rather than dividing by zero.
func scaleToAxis(vals []float64, margin, size float64) []float64 {
	out := make([]float64, len(vals))
	sp := spread(vals)
	if sp < powerEpsilon {
		for i := range out {
			out[i] = size / 2
		}
		return out
	}
	lo := vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
	}
	usable := size - 2*margin
	for i, v := range vals {
		out[i] = margin + (v-lo)/sp*usable
	}
	return out
}
