// Package optimize orders the curves of each layer to reduce non-printing
// travel. Layers are visited in ascending index order; within a layer a
// greedy nearest-neighbour pass picks the next curve and its orientation, and
// a bounded 2-opt pass then removes crossings from the greedy tour.
//
// The optimizer only decides order and direction. It never changes the
// points of a curve.
package optimize

import (
	"math"

	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/geom"
)

// DefaultImprovePasses is the number of 2-opt sweeps run per layer when
// Options.ImprovePasses is zero.
const DefaultImprovePasses = 4

// eps is the distance below which two candidate travel lengths are treated
// as equal. Ties go to the lowest curve index, then to the original
// orientation.
const eps = 1e-9

// Options control the ordering.
type Options struct {
	// Start is where the print head sits before the first layer. When nil
	// the first layer begins with its first curve in its given direction.
	Start *geom.Point
	// FixedDirection forbids reversing curves. 2-opt is also disabled since
	// it relies on reversal.
	FixedDirection bool
	// ImprovePasses bounds the 2-opt sweeps per layer. Zero selects
	// DefaultImprovePasses; a negative value disables the pass.
	ImprovePasses int
}

func (o Options) passes() int {
	switch {
	case o.FixedDirection || o.ImprovePasses < 0:
		return 0
	case o.ImprovePasses == 0:
		return DefaultImprovePasses
	default:
		return o.ImprovePasses
	}
}

// Visit is one curve in its chosen orientation.
type Visit struct {
	Curve    geom.Curve // oriented copy; Points are in print order
	Index    int        // position of the curve in its input layer
	Reversed bool
	Travel   float64 // incoming travel distance from the previous position
}

// LayerPlan is the visiting order of one layer.
type LayerPlan struct {
	Index  int
	Z      float64
	Visits []Visit
	Travel float64 // sum of incoming travel over Visits
}

// End returns the position of the head after the layer is printed.
func (lp LayerPlan) End() geom.Point {
	return lp.Visits[len(lp.Visits)-1].Curve.End()
}

// OrderedPath is the complete visiting order of a job.
type OrderedPath struct {
	Layers []LayerPlan
}

// TravelDistance returns the total non-printing distance between curves.
func (p OrderedPath) TravelDistance() float64 {
	var d float64
	for _, l := range p.Layers {
		d += l.Travel
	}
	return d
}

// CurveCount returns the number of visits across all layers.
func (p OrderedPath) CurveCount() int {
	var n int
	for _, l := range p.Layers {
		n += len(l.Visits)
	}
	return n
}

// Order computes the visiting order for layers, which must be sorted by
// strictly ascending index and each hold at least one curve.
func Order(layers []geom.Layer, opts Options) (OrderedPath, error) {
	if err := check(layers); err != nil {
		return OrderedPath{}, err
	}

	var (
		out    = OrderedPath{Layers: make([]LayerPlan, 0, len(layers))}
		cursor *geom.Point
	)
	if opts.Start != nil {
		s := *opts.Start
		cursor = &s
	}
	for _, l := range layers {
		visits := greedy(l.Curves, cursor, !opts.FixedDirection)
		if n := opts.passes(); n > 0 {
			visits = twoOpt(visits, cursor, n)
		}
		plan := LayerPlan{Index: l.Index, Z: l.Z, Visits: visits}
		measure(&plan, cursor)
		out.Layers = append(out.Layers, plan)

		end := plan.End()
		cursor = &end
	}
	return out, nil
}

func check(layers []geom.Layer) error {
	if len(layers) == 0 {
		return fault.New(fault.InvalidInput, "no layers to order")
	}
	for i, l := range layers {
		if i > 0 && l.Index <= layers[i-1].Index {
			return fault.At(fault.InvalidInput, l.Index, -1,
				"layer %d follows layer %d; layers must be strictly ascending", l.Index, layers[i-1].Index)
		}
		if len(l.Curves) == 0 {
			return fault.At(fault.InvalidInput, l.Index, -1, "layer has no curves")
		}
		for _, c := range l.Curves {
			if len(c.Points) == 0 {
				return fault.At(fault.InvalidInput, l.Index, c.ID, "curve has no points")
			}
			for _, p := range c.Points {
				if !p.IsFinite() {
					return fault.At(fault.InvalidInput, l.Index, c.ID, "non-finite coordinates %v", p)
				}
			}
		}
	}
	return nil
}

// greedy builds the nearest-neighbour tour of one layer. With no cursor the
// tour begins at curves[0] in its given direction.
func greedy(curves []geom.Curve, cursor *geom.Point, reverse bool) []Visit {
	visited := make([]bool, len(curves))
	visits := make([]Visit, 0, len(curves))

	var cur geom.Point
	if cursor == nil {
		visited[0] = true
		visits = append(visits, Visit{Curve: curves[0], Index: 0})
		cur = curves[0].End()
	} else {
		cur = *cursor
	}

	for len(visits) < len(curves) {
		best, bestD, bestRev := -1, math.Inf(1), false
		for i, c := range curves {
			if visited[i] {
				continue
			}
			d, rev := cur.Distance(c.Start()), false
			if reverse {
				if de := cur.Distance(c.End()); de < d-eps {
					d, rev = de, true
				}
			}
			if best < 0 || d < bestD-eps {
				best, bestD, bestRev = i, d, rev
			}
		}
		visited[best] = true
		v := Visit{Curve: curves[best], Index: best, Reversed: bestRev}
		if bestRev {
			v.Curve = curves[best].Reversed()
		}
		visits = append(visits, v)
		cur = v.Curve.End()
	}
	return visits
}

// twoOpt improves a tour by reversing sub-sequences. Reversing visits i..j
// also flips the direction of every visit in the range, so only the two
// boundary travels change. The tour end is open. The first visit is pinned
// when there is no cursor, so the caller's starting curve is kept.
func twoOpt(visits []Visit, cursor *geom.Point, passes int) []Visit {
	n := len(visits)
	if n < 2 {
		return visits
	}
	first := 0
	if cursor == nil {
		first = 1
	}
	entry := func(i int) (geom.Point, bool) {
		if i > 0 {
			return visits[i-1].Curve.End(), true
		}
		if cursor != nil {
			return *cursor, true
		}
		return geom.Point{}, false
	}

	for pass := 0; pass < passes; pass++ {
		improved := false
		for i := first; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				var before, after float64
				if p, ok := entry(i); ok {
					before += p.Distance(visits[i].Curve.Start())
					after += p.Distance(visits[j].Curve.End())
				}
				if j < n-1 {
					next := visits[j+1].Curve.Start()
					before += visits[j].Curve.End().Distance(next)
					after += visits[i].Curve.Start().Distance(next)
				}
				if after < before-eps {
					reverseRange(visits, i, j)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return visits
}

func reverseRange(visits []Visit, i, j int) {
	for a, b := i, j; a < b; a, b = a+1, b-1 {
		visits[a], visits[b] = visits[b], visits[a]
	}
	for k := i; k <= j; k++ {
		visits[k] = flip(visits[k])
	}
}

func flip(v Visit) Visit {
	v.Curve = v.Curve.Reversed()
	v.Reversed = !v.Reversed
	return v
}

// measure fills in the incoming travel of each visit and the layer total.
func measure(plan *LayerPlan, cursor *geom.Point) {
	plan.Travel = 0
	for k := range plan.Visits {
		var d float64
		switch {
		case k > 0:
			d = plan.Visits[k-1].Curve.End().Distance(plan.Visits[k].Curve.Start())
		case cursor != nil:
			d = cursor.Distance(plan.Visits[k].Curve.Start())
		}
		plan.Visits[k].Travel = d
		plan.Travel += d
	}
}
