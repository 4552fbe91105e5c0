package geom

import (
	"math"
	"sort"

	"github.com/chazu/loam/pkg/fault"
)

// DefaultZTolerance is the height tolerance used when grouping curves into
// layers.
const DefaultZTolerance = 0.01

// Layer is the set of curves sharing one layer index. Z is the nominal
// height of the layer, taken from its first curve.
type Layer struct {
	Index  int
	Z      float64
	Curves []Curve
}

// AssignLayers returns copies of curves with Layer set from their nominal Z.
// Heights are bucketed to tol, and distinct buckets are numbered in ascending
// order starting at 0.
func AssignLayers(curves []Curve, tol float64) []Curve {
	if tol <= 0 {
		tol = DefaultZTolerance
	}
	key := func(c Curve) int64 {
		return int64(math.Round(c.NominalZ() / tol))
	}

	seen := make(map[int64]bool)
	var keys []int64
	for _, c := range curves {
		if len(c.Points) == 0 {
			continue
		}
		k := key(c)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	index := make(map[int64]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	out := make([]Curve, len(curves))
	for i, c := range curves {
		out[i] = c
		if len(c.Points) > 0 {
			out[i].Layer = index[key(c)]
		}
	}
	return out
}

// GroupByLayer collects curves into layers in ascending index order. Curve
// order within a layer follows input order. Every curve in a layer must sit
// within tol of the layer's nominal Z; curves that do not are reported as
// error findings.
func GroupByLayer(curves []Curve, tol float64) ([]Layer, []fault.Finding) {
	if tol <= 0 {
		tol = DefaultZTolerance
	}
	byIndex := make(map[int][]Curve)
	var indices []int
	for _, c := range curves {
		if _, ok := byIndex[c.Layer]; !ok {
			indices = append(indices, c.Layer)
		}
		byIndex[c.Layer] = append(byIndex[c.Layer], c)
	}
	sort.Ints(indices)

	var findings []fault.Finding
	layers := make([]Layer, 0, len(indices))
	for _, idx := range indices {
		cs := byIndex[idx]
		l := Layer{Index: idx, Curves: cs}
		if len(cs) > 0 && len(cs[0].Points) > 0 {
			l.Z = cs[0].NominalZ()
		}
		for _, c := range cs {
			if len(c.Points) == 0 {
				continue
			}
			if dz := math.Abs(c.NominalZ() - l.Z); dz > tol {
				findings = append(findings, fault.Errorf(idx, c.ID, "",
					"curve height %.4f differs from layer height %.4f by more than %g", c.NominalZ(), l.Z, tol))
			}
		}
		layers = append(layers, l)
	}
	return layers, findings
}

// ExpectLayers reports an error finding for every index in [0, n) that has
// no curves, and for every layer that is present but empty.
func ExpectLayers(layers []Layer, n int) []fault.Finding {
	var findings []fault.Finding
	present := make(map[int]bool, len(layers))
	for _, l := range layers {
		if len(l.Curves) == 0 {
			findings = append(findings, fault.Errorf(l.Index, -1, "", "layer has no curves"))
			continue
		}
		present[l.Index] = true
	}
	for i := 0; i < n; i++ {
		if !present[i] {
			findings = append(findings, fault.Errorf(i, -1, "", "expected curves for layer %d, found none", i))
		}
	}
	return findings
}
