package toolpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/optimize"
	"github.com/chazu/loam/pkg/profile"
)

func visit(id int, pts ...geom.Point) optimize.Visit {
	return optimize.Visit{Curve: geom.Curve{ID: id, Points: pts}}
}

func kinds(segs []Segment) []Kind {
	out := make([]Kind, len(segs))
	for i, s := range segs {
		out[i] = s.Kind
	}
	return out
}

func TestBuildSingleLayer(t *testing.T) {
	path := optimize.OrderedPath{Layers: []optimize.LayerPlan{{
		Index: 0,
		Visits: []optimize.Visit{
			visit(0, geom.Pt(0, 0, 0), geom.Pt(1, 0, 0), geom.Pt(2, 0, 0)),
			visit(1, geom.Pt(5, 0, 0), geom.Pt(6, 0, 0)),
		},
	}}}
	segs := Build(path, profile.Default(), nil)

	assert.Equal(t, []Kind{Travel, Print, Print, Travel, Print}, kinds(segs))
	assert.Zero(t, segs[0].Length, "first travel positions the head")
	assert.InDelta(t, 3.0, segs[3].Length, 1e-12)
	assert.Equal(t, 1, segs[3].Curve)

	assert.InDelta(t, 0.0, segs[1].T0, 1e-12)
	assert.InDelta(t, 0.5, segs[1].T1, 1e-12)
	assert.InDelta(t, 1.0, segs[2].T1, 1e-12)

	printLen, travelLen := Totals(segs)
	assert.InDelta(t, 3.0, printLen, 1e-12)
	assert.InDelta(t, 3.0, travelLen, 1e-12)
}

func TestBuildFromStart(t *testing.T) {
	start := geom.Pt(0, 0, 10)
	path := optimize.OrderedPath{Layers: []optimize.LayerPlan{{
		Visits: []optimize.Visit{visit(0, geom.Pt(0, 0, 0), geom.Pt(1, 0, 0))},
	}}}
	segs := Build(path, profile.Default(), &start)
	require.NotEmpty(t, segs)
	assert.Equal(t, start, segs[0].Start)
	assert.InDelta(t, 10.0, segs[0].Length, 1e-12)
}

func TestDegenerateCurveOnlyTravels(t *testing.T) {
	path := optimize.OrderedPath{Layers: []optimize.LayerPlan{{
		Visits: []optimize.Visit{
			visit(0, geom.Pt(0, 0, 0), geom.Pt(1, 0, 0)),
			visit(1, geom.Pt(4, 0, 0)),
			visit(2, geom.Pt(4, 3, 0), geom.Pt(5, 3, 0)),
		},
	}}}
	segs := Build(path, profile.Default(), nil)
	assert.Equal(t, []Kind{Travel, Print, Travel, Travel, Print}, kinds(segs))
	assert.InDelta(t, 3.0, segs[2].Length, 1e-12, "travel to the dot")
	assert.InDelta(t, 3.0, segs[3].Length, 1e-12, "travel away from the dot")
}

func TestLayerLift(t *testing.T) {
	p := profile.Default()
	p.LayerLift = 2
	path := optimize.OrderedPath{Layers: []optimize.LayerPlan{
		{Index: 0, Visits: []optimize.Visit{visit(0, geom.Pt(0, 0, 0), geom.Pt(1, 0, 0))}},
		{Index: 1, Visits: []optimize.Visit{visit(1, geom.Pt(0, 0, 2), geom.Pt(1, 0, 2))}},
	}}
	segs := Build(path, p, nil)

	assert.Equal(t, []Kind{Travel, Print, Travel, Travel, Print}, kinds(segs))
	lift := segs[2]
	assert.Equal(t, -1, lift.Curve)
	assert.Equal(t, geom.Pt(1, 0, 2), lift.End)
	assert.Equal(t, 1, segs[3].Layer)
	assert.Equal(t, geom.Pt(1, 0, 2), segs[3].Start)
}

func TestResolvedFluxAndSpeed(t *testing.T) {
	p := profile.Default()
	p.SetLayerFlux(0, 1.3)
	p.SetLayerSpeed(0, 55)
	path := optimize.OrderedPath{Layers: []optimize.LayerPlan{{
		Visits: []optimize.Visit{
			visit(0, geom.Pt(0, 0, 0), geom.Pt(1, 0, 0)),
			{Curve: geom.Curve{ID: 1, Flux: 0.7, Speed: 35, Points: []geom.Point{geom.Pt(2, 0, 0), geom.Pt(3, 0, 0)}}},
		},
	}}}
	segs := Build(path, p, nil)
	require.Len(t, segs, 4)
	assert.Equal(t, 1.3, segs[1].Flux)
	assert.Equal(t, 55.0, segs[1].Speed)
	assert.Equal(t, 0.7, segs[3].Flux)
	assert.Equal(t, 35.0, segs[3].Speed)
	assert.Equal(t, p.TravelSpeed, segs[2].Speed)
}
