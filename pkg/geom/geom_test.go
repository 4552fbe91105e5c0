package geom

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func line(id, layer int, pts ...Point) Curve {
	return Curve{ID: id, Layer: layer, Points: pts}
}

func TestCurveLength(t *testing.T) {
	c := line(0, 0, Pt(0, 0, 0), Pt(3, 4, 0), Pt(3, 4, 2))
	assert.InDelta(t, 7.0, c.Length(), 1e-12)
	assert.Equal(t, Pt(0, 0, 0), c.Start())
	assert.Equal(t, Pt(3, 4, 2), c.End())
}

func TestReversedDoesNotMutate(t *testing.T) {
	c := line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0), Pt(2, 0, 0))
	r := c.Reversed()

	assert.Equal(t, Pt(2, 0, 0), r.Start())
	assert.Equal(t, Pt(0, 0, 0), c.Start(), "input must be untouched")
}

func TestDedup(t *testing.T) {
	c := line(0, 0, Pt(0, 0, 0), Pt(0, 0, 0), Pt(1, 0, 0), Pt(1, 0, 0))
	got := c.Dedup()
	if d := cmp.Diff([]Point{Pt(0, 0, 0), Pt(1, 0, 0)}, got.Points); d != "" {
		t.Errorf("Dedup mismatch (-want +got):\n%s", d)
	}

	collapsed := line(1, 0, Pt(5, 5, 1), Pt(5, 5, 1)).Dedup()
	assert.True(t, collapsed.IsDegenerate())
	assert.Len(t, collapsed.Points, 1)
}

func TestDensify(t *testing.T) {
	c := line(0, 0, Pt(0, 0, 0), Pt(10, 0, 0))
	got := c.Densify(2)
	want := []Point{Pt(0, 0, 0), Pt(2, 0, 0), Pt(4, 0, 0), Pt(6, 0, 0), Pt(8, 0, 0), Pt(10, 0, 0)}
	if d := cmp.Diff(want, got.Points, approx); d != "" {
		t.Errorf("Densify mismatch (-want +got):\n%s", d)
	}
	assert.InDelta(t, c.Length(), got.Length(), 1e-9)

	// Short segments are left alone.
	short := line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0)).Densify(2)
	assert.Len(t, short.Points, 2)
}

func TestSimplifyDropsColinear(t *testing.T) {
	c := line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0), Pt(2, 0, 0), Pt(2, 1, 0))
	got := c.Simplify(1e-6)
	want := []Point{Pt(0, 0, 0), Pt(2, 0, 0), Pt(2, 1, 0)}
	if d := cmp.Diff(want, got.Points, approx); d != "" {
		t.Errorf("Simplify mismatch (-want +got):\n%s", d)
	}
}

func TestAssignLayers(t *testing.T) {
	curves := []Curve{
		line(0, -1, Pt(0, 0, 3), Pt(1, 0, 3)),
		line(1, -1, Pt(0, 0, 1.5), Pt(1, 0, 1.5)),
		line(2, -1, Pt(0, 0, 3.004), Pt(1, 0, 3.004)),
	}
	got := AssignLayers(curves, 0.01)
	assert.Equal(t, []int{1, 0, 1}, []int{got[0].Layer, got[1].Layer, got[2].Layer})
	assert.Equal(t, -1, curves[0].Layer, "input must be untouched")
}

func TestGroupByLayer(t *testing.T) {
	curves := []Curve{
		line(0, 1, Pt(0, 0, 2), Pt(1, 0, 2)),
		line(1, 0, Pt(0, 0, 1), Pt(1, 0, 1)),
		line(2, 1, Pt(5, 0, 2), Pt(6, 0, 2)),
	}
	layers, findings := GroupByLayer(curves, 0.01)
	require.Empty(t, findings)
	require.Len(t, layers, 2)
	assert.Equal(t, 0, layers[0].Index)
	assert.Equal(t, 1.0, layers[0].Z)
	assert.Equal(t, 1, layers[1].Index)
	assert.Equal(t, []int{0, 2}, []int{layers[1].Curves[0].ID, layers[1].Curves[1].ID})
}

func TestGroupByLayerHeightMismatch(t *testing.T) {
	curves := []Curve{
		line(0, 0, Pt(0, 0, 1), Pt(1, 0, 1)),
		line(1, 0, Pt(0, 0, 1.5), Pt(1, 0, 1.5)),
	}
	_, findings := GroupByLayer(curves, 0.01)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].Curve)
}

func TestExpectLayers(t *testing.T) {
	layers := []Layer{
		{Index: 0, Curves: []Curve{line(0, 0, Pt(0, 0, 0))}},
		{Index: 2, Curves: []Curve{line(1, 2, Pt(0, 0, 0))}},
	}
	findings := ExpectLayers(layers, 3)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].Layer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		curves []Curve
		want   string
	}{
		{"empty set", nil, "no curves"},
		{"empty curve", []Curve{line(0, 0)}, "no points"},
		{"nan", []Curve{line(0, 0, Pt(math.NaN(), 0, 0))}, "non-finite"},
		{"inf", []Curve{line(0, 0, Pt(0, math.Inf(1), 0))}, "non-finite"},
		{"negative layer", []Curve{line(0, -1, Pt(0, 0, 0))}, "negative"},
		{"duplicate id", []Curve{line(0, 0, Pt(0, 0, 0)), line(0, 0, Pt(1, 0, 0))}, "duplicate"},
		{"negative ramp start", []Curve{func() Curve {
			c := line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0))
			c.FluxStart = -1
			return c
		}()}, "flux_start"},
		{"infinite ramp end", []Curve{func() Curve {
			c := line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0))
			c.FluxEnd = math.Inf(1)
			return c
		}()}, "flux_end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Validate(tt.curves)
			require.NotEmpty(t, findings)
			assert.Contains(t, findings[0].Message, tt.want)
		})
	}

	assert.Empty(t, Validate([]Curve{line(0, 0, Pt(0, 0, 0), Pt(1, 0, 0))}))
}
