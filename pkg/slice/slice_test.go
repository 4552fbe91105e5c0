package slice_test

import (
	"math"
	"testing"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/kernel/sdfx"
	"github.com/chazu/loam/pkg/slice"
)

// column is an analytic upright cylinder on the XY plane.
type column struct{ r, h float64 }

func (c column) BoundingBox() (min, max [3]float64) {
	return [3]float64{-c.r, -c.r, 0}, [3]float64{c.r, c.r, c.h}
}

func (c column) Distance(x, y, z float64) float64 {
	radial := math.Hypot(x, y) - c.r
	vertical := math.Max(-z, z-c.h)
	return math.Max(radial, vertical)
}

// signedArea returns the XY shoelace area; positive for counter-clockwise.
func signedArea(c geom.Curve) float64 {
	var a float64
	for i := 1; i < len(c.Points); i++ {
		p, q := c.Points[i-1], c.Points[i]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func TestSliceColumn(t *testing.T) {
	curves, err := slice.Slice(sdfx.New(), column{r: 10, h: 6}, slice.Options{LayerHeight: 2, Cell: 0.5})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(curves) != 3 {
		t.Fatalf("expected 3 curves (one per layer), got %d", len(curves))
	}
	for k, c := range curves {
		if c.Layer != k {
			t.Errorf("curve %d: layer %d, want %d", k, c.Layer, k)
		}
		if c.ID != k {
			t.Errorf("curve %d: id %d, want %d", k, c.ID, k)
		}
		wantZ := float64(k+1) * 2
		for _, p := range c.Points {
			if p.Z != wantZ {
				t.Fatalf("layer %d: point at z=%f, want %f", k, p.Z, wantZ)
			}
			if r := math.Hypot(p.X, p.Y); math.Abs(r-10) > 0.05 {
				t.Fatalf("layer %d: point %v is %f from the axis, want 10", k, p, r)
			}
		}
		if c.Start() != c.End() {
			t.Errorf("layer %d: contour is not closed", k)
		}
		if signedArea(c) <= 0 {
			t.Errorf("layer %d: outer wall should run counter-clockwise", k)
		}
		if l := c.Length(); math.Abs(l-2*math.Pi*10) > 0.5 {
			t.Errorf("layer %d: perimeter %f, want about %f", k, l, 2*math.Pi*10)
		}
	}
}

func TestSliceBoxWithHole(t *testing.T) {
	k := sdfx.New()
	var solid kernel.Solid = k.Difference(
		k.Box(40, 40, 4),
		k.Translate(k.Cylinder(10, 10), 20, 20, -2),
	)

	curves, err := slice.Slice(k, solid, slice.Options{LayerHeight: 2, Cell: 0.5, FirstID: 100})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(curves) != 4 {
		t.Fatalf("expected 2 layers of 2 contours, got %d curves", len(curves))
	}
	if curves[0].ID != 100 {
		t.Errorf("first id = %d, want 100", curves[0].ID)
	}

	var outer, holes int
	for _, c := range curves {
		if signedArea(c) > 0 {
			outer++
		} else {
			holes++
		}
	}
	if outer != 2 || holes != 2 {
		t.Errorf("expected 2 outer walls and 2 holes, got %d and %d", outer, holes)
	}
}

func TestSliceDeterministic(t *testing.T) {
	a, err := slice.Slice(sdfx.New(), column{r: 5, h: 4}, slice.Options{LayerHeight: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := slice.Slice(sdfx.New(), column{r: 5, h: 4}, slice.Options{LayerHeight: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("curve counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i].Points) != len(b[i].Points) || a[i].Start() != b[i].Start() {
			t.Fatalf("curve %d differs between runs", i)
		}
	}
}

func TestSliceRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts slice.Options
	}{
		{"zero layer height", slice.Options{}},
		{"negative cell", slice.Options{LayerHeight: 1, Cell: -1}},
		{"grid too fine", slice.Options{LayerHeight: 1, Cell: 1e-3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := slice.Slice(sdfx.New(), column{r: 10, h: 2}, tt.opts); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
