package geom

import "math"

// DuplicateEpsilon is the distance below which two consecutive points are
// considered the same point.
const DuplicateEpsilon = 1e-9

// Curve is one continuous printable path. Points are ordered in print
// direction. Layer is the slicing-stage layer index; a negative value means
// the index has not been assigned yet (see AssignLayers).
type Curve struct {
	ID     int     `json:"id" yaml:"id" msgpack:"id"`
	Layer  int     `json:"layer" yaml:"layer" msgpack:"layer"`
	Points []Point `json:"points" yaml:"points" msgpack:"points"`
	Flux   float64 `json:"flux,omitempty" yaml:"flux,omitempty" msgpack:"flux,omitempty"`    // 0 inherits the layer flux
	Speed  float64 `json:"speed,omitempty" yaml:"speed,omitempty" msgpack:"speed,omitempty"` // mm/s, 0 inherits

	// FluxStart and FluxEnd give the curve its own linear flux ramp over
	// the printed direction, which may be reversed by the optimizer. Both
	// zero inherits the profile ramp.
	FluxStart float64 `json:"flux_start,omitempty" yaml:"flux_start,omitempty" msgpack:"flux_start,omitempty"`
	FluxEnd   float64 `json:"flux_end,omitempty" yaml:"flux_end,omitempty" msgpack:"flux_end,omitempty"`
}

// HasRamp reports whether the curve carries its own flux ramp.
func (c Curve) HasRamp() bool {
	return c.FluxStart != 0 || c.FluxEnd != 0
}

// Start returns the first point. The curve must be non-empty.
func (c Curve) Start() Point {
	return c.Points[0]
}

// End returns the last point. The curve must be non-empty.
func (c Curve) End() Point {
	return c.Points[len(c.Points)-1]
}

// Length returns the sum of segment lengths.
func (c Curve) Length() float64 {
	var l float64
	for i := 1; i < len(c.Points); i++ {
		l += c.Points[i-1].Distance(c.Points[i])
	}
	return l
}

// IsDegenerate reports whether the curve has no printable segment.
func (c Curve) IsDegenerate() bool {
	return len(c.Points) < 2
}

// NominalZ is the layer height the curve sits at: the mean of its start
// and end Z.
func (c Curve) NominalZ() float64 {
	return (c.Start().Z + c.End().Z) / 2
}

// Reversed returns a copy of c traversed end-to-start.
func (c Curve) Reversed() Curve {
	out := c
	out.Points = make([]Point, len(c.Points))
	for i, p := range c.Points {
		out.Points[len(c.Points)-1-i] = p
	}
	return out
}

// WithPoints returns a copy of c carrying pts.
func (c Curve) WithPoints(pts []Point) Curve {
	out := c
	out.Points = pts
	return out
}

// Dedup merges consecutive points closer than DuplicateEpsilon. A curve whose
// points all coincide collapses to a single point.
func (c Curve) Dedup() Curve {
	if len(c.Points) == 0 {
		return c.WithPoints(nil)
	}
	pts := make([]Point, 0, len(c.Points))
	pts = append(pts, c.Points[0])
	for _, p := range c.Points[1:] {
		if p.Distance(pts[len(pts)-1]) <= DuplicateEpsilon {
			continue
		}
		pts = append(pts, p)
	}
	return c.WithPoints(pts)
}

// Densify inserts evenly spaced points so that no segment is longer than
// maxLen. Original vertices are kept. maxLen <= 0 returns an unchanged copy.
func (c Curve) Densify(maxLen float64) Curve {
	if maxLen <= 0 || len(c.Points) < 2 {
		return c.WithPoints(append([]Point(nil), c.Points...))
	}
	pts := make([]Point, 0, len(c.Points))
	pts = append(pts, c.Points[0])
	for i := 1; i < len(c.Points); i++ {
		a, b := c.Points[i-1], c.Points[i]
		n := int(math.Ceil(a.Distance(b)/maxLen - 1e-9))
		for k := 1; k < n; k++ {
			pts = append(pts, a.Lerp(b, float64(k)/float64(n)))
		}
		pts = append(pts, b)
	}
	return c.WithPoints(pts)
}

// Simplify drops interior points that deviate from the straight path between
// their neighbours by less than tol (measured as detour length). Endpoints
// are always kept.
func (c Curve) Simplify(tol float64) Curve {
	if tol <= 0 || len(c.Points) < 3 {
		return c.WithPoints(append([]Point(nil), c.Points...))
	}
	pts := make([]Point, 0, len(c.Points))
	pts = append(pts, c.Points[0])
	for i := 1; i < len(c.Points)-1; i++ {
		a := pts[len(pts)-1]
		b := c.Points[i]
		n := c.Points[i+1]
		if a.Distance(b)+b.Distance(n)-a.Distance(n) < tol {
			continue
		}
		pts = append(pts, b)
	}
	pts = append(pts, c.End())
	return c.WithPoints(pts)
}

// Clean prepares a curve for ordering: duplicates are merged, then the
// result is densified to segLen when segLen > 0.
func Clean(c Curve, segLen float64) Curve {
	return c.Dedup().Densify(segLen)
}
