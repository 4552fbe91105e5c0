// Package toolpath turns an ordered path into the flat sequence of motion
// segments that the extrusion, retraction and emission stages annotate and
// consume.
package toolpath

import (
	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/optimize"
	"github.com/chazu/loam/pkg/profile"
)

// Kind distinguishes printing moves from travel.
type Kind int

const (
	Print Kind = iota
	Travel
)

func (k Kind) String() string {
	if k == Print {
		return "print"
	}
	return "travel"
}

// Segment is a directed move between two points. Build fills in geometry and
// the resolved flux and speed; the extrude and retract packages fill in the
// rest.
type Segment struct {
	Kind   Kind
	Start  geom.Point
	End    geom.Point
	Layer  int
	Curve  int // curve ID; -1 for a layer lift
	Length float64

	Flux  float64 // resolved multiplier before the flux ramp
	Speed float64 // mm/s
	T0    float64 // normalized arc position of Start along the curve
	T1    float64 // normalized arc position of End along the curve

	// RampStart and RampEnd are the curve's own flux ramp; both 0 defers
	// to the profile ramp.
	RampStart float64
	RampEnd   float64

	Extrusion float64 // E increment, 0 for travel
	E         float64 // cumulative E after the segment
	Retract   bool    // travel: retract before moving
	Prime     bool    // print: prime before extruding
}

// Build walks path and emits, per visit, an incoming travel followed by the
// print segments of the curve. When the profile sets a layer lift, a
// vertical travel closes every layer but the last. The first travel starts at
// start when given, otherwise at the first curve's start.
func Build(path optimize.OrderedPath, p profile.Profile, start *geom.Point) []Segment {
	var (
		segs   []Segment
		cursor geom.Point
		placed bool
	)
	if start != nil {
		cursor, placed = *start, true
	}

	for li, lp := range path.Layers {
		for _, v := range lp.Visits {
			c := v.Curve
			to := c.Start()
			from := cursor
			if !placed {
				from = to
			}
			segs = append(segs, Segment{
				Kind:   Travel,
				Start:  from,
				End:    to,
				Layer:  lp.Index,
				Curve:  c.ID,
				Length: from.Distance(to),
				Speed:  p.TravelSpeed,
			})
			segs = append(segs, printSegments(c, lp.Index, p)...)
			cursor, placed = c.End(), true
		}

		if p.LayerLift > 0 && li < len(path.Layers)-1 {
			up := cursor.Add(geom.Pt(0, 0, p.LayerLift))
			segs = append(segs, Segment{
				Kind:   Travel,
				Start:  cursor,
				End:    up,
				Layer:  lp.Index,
				Curve:  -1,
				Length: p.LayerLift,
				Speed:  p.TravelSpeed,
			})
			cursor = up
		}
	}
	return segs
}

func printSegments(c geom.Curve, layer int, p profile.Profile) []Segment {
	if c.IsDegenerate() {
		return nil
	}
	total := c.Length()
	flux := p.FluxFor(layer, c.Flux)
	speed := p.SpeedFor(layer, c.Speed)

	segs := make([]Segment, 0, len(c.Points)-1)
	var run float64
	for i := 1; i < len(c.Points); i++ {
		a, b := c.Points[i-1], c.Points[i]
		l := a.Distance(b)
		if l <= geom.DuplicateEpsilon {
			continue
		}
		t0 := run / total
		run += l
		segs = append(segs, Segment{
			Kind:   Print,
			Start:  a,
			End:    b,
			Layer:  layer,
			Curve:  c.ID,
			Length: l,
			Flux:   flux,
			Speed:  speed,
			T0:     t0,
			T1:     run / total,

			RampStart: c.FluxStart,
			RampEnd:   c.FluxEnd,
		})
	}
	return segs
}

// RampFactor returns the flux ramp factor at the segment midpoint: the
// curve's own ramp when it has one, else the profile ramp.
func (s Segment) RampFactor(p profile.Profile) float64 {
	t := (s.T0 + s.T1) / 2
	if s.RampStart != 0 || s.RampEnd != 0 {
		return s.RampStart + t*(s.RampEnd-s.RampStart)
	}
	return p.Ramp(t)
}

// Totals sums print and travel length over segs.
func Totals(segs []Segment) (printLen, travelLen float64) {
	for _, s := range segs {
		if s.Kind == Print {
			printLen += s.Length
		} else {
			travelLen += s.Length
		}
	}
	return printLen, travelLen
}
