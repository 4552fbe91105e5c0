// Package extrude computes how much material each printing segment needs.
//
// The deposited bead is modelled as a rectangle of nozzle diameter by layer
// height. Matching its volume against the feed cross-section gives
//
//	extrusion = length × (nozzle × layer height) / filament area × flux
//
// where flux is the resolved multiplier (curve, layer, base) times the flux
// ramp at the segment's midpoint.
package extrude

import (
	"math"

	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/toolpath"
)

// Length returns the extrusion length for a printing segment of segLen mm
// at the given flux multiplier.
func Length(segLen float64, p profile.Profile, flux float64) float64 {
	return segLen * (p.NozzleDiameter * p.LayerHeight) / p.FilamentArea * flux
}

// Calculator tracks cumulative extrusion across a job. It is not safe for
// concurrent use; build one per job.
type Calculator struct {
	p     profile.Profile
	total float64
}

// New returns a Calculator for p. p must already be validated.
func New(p profile.Profile) *Calculator {
	return &Calculator{p: p}
}

// Annotate sets Extrusion and E on every segment in place. Travel segments
// carry the cumulative value unchanged. A non-finite result aborts with a
// NumericInstability error naming the segment's layer and curve.
func (c *Calculator) Annotate(segs []toolpath.Segment) error {
	for i := range segs {
		s := &segs[i]
		if s.Kind == toolpath.Print {
			flux := s.Flux * s.RampFactor(c.p)
			inc := Length(s.Length, c.p, flux)
			if math.IsNaN(inc) || math.IsInf(inc, 0) || inc < 0 {
				return fault.At(fault.NumericInstability, s.Layer, s.Curve,
					"extrusion %g for a %g mm segment at flux %g", inc, s.Length, flux)
			}
			s.Extrusion = inc
			c.total += inc
		}
		if math.IsInf(c.total, 0) {
			return fault.At(fault.NumericInstability, s.Layer, s.Curve, "cumulative extrusion overflowed")
		}
		s.E = c.total
	}
	return nil
}

// Total returns the cumulative extrusion so far, in mm of feed.
func (c *Calculator) Total() float64 {
	return c.total
}

// Volume returns the deposited volume so far, in mm³.
func (c *Calculator) Volume() float64 {
	return c.total * c.p.FilamentArea
}

// Mass converts a volume in mm³ to grams at density kg/m³. It returns 0 when
// the density is not usable.
func Mass(volume, density float64) float64 {
	if density <= 0 || math.IsNaN(density) || math.IsInf(density, 0) {
		return 0
	}
	return volume * density * 1e-6
}
