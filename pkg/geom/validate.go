package geom

import (
	"github.com/chazu/loam/pkg/fault"
)

// Validate runs the structural checks on a curve set and returns every
// finding. It is read-only. An empty result means the set can be ordered.
func Validate(curves []Curve) []fault.Finding {
	if len(curves) == 0 {
		return []fault.Finding{fault.Errorf(-1, -1, "", "no curves supplied")}
	}

	var findings []fault.Finding
	ids := make(map[int]bool, len(curves))
	for _, c := range curves {
		if ids[c.ID] {
			findings = append(findings, fault.Errorf(c.Layer, c.ID, "", "duplicate curve id %d", c.ID))
		}
		ids[c.ID] = true

		if c.Layer < 0 {
			findings = append(findings, fault.Errorf(-1, c.ID, "", "layer index %d is negative", c.Layer))
		}
		if len(c.Points) == 0 {
			findings = append(findings, fault.Errorf(c.Layer, c.ID, "", "curve has no points"))
			continue
		}
		for i, p := range c.Points {
			if !p.IsFinite() {
				findings = append(findings, fault.Errorf(c.Layer, c.ID, "", "point %d has non-finite coordinates %v", i, p))
				break
			}
		}
		if c.Flux < 0 || !finite(c.Flux) {
			findings = append(findings, fault.Errorf(c.Layer, c.ID, "flux", "curve flux %g must be finite and >= 0", c.Flux))
		}
		for _, r := range []struct {
			field string
			v     float64
		}{{"flux_start", c.FluxStart}, {"flux_end", c.FluxEnd}} {
			if r.v < 0 || !finite(r.v) {
				findings = append(findings, fault.Errorf(c.Layer, c.ID, r.field, "curve %s %g must be finite and >= 0", r.field, r.v))
			}
		}
		if c.Speed < 0 || !finite(c.Speed) {
			findings = append(findings, fault.Errorf(c.Layer, c.ID, "speed", "curve speed %g must be finite and >= 0", c.Speed))
		}
	}
	return findings
}

// NumberCurves returns copies of curves whose IDs are their input positions.
func NumberCurves(curves []Curve) []Curve {
	out := make([]Curve, len(curves))
	for i, c := range curves {
		out[i] = c
		out[i].ID = i
	}
	return out
}
