package pipeline

import (
	"fmt"
	"math"

	"github.com/chazu/loam/pkg/extrude"
	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/gcode"
	"github.com/chazu/loam/pkg/optimize"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/toolpath"
)

// Stats summarizes a finished job. Lengths are in mm, volume in mm³, mass in
// grams and time in seconds.
type Stats struct {
	Layers      int     `json:"layers" yaml:"layers" msgpack:"layers"`
	Curves      int     `json:"curves" yaml:"curves" msgpack:"curves"`
	Segments    int     `json:"segments" yaml:"segments" msgpack:"segments"`
	Lines       int     `json:"lines" yaml:"lines" msgpack:"lines"`
	PrintLength float64 `json:"print_length" yaml:"print_length" msgpack:"print_length"`
	Travel      float64 `json:"travel" yaml:"travel" msgpack:"travel"`
	Extrusion   float64 `json:"extrusion" yaml:"extrusion" msgpack:"extrusion"`
	Volume      float64 `json:"volume" yaml:"volume" msgpack:"volume"`
	Mass        float64 `json:"mass" yaml:"mass" msgpack:"mass"`
	Time        float64 `json:"time" yaml:"time" msgpack:"time"`
	Retractions int     `json:"retractions" yaml:"retractions" msgpack:"retractions"`
}

func collect(p profile.Profile, path optimize.OrderedPath, segs []toolpath.Segment, calc *extrude.Calculator, retractions int) Stats {
	st := Stats{
		Layers:      len(path.Layers),
		Curves:      path.CurveCount(),
		Segments:    len(segs),
		Extrusion:   calc.Total(),
		Volume:      calc.Volume(),
		Retractions: retractions,
	}
	st.Mass = extrude.Mass(st.Volume, p.Density)
	st.PrintLength, st.Travel = toolpath.Totals(segs)
	for _, s := range segs {
		if s.Speed > 0 {
			st.Time += s.Length / s.Speed
		}
	}
	if retractions > 0 {
		st.Time += float64(retractions) * p.RetractionDistance * (1/p.RetractionSpeed + 1/p.EffectivePrimeSpeed())
	}
	return st
}

// check fails with NumericInstability when a total is not finite, so
// overflowed values never reach the program header.
func (st Stats) check() error {
	for _, t := range []struct {
		name string
		v    float64
	}{
		{"print length", st.PrintLength},
		{"travel length", st.Travel},
		{"extrusion", st.Extrusion},
		{"volume", st.Volume},
		{"mass", st.Mass},
		{"estimated time", st.Time},
	} {
		if math.IsNaN(t.v) || math.IsInf(t.v, 0) {
			return fault.New(fault.NumericInstability, "%s total is %g", t.name, t.v)
		}
	}
	return nil
}

func header(name string, p profile.Profile, st Stats, warnings []fault.Finding) gcode.Header {
	title := "loam G-code"
	if name != "" {
		title += ": " + name
	}
	flo, fhi := p.FluxRange()
	slo, shi := p.SpeedRange()
	h := gcode.Header{
		Title: title,
		Meta: []gcode.Meta{
			{Key: "Nozzle diameter", Value: p.NozzleDiameter, Unit: "mm"},
			{Key: "Layer height", Value: p.LayerHeight, Unit: "mm"},
			{Key: "Layers", Value: float64(st.Layers), Integer: true},
			{Key: "Curves", Value: float64(st.Curves), Integer: true},
			{Key: "Flux min", Value: flo},
			{Key: "Flux max", Value: fhi},
			{Key: "Speed min", Value: slo, Unit: "mm/s"},
			{Key: "Speed max", Value: shi, Unit: "mm/s"},
			{Key: "Print length", Value: st.PrintLength, Unit: "mm"},
			{Key: "Travel length", Value: st.Travel, Unit: "mm"},
			{Key: "Volume", Value: st.Volume / 1e6, Unit: "L"},
			{Key: "Density", Value: p.Density, Unit: "kg/m3"},
			{Key: "Mass", Value: st.Mass, Unit: "g"},
			{Key: "Estimated time", Value: st.Time / 60, Unit: "min"},
			{Key: "Retractions", Value: float64(st.Retractions), Integer: true},
		},
		Notes: []string{
			fmt.Sprintf("Extrusion mode: %s", p.Extrusion),
			fmt.Sprintf("Flux mode: %s", p.FluxMode),
		},
	}
	for _, w := range warnings {
		h.Notes = append(h.Notes, "Warning: "+w.Message)
	}
	return h
}
