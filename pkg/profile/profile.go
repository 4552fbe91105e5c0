// Package profile holds the print configuration. A Profile is built once per
// job (defaults, then a YAML file, then keyword overrides), validated once,
// and then passed by value to every stage.
package profile

import (
	"math"
	"sort"
)

// ExtrusionMode selects how E values are written.
type ExtrusionMode string

const (
	Absolute ExtrusionMode = "absolute" // M82, cumulative E
	Relative ExtrusionMode = "relative" // M83, per-move E
)

// FluxMode selects how flux varies along a curve.
type FluxMode string

const (
	FluxConstant FluxMode = "constant"
	FluxLinear   FluxMode = "linear" // ramps from FluxStart to FluxEnd along each curve
)

// LDMFilamentArea is the feed cross-section of a 5.25 mm LDM cartridge
// nozzle, in mm².
var LDMFilamentArea = math.Pi * (5.25 / 2) * (5.25 / 2)

// Profile is the complete print configuration. Lengths are in mm, speeds in
// mm/s, density in kg/m³.
type Profile struct {
	NozzleDiameter float64 `yaml:"nozzle_diameter" json:"nozzle_diameter" msgpack:"nozzle_diameter"`
	LayerHeight    float64 `yaml:"layer_height" json:"layer_height" msgpack:"layer_height"`
	PrintSpeed     float64 `yaml:"print_speed" json:"print_speed" msgpack:"print_speed"`
	TravelSpeed    float64 `yaml:"travel_speed" json:"travel_speed" msgpack:"travel_speed"`

	BaseFlux     float64         `yaml:"base_flux" json:"base_flux" msgpack:"base_flux"`
	LayerFlux    map[int]float64 `yaml:"layer_flux,omitempty" json:"layer_flux,omitempty" msgpack:"layer_flux,omitempty"`
	LayerSpeed   map[int]float64 `yaml:"layer_speed,omitempty" json:"layer_speed,omitempty" msgpack:"layer_speed,omitempty"`
	FluxMode     FluxMode        `yaml:"flux_mode" json:"flux_mode" msgpack:"flux_mode"`
	FluxStart    float64         `yaml:"flux_start" json:"flux_start" msgpack:"flux_start"`
	FluxEnd      float64         `yaml:"flux_end" json:"flux_end" msgpack:"flux_end"`
	FilamentArea float64         `yaml:"filament_area" json:"filament_area" msgpack:"filament_area"`
	Extrusion    ExtrusionMode   `yaml:"extrusion_mode" json:"extrusion_mode" msgpack:"extrusion_mode"`

	RetractionDistance float64 `yaml:"retraction_distance" json:"retraction_distance" msgpack:"retraction_distance"`
	RetractionSpeed    float64 `yaml:"retraction_speed" json:"retraction_speed" msgpack:"retraction_speed"`
	PrimeSpeed         float64 `yaml:"prime_speed" json:"prime_speed" msgpack:"prime_speed"` // 0 uses RetractionSpeed
	TravelThreshold    float64 `yaml:"travel_threshold" json:"travel_threshold" msgpack:"travel_threshold"`

	SegmentLength float64 `yaml:"segment_length" json:"segment_length" msgpack:"segment_length"` // 0 keeps input vertices
	LayerLift     float64 `yaml:"layer_lift" json:"layer_lift" msgpack:"layer_lift"`
	EndLift       float64 `yaml:"end_lift" json:"end_lift" msgpack:"end_lift"`
	SafeZ         float64 `yaml:"safe_z" json:"safe_z" msgpack:"safe_z"`
	Home          bool    `yaml:"home" json:"home" msgpack:"home"`
	Precision     int     `yaml:"precision" json:"precision" msgpack:"precision"`
	ZTolerance    float64 `yaml:"z_tolerance" json:"z_tolerance" msgpack:"z_tolerance"`
	Density       float64 `yaml:"density" json:"density" msgpack:"density"`

	StartGCode []string `yaml:"start_gcode,omitempty" json:"start_gcode,omitempty" msgpack:"start_gcode,omitempty"`
	EndGCode   []string `yaml:"end_gcode,omitempty" json:"end_gcode,omitempty" msgpack:"end_gcode,omitempty"`
}

// Default returns the LDM clay-printer defaults.
func Default() Profile {
	return Profile{
		NozzleDiameter:     4,
		LayerHeight:        2,
		PrintSpeed:         40,
		TravelSpeed:        100,
		BaseFlux:           1,
		FluxMode:           FluxConstant,
		FluxStart:          1,
		FluxEnd:            1,
		FilamentArea:       LDMFilamentArea,
		Extrusion:          Absolute,
		RetractionDistance: 4,
		RetractionSpeed:    100,
		TravelThreshold:    10,
		SafeZ:              2,
		EndLift:            10,
		Home:               true,
		Precision:          3,
		ZTolerance:         0.01,
		Density:            2000,
	}
}

// Clone returns a deep copy so a caller can never alias another job's maps.
func (p Profile) Clone() Profile {
	out := p
	if p.LayerFlux != nil {
		out.LayerFlux = make(map[int]float64, len(p.LayerFlux))
		for k, v := range p.LayerFlux {
			out.LayerFlux[k] = v
		}
	}
	if p.LayerSpeed != nil {
		out.LayerSpeed = make(map[int]float64, len(p.LayerSpeed))
		for k, v := range p.LayerSpeed {
			out.LayerSpeed[k] = v
		}
	}
	out.StartGCode = append([]string(nil), p.StartGCode...)
	out.EndGCode = append([]string(nil), p.EndGCode...)
	return out
}

// LayerFluxFor resolves the flux multiplier for a layer: the per-layer
// override if present, else the base flux.
func (p Profile) LayerFluxFor(layer int) float64 {
	if f, ok := p.LayerFlux[layer]; ok {
		return f
	}
	return p.BaseFlux
}

// FluxFor resolves the flux multiplier for a curve. curveFlux > 0 overrides
// the layer value.
func (p Profile) FluxFor(layer int, curveFlux float64) float64 {
	if curveFlux > 0 {
		return curveFlux
	}
	return p.LayerFluxFor(layer)
}

// Ramp returns the flux factor at normalized arc position t in [0, 1]. It is
// 1 in constant mode.
func (p Profile) Ramp(t float64) float64 {
	if p.FluxMode != FluxLinear {
		return 1
	}
	return p.FluxStart + t*(p.FluxEnd-p.FluxStart)
}

// SpeedFor resolves the printing speed for a curve: curve speed, then the
// per-layer override, then the base print speed.
func (p Profile) SpeedFor(layer int, curveSpeed float64) float64 {
	if curveSpeed > 0 {
		return curveSpeed
	}
	if s, ok := p.LayerSpeed[layer]; ok {
		return s
	}
	return p.PrintSpeed
}

// EffectivePrimeSpeed returns the priming speed, falling back to the
// retraction speed.
func (p Profile) EffectivePrimeSpeed() float64 {
	if p.PrimeSpeed > 0 {
		return p.PrimeSpeed
	}
	return p.RetractionSpeed
}

// FluxRange returns the smallest and largest flux multipliers configured,
// for reporting.
func (p Profile) FluxRange() (lo, hi float64) {
	lo, hi = p.BaseFlux, p.BaseFlux
	for _, k := range sortedKeys(p.LayerFlux) {
		f := p.LayerFlux[k]
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if p.FluxMode == FluxLinear {
		lo, hi = lo*math.Min(p.FluxStart, p.FluxEnd), hi*math.Max(p.FluxStart, p.FluxEnd)
	}
	return lo, hi
}

// SpeedRange returns the smallest and largest print speeds configured.
func (p Profile) SpeedRange() (lo, hi float64) {
	lo, hi = p.PrintSpeed, p.PrintSpeed
	for _, k := range sortedKeys(p.LayerSpeed) {
		s := p.LayerSpeed[k]
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return lo, hi
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
