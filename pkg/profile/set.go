package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type setter func(p *Profile, v float64) error

func floatField(f func(p *Profile) *float64) setter {
	return func(p *Profile, v float64) error {
		*f(p) = v
		return nil
	}
}

var setters = map[string]setter{
	"nozzle_diameter":     floatField(func(p *Profile) *float64 { return &p.NozzleDiameter }),
	"layer_height":        floatField(func(p *Profile) *float64 { return &p.LayerHeight }),
	"print_speed":         floatField(func(p *Profile) *float64 { return &p.PrintSpeed }),
	"travel_speed":        floatField(func(p *Profile) *float64 { return &p.TravelSpeed }),
	"base_flux":           floatField(func(p *Profile) *float64 { return &p.BaseFlux }),
	"flux_start":          floatField(func(p *Profile) *float64 { return &p.FluxStart }),
	"flux_end":            floatField(func(p *Profile) *float64 { return &p.FluxEnd }),
	"filament_area":       floatField(func(p *Profile) *float64 { return &p.FilamentArea }),
	"retraction_distance": floatField(func(p *Profile) *float64 { return &p.RetractionDistance }),
	"retraction_speed":    floatField(func(p *Profile) *float64 { return &p.RetractionSpeed }),
	"prime_speed":         floatField(func(p *Profile) *float64 { return &p.PrimeSpeed }),
	"travel_threshold":    floatField(func(p *Profile) *float64 { return &p.TravelThreshold }),
	"segment_length":      floatField(func(p *Profile) *float64 { return &p.SegmentLength }),
	"layer_lift":          floatField(func(p *Profile) *float64 { return &p.LayerLift }),
	"end_lift":            floatField(func(p *Profile) *float64 { return &p.EndLift }),
	"safe_z":              floatField(func(p *Profile) *float64 { return &p.SafeZ }),
	"z_tolerance":         floatField(func(p *Profile) *float64 { return &p.ZTolerance }),
	"density":             floatField(func(p *Profile) *float64 { return &p.Density }),
	"precision": func(p *Profile, v float64) error {
		if v != math.Trunc(v) {
			return fmt.Errorf("precision must be an integer, got %g", v)
		}
		p.Precision = int(v)
		return nil
	},
	"home": func(p *Profile, v float64) error {
		p.Home = v != 0
		return nil
	},
}

// NormalizeKey maps a keyword such as "nozzle-diameter" or ":layer-height" to
// its YAML key.
func NormalizeKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), ":")
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "-", "_")
}

// Set applies a single numeric override. Mode options are set with SetMode.
// The value is not validated here; call Validate once all overrides are in.
func (p *Profile) Set(key string, v float64) error {
	s, ok := setters[NormalizeKey(key)]
	if !ok {
		return fmt.Errorf("profile: unknown option %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return s(p, v)
}

// SetMode applies a string-valued option: flux_mode or extrusion_mode.
func (p *Profile) SetMode(key, value string) error {
	value = strings.ToLower(strings.TrimPrefix(value, ":"))
	switch NormalizeKey(key) {
	case "flux_mode":
		p.FluxMode = FluxMode(value)
	case "extrusion_mode":
		p.Extrusion = ExtrusionMode(value)
	default:
		return fmt.Errorf("profile: option %q does not take a mode", key)
	}
	return nil
}

// SetLayerFlux sets the flux override for one layer.
func (p *Profile) SetLayerFlux(layer int, v float64) {
	if p.LayerFlux == nil {
		p.LayerFlux = make(map[int]float64)
	}
	p.LayerFlux[layer] = v
}

// SetLayerSpeed sets the speed override for one layer.
func (p *Profile) SetLayerSpeed(layer int, v float64) {
	if p.LayerSpeed == nil {
		p.LayerSpeed = make(map[int]float64)
	}
	p.LayerSpeed[layer] = v
}

// Keys lists the numeric option names accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
