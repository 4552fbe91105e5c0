package profile

import (
	"fmt"
	"math"

	"github.com/chazu/loam/pkg/fault"
)

// Typical LDM printing speeds, in mm/s (1800–10000 mm/min). Speeds outside
// this band are legal but reported as warnings.
const (
	MinTypicalSpeed = 30.0
	MaxTypicalSpeed = 10000.0 / 60
)

// Validate checks every field and returns all findings. Error findings make
// the profile unusable; warnings are advisory. Validate never mutates p.
func Validate(p Profile) []fault.Finding {
	var fs []fault.Finding
	positive := func(field string, v float64) {
		if !finite(v) || v <= 0 {
			fs = append(fs, fault.Errorf(-1, -1, field, "must be a finite value > 0, got %g", v))
		}
	}
	nonNegative := func(field string, v float64) {
		if !finite(v) || v < 0 {
			fs = append(fs, fault.Errorf(-1, -1, field, "must be a finite value >= 0, got %g", v))
		}
	}

	positive("nozzle_diameter", p.NozzleDiameter)
	positive("layer_height", p.LayerHeight)
	positive("print_speed", p.PrintSpeed)
	positive("travel_speed", p.TravelSpeed)
	positive("base_flux", p.BaseFlux)
	positive("filament_area", p.FilamentArea)
	positive("retraction_speed", p.RetractionSpeed)
	positive("z_tolerance", p.ZTolerance)

	nonNegative("retraction_distance", p.RetractionDistance)
	nonNegative("prime_speed", p.PrimeSpeed)
	nonNegative("travel_threshold", p.TravelThreshold)
	nonNegative("segment_length", p.SegmentLength)
	nonNegative("layer_lift", p.LayerLift)
	nonNegative("end_lift", p.EndLift)
	nonNegative("safe_z", p.SafeZ)

	for _, k := range sortedKeys(p.LayerFlux) {
		if k < 0 {
			fs = append(fs, fault.Errorf(-1, -1, "layer_flux", "layer index %d is negative", k))
		}
		nonNegative(fmt.Sprintf("layer_flux[%d]", k), p.LayerFlux[k])
	}
	for _, k := range sortedKeys(p.LayerSpeed) {
		if k < 0 {
			fs = append(fs, fault.Errorf(-1, -1, "layer_speed", "layer index %d is negative", k))
		}
		positive(fmt.Sprintf("layer_speed[%d]", k), p.LayerSpeed[k])
	}

	switch p.FluxMode {
	case FluxConstant:
	case FluxLinear:
		nonNegative("flux_start", p.FluxStart)
		nonNegative("flux_end", p.FluxEnd)
	default:
		fs = append(fs, fault.Errorf(-1, -1, "flux_mode", "unknown flux mode %q, expected constant or linear", p.FluxMode))
	}

	switch p.Extrusion {
	case Absolute, Relative:
	default:
		fs = append(fs, fault.Errorf(-1, -1, "extrusion_mode", "unknown extrusion mode %q, expected absolute or relative", p.Extrusion))
	}

	if p.Precision < 1 || p.Precision > 6 {
		fs = append(fs, fault.Errorf(-1, -1, "precision", "must be between 1 and 6 decimal digits, got %d", p.Precision))
	}

	// Advisory checks.
	lo, hi := p.SpeedRange()
	if finite(lo) && lo > 0 && lo < MinTypicalSpeed {
		fs = append(fs, fault.Warnf(-1, -1, "print_speed", "%.1f mm/s is below the typical LDM range (%.0f-%.0f mm/s)", lo, MinTypicalSpeed, MaxTypicalSpeed))
	}
	if finite(hi) && hi > MaxTypicalSpeed {
		fs = append(fs, fault.Warnf(-1, -1, "print_speed", "%.1f mm/s is above the typical LDM range (%.0f-%.0f mm/s)", hi, MinTypicalSpeed, MaxTypicalSpeed))
	}
	if !finite(p.Density) || p.Density <= 0 {
		fs = append(fs, fault.Warnf(-1, -1, "density", "density %g is not usable; mass will not be estimated", p.Density))
	}
	if p.RetractionDistance == 0 {
		fs = append(fs, fault.Warnf(-1, -1, "retraction_distance", "retraction disabled"))
	}

	return fs
}

// Check validates p and returns a ConfigError when any finding blocks,
// together with the advisory warnings.
func Check(p Profile) (warnings []fault.Finding, err error) {
	fs := Validate(p)
	_, warnings = fault.Split(fs)
	if fe := fault.Check(fault.ConfigError, fs); fe != nil {
		return warnings, fe
	}
	return warnings, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
