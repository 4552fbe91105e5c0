// Package pipeline runs a print job end to end: validate the profile and
// curves, clean and group them into layers, order the layers, build and
// annotate motion segments, and emit the program.
//
// A job either produces a complete program or fails with a *fault.Error; no
// partial program is ever returned.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazu/loam/pkg/extrude"
	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/gcode"
	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/optimize"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/retract"
	"github.com/chazu/loam/pkg/toolpath"
)

// Job is one generation request.
type Job struct {
	Name    string          `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Curves  []geom.Curve    `json:"curves" yaml:"curves" msgpack:"curves"`
	Profile profile.Profile `json:"profile" yaml:"profile" msgpack:"profile"`
	Start   *geom.Point     `json:"start,omitempty" yaml:"start,omitempty" msgpack:"start,omitempty"`

	// ExpectedLayers, when > 0, requires every layer index in
	// [0, ExpectedLayers) to hold at least one curve.
	ExpectedLayers int `json:"expected_layers,omitempty" yaml:"expected_layers,omitempty" msgpack:"expected_layers,omitempty"`
	// AssignLayers groups curves by height and ignores their Layer field.
	// It is implied when any curve has a negative Layer.
	AssignLayers bool `json:"assign_layers,omitempty" yaml:"assign_layers,omitempty" msgpack:"assign_layers,omitempty"`

	FixedDirection bool `json:"fixed_direction,omitempty" yaml:"fixed_direction,omitempty" msgpack:"fixed_direction,omitempty"`
	ImprovePasses  int  `json:"improve_passes,omitempty" yaml:"improve_passes,omitempty" msgpack:"improve_passes,omitempty"`
}

// Result is a finished job.
type Result struct {
	Program  *gcode.Program
	Path     optimize.OrderedPath
	Stats    Stats
	Warnings []fault.Finding
}

// Run executes job. The profile is validated before any geometry is
// touched. ctx is checked between stages.
func Run(ctx context.Context, job Job) (*Result, error) {
	log := slog.Default().With("job", job.Name)
	p := job.Profile.Clone()

	warnings, err := profile.Check(p)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	curves := job.Curves
	if job.AssignLayers || needsAssignment(curves) {
		curves = geom.AssignLayers(curves, p.ZTolerance)
	}
	if fe := fault.Check(fault.InvalidInput, geom.Validate(curves)); fe != nil {
		return nil, fmt.Errorf("curves: %w", fe)
	}

	cleaned := make([]geom.Curve, len(curves))
	for i, c := range curves {
		cleaned[i] = geom.Clean(c, p.SegmentLength)
	}
	layers, findings := geom.GroupByLayer(cleaned, p.ZTolerance)
	if job.ExpectedLayers > 0 {
		findings = append(findings, geom.ExpectLayers(layers, job.ExpectedLayers)...)
	}
	if fe := fault.Check(fault.InvalidInput, findings); fe != nil {
		return nil, fmt.Errorf("layers: %w", fe)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := optimize.Order(layers, optimize.Options{
		Start:          job.Start,
		FixedDirection: job.FixedDirection,
		ImprovePasses:  job.ImprovePasses,
	})
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	for _, lp := range path.Layers {
		log.Debug("ordered layer", "layer", lp.Index, "curves", len(lp.Visits), "travel_mm", lp.Travel)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segs := toolpath.Build(path, p, job.Start)
	calc := extrude.New(p)
	if err := calc.Annotate(segs); err != nil {
		return nil, fmt.Errorf("extrude: %w", err)
	}
	retractions := retract.New(p).Apply(segs)
	log.Debug("annotated segments", "segments", len(segs), "retractions", retractions)

	stats := collect(p, path, segs, calc, retractions)
	if err := stats.check(); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	prog, err := gcode.Render(p, header(job.Name, p, stats, warnings), segs)
	if err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}
	stats.Lines = prog.Len()

	return &Result{Program: prog, Path: path, Stats: stats, Warnings: warnings}, nil
}

// needsAssignment reports whether some curve lacks a layer index. Explicit
// indices are used only when every curve carries one.
func needsAssignment(curves []geom.Curve) bool {
	for _, c := range curves {
		if c.Layer < 0 {
			return true
		}
	}
	return false
}
