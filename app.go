package main

import (
	"context"
	"log/slog"

	"github.com/chazu/loam/pkg/engine"
	"github.com/chazu/loam/pkg/export"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/kernel/sdfx"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
)

// App runs scripts and job files through the toolpath pipeline. The CLI
// commands are thin wrappers over it.
type App struct {
	ctx    context.Context
	kernel kernel.Kernel
	base   profile.Profile
	log    *slog.Logger
}

// EvalErrorData is a script error or warning with its source position.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// GenerateResult is everything one run produces. GCode is empty unless
// Status.OK is set.
type GenerateResult struct {
	Name     string          `json:"name"`
	GCode    string          `json:"gcode"`
	Stats    *pipeline.Stats `json:"stats,omitempty"`
	Status   pipeline.Status `json:"status"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App with the sdfx kernel and the default profile.
func NewApp() *App {
	return NewAppWith(sdfx.New(), profile.Default(), nil)
}

// NewAppWith creates an App whose scripts start from base.
func NewAppWith(k kernel.Kernel, base profile.Profile, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	return &App{ctx: context.Background(), kernel: k, base: base.Clone(), log: log}
}

// startup replaces the context used for pipeline runs.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

func newResult() GenerateResult {
	return GenerateResult{
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

// Generate evaluates a script and renders the job it describes.
func (a *App) Generate(source string) GenerateResult {
	result := newResult()

	script, evalErrs, err := engine.NewEngineWith(a.kernel, a.base).Evaluate(source)
	if err != nil {
		// Panic or timeout inside the evaluator.
		a.log.Error("evaluate failed", "error", err)
		result.Status = pipeline.Status{Kind: "ScriptError", Layer: -1, Curve: -1, Message: err.Error()}
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		result.Status = pipeline.Status{Kind: "ScriptError", Layer: -1, Curve: -1, Message: evalErrs[0].Error()}
		return result
	}
	for _, w := range script.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message})
	}

	a.run(script.Job(), &result)
	return result
}

// GenerateJob renders a job that is already in curve form.
func (a *App) GenerateJob(job pipeline.Job) GenerateResult {
	result := newResult()
	a.run(job, &result)
	return result
}

func (a *App) run(job pipeline.Job, result *GenerateResult) {
	result.Name = job.Name
	res, err := pipeline.Run(a.ctx, job)
	result.Status = pipeline.StatusOf(err)
	if err != nil {
		a.log.Warn("job failed", "job", job.Name, "kind", result.Status.Kind, "error", err)
		return
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: w.Message})
	}
	result.Stats = &res.Stats
	result.GCode = res.Program.Text()
	a.log.Info("job done", "job", job.Name, "layers", res.Stats.Layers, "lines", res.Stats.Lines)
}

// Save writes a successful result to disk and returns the path written.
func (a *App) Save(result GenerateResult, t export.Target) (string, error) {
	if !result.Status.OK {
		return "", &statusError{result.Status}
	}
	if t.Name == "" {
		t.Name = result.Name
	}
	path, err := export.Save(result.GCode, t)
	if err != nil {
		return "", err
	}
	a.log.Info("saved", "path", path)
	return path, nil
}

// statusError reports a failed result that someone tried to save.
type statusError struct {
	status pipeline.Status
}

func (e *statusError) Error() string {
	return "nothing to save: " + e.status.Message
}
