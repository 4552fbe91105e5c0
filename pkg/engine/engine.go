// Package engine evaluates job scripts. A script is a small sandboxed Lisp
// program (zygomys) that builds curves or solids, tunes the print profile
// and hands the result to the toolpath pipeline.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/kernel/sdfx"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int    `json:"line" msgpack:"line"`
	Col     int    `json:"col" msgpack:"col"`
	Message string `json:"message" msgpack:"message"`
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
}

// Script is everything a job script produced.
type Script struct {
	Name     string
	Curves   []geom.Curve
	Profile  profile.Profile
	Start    *geom.Point
	Warnings []EvalWarning
}

// Job converts the script output into a pipeline job. Curves are numbered
// in the order the script deposited them.
func (s *Script) Job() pipeline.Job {
	return pipeline.Job{
		Name:    s.Name,
		Curves:  geom.NumberCurves(s.Curves),
		Profile: s.Profile.Clone(),
		Start:   s.Start,
	}
}

// Engine evaluates scripts. It holds no per-script state, so it is safe for
// concurrent use; each call to Evaluate creates a fresh sandbox.
type Engine struct {
	kernel kernel.Kernel
	base   profile.Profile
}

// NewEngine returns an Engine backed by the sdfx kernel that starts every
// script from the default profile.
func NewEngine() *Engine {
	return NewEngineWith(sdfx.New(), profile.Default())
}

// NewEngineWith returns an Engine using k for solids and base as the
// starting profile of every script.
func NewEngineWith(k kernel.Kernel, base profile.Profile) *Engine {
	return &Engine{kernel: k, base: base.Clone()}
}

// Evaluate runs a job script.
//
// Return semantics:
//   - On success: returns script + nil errors + nil error
//   - On parse/eval failure: returns nil script + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Script, []EvalError, error) {
	return e.EvaluateNotify(source, nil)
}

// EvaluateNotify is Evaluate with a callback that runs when the evaluating
// goroutine exits. On a timeout that happens after EvaluateNotify returns,
// or never if the script does not halt.
func (e *Engine) EvaluateNotify(source string, done func()) (*Script, []EvalError, error) {
	ch := make(chan evalResult, 1)

	go func() {
		var res evalResult
		defer func() {
			if r := recover(); r != nil {
				res = evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
			if done != nil {
				done()
			}
			ch <- res
		}()

		res.script, res.errors, res.err = e.evaluate(source)
	}()

	return waitWithTimeout(ch)
}

func (e *Engine) evaluate(source string) (*Script, []EvalError, error) {
	s := &Script{Profile: e.base.Clone()}
	if strings.TrimSpace(source) == "" {
		return s, nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, e.kernel, s)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return s, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values, pulling
// out the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
