package engine

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(circle :r 40)`,
			expect: `(circle "__kw_r" 40)`,
		},
		{
			name:   "multiple keywords",
			input:  `(rect :w 60 :h 40)`,
			expect: `(rect "__kw_w" 60 "__kw_h" 40)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(layer-flux 3 1.2)`,
			expect: `(layer_flux 3 1.2)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(pt -5 -10)`,
			expect: `(pt -5 -10)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:extrusion-mode :relative`,
			expect: `"__kw_extrusion-mode" "__kw_relative"`,
		},
		{
			name:   "G-code string untouched",
			input:  `(list "M104 S0 ; heater-off")`,
			expect: `(list "M104 S0 ; heater-off")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// eval runs source and fails the test on any error.
func eval(t *testing.T, source string) *Script {
	t.Helper()
	s, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return s
}

// evalFails runs source and returns the first eval error message.
func evalFails(t *testing.T, source string) string {
	t.Helper()
	s, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if s != nil {
		t.Fatal("expected nil script on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected an eval error")
	}
	return evalErrs[0].Message
}

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

func TestCircle(t *testing.T) {
	s := eval(t, `(deposit (circle :r 40 :center (pt 10 0) :z 2 :segments 32))`)
	if len(s.Curves) != 1 {
		t.Fatalf("expected 1 curve, got %d", len(s.Curves))
	}
	c := s.Curves[0]
	if len(c.Points) != 33 {
		t.Fatalf("expected 33 points (closed), got %d", len(c.Points))
	}
	if c.Start() != c.End() {
		t.Error("circle should be closed")
	}
	if c.Layer != -1 {
		t.Errorf("expected unassigned layer, got %d", c.Layer)
	}
	for _, p := range c.Points {
		if r := math.Hypot(p.X-10, p.Y); math.Abs(r-40) > 1e-9 {
			t.Fatalf("point %v is %f from the centre", p, r)
		}
		if p.Z != 2 {
			t.Fatalf("point %v not at z=2", p)
		}
	}
}

func TestCircleDefaultSegments(t *testing.T) {
	s := eval(t, `(deposit (circle :r 5))`)
	if got := len(s.Curves[0].Points); got != DefaultSegments+1 {
		t.Errorf("expected %d points, got %d", DefaultSegments+1, got)
	}
}

func TestPolylineClosed(t *testing.T) {
	s := eval(t, `
(def a (pt 0 0 2))
(def b (pt 10 0 2))
(def c (pt 10 10 2))
(deposit (polyline a b c :closed true))
(deposit (polyline (list a b) :z 4))
`)
	if len(s.Curves) != 2 {
		t.Fatalf("expected 2 curves, got %d", len(s.Curves))
	}
	closed := s.Curves[0]
	if len(closed.Points) != 4 || closed.Start() != closed.End() {
		t.Errorf("expected a closed 4-point polyline, got %v", closed.Points)
	}
	open := s.Curves[1]
	if len(open.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(open.Points))
	}
	for _, p := range open.Points {
		if p.Z != 4 {
			t.Errorf("expected :z to override point heights, got %v", p)
		}
	}
}

func TestRect(t *testing.T) {
	s := eval(t, `(deposit (rect :w 60 :h 40 :center (pt 5 5) :z 1))`)
	c := s.Curves[0]
	if len(c.Points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(c.Points))
	}
	if l := c.Length(); math.Abs(l-200) > 1e-9 {
		t.Errorf("perimeter = %f, want 200", l)
	}
	first := c.Points[0]
	if first.X != -25 || first.Y != -15 || first.Z != 1 {
		t.Errorf("expected first corner at (-25, -15, 1), got %v", first)
	}
}

func TestStack(t *testing.T) {
	s := eval(t, `(deposit (stack (circle :r 10 :segments 16) :layers 3 :height 2 :scale-to 0.5))`)
	if len(s.Curves) != 3 {
		t.Fatalf("expected 3 curves, got %d", len(s.Curves))
	}
	wantR := []float64{10, 7.5, 5}
	for k, c := range s.Curves {
		if z := c.Points[0].Z; z != float64(k+1)*2 {
			t.Errorf("copy %d at z=%f, want %f", k, z, float64(k+1)*2)
		}
		p := c.Points[0]
		if r := math.Hypot(p.X, p.Y); math.Abs(r-wantR[k]) > 1e-9 {
			t.Errorf("copy %d radius %f, want %f", k, r, wantR[k])
		}
	}
}

func TestStackUsesProfileLayerHeight(t *testing.T) {
	s := eval(t, `
(profile :layer-height 3)
(deposit (stack (rect :w 10 :h 10) :layers 2))
`)
	if z := s.Curves[1].Points[0].Z; z != 6 {
		t.Errorf("second copy at z=%f, want 6", z)
	}
}

func TestStackTwist(t *testing.T) {
	s := eval(t, `(deposit (stack (polyline (pt 10 0) (pt 20 0)) :layers 2 :twist 90))`)
	p := s.Curves[1].Points[0]
	if math.Abs(p.X) > 1e-9 || math.Abs(p.Y-10) > 1e-9 {
		t.Errorf("expected the top copy rotated to (0, 10), got %v", p)
	}
}

func TestShapeTransforms(t *testing.T) {
	s := eval(t, `
(def seg (polyline (pt 1 0 2) (pt 2 0 2)))
(deposit (translate seg 10 5))
(deposit (rotate seg :z 90))
(deposit (scale seg 2))
(deposit (reversed seg))
`)
	if len(s.Curves) != 4 {
		t.Fatalf("expected 4 curves, got %d", len(s.Curves))
	}
	if p := s.Curves[0].Points[0]; p.X != 11 || p.Y != 5 || p.Z != 2 {
		t.Errorf("translate: got %v", p)
	}
	if p := s.Curves[1].Points[1]; math.Abs(p.X) > 1e-9 || math.Abs(p.Y-2) > 1e-9 {
		t.Errorf("rotate: got %v", p)
	}
	if p := s.Curves[2].Points[1]; p.X != 4 || p.Z != 4 {
		t.Errorf("scale: got %v", p)
	}
	if p := s.Curves[3].Points[0]; p.X != 2 {
		t.Errorf("reversed: got %v", p)
	}
}

func TestShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"circle without radius", `(circle)`, "r must be > 0"},
		{"negative rect", `(rect :w -1 :h 2)`, "w must be > 0"},
		{"too few segments", `(circle :r 5 :segments 2)`, "segments"},
		{"stack zero layers", `(stack (circle :r 5) :layers 0)`, "layers"},
		{"deposit a number", `(deposit 42)`, "expected shape"},
		{"rotate shape about x", `(rotate (circle :r 5) :x 10)`, "only be rotated about :z"},
		{"zero scale", `(scale (circle :r 5) 0)`, "non-zero"},
		{"polyline of numbers", `(polyline 1 2 3)`, "expected point"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalFails(t, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Solids
// ---------------------------------------------------------------------------

func TestSliceSolidBoxWithHole(t *testing.T) {
	s := eval(t, `
(def tile (difference
  (box :x 40 :y 40 :z 4)
  (translate (cylinder :h 10 :r 10) 20 20 -2)))
(deposit (slice-solid tile :cell 0.5))
`)
	// Default layer height 2 over a 4 mm box: two layers of wall + hole.
	if len(s.Curves) != 4 {
		t.Fatalf("expected 4 curves, got %d", len(s.Curves))
	}
	for _, c := range s.Curves {
		if c.Layer != -1 {
			t.Errorf("sliced curves should be assigned layers by height, got layer %d", c.Layer)
		}
		if c.Start() != c.End() {
			t.Error("sliced outline should be closed")
		}
	}
}

func TestSliceSolidEmptyWarns(t *testing.T) {
	s := eval(t, `(slice-solid (box :x 10 :y 10 :z 1) :layer-height 2)`)
	if len(s.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", s.Warnings)
	}
}

func TestSolidErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"box missing z", `(box :x 1 :y 1)`, "z must be > 0"},
		{"union of one", `(union (sphere :r 2))`, "at least 2 solids"},
		{"difference with a shape", `(difference (sphere :r 2) (circle :r 1))`, "expected solid"},
		{"slice a shape", `(slice-solid (circle :r 1))`, "expected solid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalFails(t, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Job builtins
// ---------------------------------------------------------------------------

func TestDepositOverrides(t *testing.T) {
	s := eval(t, `(deposit (circle :r 5 :z 2) (circle :r 8 :z 2) :flux 1.2 :speed 25 :layer 0)`)
	if len(s.Curves) != 2 {
		t.Fatalf("expected 2 curves, got %d", len(s.Curves))
	}
	for _, c := range s.Curves {
		if c.Flux != 1.2 || c.Speed != 25 || c.Layer != 0 {
			t.Errorf("overrides not applied: flux=%f speed=%f layer=%d", c.Flux, c.Speed, c.Layer)
		}
	}
}

func TestProfileOverrides(t *testing.T) {
	s := eval(t, `
(profile :layer-height 2.5
         :extrusion-mode :relative
         :flux-mode :linear
         :home false
         :precision 2
         :end-gcode (list "M104 S0" "M107"))
(layer-flux 3 1.2)
(layer-speed 3 25)
`)
	p := s.Profile
	if p.LayerHeight != 2.5 {
		t.Errorf("layer height = %f, want 2.5", p.LayerHeight)
	}
	if p.Extrusion != profile.Relative {
		t.Errorf("extrusion mode = %q, want relative", p.Extrusion)
	}
	if p.FluxMode != profile.FluxLinear {
		t.Errorf("flux mode = %q, want linear", p.FluxMode)
	}
	if p.Home {
		t.Error("expected homing disabled")
	}
	if p.Precision != 2 {
		t.Errorf("precision = %d, want 2", p.Precision)
	}
	if len(p.EndGCode) != 2 || p.EndGCode[0] != "M104 S0" {
		t.Errorf("end gcode = %v", p.EndGCode)
	}
	if p.LayerFlux[3] != 1.2 || p.LayerSpeed[3] != 25 {
		t.Errorf("per-layer overrides = %v %v", p.LayerFlux, p.LayerSpeed)
	}
}

func TestProfileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown option", `(profile :nozzle-size 4)`, "unknown option"},
		{"positional value", `(profile 4)`, "keyword arguments"},
		{"non-numeric value", `(profile :layer-height "tall")`, "expected number"},
		{"negative layer", `(layer-flux -1 1.2)`, "layer must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalFails(t, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

func TestStartAndName(t *testing.T) {
	s := eval(t, `(name "cup") (start (pt 0 0 20))`)
	if s.Name != "cup" {
		t.Errorf("name = %q, want cup", s.Name)
	}
	if s.Start == nil || *s.Start != geom.Pt(0, 0, 20) {
		t.Errorf("start = %v, want (0, 0, 20)", s.Start)
	}
}

func TestWarn(t *testing.T) {
	s := eval(t, `(warn "wall is" 2 "mm thin")`)
	if len(s.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(s.Warnings))
	}
	if s.Warnings[0].Message != "wall is 2 mm thin" {
		t.Errorf("warning = %q", s.Warnings[0].Message)
	}
}

// ---------------------------------------------------------------------------
// Script to G-code
// ---------------------------------------------------------------------------

func TestVaseScriptRuns(t *testing.T) {
	s := eval(t, `
;; a tapered, twisted vase
(name "vase")
(profile :layer-height 2 :retraction-distance 0)
(def base (circle :r 40 :segments 48))
(deposit (stack base :layers 10 :scale-to 0.8 :twist 20))
(layer-flux 0 1.3)
`)
	res, err := pipeline.Run(context.Background(), s.Job())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if res.Stats.Layers != 10 {
		t.Errorf("expected 10 layers, got %d", res.Stats.Layers)
	}
	if !strings.Contains(res.Program.Text(), "loam G-code: vase") {
		t.Error("expected the job name in the header")
	}
}
