package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/profile"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms job script source before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: layer-flux -> layer_flux
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, kwPrefix...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Only when the hyphen sits between identifier characters; a - b
		// and -3 are left alone.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPoint wraps a geom.Point.
type sexpPoint struct {
	p geom.Point
}

func (p *sexpPoint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(pt %g %g %g)", p.p.X, p.p.Y, p.p.Z)
}
func (p *sexpPoint) Type() *zygo.RegisteredType { return nil }

// sexpShape wraps one or more curves built by a shape builtin.
type sexpShape struct {
	curves []geom.Curve
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	n := 0
	for _, c := range s.curves {
		n += len(c.Points)
	}
	return fmt.Sprintf("(shape %d curves, %d points)", len(s.curves), n)
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

// sexpSolid wraps a kernel.Solid so it can flow between solid builtins and
// slice-solid.
type sexpSolid struct {
	solid kernel.Solid
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	size := kernel.Size(s.solid)
	return fmt.Sprintf("(solid %.1fx%.1fx%.1f)", size[0], size[1], size[2])
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
// order keeps keywords in source order for builtins where it matters.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if _, seen := result.kw[name]; !seen {
			result.order = append(result.order, name)
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			// Keyword at end with no value: a flag.
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// float reads an optional numeric keyword, returning def when absent.
func (a kwArgs) float(fn, key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return f, nil
}

// positive reads a numeric keyword that must be > 0 when present.
func (a kwArgs) positive(fn, key string, def float64) (float64, error) {
	f, err := a.float(fn, key, def)
	if err != nil {
		return 0, err
	}
	if !(f > 0) {
		return 0, fmt.Errorf("%s: %s must be > 0, got %g", fn, key, f)
	}
	return f, nil
}

// point reads an optional point keyword.
func (a kwArgs) point(fn, key string, def geom.Point) (geom.Point, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	p, err := toPoint(v)
	if err != nil {
		return geom.Point{}, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return p, nil
}

// flag reports whether a boolean keyword is set. A bare trailing keyword
// counts as true.
func (a kwArgs) flag(key string) bool {
	v, ok := a.kw[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case *zygo.SexpBool:
		return b.Val
	case *zygo.SexpSentinel:
		return b == zygo.SexpNull
	}
	return true
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer from a SexpInt.
func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_relative) and plain strings.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toPoint extracts a point from a sexpPoint.
func toPoint(s zygo.Sexp) (geom.Point, error) {
	if p, ok := s.(*sexpPoint); ok {
		return p.p, nil
	}
	return geom.Point{}, fmt.Errorf("expected point, got %T (%s)", s, s.SexpString(nil))
}

// toSolid extracts a kernel.Solid from a sexpSolid.
func toSolid(s zygo.Sexp) (kernel.Solid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v.solid, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// toCurves extracts curves from a shape, or from a list of shapes.
func toCurves(s zygo.Sexp) ([]geom.Curve, error) {
	if v, ok := s.(*sexpShape); ok {
		return v.curves, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
	}
	var out []geom.Curve
	for _, item := range items {
		v, ok := item.(*sexpShape)
		if !ok {
			return nil, fmt.Errorf("expected shape in list, got %T (%s)", item, item.SexpString(nil))
		}
		out = append(out, v.curves...)
	}
	return out, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all job builtins into a zygomys environment.
// Shape and solid builtins are pure; the script builtins below record into s.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, k kernel.Kernel, s *Script) {
	registerShapes(env, s)
	registerSolids(env, k, s)

	// -----------------------------------------------------------------------
	// (name "vase")
	// -----------------------------------------------------------------------
	env.AddFunction("name", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("name requires exactly 1 argument, got %d", len(args))
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("name: %w", err)
		}
		s.Name = n
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (profile :layer-height 2.5 :extrusion-mode :relative :home false
	//          :end-gcode (list "M104 S0"))
	// -----------------------------------------------------------------------
	env.AddFunction("profile", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("profile takes only keyword arguments")
		}
		for _, key := range pa.order {
			if err := setOption(&s.Profile, key, pa.kw[key]); err != nil {
				return zygo.SexpNull, fmt.Errorf("profile: %w", err)
			}
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (layer-flux 3 1.2) and (layer-speed 3 25)
	// -----------------------------------------------------------------------
	perLayer := func(label string, set func(layer int, v float64)) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a layer index and a value", label)
			}
			layer, err := toInt(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: layer: %w", label, err)
			}
			if layer < 0 {
				return zygo.SexpNull, fmt.Errorf("%s: layer must be >= 0, got %d", label, layer)
			}
			v, err := toFloat64(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: value: %w", label, err)
			}
			set(layer, v)
			return zygo.SexpNull, nil
		}
	}
	env.AddFunction("layer_flux", perLayer("layer-flux", s.Profile.SetLayerFlux))
	env.AddFunction("layer_speed", perLayer("layer-speed", s.Profile.SetLayerSpeed))

	// -----------------------------------------------------------------------
	// (start (pt 0 0 10)) or (start 0 0 10)
	// -----------------------------------------------------------------------
	env.AddFunction("start", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		var p geom.Point
		switch len(args) {
		case 1:
			v, err := toPoint(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("start: %w", err)
			}
			p = v
		case 3:
			v, err := pointArgs("start", args)
			if err != nil {
				return zygo.SexpNull, err
			}
			p = v
		default:
			return zygo.SexpNull, fmt.Errorf("start requires a point or 3 coordinates, got %d arguments", len(args))
		}
		s.Start = &p
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (deposit shape... :flux 1.2 :speed 30 :layer 4)
	//
	// Appends the shapes' curves to the job in argument order and returns
	// how many curves were added.
	// -----------------------------------------------------------------------
	env.AddFunction("deposit", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) == 0 {
			return zygo.SexpNull, fmt.Errorf("deposit requires at least one shape")
		}
		flux, err := pa.float("deposit", "flux", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		speed, err := pa.float("deposit", "speed", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		layer := -1
		if v, ok := pa.kw["layer"]; ok {
			if layer, err = toInt(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("deposit: layer: %w", err)
			}
		}

		added := 0
		for i, arg := range pa.positional {
			curves, err := toCurves(arg)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("deposit: argument %d: %w", i+1, err)
			}
			for _, c := range curves {
				c.Points = append([]geom.Point(nil), c.Points...)
				if flux != 0 {
					c.Flux = flux
				}
				if speed != 0 {
					c.Speed = speed
				}
				if layer >= 0 {
					c.Layer = layer
				}
				s.Curves = append(s.Curves, c)
				added++
			}
		}
		return &zygo.SexpInt{Val: int64(added)}, nil
	})

	// -----------------------------------------------------------------------
	// (warn "message")
	// -----------------------------------------------------------------------
	env.AddFunction("warn", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			if str, ok := a.(*zygo.SexpStr); ok {
				parts = append(parts, str.S)
				continue
			}
			parts = append(parts, a.SexpString(nil))
		}
		s.Warnings = append(s.Warnings, EvalWarning{Message: strings.Join(parts, " ")})
		return zygo.SexpNull, nil
	})
}

// setOption applies one profile keyword. Mode options take keywords,
// G-code blocks take lists of strings and everything else is numeric.
func setOption(p *profile.Profile, key string, v zygo.Sexp) error {
	switch profile.NormalizeKey(key) {
	case "flux_mode", "extrusion_mode":
		mode, err := toKeywordString(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return p.SetMode(key, mode)
	case "start_gcode", "end_gcode":
		items, err := sexpListToSlice(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			line, err := toString(item)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			lines = append(lines, line)
		}
		if profile.NormalizeKey(key) == "start_gcode" {
			p.StartGCode = lines
		} else {
			p.EndGCode = lines
		}
		return nil
	}

	if b, ok := v.(*zygo.SexpBool); ok {
		f := 0.0
		if b.Val {
			f = 1
		}
		return p.Set(key, f)
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return p.Set(key, f)
}

// pointArgs reads two or three positional coordinates.
func pointArgs(fn string, args []zygo.Sexp) (geom.Point, error) {
	if len(args) < 2 || len(args) > 3 {
		return geom.Point{}, fmt.Errorf("%s requires 2 or 3 coordinates, got %d", fn, len(args))
	}
	var c [3]float64
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return geom.Point{}, fmt.Errorf("%s: %c: %w", fn, "xyz"[i], err)
		}
		c[i] = f
	}
	return geom.Pt(c[0], c[1], c[2]), nil
}
