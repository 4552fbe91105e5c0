package engine

import (
	"fmt"
	"math"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/slice"
)

// DefaultSegments is the number of chords used to approximate a circle.
const DefaultSegments = 64

// maxSegments and maxLayers keep scripts from building unbounded geometry.
const (
	maxSegments = 10_000
	maxLayers   = 10_000
)

// circlePoints returns a closed counter-clockwise polygon starting at angle 0.
func circlePoints(c geom.Point, r float64, n int) []geom.Point {
	pts := make([]geom.Point, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = geom.Pt(c.X+r*math.Cos(a), c.Y+r*math.Sin(a), c.Z)
	}
	pts[n] = pts[0]
	return pts
}

// mapPoints returns curves with every point replaced by f(point).
func mapPoints(curves []geom.Curve, f func(geom.Point) geom.Point) []geom.Curve {
	out := make([]geom.Curve, len(curves))
	for i, c := range curves {
		pts := make([]geom.Point, len(c.Points))
		for j, p := range c.Points {
			pts[j] = f(p)
		}
		out[i] = c.WithPoints(pts)
	}
	return out
}

// rotateZ rotates p about the Z axis by deg degrees.
func rotateZ(p geom.Point, deg float64) geom.Point {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return geom.Pt(p.X*cos-p.Y*sin, p.X*sin+p.Y*cos, p.Z)
}

func shape(curves ...geom.Curve) *sexpShape {
	for i := range curves {
		curves[i].Layer = -1
	}
	return &sexpShape{curves: curves}
}

// registerShapes installs the curve builtins.
func registerShapes(env *zygo.Zlisp, s *Script) {

	// -----------------------------------------------------------------------
	// (pt 10 20) or (pt 10 20 2)
	// -----------------------------------------------------------------------
	env.AddFunction("pt", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := pointArgs("pt", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpPoint{p: p}, nil
	})

	// -----------------------------------------------------------------------
	// (polyline (pt 0 0 2) (pt 10 0 2) (pt 10 10 2) :closed true)
	// (polyline (list ...) :z 4)
	// -----------------------------------------------------------------------
	env.AddFunction("polyline", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		items := pa.positional
		if len(items) == 1 {
			if list, err := sexpListToSlice(items[0]); err == nil {
				items = list
			}
		}
		if len(items) == 0 {
			return zygo.SexpNull, fmt.Errorf("polyline requires at least one point")
		}
		pts := make([]geom.Point, 0, len(items)+1)
		for i, item := range items {
			p, err := toPoint(item)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("polyline: point %d: %w", i+1, err)
			}
			pts = append(pts, p)
		}
		if v, ok := pa.kw["z"]; ok {
			z, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("polyline: z: %w", err)
			}
			for i := range pts {
				pts[i].Z = z
			}
		}
		if pa.flag("closed") && len(pts) > 1 && pts[0] != pts[len(pts)-1] {
			pts = append(pts, pts[0])
		}
		return shape(geom.Curve{Points: pts}), nil
	})

	// -----------------------------------------------------------------------
	// (circle :r 40 :center (pt 0 0) :z 2 :segments 96)
	// -----------------------------------------------------------------------
	env.AddFunction("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		r, err := pa.positive("circle", "r", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		c, err := pa.point("circle", "center", geom.Point{})
		if err != nil {
			return zygo.SexpNull, err
		}
		if c.Z, err = pa.float("circle", "z", c.Z); err != nil {
			return zygo.SexpNull, err
		}
		n, err := segmentsArg(pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape(geom.Curve{Points: circlePoints(c, r, n)}), nil
	})

	// -----------------------------------------------------------------------
	// (rect :w 60 :h 40 :center (pt 0 0) :z 2)
	// -----------------------------------------------------------------------
	env.AddFunction("rect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		w, err := pa.positive("rect", "w", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		h, err := pa.positive("rect", "h", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		c, err := pa.point("rect", "center", geom.Point{})
		if err != nil {
			return zygo.SexpNull, err
		}
		if c.Z, err = pa.float("rect", "z", c.Z); err != nil {
			return zygo.SexpNull, err
		}
		x0, y0, x1, y1 := c.X-w/2, c.Y-h/2, c.X+w/2, c.Y+h/2
		pts := []geom.Point{
			geom.Pt(x0, y0, c.Z), geom.Pt(x1, y0, c.Z), geom.Pt(x1, y1, c.Z),
			geom.Pt(x0, y1, c.Z), geom.Pt(x0, y0, c.Z),
		}
		return shape(geom.Curve{Points: pts}), nil
	})

	// -----------------------------------------------------------------------
	// (stack shape :layers 40 :height 2 :scale-to 0.8 :twist 30)
	//
	// The shape is drawn on the bed; copy k sits k+1 layer heights above it,
	// scaled and twisted about the Z axis by the fraction k/(layers-1) of
	// :scale-to and :twist. :height defaults to the profile layer height at
	// the time of the call.
	// -----------------------------------------------------------------------
	env.AddFunction("stack", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("stack requires exactly one shape")
		}
		base, err := toCurves(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("stack: %w", err)
		}
		layers := 1
		if v, ok := pa.kw["layers"]; ok {
			if layers, err = toInt(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("stack: layers: %w", err)
			}
		}
		if layers < 1 || layers > maxLayers {
			return zygo.SexpNull, fmt.Errorf("stack: layers must be between 1 and %d, got %d", maxLayers, layers)
		}
		h, err := pa.positive("stack", "height", s.Profile.LayerHeight)
		if err != nil {
			return zygo.SexpNull, err
		}
		scaleTo, err := pa.positive("stack", "scale-to", 1)
		if err != nil {
			return zygo.SexpNull, err
		}
		twist, err := pa.float("stack", "twist", 0)
		if err != nil {
			return zygo.SexpNull, err
		}

		out := make([]geom.Curve, 0, len(base)*layers)
		for k := 0; k < layers; k++ {
			t := 0.0
			if layers > 1 {
				t = float64(k) / float64(layers-1)
			}
			f := 1 + (scaleTo-1)*t
			dz := float64(k+1) * h
			out = append(out, mapPoints(base, func(p geom.Point) geom.Point {
				q := rotateZ(geom.Pt(p.X*f, p.Y*f, p.Z), twist*t)
				q.Z += dz
				return q
			})...)
		}
		return shape(out...), nil
	})

	// -----------------------------------------------------------------------
	// (reversed shape)
	// -----------------------------------------------------------------------
	env.AddFunction("reversed", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("reversed requires exactly one shape")
		}
		curves, err := toCurves(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("reversed: %w", err)
		}
		out := make([]geom.Curve, len(curves))
		for i, c := range curves {
			out[i] = c.Reversed()
		}
		return shape(out...), nil
	})
}

func segmentsArg(pa kwArgs) (int, error) {
	v, ok := pa.kw["segments"]
	if !ok {
		return DefaultSegments, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("segments: %w", err)
	}
	if n < 3 || n > maxSegments {
		return 0, fmt.Errorf("segments must be between 3 and %d, got %d", maxSegments, n)
	}
	return n, nil
}

// registerSolids installs the solid builtins and the transforms shared by
// solids and shapes.
func registerSolids(env *zygo.Zlisp, k kernel.Kernel, s *Script) {

	// -----------------------------------------------------------------------
	// (box :x 40 :y 40 :z 20)
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var dims [3]float64
		for i, key := range []string{"x", "y", "z"} {
			d, err := pa.positive("box", key, 0)
			if err != nil {
				return zygo.SexpNull, err
			}
			dims[i] = d
		}
		return &sexpSolid{solid: k.Box(dims[0], dims[1], dims[2])}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :h 60 :r 30)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, err := pa.positive("cylinder", "h", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		r, err := pa.positive("cylinder", "r", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Cylinder(h, r)}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere :r 20)
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		r, err := pa.positive("sphere", "r", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Sphere(r)}, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...), (difference a b ...), (intersection a b ...)
	// -----------------------------------------------------------------------
	boolean := func(label string, op func(a, b kernel.Solid) kernel.Solid) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least 2 solids, got %d", label, len(args))
			}
			acc, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: argument 1: %w", label, err)
			}
			for i, a := range args[1:] {
				b, err := toSolid(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: argument %d: %w", label, i+2, err)
				}
				acc = op(acc, b)
			}
			return &sexpSolid{solid: acc}, nil
		}
	}
	env.AddFunction("union", boolean("union", k.Union))
	env.AddFunction("difference", boolean("difference", k.Difference))
	env.AddFunction("intersection", boolean("intersection", k.Intersection))

	// -----------------------------------------------------------------------
	// (translate obj 10 0 2) for solids and shapes
	// -----------------------------------------------------------------------
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 3 {
			return zygo.SexpNull, fmt.Errorf("translate requires an object and 2 or 3 offsets")
		}
		d, err := pointArgs("translate", args[1:])
		if err != nil {
			return zygo.SexpNull, err
		}
		if solid, ok := args[0].(*sexpSolid); ok {
			return &sexpSolid{solid: k.Translate(solid.solid, d.X, d.Y, d.Z)}, nil
		}
		curves, err := toCurves(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		return shape(mapPoints(curves, func(p geom.Point) geom.Point { return p.Add(d) })...), nil
	})

	// -----------------------------------------------------------------------
	// (rotate obj :z 45) ; degrees. Shapes only rotate about Z.
	// -----------------------------------------------------------------------
	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("rotate requires exactly one object")
		}
		var angles [3]float64
		for i, key := range []string{"x", "y", "z"} {
			a, err := pa.float("rotate", key, 0)
			if err != nil {
				return zygo.SexpNull, err
			}
			angles[i] = a
		}
		if solid, ok := pa.positional[0].(*sexpSolid); ok {
			return &sexpSolid{solid: k.Rotate(solid.solid, angles[0], angles[1], angles[2])}, nil
		}
		if angles[0] != 0 || angles[1] != 0 {
			return zygo.SexpNull, fmt.Errorf("rotate: shapes can only be rotated about :z")
		}
		curves, err := toCurves(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
		}
		return shape(mapPoints(curves, func(p geom.Point) geom.Point { return rotateZ(p, angles[2]) })...), nil
	})

	// -----------------------------------------------------------------------
	// (scale obj 2) or (scale obj 1 1 0.5)
	// -----------------------------------------------------------------------
	env.AddFunction("scale", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		var f geom.Point
		switch len(args) {
		case 2:
			u, err := toFloat64(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("scale: %w", err)
			}
			f = geom.Pt(u, u, u)
		case 4:
			v, err := pointArgs("scale", args[1:])
			if err != nil {
				return zygo.SexpNull, err
			}
			f = v
		default:
			return zygo.SexpNull, fmt.Errorf("scale requires an object and 1 or 3 factors")
		}
		if f.X == 0 || f.Y == 0 || f.Z == 0 || !f.IsFinite() {
			return zygo.SexpNull, fmt.Errorf("scale: factors must be finite and non-zero, got %v", f)
		}
		if solid, ok := args[0].(*sexpSolid); ok {
			return &sexpSolid{solid: k.Scale(solid.solid, f.X, f.Y, f.Z)}, nil
		}
		curves, err := toCurves(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("scale: %w", err)
		}
		return shape(mapPoints(curves, func(p geom.Point) geom.Point {
			return geom.Pt(p.X*f.X, p.Y*f.Y, p.Z*f.Z)
		})...), nil
	})

	// -----------------------------------------------------------------------
	// (slice-solid solid :cell 0.5 :layer-height 2)
	//
	// Cuts a solid into layer outlines. :layer-height defaults to the
	// profile layer height at the time of the call.
	// -----------------------------------------------------------------------
	env.AddFunction("slice_solid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("slice-solid requires exactly one solid")
		}
		solid, err := toSolid(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slice-solid: %w", err)
		}
		h, err := pa.positive("slice-solid", "layer-height", s.Profile.LayerHeight)
		if err != nil {
			return zygo.SexpNull, err
		}
		cell, err := pa.positive("slice-solid", "cell", slice.DefaultCell)
		if err != nil {
			return zygo.SexpNull, err
		}
		curves, err := slice.Slice(k, solid, slice.Options{LayerHeight: h, Cell: cell})
		if err != nil {
			return zygo.SexpNull, err
		}
		if len(curves) == 0 {
			s.Warnings = append(s.Warnings, EvalWarning{Message: "slice-solid: solid produced no outlines"})
		}
		return shape(curves...), nil
	})
}
