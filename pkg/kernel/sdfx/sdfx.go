// Package sdfx implements kernel.Kernel on top of the
// github.com/deadsy/sdfx signed distance field library.
package sdfx

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/loam/pkg/kernel"
)

var _ kernel.Kernel = (*SdfxKernel)(nil)

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

func (s *sdfxSolid) Distance(x, y, z float64) float64 {
	return s.s.Evaluate(v3.Vec{X: x, Y: y, Z: z})
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// unwrap returns the sdf.SDF3 behind s. Solids from other sources are
// adapted through their Distance and BoundingBox methods.
func unwrap(s kernel.Solid) sdf.SDF3 {
	if ss, ok := s.(*sdfxSolid); ok {
		return ss.s
	}
	return foreignSolid{s}
}

type foreignSolid struct {
	s kernel.Solid
}

func (f foreignSolid) Evaluate(p v3.Vec) float64 {
	return f.s.Distance(p.X, p.Y, p.Z)
}

func (f foreignSolid) BoundingBox() sdf.Box3 {
	min, max := f.s.BoundingBox()
	return sdf.Box3{
		Min: v3.Vec{X: min[0], Y: min[1], Z: min[2]},
		Max: v3.Vec{X: max[0], Y: max[1], Z: max[2]},
	}
}

func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box creates a box with its minimum corner at the origin. sdf.Box3D
// centres the box, so it is shifted by half its size.
func (k *SdfxKernel) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	m := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return wrap(sdf.Transform3D(s, m))
}

// Cylinder creates a cylinder standing on the XY plane.
func (k *SdfxKernel) Cylinder(height, radius float64) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	return wrap(sdf.Transform3D(s, sdf.Translate3d(v3.Vec{Z: height / 2})))
}

// Sphere creates a sphere resting on the XY plane.
func (k *SdfxKernel) Sphere(radius float64) kernel.Solid {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Sphere3D: %v", err))
	}
	return wrap(sdf.Transform3D(s, sdf.Translate3d(v3.Vec{Z: radius})))
}

func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Rotate rotates a solid by Euler angles (degrees), X first, then Y, then Z.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	rad := math.Pi / 180.0
	m := sdf.RotateZ(z * rad).Mul(sdf.RotateY(y * rad)).Mul(sdf.RotateX(x * rad))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Scale scales a solid about the origin. Non-uniform scaling distorts the
// distance field, so it is only a bound, but its sign is exact.
func (k *SdfxKernel) Scale(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Scale3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Contours slices s at height z with sdf.Slice2D and renders the section
// with uniform marching squares.
func (k *SdfxKernel) Contours(s kernel.Solid, z, cell float64) [][2][2]float64 {
	s3 := unwrap(s)
	size := s3.BoundingBox().Size()
	cells := int(math.Ceil(math.Max(size.X, size.Y) / cell))
	if cells < 1 {
		cells = 1
	}
	section := sdf.Slice2D(s3, v3.Vec{Z: z}, v3.Vec{Z: 1})

	var lines lineBuffer
	render.NewMarchingSquaresUniform(cells).Render(section, &lines)
	return lines.segs
}

// lineBuffer collects rendered lines as plain coordinate pairs.
type lineBuffer struct {
	segs [][2][2]float64
}

func (b *lineBuffer) Write(in []*sdf.Line2) error {
	for _, l := range in {
		b.segs = append(b.segs, [2][2]float64{{l[0].X, l[0].Y}, {l[1].X, l[1].Y}})
	}
	return nil
}

func (b *lineBuffer) Close() error {
	return nil
}
