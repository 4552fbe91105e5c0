// Package kernel defines the abstract solid-modelling interface used to
// describe printable objects. Implementations provide primitives, booleans,
// transforms and planar sections for the slicer.
package kernel

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Distance returns the signed distance from (x, y, z) to the surface.
	// It is negative inside the solid.
	Distance(x, y, z float64) float64
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives. Box has its minimum corner at the origin; Cylinder and
	// Sphere are centred on the Z axis with their base on the XY plane.
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64) Solid
	Sphere(radius float64) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees
	Scale(s Solid, x, y, z float64) Solid

	// Contours cuts s with the horizontal plane at z and returns the
	// section outline as line segments, sampled with the given XY cell
	// size. Segments are unordered and unoriented.
	Contours(s Solid, z, cell float64) [][2][2]float64
}

// Size returns the extent of s along each axis.
func Size(s Solid) [3]float64 {
	min, max := s.BoundingBox()
	return [3]float64{max[0] - min[0], max[1] - min[1], max[2] - min[2]}
}
