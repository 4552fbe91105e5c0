// Package slice cuts a kernel solid into horizontal layers and turns each
// layer's section into closed curves, ready for the toolpath pipeline.
//
// The kernel supplies raw section segments at each layer's mid-height. This
// package chains them into loops and orients every loop so the solid lies
// on its left: outer walls run counter-clockwise and holes clockwise.
package slice

import (
	"fmt"
	"math"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/kernel"
)

// DefaultCell is the sampling pitch used when Options.Cell is zero, in mm.
const DefaultCell = 1.0

// maxCells bounds the sampling grid of one layer.
const maxCells = 4_000_000

// Options control slicing.
type Options struct {
	LayerHeight float64 // mm, > 0
	Cell        float64 // XY sampling pitch in mm; 0 selects DefaultCell
	FirstID     int     // ID given to the first curve
}

// Slice returns the outline curves of s, one or more per layer. Layer k is
// cut at min.Z + (k+½)·h and its curves sit at min.Z + (k+1)·h, the top
// of the deposited bead.
func Slice(k kernel.Kernel, s kernel.Solid, opts Options) ([]geom.Curve, error) {
	if opts.LayerHeight <= 0 || math.IsNaN(opts.LayerHeight) {
		return nil, fmt.Errorf("slice: layer height must be > 0, got %g", opts.LayerHeight)
	}
	cell := opts.Cell
	if cell == 0 {
		cell = DefaultCell
	}
	if cell < 0 || math.IsNaN(cell) {
		return nil, fmt.Errorf("slice: cell size must be > 0, got %g", cell)
	}

	min, max := s.BoundingBox()
	nx := int(math.Ceil((max[0]-min[0])/cell)) + 1
	ny := int(math.Ceil((max[1]-min[1])/cell)) + 1
	if nx*ny > maxCells {
		return nil, fmt.Errorf("slice: %dx%d sampling grid is too large; increase the cell size", nx, ny)
	}

	layers := int(math.Floor((max[2]-min[2])/opts.LayerHeight + 1e-9))
	var curves []geom.Curve
	id := opts.FirstID
	for layer := 0; layer < layers; layer++ {
		cutZ := min[2] + (float64(layer)+0.5)*opts.LayerHeight
		printZ := min[2] + float64(layer+1)*opts.LayerHeight

		for _, loop := range chain(k.Contours(s, cutZ, cell), cell*1e-6) {
			orient(s, loop, cutZ)
			pts := make([]geom.Point, len(loop))
			for i, p := range loop {
				pts[i] = geom.Pt(p[0], p[1], printZ)
			}
			c := geom.Curve{ID: id, Layer: layer, Points: pts}.Simplify(cell * 1e-6)
			if len(c.Points) < 4 {
				continue
			}
			curves = append(curves, c)
			id++
		}
	}
	return curves, nil
}

type key struct{ x, y int64 }

func quantize(p [2]float64, q float64) key {
	return key{int64(math.Round(p[0] / q)), int64(math.Round(p[1] / q))}
}

// chain joins unordered segments into closed loops. Endpoints within q of
// each other are the same vertex. Loops come out in the order of their first
// segment and are closed by repeating the start point; chains that do not
// close are dropped.
func chain(segs [][2][2]float64, q float64) [][][2]float64 {
	at := make(map[key][]int, len(segs))
	for i, s := range segs {
		a, b := quantize(s[0], q), quantize(s[1], q)
		if a == b {
			continue
		}
		at[a] = append(at[a], i)
		at[b] = append(at[b], i)
	}
	used := make([]bool, len(segs))

	// take returns an unused segment touching v and its far endpoint.
	take := func(v key) ([2]float64, key, bool) {
		for _, i := range at[v] {
			if used[i] {
				continue
			}
			used[i] = true
			s := segs[i]
			if quantize(s[0], q) == v {
				return s[1], quantize(s[1], q), true
			}
			return s[0], quantize(s[0], q), true
		}
		return [2]float64{}, key{}, false
	}

	var loops [][][2]float64
	for i, s := range segs {
		start := quantize(s[0], q)
		if used[i] || start == quantize(s[1], q) {
			continue
		}
		used[i] = true
		loop := [][2]float64{s[0], s[1]}
		v := quantize(s[1], q)
		closed := false
		for {
			if v == start {
				closed = true
				break
			}
			p, next, ok := take(v)
			if !ok {
				break
			}
			loop = append(loop, p)
			v = next
		}
		if !closed || len(loop) < 4 {
			continue
		}
		loop[len(loop)-1] = loop[0]
		loops = append(loops, loop)
	}
	return loops
}

// orient reverses loop in place unless the solid lies on its left. Each
// segment compares the distance a short step to its left with a step to its
// right; the summed difference decides.
func orient(s kernel.Solid, loop [][2]float64, z float64) {
	var score float64
	for i := 1; i < len(loop); i++ {
		a, b := loop[i-1], loop[i]
		dx, dy := b[0]-a[0], b[1]-a[1]
		n := math.Hypot(dx, dy)
		if n == 0 {
			continue
		}
		step := math.Min(n, 1) * 0.25
		nx, ny := -dy/n*step, dx/n*step
		mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
		score += s.Distance(mx+nx, my+ny, z) - s.Distance(mx-nx, my-ny, z)
	}
	if score > 0 {
		for i, j := 0, len(loop)-1; i < j; i, j = i+1, j-1 {
			loop[i], loop[j] = loop[j], loop[i]
		}
	}
}
