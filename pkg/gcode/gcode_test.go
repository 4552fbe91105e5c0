package gcode

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/toolpath"
)

func testProfile() profile.Profile {
	p := profile.Default()
	p.FilamentArea = 8
	return p
}

func travel(a, b geom.Point, e float64, retract bool) toolpath.Segment {
	return toolpath.Segment{Kind: toolpath.Travel, Start: a, End: b, Length: a.Distance(b), Speed: 100, E: e, Retract: retract}
}

func printMove(a, b geom.Point, inc, e float64, prime bool) toolpath.Segment {
	return toolpath.Segment{Kind: toolpath.Print, Start: a, End: b, Length: a.Distance(b), Speed: 40, Flux: 1, Extrusion: inc, E: e, Prime: prime}
}

func twoCurves() []toolpath.Segment {
	return []toolpath.Segment{
		travel(geom.Pt(0, 0, 0), geom.Pt(0, 0, 0), 0, false),
		printMove(geom.Pt(0, 0, 0), geom.Pt(10, 0, 0), 10, 10, false),
		travel(geom.Pt(10, 0, 0), geom.Pt(30, 0, 0), 10, true),
		printMove(geom.Pt(30, 0, 0), geom.Pt(40, 0, 0), 10, 20, true),
	}
}

func TestRenderAbsolute(t *testing.T) {
	prog, err := Render(testProfile(), Header{}, twoCurves())
	require.NoError(t, err)

	want := []string{
		"G21 ; millimetres",
		"G90 ; absolute positioning",
		"M82 ; absolute extrusion",
		"G28 ; home",
		"G92 E0.000",
		"G0 Z2.000 F6000",
		"; Start of layer 0, z=0.000, flux=1.000",
		"G0 X0.000 Y0.000 Z0.000 F6000",
		"G1 X10.000 Y0.000 Z0.000 E10.000 F2400",
		"G1 E6.000 F6000 ; retract",
		"G0 X30.000 Y0.000 Z0.000 F6000",
		"G1 E10.000 F6000 ; prime",
		"G1 X40.000 Y0.000 Z0.000 E20.000 F2400",
		"G1 E16.000 F6000 ; retract",
		"G0 Z10.000 F6000 ; lift",
		"G28 X0 Y0 ; home",
		"M84 ; motors off",
	}
	if d := cmp.Diff(want, prog.Lines()); d != "" {
		t.Errorf("program mismatch (-want +got):\n%s", d)
	}
}

func TestRenderRelative(t *testing.T) {
	p := testProfile()
	p.Extrusion = profile.Relative
	p.Home = false
	p.EndLift = 0

	prog, err := Render(p, Header{}, twoCurves())
	require.NoError(t, err)

	var es []string
	for _, in := range prog.Instructions {
		if v, ok := in.Param('E'); ok && in.Code == "G1" {
			es = append(es, FormatFloat(v, 3))
		}
	}
	assert.Equal(t, []string{"10.000", "-4.000", "4.000", "10.000", "-4.000"}, es)
	assert.Contains(t, prog.Text(), "M83 ; relative extrusion")
	assert.NotContains(t, prog.Text(), "G28")
}

func TestMoveShapes(t *testing.T) {
	prog, err := Render(testProfile(), Header{}, twoCurves())
	require.NoError(t, err)

	for _, in := range prog.Moves() {
		_, hasE := in.Param('E')
		_, hasX := in.Param('X')
		switch {
		case in.Code == "G0":
			assert.False(t, hasE, "travel must not extrude: %s", in)
		case in.Comment == "retract" || in.Comment == "prime":
			assert.False(t, hasX, "retraction moves only the E axis: %s", in)
		default:
			assert.True(t, hasE, "print must extrude: %s", in)
		}
	}
}

func TestPrimeRestoresAxis(t *testing.T) {
	prog, err := Render(testProfile(), Header{}, twoCurves())
	require.NoError(t, err)

	var lastPrint float64
	primes := 0
	for _, in := range prog.Instructions {
		v, ok := in.Param('E')
		if !ok || in.Code != "G1" {
			continue
		}
		switch in.Comment {
		case "retract":
			assert.Less(t, v, lastPrint)
		case "prime":
			assert.Equal(t, lastPrint, v, "prime returns E to its pre-retraction value")
			primes++
		default:
			lastPrint = v
		}
	}
	assert.Equal(t, 1, primes)
}

func TestHeader(t *testing.T) {
	h := Header{
		Title: "loam vase",
		Meta: []Meta{
			{Key: "Layers", Value: 12, Integer: true},
			{Key: "Volume", Value: 0.12345, Unit: "L"},
		},
		Notes: []string{"Warning: speed is low"},
	}
	prog, err := Render(testProfile(), h, twoCurves())
	require.NoError(t, err)

	lines := prog.Lines()
	assert.Equal(t, []string{"; loam vase", "; Layers: 12", "; Volume: 0.123 L", "; Warning: speed is low"}, lines[:4])
}

func TestStateMachine(t *testing.T) {
	em := NewEmitter(testProfile(), Header{})
	assert.Equal(t, StateInit, em.State())

	assert.ErrorIs(t, em.BeginLayer(0, 0), ErrState)
	_, err := em.Finalize()
	assert.ErrorIs(t, err, ErrState)

	require.NoError(t, em.Setup())
	assert.ErrorIs(t, em.Setup(), ErrState)
	assert.ErrorIs(t, em.Emit(twoCurves()[0]), ErrState, "emit outside a layer")

	require.NoError(t, em.BeginLayer(0, 0))
	require.NoError(t, em.Emit(twoCurves()[0]))
	assert.Equal(t, StateTraveling, em.State())
	require.NoError(t, em.Emit(twoCurves()[1]))
	assert.Equal(t, StatePrinting, em.State())
	require.NoError(t, em.EndLayer())

	prog, err := em.Finalize()
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, em.State())
	n := prog.Len()

	_, err = em.Finalize()
	assert.ErrorIs(t, err, ErrState, "finalize runs once")
	assert.ErrorIs(t, em.BeginLayer(1, 2), ErrState)
	assert.Equal(t, n, prog.Len())
}

func TestDegenerateCurveTravelsOnly(t *testing.T) {
	segs := []toolpath.Segment{
		travel(geom.Pt(0, 0, 0), geom.Pt(0, 0, 0), 0, false),
		printMove(geom.Pt(0, 0, 0), geom.Pt(1, 0, 0), 1, 1, false),
		travel(geom.Pt(1, 0, 0), geom.Pt(4, 0, 0), 1, false),
		travel(geom.Pt(4, 0, 0), geom.Pt(4, 3, 0), 1, false),
		printMove(geom.Pt(4, 3, 0), geom.Pt(5, 3, 0), 1, 2, false),
	}
	prog, err := Render(testProfile(), Header{}, segs)
	require.NoError(t, err)

	text := prog.Text()
	assert.Contains(t, text, "G0 X4.000 Y0.000 Z0.000 F6000")
	assert.Contains(t, text, "G0 X4.000 Y3.000 Z0.000 F6000")
	assert.Equal(t, 2, strings.Count(text, " F2400"))
}

func TestLayerComments(t *testing.T) {
	p := testProfile()
	p.SetLayerFlux(1, 1.25)
	segs := []toolpath.Segment{
		travel(geom.Pt(0, 0, 2), geom.Pt(0, 0, 2), 0, false),
		printMove(geom.Pt(0, 0, 2), geom.Pt(1, 0, 2), 1, 1, false),
		{Kind: toolpath.Travel, Start: geom.Pt(1, 0, 2), End: geom.Pt(0, 0, 4), Layer: 1, Speed: 100, E: 1},
		{Kind: toolpath.Print, Start: geom.Pt(0, 0, 4), End: geom.Pt(1, 0, 4), Layer: 1, Length: 1, Speed: 40, Extrusion: 1, E: 2},
	}
	prog, err := Render(p, Header{}, segs)
	require.NoError(t, err)
	text := prog.Text()
	assert.Contains(t, text, "; Start of layer 0, z=2.000, flux=1.000\n")
	assert.Contains(t, text, "; Start of layer 1, z=4.000, flux=1.250\n")
}

func TestNonFiniteSegment(t *testing.T) {
	segs := twoCurves()
	segs[1].E = math.NaN()
	segs[1].Layer, segs[1].Curve = 0, 4

	_, err := Render(testProfile(), Header{}, segs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrNumeric))
	fe, _ := fault.As(err)
	assert.Equal(t, 4, fe.Curve)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.000", FormatFloat(-0.0001, 3))
	assert.Equal(t, "0.000", FormatFloat(math.Copysign(0, -1), 3))
	assert.Equal(t, "-0.001", FormatFloat(-0.001, 3))
	assert.Equal(t, "1.235", FormatFloat(1.2346, 3))
	assert.Equal(t, "12", FormatFloat(12.4, 0))
}

func TestWriteToMatchesText(t *testing.T) {
	prog, err := Render(testProfile(), Header{Title: "t"}, twoCurves())
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := prog.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, prog.Text(), buf.String())
}

func TestStartAndEndLines(t *testing.T) {
	p := testProfile()
	p.StartGCode = []string{"M104 S0"}
	p.EndGCode = []string{"M300 S440 P200"}
	prog, err := Render(p, Header{}, twoCurves())
	require.NoError(t, err)
	lines := prog.Lines()
	assert.Contains(t, lines, "M104 S0")
	assert.Equal(t, "M300 S440 P200", lines[len(lines)-1])
}
