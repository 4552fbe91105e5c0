package gcode

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/toolpath"
)

// State is the emitter's position in the job lifecycle:
//
//	Init → Setup → {Printing ⇄ Traveling} → Finalized
//
// Finalized is terminal.
type State int

const (
	StateInit State = iota
	StateSetup
	StatePrinting
	StateTraveling
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSetup:
		return "setup"
	case StatePrinting:
		return "printing"
	case StateTraveling:
		return "traveling"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrState is returned when an emitter method is called out of order.
var ErrState = errors.New("gcode: emitter call out of order")

// Meta is one line of the header's printing information.
type Meta struct {
	Key     string
	Value   float64
	Unit    string
	Integer bool
}

// Header is written as comments at the top of the program.
type Header struct {
	Title string
	Meta  []Meta
	Notes []string
}

// Emitter builds a Program one call at a time. Construct one per job.
type Emitter struct {
	p      profile.Profile
	header Header
	prog   Program
	state  State

	pos     geom.Point
	placed  bool
	axis    float64 // E axis position, absolute mode
	primedE float64 // axis position before the pending retraction
	retract bool    // axis is retracted

	layer   int
	inLayer bool
}

// NewEmitter returns an emitter in the Init state.
func NewEmitter(p profile.Profile, h Header) *Emitter {
	return &Emitter{p: p, header: h}
}

// State returns the current lifecycle state.
func (e *Emitter) State() State {
	return e.state
}

func (e *Emitter) outOfOrder(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrState, op, e.state)
}

func (e *Emitter) add(in Instruction) {
	e.prog.Instructions = append(e.prog.Instructions, in)
}

func (e *Emitter) comment(format string, args ...any) {
	e.add(Instruction{Comment: fmt.Sprintf(format, args...)})
}

func (e *Emitter) coord(axis byte, v float64) Param {
	return Param{Axis: axis, Value: v, Digits: e.p.Precision}
}

func feed(mmPerSec float64) Param {
	return Param{Axis: 'F', Value: math.Round(mmPerSec * 60), Digits: 0}
}

func (e *Emitter) relative() bool {
	return e.p.Extrusion == profile.Relative
}

// Setup writes the header and the machine setup block.
func (e *Emitter) Setup() error {
	if e.state != StateInit {
		return e.outOfOrder("Setup")
	}
	e.writeHeader()

	e.add(Instruction{Code: "G21", Comment: "millimetres"})
	e.add(Instruction{Code: "G90", Comment: "absolute positioning"})
	if e.relative() {
		e.add(Instruction{Code: "M83", Comment: "relative extrusion"})
	} else {
		e.add(Instruction{Code: "M82", Comment: "absolute extrusion"})
	}
	if e.p.Home {
		e.add(Instruction{Code: "G28", Comment: "home"})
	}
	e.add(Instruction{Code: "G92", Params: []Param{e.coord('E', 0)}})
	e.axis = 0
	if e.p.SafeZ > 0 {
		e.add(Instruction{Code: "G0", Params: []Param{e.coord('Z', e.p.SafeZ), feed(e.p.TravelSpeed)}})
	}
	for _, l := range e.p.StartGCode {
		e.add(Instruction{Raw: l})
	}
	e.state = StateSetup
	return nil
}

func (e *Emitter) writeHeader() {
	if e.header.Title != "" {
		e.comment("%s", e.header.Title)
	}
	for _, m := range e.header.Meta {
		v := FormatFloat(m.Value, e.p.Precision)
		if m.Integer {
			v = strconv.FormatInt(int64(math.Round(m.Value)), 10)
		}
		if m.Unit != "" {
			v += " " + m.Unit
		}
		e.comment("%s: %s", m.Key, v)
	}
	for _, n := range e.header.Notes {
		e.comment("%s", n)
	}
}

func (e *Emitter) active() bool {
	return e.state == StateSetup || e.state == StatePrinting || e.state == StateTraveling
}

// BeginLayer opens a layer and records its height and flux.
func (e *Emitter) BeginLayer(index int, z float64) error {
	if !e.active() || e.inLayer {
		return e.outOfOrder("BeginLayer")
	}
	e.layer, e.inLayer = index, true
	e.comment("Start of layer %d, z=%s, flux=%s", index,
		FormatFloat(z, e.p.Precision), FormatFloat(e.p.LayerFluxFor(index), e.p.Precision))
	return nil
}

// EndLayer closes the current layer.
func (e *Emitter) EndLayer() error {
	if !e.active() || !e.inLayer {
		return e.outOfOrder("EndLayer")
	}
	e.inLayer = false
	return nil
}

// Emit writes the instructions for one segment: retraction before a
// flagged travel, priming before the first print after a retraction, and the
// move itself.
func (e *Emitter) Emit(s toolpath.Segment) error {
	if !e.active() || !e.inLayer {
		return e.outOfOrder("Emit")
	}
	if !s.Start.IsFinite() || !s.End.IsFinite() || !finite(s.E) || !finite(s.Extrusion) || !finite(s.Speed) {
		return fault.At(fault.NumericInstability, s.Layer, s.Curve,
			"non-finite segment %v -> %v (E=%g)", s.Start, s.End, s.E)
	}

	switch s.Kind {
	case toolpath.Travel:
		if s.Retract {
			e.retractAxis()
		}
		e.moveTo(s.End, s.Speed)
		e.state = StateTraveling
	case toolpath.Print:
		if s.Extrusion <= 0 && s.Length <= geom.DuplicateEpsilon {
			return nil
		}
		if !e.placed || e.pos.Distance(s.Start) > geom.DuplicateEpsilon {
			e.moveTo(s.Start, e.p.TravelSpeed)
		}
		if e.retract {
			e.primeAxis()
		}
		ev := s.E
		if e.relative() {
			ev = s.Extrusion
		}
		e.add(Instruction{Code: "G1", Params: []Param{
			e.coord('X', s.End.X), e.coord('Y', s.End.Y), e.coord('Z', s.End.Z),
			e.coord('E', ev), feed(s.Speed),
		}})
		e.axis = s.E
		e.pos, e.placed = s.End, true
		e.state = StatePrinting
	}
	return nil
}

func (e *Emitter) moveTo(p geom.Point, speed float64) {
	if e.placed && e.pos.Distance(p) <= geom.DuplicateEpsilon {
		return
	}
	e.add(Instruction{Code: "G0", Params: []Param{
		e.coord('X', p.X), e.coord('Y', p.Y), e.coord('Z', p.Z), feed(speed),
	}})
	e.pos, e.placed = p, true
}

func (e *Emitter) retractAxis() {
	d := e.p.RetractionDistance
	if e.retract || d <= 0 {
		return
	}
	e.primedE = e.axis
	v := e.axis - d
	if e.relative() {
		v = -d
	}
	e.add(Instruction{Code: "G1", Params: []Param{e.coord('E', v), feed(e.p.RetractionSpeed)}, Comment: "retract"})
	e.axis -= d
	e.retract = true
}

func (e *Emitter) primeAxis() {
	d := e.p.RetractionDistance
	v := e.primedE
	if e.relative() {
		v = d
	}
	e.add(Instruction{Code: "G1", Params: []Param{e.coord('E', v), feed(e.p.EffectivePrimeSpeed())}, Comment: "prime"})
	e.axis = e.primedE
	e.retract = false
}

// Finalize writes the end block and returns the program. It succeeds once;
// every later call on the emitter fails with ErrState.
func (e *Emitter) Finalize() (*Program, error) {
	if !e.active() {
		return nil, e.outOfOrder("Finalize")
	}
	e.inLayer = false
	e.retractAxis()
	if e.placed && e.p.EndLift > 0 {
		e.add(Instruction{Code: "G0", Params: []Param{e.coord('Z', e.pos.Z+e.p.EndLift), feed(e.p.TravelSpeed)}, Comment: "lift"})
	}
	if e.p.Home {
		e.add(Instruction{Code: "G28", Params: []Param{{Axis: 'X', Value: 0}, {Axis: 'Y', Value: 0}}, Comment: "home"})
	}
	e.add(Instruction{Code: "M84", Comment: "motors off"})
	for _, l := range e.p.EndGCode {
		e.add(Instruction{Raw: l})
	}
	e.state = StateFinalized

	prog := &Program{Instructions: append([]Instruction(nil), e.prog.Instructions...)}
	return prog, nil
}

// Render drives an emitter over segs, opening a layer whenever the layer
// index changes.
func Render(p profile.Profile, h Header, segs []toolpath.Segment) (*Program, error) {
	em := NewEmitter(p, h)
	if err := em.Setup(); err != nil {
		return nil, err
	}
	for i, s := range segs {
		if !em.inLayer || s.Layer != em.layer {
			if em.inLayer {
				if err := em.EndLayer(); err != nil {
					return nil, err
				}
			}
			if err := em.BeginLayer(s.Layer, layerZ(segs[i:])); err != nil {
				return nil, err
			}
		}
		if err := em.Emit(s); err != nil {
			return nil, err
		}
	}
	return em.Finalize()
}

// layerZ is the height of the first print segment of the layer that starts
// at segs[0], falling back to the first travel target.
func layerZ(segs []toolpath.Segment) float64 {
	for _, s := range segs {
		if s.Layer != segs[0].Layer {
			break
		}
		if s.Kind == toolpath.Print {
			return s.Start.Z
		}
	}
	return segs[0].End.Z
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
