// Package gcode serializes annotated motion segments into a G-code program.
// The Emitter is the only place where coordinates and extrusion values are
// rounded: every number is written with a fixed number of decimals so the
// output is bounded and diffable.
package gcode

import (
	"io"
	"strconv"
	"strings"
)

// Param is one axis word such as X12.500 or F2400.
type Param struct {
	Axis   byte
	Value  float64
	Digits int
}

func (p Param) String() string {
	return string(p.Axis) + FormatFloat(p.Value, p.Digits)
}

// Instruction is one program line. A line is either a command with
// parameters, a comment, or a raw user line copied verbatim.
type Instruction struct {
	Code    string // G0, G1, G92, M82 ... empty for a comment-only line
	Params  []Param
	Comment string
	Raw     string
}

// IsMove reports whether the instruction is a linear move.
func (in Instruction) IsMove() bool {
	return in.Code == "G0" || in.Code == "G1"
}

// Param returns the value of the given axis word, if present.
func (in Instruction) Param(axis byte) (float64, bool) {
	for _, p := range in.Params {
		if p.Axis == axis {
			return p.Value, true
		}
	}
	return 0, false
}

func (in Instruction) String() string {
	if in.Raw != "" {
		return in.Raw
	}
	var b strings.Builder
	b.WriteString(in.Code)
	for _, p := range in.Params {
		b.WriteByte(' ')
		b.WriteString(p.String())
	}
	if in.Comment != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("; ")
		b.WriteString(in.Comment)
	}
	return b.String()
}

// FormatFloat writes v with exactly digits decimals. Negative zero is
// written without a sign.
func FormatFloat(v float64, digits int) string {
	s := strconv.FormatFloat(v, 'f', digits, 64)
	if s[0] == '-' && strings.Trim(s[1:], "0.") == "" {
		s = s[1:]
	}
	return s
}

// Program is the finished, ordered instruction stream.
type Program struct {
	Instructions []Instruction
}

// Len returns the number of lines.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// Moves returns the linear moves in order.
func (p *Program) Moves() []Instruction {
	var out []Instruction
	for _, in := range p.Instructions {
		if in.IsMove() {
			out = append(out, in)
		}
	}
	return out
}

// Lines returns the serialized lines.
func (p *Program) Lines() []string {
	out := make([]string, len(p.Instructions))
	for i, in := range p.Instructions {
		out[i] = in.String()
	}
	return out
}

// Text returns the program as newline-terminated lines.
func (p *Program) Text() string {
	var b strings.Builder
	for _, in := range p.Instructions {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteTo writes the program text to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, in := range p.Instructions {
		k, err := io.WriteString(w, in.String()+"\n")
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
