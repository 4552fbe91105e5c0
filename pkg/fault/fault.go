// Package fault defines the error taxonomy shared by every stage of the
// toolpath pipeline. A job either completes or fails with exactly one
// *Error whose Kind tells the host what went wrong and where.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	InvalidInput       Kind = iota + 1 // malformed or empty curve/layer data
	ConfigError                        // profile values out of range
	NumericInstability                 // a computed value is non-finite
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ConfigError:
		return "ConfigError"
	case NumericInstability:
		return "NumericInstability"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("configuration error")
	ErrNumeric      = errors.New("numeric instability")
)

func (k Kind) sentinel() error {
	switch k {
	case InvalidInput:
		return ErrInvalidInput
	case ConfigError:
		return ErrConfig
	case NumericInstability:
		return ErrNumeric
	}
	return nil
}

// Error is the structured failure reported to the host. Layer and Curve are
// -1 when the failure is not tied to a specific layer or curve.
type Error struct {
	Kind     Kind
	Layer    int
	Curve    int
	Field    string
	Message  string
	Findings []Finding // all blocking findings when produced by validation
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if loc := location(e.Layer, e.Curve, e.Field); loc != "" {
		b.WriteString(" (")
		b.WriteString(loc)
		b.WriteString(")")
	}
	return b.String()
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New returns an *Error of the given kind that is not tied to a layer or curve.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Layer: -1, Curve: -1, Message: fmt.Sprintf(format, args...)}
}

// At returns an *Error tied to a layer and curve index.
func At(kind Kind, layer, curve int, format string, args ...any) *Error {
	return &Error{Kind: kind, Layer: layer, Curve: curve, Message: fmt.Sprintf(format, args...)}
}

// As extracts the *Error from err's chain, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or 0 when err carries none.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return 0
}

func location(layer, curve int, field string) string {
	var parts []string
	if field != "" {
		parts = append(parts, "field "+field)
	}
	if layer >= 0 {
		parts = append(parts, fmt.Sprintf("layer %d", layer))
	}
	if curve >= 0 {
		parts = append(parts, fmt.Sprintf("curve %d", curve))
	}
	return strings.Join(parts, ", ")
}
