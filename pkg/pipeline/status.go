package pipeline

import (
	"context"
	"errors"

	"github.com/chazu/loam/pkg/fault"
)

// Status is the outcome reported to a host. Layer and Curve are -1 when the
// failure is not tied to one.
type Status struct {
	OK      bool   `json:"ok" msgpack:"ok"`
	Kind    string `json:"kind,omitempty" msgpack:"kind,omitempty"`
	Layer   int    `json:"layer" msgpack:"layer"`
	Curve   int    `json:"curve" msgpack:"curve"`
	Field   string `json:"field,omitempty" msgpack:"field,omitempty"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// StatusOf converts the error returned by Run into a Status. A nil error is
// success.
func StatusOf(err error) Status {
	if err == nil {
		return Status{OK: true, Layer: -1, Curve: -1}
	}
	if fe, ok := fault.As(err); ok {
		return Status{
			Kind:    fe.Kind.String(),
			Layer:   fe.Layer,
			Curve:   fe.Curve,
			Field:   fe.Field,
			Message: err.Error(),
		}
	}
	kind := "Internal"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = "Canceled"
	}
	return Status{Kind: kind, Layer: -1, Curve: -1, Message: err.Error()}
}
