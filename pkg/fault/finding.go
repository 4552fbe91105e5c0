package fault

import "fmt"

// Severity indicates whether a validation finding blocks the job or is
// merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks the job
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding describes a single validation result.
type Finding struct {
	Severity Severity
	Layer    int    // -1 if not layer-specific
	Curve    int    // -1 if not curve-specific
	Field    string // profile field, if any
	Message  string
}

func (f Finding) String() string {
	if loc := location(f.Layer, f.Curve, f.Field); loc != "" {
		return fmt.Sprintf("[%s] %s: %s", f.Severity, loc, f.Message)
	}
	return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
}

// Errorf returns an error-severity finding.
func Errorf(layer, curve int, field, format string, args ...any) Finding {
	return Finding{Severity: SeverityError, Layer: layer, Curve: curve, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Warnf returns a warning-severity finding.
func Warnf(layer, curve int, field, format string, args ...any) Finding {
	return Finding{Severity: SeverityWarning, Layer: layer, Curve: curve, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Split separates blocking findings from warnings, preserving order.
func Split(findings []Finding) (errs, warnings []Finding) {
	for _, f := range findings {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		} else {
			warnings = append(warnings, f)
		}
	}
	return errs, warnings
}

// Check converts the blocking findings into a single *Error of the given
// kind, located at the first blocking finding. It returns nil when no
// finding blocks.
func Check(kind Kind, findings []Finding) *Error {
	errs, _ := Split(findings)
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	msg := first.Message
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return &Error{
		Kind:     kind,
		Layer:    first.Layer,
		Curve:    first.Curve,
		Field:    first.Field,
		Message:  msg,
		Findings: errs,
	}
}
