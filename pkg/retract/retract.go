// Package retract decides where the feed is pulled back before a travel and
// pushed forward again before printing resumes.
package retract

import (
	"github.com/chazu/loam/pkg/profile"
	"github.com/chazu/loam/pkg/toolpath"
)

// Needed reports whether a travel of the given length triggers retraction.
// A zero threshold retracts on every travel.
func Needed(length, threshold float64) bool {
	return threshold == 0 || length > threshold
}

// Manager carries the retraction state of one job. The axis is either primed
// or retracted; a retraction is only issued from the primed state and a
// prime only from the retracted state, so back-to-back travels never pull
// the feed twice.
type Manager struct {
	p         profile.Profile
	retracted bool
	count     int
}

// New returns a Manager for p, starting primed.
func New(p profile.Profile) *Manager {
	return &Manager{p: p}
}

// Apply sets Retract on travels that need it and Prime on the print segment
// that follows each retraction. It returns the number of retractions added
// by this call. A zero retraction distance disables retraction.
func (m *Manager) Apply(segs []toolpath.Segment) int {
	if m.p.RetractionDistance <= 0 {
		return 0
	}
	before := m.count
	for i := range segs {
		s := &segs[i]
		switch s.Kind {
		case toolpath.Travel:
			if !m.retracted && Needed(s.Length, m.p.TravelThreshold) {
				s.Retract = true
				m.retracted = true
				m.count++
			}
		case toolpath.Print:
			if m.retracted {
				s.Prime = true
				m.retracted = false
			}
		}
	}
	return m.count - before
}

// Retracted reports whether the axis is retracted after the segments seen so
// far.
func (m *Manager) Retracted() bool {
	return m.retracted
}

// Count returns the total number of retractions issued.
func (m *Manager) Count() int {
	return m.count
}
