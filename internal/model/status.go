package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Phase is a position in the job lifecycle.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseScanning
	PhaseScanComplete
	PhaseScraping
	PhaseScrapeComplete
	PhaseEmails
	PhaseEmailsComplete
	PhaseExporting
	PhaseComplete
)

var phaseNames = [...]string{
	PhaseCreated:        "created",
	PhaseScanning:       "scanning",
	PhaseScanComplete:   "scan_complete",
	PhaseScraping:       "scraping",
	PhaseScrapeComplete: "scrape_complete",
	PhaseEmails:         "emails",
	PhaseEmailsComplete: "emails_complete",
	PhaseExporting:      "exporting",
	PhaseComplete:       "complete",
}

const interruptedSuffix = "_interrupted"

// String returns the wire label of the phase.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// InProgress reports whether the phase claims an active stage.
func (p Phase) InProgress() bool {
	switch p {
	case PhaseScanning, PhaseScraping, PhaseEmails, PhaseExporting:
		return true
	default:
		return false
	}
}

// Status is a phase plus a degraded flag set when the recorded phase claimed
// activity that no persisted artifact backs.
type Status struct {
	Phase       Phase
	Interrupted bool
}

// StatusOf returns a live (non-interrupted) status for p.
func StatusOf(p Phase) Status { return Status{Phase: p} }

// String renders the status label, e.g. "scraping" or "scraping_interrupted".
func (s Status) String() string {
	if s.Interrupted {
		return s.Phase.String() + interruptedSuffix
	}
	return s.Phase.String()
}

// Is reports whether s is exactly the live phase p.
func (s Status) Is(p Phase) bool { return !s.Interrupted && s.Phase == p }

// In reports whether s is one of the given live phases.
func (s Status) In(phases ...Phase) bool {
	for _, p := range phases {
		if s.Is(p) {
			return true
		}
	}
	return false
}

// Interrupt marks an in-progress status as interrupted. Other statuses are
// returned unchanged.
func (s Status) Interrupt() Status {
	if s.Interrupted || !s.Phase.InProgress() {
		return s
	}
	return Status{Phase: s.Phase, Interrupted: true}
}

// ParseStatus converts a label into a Status. An empty label is "created".
func ParseStatus(label string) (Status, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return StatusOf(PhaseCreated), nil
	}
	interrupted := false
	if base, ok := strings.CutSuffix(label, interruptedSuffix); ok {
		label = base
		interrupted = true
	}
	for i, name := range phaseNames {
		if name != label {
			continue
		}
		s := Status{Phase: Phase(i)}
		if interrupted {
			if !s.Phase.InProgress() {
				return Status{}, eris.Errorf("status: %q cannot be interrupted", name)
			}
			s.Interrupted = true
		}
		return s, nil
	}
	return Status{}, eris.Errorf("status: unknown label %q", label)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
