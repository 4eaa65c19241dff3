// Package session provides the focus session state machine.
package session

import "github.com/cockroachdb/errors"

// Phase represents one segment of the work/break cycle.
// The integer value is the persisted phase index.
type Phase int

const (
	PhaseWork          Phase = iota // Focus time
	PhaseShortBreak                 // Short break between work phases
	PhaseLongBreak                  // Long break after a full set of work phases
	PhaseAwaitingInput              // Phase ended, waiting for the user to continue
)

// ErrUnknownPhase is returned when a phase index is out of range.
var ErrUnknownPhase = errors.New("unknown phase")

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWork:
		return "WORK"
	case PhaseShortBreak:
		return "SHORT_BREAK"
	case PhaseLongBreak:
		return "LONG_BREAK"
	case PhaseAwaitingInput:
		return "AWAITING_INPUT"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	return p >= PhaseWork && p <= PhaseAwaitingInput
}

// IsBreak reports whether p is a short or long break.
func (p Phase) IsBreak() bool {
	return p == PhaseShortBreak || p == PhaseLongBreak
}

// PhaseFromIndex converts a persisted phase index back into a Phase.
func PhaseFromIndex(index int) (Phase, error) {
	p := Phase(index)
	if !p.Valid() {
		return 0, errors.Wrapf(ErrUnknownPhase, "index %d", index)
	}
	return p, nil
}

// Status represents the running state of the timer.
type Status int

const (
	StatusStopped Status = iota // Idle, resumable
	StatusRunning               // Consuming ticks
	StatusPaused                // Suspended, remaining time frozen
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "STOPPED"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "STOPPED":
		return StatusStopped, nil
	case "RUNNING":
		return StatusRunning, nil
	case "PAUSED":
		return StatusPaused, nil
	default:
		return 0, errors.Newf("unknown status: %q", name)
	}
}
