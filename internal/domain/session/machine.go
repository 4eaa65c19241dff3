package session

import "github.com/cockroachdb/errors"

// ErrInvalidCommand marks commands that are not valid for the current status.
// They are reported as no-ops and never change state.
var ErrInvalidCommand = errors.New("invalid command for current status")

// Errors
var (
	ErrAlreadyRunning = errors.Mark(errors.New("timer already running"), ErrInvalidCommand)
	ErrNotRunning     = errors.Mark(errors.New("timer not running"), ErrInvalidCommand)
	ErrNotPaused      = errors.Mark(errors.New("timer not paused"), ErrInvalidCommand)
	ErrInvalidState   = errors.New("invalid timer state")
)

// State is the full mutable state of the machine.
type State struct {
	Phase            Phase
	RemainingSeconds int
	CycleIndex       int // Completed work phases in the current set
	Status           Status
	Next             Phase // Phase to enter when leaving AWAITING_INPUT
}

// TickKind distinguishes what a tick did.
type TickKind int

const (
	TickIgnored    TickKind = iota // Not running, nothing changed
	TickElapsed                    // Remaining time decreased
	TickTransition                 // A phase ended and another began
)

// Tick is the result of applying one tick.
type Tick struct {
	Kind    TickKind
	Ended   Phase // Set for TickTransition
	Started Phase // Set for TickTransition
}

// Machine applies ticks and commands to a State.
// It performs no I/O and is not safe for concurrent use.
type Machine struct {
	settings Provider
	state    State
}

// NewMachine creates a stopped machine at the start of a work phase.
func NewMachine(settings Provider) *Machine {
	m := &Machine{settings: settings}
	m.Reset()
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state
}

// Snapshot returns an observer view of the current state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		RemainingSeconds: m.state.RemainingSeconds,
		Phase:            m.state.Phase,
		Running:          m.state.Status == StatusRunning,
		Status:           m.state.Status,
		CycleIndex:       m.state.CycleIndex,
	}
}

// OnTick consumes one second. Ticks are ignored unless the timer is running.
func (m *Machine) OnTick() Tick {
	if m.state.Status != StatusRunning {
		return Tick{Kind: TickIgnored}
	}

	m.state.RemainingSeconds--
	if m.state.RemainingSeconds > 0 {
		return Tick{Kind: TickElapsed}
	}

	return m.advance()
}

// advance moves to the next phase of the cycle. Configuration is read here,
// so a change made mid-phase takes effect only from the next phase on.
func (m *Machine) advance() Tick {
	cfg := m.settings.SessionConfig()
	ended := m.state.Phase

	var next Phase
	switch ended {
	case PhaseWork:
		m.state.CycleIndex++
		if m.state.CycleIndex >= cfg.CyclesBeforeLongBreak {
			next = PhaseLongBreak
		} else {
			next = PhaseShortBreak
		}
	case PhaseLongBreak:
		m.state.CycleIndex = 0
		next = PhaseWork
	default:
		next = PhaseWork
	}

	m.state.Next = next
	m.state.RemainingSeconds = cfg.DurationSeconds(next)

	if cfg.WaitForInput {
		m.state.Phase = PhaseAwaitingInput
		m.state.Status = StatusPaused
		return Tick{Kind: TickTransition, Ended: ended, Started: PhaseAwaitingInput}
	}

	m.state.Phase = next
	return Tick{Kind: TickTransition, Ended: ended, Started: next}
}

// Start runs the timer. From STOPPED it begins a fresh work phase; from
// PAUSED it continues with the remaining time unchanged.
func (m *Machine) Start() error {
	switch m.state.Status {
	case StatusRunning:
		return ErrAlreadyRunning
	case StatusPaused:
		m.enterRunning()
		return nil
	}

	cfg := m.settings.SessionConfig()
	m.state.Phase = PhaseWork
	m.state.Next = PhaseWork
	m.state.RemainingSeconds = cfg.DurationSeconds(PhaseWork)
	m.state.Status = StatusRunning
	return nil
}

// Pause freezes the remaining time.
func (m *Machine) Pause() error {
	if m.state.Status != StatusRunning {
		return ErrNotRunning
	}
	m.state.Status = StatusPaused
	return nil
}

// Resume continues a paused timer.
func (m *Machine) Resume() error {
	if m.state.Status != StatusPaused {
		return ErrNotPaused
	}
	m.enterRunning()
	return nil
}

func (m *Machine) enterRunning() {
	if m.state.Phase == PhaseAwaitingInput {
		cfg := m.settings.SessionConfig()
		m.state.Phase = m.state.Next
		m.state.RemainingSeconds = cfg.DurationSeconds(m.state.Next)
	}
	m.state.Status = StatusRunning
}

// Reset returns to a stopped, fresh work phase with the cycle cleared.
func (m *Machine) Reset() {
	cfg := m.settings.SessionConfig()
	m.state = State{
		Phase:            PhaseWork,
		RemainingSeconds: cfg.DurationSeconds(PhaseWork),
		CycleIndex:       0,
		Status:           StatusStopped,
		Next:             PhaseWork,
	}
}

// Stop halts the timer, keeping phase and remaining time.
func (m *Machine) Stop() {
	m.state.Status = StatusStopped
}

// Restore replaces the state wholesale, e.g. from a checkpoint.
func (m *Machine) Restore(s State) error {
	if !s.Phase.Valid() {
		return errors.Wrapf(ErrInvalidState, "phase %d", int(s.Phase))
	}
	if s.RemainingSeconds <= 0 {
		return errors.Wrapf(ErrInvalidState, "remaining seconds %d", s.RemainingSeconds)
	}
	if s.CycleIndex < 0 {
		return errors.Wrapf(ErrInvalidState, "cycle index %d", s.CycleIndex)
	}
	if s.Status < StatusStopped || s.Status > StatusPaused {
		return errors.Wrapf(ErrInvalidState, "status %d", int(s.Status))
	}
	if s.Phase != PhaseAwaitingInput {
		s.Next = s.Phase
	} else if !s.Next.Valid() || s.Next == PhaseAwaitingInput {
		return errors.Wrapf(ErrInvalidState, "pending phase %d", int(s.Next))
	}

	m.state = s
	return nil
}
