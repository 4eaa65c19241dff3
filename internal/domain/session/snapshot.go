package session

import "time"

// Snapshot is an immutable copy of the timer state handed to observers.
type Snapshot struct {
	RemainingSeconds int
	Phase            Phase
	Running          bool
	Status           Status
	CycleIndex       int
}

// Completion signals the end of one phase and the start of the next.
type Completion struct {
	Source  string // Controller that produced it
	Seq     uint64 // Monotonic per source
	Ended   Phase
	Started Phase
	At      time.Time
}
