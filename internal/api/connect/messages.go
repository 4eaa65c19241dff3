package connect

import (
	"time"

	"github.com/osa030/freetime/internal/domain/session"
)

// CommandRequest is the request for every command and GetSnapshot.
type CommandRequest struct{}

// Snapshot is the wire form of session.Snapshot.
type Snapshot struct {
	RemainingSeconds int    `json:"remainingSeconds"`
	Phase            string `json:"phase"`
	Running          bool   `json:"running"`
	Status           string `json:"status"`
	CycleIndex       int    `json:"cycleIndex"`
}

// CommandResponse reports the state after a command. Applied is false when
// the command was not valid for the current status; Message says why.
type CommandResponse struct {
	Snapshot Snapshot `json:"snapshot"`
	Applied  bool     `json:"applied"`
	Message  string   `json:"message,omitempty"`
}

// WatchRequest starts a snapshot and completion stream.
type WatchRequest struct{}

// Completion is the wire form of session.Completion.
type Completion struct {
	Seq     uint64    `json:"seq"`
	Ended   string    `json:"ended"`
	Started string    `json:"started"`
	At      time.Time `json:"at"`
}

// WatchEvent carries exactly one of Snapshot or Completion.
type WatchEvent struct {
	Snapshot   *Snapshot   `json:"snapshot,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// SnapshotFrom converts a session snapshot to its wire form.
func SnapshotFrom(s session.Snapshot) Snapshot {
	return Snapshot{
		RemainingSeconds: s.RemainingSeconds,
		Phase:            s.Phase.String(),
		Running:          s.Running,
		Status:           s.Status.String(),
		CycleIndex:       s.CycleIndex,
	}
}

// CompletionFrom converts a session completion to its wire form.
func CompletionFrom(c session.Completion) Completion {
	return Completion{
		Seq:     c.Seq,
		Ended:   c.Ended.String(),
		Started: c.Started.String(),
		At:      c.At,
	}
}
