// Package checkpoint provides durable storage for the timer checkpoint.
package checkpoint

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Key is the fixed identifier the checkpoint is stored under.
const Key = "session"

// Errors
var (
	ErrNotFound = errors.New("checkpoint not found")
	ErrCorrupt  = errors.New("checkpoint corrupt")
)

// Record is the persisted subset of the timer state.
type Record struct {
	PhaseIndex       int       `yaml:"phase_index" validate:"gte=0,lte=3"`
	RemainingSeconds int       `yaml:"remaining_seconds" validate:"gte=1"`
	CycleIndex       int       `yaml:"cycle_index" validate:"gte=0"`
	Status           string    `yaml:"status" validate:"oneof=STOPPED RUNNING PAUSED"`
	NextPhaseIndex   int       `yaml:"next_phase_index" validate:"gte=0,lte=3"`
	WrittenAt        time.Time `yaml:"written_at" validate:"required"`
}

// Validate checks the record for values no healthy writer produces.
// A failure is reported as ErrCorrupt.
func (r Record) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return errors.Mark(errors.Wrap(err, "checkpoint validation failed"), ErrCorrupt)
	}
	return nil
}

// Store persists a single checkpoint record. Only one writer is expected.
type Store interface {
	// Save overwrites the stored record.
	Save(ctx context.Context, r Record) error
	// Load returns the stored record, ErrNotFound if none exists, or
	// ErrCorrupt if it cannot be decoded or fails validation.
	Load(ctx context.Context) (Record, error)
	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// Close releases the underlying resources.
	Close() error
}
