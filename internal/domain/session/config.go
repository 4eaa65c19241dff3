package session

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Config holds the session durations and cycle pattern.
// Durations are in minutes.
type Config struct {
	WorkMinutes           int  `yaml:"work_minutes" default:"25" validate:"gte=1"`
	ShortBreakMinutes     int  `yaml:"short_break_minutes" default:"5" validate:"gte=1"`
	LongBreakMinutes      int  `yaml:"long_break_minutes" default:"15" validate:"gte=1"`
	CyclesBeforeLongBreak int  `yaml:"cycles_before_long_break" default:"4" validate:"gte=1"`
	WaitForInput          bool `yaml:"wait_for_input"`
}

// DefaultConfig returns the stock 25/5/15 pattern with a long break every 4 cycles.
// Phases advance automatically.
func DefaultConfig() Config {
	return Config{
		WorkMinutes:           25,
		ShortBreakMinutes:     5,
		LongBreakMinutes:      15,
		CyclesBeforeLongBreak: 4,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid session config")
	}
	return nil
}

// DurationSeconds returns the configured length of a phase in seconds.
// AWAITING_INPUT has no duration of its own.
func (c Config) DurationSeconds(p Phase) int {
	switch p {
	case PhaseWork:
		return c.WorkMinutes * 60
	case PhaseShortBreak:
		return c.ShortBreakMinutes * 60
	case PhaseLongBreak:
		return c.LongBreakMinutes * 60
	default:
		return 0
	}
}

// Provider supplies the current session configuration.
type Provider interface {
	SessionConfig() Config
}

// StaticProvider is a Provider that always returns the same Config.
type StaticProvider Config

// SessionConfig implements Provider.
func (p StaticProvider) SessionConfig() Config {
	return Config(p)
}
