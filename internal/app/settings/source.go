// Package settings holds the live session configuration.
package settings

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/domain/session"
)

// Source is a swappable session configuration. Readers always observe a
// complete, validated Config.
type Source struct {
	current atomic.Pointer[session.Config]
}

// New creates a Source holding cfg. An invalid cfg falls back to the defaults.
func New(cfg session.Config) *Source {
	s := &Source{}
	if err := cfg.Validate(); err != nil {
		zlog.Warn().Err(err).Msg("settings: invalid initial config, using defaults")
		cfg = session.DefaultConfig()
	}
	s.current.Store(&cfg)
	return s
}

// SessionConfig implements session.Provider.
func (s *Source) SessionConfig() session.Config {
	return *s.current.Load()
}

// Update replaces the configuration. The running phase keeps its remaining
// time; the new values apply from the next phase boundary.
func (s *Source) Update(cfg session.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "settings update rejected")
	}
	prev := s.current.Swap(&cfg)
	if *prev != cfg {
		zlog.Info().Msgf("settings: updated work=%d short=%d long=%d cycles=%d wait=%v",
			cfg.WorkMinutes, cfg.ShortBreakMinutes, cfg.LongBreakMinutes, cfg.CyclesBeforeLongBreak, cfg.WaitForInput)
	}
	return nil
}
