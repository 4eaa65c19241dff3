package timer

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/infra/checkpoint"
)

// pendingWrite is the checkpoint operation that has not yet succeeded.
type pendingWrite int

const (
	pendingNone pendingWrite = iota
	pendingSave
	pendingClear
)

// persist schedules a save of the current state and attempts it.
func (c *Controller) persist(ctx context.Context) {
	c.pending = pendingSave
	c.cleared = false
	c.flush(ctx)
}

// clear schedules removal of the checkpoint and attempts it.
func (c *Controller) clear(ctx context.Context) {
	c.pending = pendingClear
	c.cleared = true
	c.flush(ctx)
}

// flush performs the pending write. On failure the write stays pending: a
// running timer rewrites on the next tick, an idle one arms the retry timer.
func (c *Controller) flush(ctx context.Context) {
	var err error
	switch c.pending {
	case pendingNone:
		return
	case pendingSave:
		err = c.store.Save(ctx, c.record())
	case pendingClear:
		err = c.store.Clear(ctx)
	}

	if err == nil {
		if c.failures > 0 {
			zlog.Info().Msgf("timer: checkpoint write recovered: failures=%d", c.failures)
		}
		c.pending = pendingNone
		c.failures = 0
		c.retry = nil
		return
	}

	c.failures++
	zlog.Warn().Err(err).Msgf("timer: checkpoint write failed, will retry: failures=%d", c.failures)
	if c.ticker == nil && c.retry == nil {
		c.retry = c.clock.After(c.config.RetryInterval)
	}
}

func (c *Controller) record() checkpoint.Record {
	s := c.machine.State()
	return checkpoint.Record{
		PhaseIndex:       int(s.Phase),
		RemainingSeconds: s.RemainingSeconds,
		CycleIndex:       s.CycleIndex,
		Status:           s.Status.String(),
		NextPhaseIndex:   int(s.Next),
		WrittenAt:        c.clock.Now().UTC(),
	}
}
