// Package timer provides the timer controller: the single goroutine that owns
// the session state machine, drives it from the clock, checkpoints it and
// publishes snapshots.
package timer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/app/notification"
	"github.com/osa030/freetime/internal/domain/session"
	"github.com/osa030/freetime/internal/infra/checkpoint"
	"github.com/osa030/freetime/internal/infra/clock"
)

// Errors
var (
	ErrClosed         = errors.New("timer controller closed")
	ErrAlreadyStarted = errors.New("timer controller already started")
)

// Config holds controller configuration.
type Config struct {
	TickInterval  time.Duration // Interval between ticks, one second in production
	RetryInterval time.Duration // Delay before retrying a failed checkpoint write while idle
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Clock     clock.Clock
	Store     checkpoint.Store
	Settings  session.Provider
	Observers *notification.Manager
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdReset
	cmdStop
	cmdSnapshot
	cmdSubscribe
	cmdUnsubscribe
	cmdShutdown
)

// String returns the command name used in logs.
func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdReset:
		return "reset"
	case cmdStop:
		return "stop"
	case cmdSnapshot:
		return "snapshot"
	case cmdSubscribe:
		return "subscribe"
	case cmdUnsubscribe:
		return "unsubscribe"
	case cmdShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type request struct {
	kind     commandKind
	observer notification.Observer
	id       string
	reply    chan response
}

type response struct {
	snapshot session.Snapshot
	id       string
	err      error
}

// Controller serializes ticks and commands against a session.Machine.
// All mutation happens on the goroutine running Run.
type Controller struct {
	config    Config
	clock     clock.Clock
	store     checkpoint.Store
	observers *notification.Manager
	machine   *session.Machine
	source    string

	requests chan request
	done     chan struct{}
	started  atomic.Bool

	// Owned by the Run goroutine.
	ticker   clock.Ticker
	pending  pendingWrite
	failures int
	retry    <-chan time.Time
	cleared  bool
	seq      uint64
}

// New creates a new controller. Recover must be called before Run.
func New(config Config, deps Deps) *Controller {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewReal()
	}
	if deps.Observers == nil {
		deps.Observers = notification.NewManager(0)
	}

	return &Controller{
		config:    config,
		clock:     deps.Clock,
		store:     deps.Store,
		observers: deps.Observers,
		machine:   session.NewMachine(deps.Settings),
		source:    uuid.New().String(),
		requests:  make(chan request),
		done:      make(chan struct{}),
	}
}

// Recover restores the state from the last checkpoint. A valid checkpoint is
// restored paused, whatever its recorded status; a missing or unreadable one
// leaves a fresh reset state. Recover never fails on checkpoint problems.
func (c *Controller) Recover(ctx context.Context) (session.Snapshot, error) {
	if c.started.Load() {
		return session.Snapshot{}, errors.Wrap(ErrAlreadyStarted, "recover must precede run")
	}

	rec, err := c.store.Load(ctx)
	switch {
	case err == nil:
		if err := c.restore(rec); err != nil {
			zlog.Warn().Err(err).Msg("timer: checkpoint rejected, starting fresh")
			break
		}
		snap := c.machine.Snapshot()
		zlog.Info().Msgf("timer: recovered: phase=%s remaining=%d cycle=%d written_at=%s",
			snap.Phase, snap.RemainingSeconds, snap.CycleIndex, rec.WrittenAt.Format(time.RFC3339))
		return snap, nil
	case errors.Is(err, checkpoint.ErrNotFound):
		zlog.Info().Msg("timer: no checkpoint, starting fresh")
	case errors.Is(err, checkpoint.ErrCorrupt):
		zlog.Warn().Err(err).Msg("timer: corrupt checkpoint, starting fresh")
	default:
		zlog.Warn().Err(err).Msg("timer: failed to load checkpoint, starting fresh")
	}

	c.machine.Reset()
	return c.machine.Snapshot(), nil
}

func (c *Controller) restore(rec checkpoint.Record) error {
	phase, err := session.PhaseFromIndex(rec.PhaseIndex)
	if err != nil {
		return err
	}
	next, err := session.PhaseFromIndex(rec.NextPhaseIndex)
	if err != nil {
		return err
	}
	// A restart never auto-resumes: time spent dead is not charged.
	return c.machine.Restore(session.State{
		Phase:            phase,
		RemainingSeconds: rec.RemainingSeconds,
		CycleIndex:       rec.CycleIndex,
		Status:           session.StatusPaused,
		Next:             next,
	})
}

// Run processes ticks and commands until ctx is cancelled or Shutdown is
// called. It may be called only once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(c.done)

	zlog.Info().Msgf("timer: loop started: tick=%s", c.config.TickInterval)
	c.syncTicker()

	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C()
		}

		select {
		case <-ctx.Done():
			c.stopTicker()
			c.flush(context.Background())
			zlog.Info().Msg("timer: loop cancelled")
			return ctx.Err()

		case <-tickC:
			c.onTick(ctx)

		case <-c.retry:
			c.retry = nil
			c.flush(ctx)

		case req := <-c.requests:
			resp := c.handle(ctx, req)
			req.reply <- resp
			if req.kind == cmdShutdown {
				zlog.Info().Msg("timer: loop stopped")
				return nil
			}
		}
	}
}

func (c *Controller) onTick(ctx context.Context) {
	tick := c.machine.OnTick()
	switch tick.Kind {
	case session.TickIgnored:
		return

	case session.TickTransition:
		c.seq++
		completion := session.Completion{
			Source:  c.source,
			Seq:     c.seq,
			Ended:   tick.Ended,
			Started: tick.Started,
			At:      c.clock.Now(),
		}
		zlog.Info().Msgf("timer: phase complete: ended=%s started=%s seq=%d", tick.Ended, tick.Started, c.seq)

		c.syncTicker()
		c.persist(ctx)
		c.observers.Broadcast(c.machine.Snapshot())
		c.observers.Complete(completion)

	case session.TickElapsed:
		c.persist(ctx)
		c.observers.Broadcast(c.machine.Snapshot())
	}
}

func (c *Controller) handle(ctx context.Context, req request) response {
	var err error
	switch req.kind {
	case cmdStart:
		err = c.machine.Start()
	case cmdPause:
		err = c.machine.Pause()
	case cmdResume:
		err = c.machine.Resume()
	case cmdReset:
		c.machine.Reset()
	case cmdStop:
		c.machine.Stop()

	case cmdSnapshot:
		return response{snapshot: c.machine.Snapshot()}

	case cmdSubscribe:
		snap := c.machine.Snapshot()
		id := c.observers.Subscribe(req.observer)
		if err := c.observers.Send(id, snap); err != nil {
			zlog.Warn().Err(err).Msgf("timer: initial snapshot failed: subscription=%s", id)
		}
		zlog.Debug().Msgf("timer: subscribed: id=%s", id)
		return response{snapshot: snap, id: id}

	case cmdUnsubscribe:
		c.observers.Unsubscribe(req.id)
		zlog.Debug().Msgf("timer: unsubscribed: id=%s", req.id)
		return response{snapshot: c.machine.Snapshot()}

	case cmdShutdown:
		c.stopTicker()
		c.machine.Stop()
		if !c.cleared {
			c.pending = pendingSave
		}
		c.flush(ctx)
		snap := c.machine.Snapshot()
		zlog.Info().Msgf("timer: shut down: phase=%s remaining=%d", snap.Phase, snap.RemainingSeconds)
		return response{snapshot: snap}
	}

	snap := c.machine.Snapshot()
	if err != nil {
		zlog.Debug().Msgf("timer: %s ignored: status=%s", req.kind, snap.Status)
		return response{snapshot: snap, err: err}
	}

	zlog.Info().Msgf("timer: %s: phase=%s remaining=%d status=%s", req.kind, snap.Phase, snap.RemainingSeconds, snap.Status)
	c.syncTicker()
	if req.kind == cmdReset {
		c.clear(ctx)
	} else {
		c.persist(ctx)
	}
	c.observers.Broadcast(snap)
	return response{snapshot: snap}
}

// syncTicker holds a ticker exactly while the machine is running.
func (c *Controller) syncTicker() {
	running := c.machine.State().Status == session.StatusRunning
	switch {
	case running && c.ticker == nil:
		c.ticker = c.clock.NewTicker(c.config.TickInterval)
	case !running && c.ticker != nil:
		c.stopTicker()
	}
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) call(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)

	select {
	case c.requests <- req:
	case <-c.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (c *Controller) command(ctx context.Context, kind commandKind) (session.Snapshot, error) {
	resp, err := c.call(ctx, request{kind: kind})
	if err != nil {
		return session.Snapshot{}, err
	}
	return resp.snapshot, resp.err
}

// Start starts or continues the timer. An invalid command returns the
// current snapshot and an error marked session.ErrInvalidCommand.
func (c *Controller) Start(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdStart)
}

// Pause pauses a running timer.
func (c *Controller) Pause(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdPause)
}

// Resume continues a paused timer.
func (c *Controller) Resume(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdResume)
}

// Reset returns to a fresh, stopped work phase and clears the checkpoint.
func (c *Controller) Reset(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdReset)
}

// Stop stops the timer, keeping phase and remaining time.
func (c *Controller) Stop(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdStop)
}

// Snapshot returns a consistent copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (session.Snapshot, error) {
	return c.command(ctx, cmdSnapshot)
}

// Subscribe registers an observer. It receives the current snapshot before
// Subscribe returns and every published snapshot afterwards.
func (c *Controller) Subscribe(ctx context.Context, o notification.Observer) (string, error) {
	resp, err := c.call(ctx, request{kind: cmdSubscribe, observer: o})
	if err != nil {
		return "", err
	}
	return resp.id, nil
}

// Unsubscribe removes an observer.
func (c *Controller) Unsubscribe(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{kind: cmdUnsubscribe, id: id})
	return err
}

// AddNotifier registers a completion notifier.
func (c *Controller) AddNotifier(n notification.Notifier) string {
	return c.observers.AddNotifier(n)
}

// RemoveNotifier removes a completion notifier.
func (c *Controller) RemoveNotifier(id string) {
	c.observers.RemoveNotifier(id)
}

// Shutdown stops the ticker, stops the machine and writes a final
// checkpoint, then ends Run. The store stays open for the owner to close.
// Calling Shutdown after Run has ended is a no-op.
func (c *Controller) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, request{kind: cmdShutdown})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
