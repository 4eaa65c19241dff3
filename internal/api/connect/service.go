package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/app/notification"
	"github.com/osa030/freetime/internal/app/timer"
	"github.com/osa030/freetime/internal/domain/session"
)

// ServiceName is the fully-qualified name of the timer service.
const ServiceName = "freetime.timer.v1.TimerService"

// Procedure paths.
const (
	StartProcedure       = "/" + ServiceName + "/Start"
	PauseProcedure       = "/" + ServiceName + "/Pause"
	ResumeProcedure      = "/" + ServiceName + "/Resume"
	ResetProcedure       = "/" + ServiceName + "/Reset"
	StopProcedure        = "/" + ServiceName + "/Stop"
	GetSnapshotProcedure = "/" + ServiceName + "/GetSnapshot"
	WatchProcedure       = "/" + ServiceName + "/Watch"
)

// watchQueueSize bounds the events buffered for one Watch stream.
const watchQueueSize = 64

// Timer is the controller surface exposed over RPC.
type Timer interface {
	Start(ctx context.Context) (session.Snapshot, error)
	Pause(ctx context.Context) (session.Snapshot, error)
	Resume(ctx context.Context) (session.Snapshot, error)
	Reset(ctx context.Context) (session.Snapshot, error)
	Stop(ctx context.Context) (session.Snapshot, error)
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Subscribe(ctx context.Context, o notification.Observer) (string, error)
	Unsubscribe(ctx context.Context, id string) error
	AddNotifier(n notification.Notifier) string
	RemoveNotifier(id string)
	Done() <-chan struct{}
}

var _ Timer = (*timer.Controller)(nil)

// TimerService implements the TimerService RPC.
type TimerService struct {
	timer Timer
}

// NewTimerService creates a new TimerService.
func NewTimerService(t Timer) *TimerService {
	return &TimerService{timer: t}
}

// NewHandler returns the service path and handler, in the shape of
// generated connect code.
func NewHandler(svc *TimerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, svc.Start, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, svc.Reset, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, svc.GetSnapshot, opts...))
	mux.Handle(WatchProcedure, connect.NewServerStreamHandler(WatchProcedure, svc.Watch, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *TimerService) command(
	ctx context.Context,
	name string,
	fn func(context.Context) (session.Snapshot, error),
) (*connect.Response[CommandResponse], error) {
	snap, err := fn(ctx)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCommand) {
			return connect.NewResponse(&CommandResponse{
				Snapshot: SnapshotFrom(snap),
				Applied:  false,
				Message:  err.Error(),
			}), nil
		}
		if errors.Is(err, timer.ErrClosed) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		zlog.Error().Err(err).Msgf("api: %s failed", name)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&CommandResponse{
		Snapshot: SnapshotFrom(snap),
		Applied:  true,
	}), nil
}

// Start handles start requests.
func (s *TimerService) Start(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "start", s.timer.Start)
}

// Pause handles pause requests.
func (s *TimerService) Pause(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "pause", s.timer.Pause)
}

// Resume handles resume requests.
func (s *TimerService) Resume(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "resume", s.timer.Resume)
}

// Reset handles reset requests.
func (s *TimerService) Reset(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "reset", s.timer.Reset)
}

// Stop handles stop requests.
func (s *TimerService) Stop(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "stop", s.timer.Stop)
}

// GetSnapshot returns the current timer state.
func (s *TimerService) GetSnapshot(
	ctx context.Context,
	req *connect.Request[CommandRequest],
) (*connect.Response[CommandResponse], error) {
	return s.command(ctx, "snapshot", s.timer.Snapshot)
}

// Watch streams the current snapshot, then every published snapshot and
// completion until the client goes away or the timer stops.
func (s *TimerService) Watch(
	ctx context.Context,
	req *connect.Request[WatchRequest],
	stream *connect.ServerStream[WatchEvent],
) error {
	w := newWatchAdapter()
	defer w.close()

	subscriptionID, err := s.timer.Subscribe(ctx, w)
	if err != nil {
		if errors.Is(err, timer.ErrClosed) {
			return connect.NewError(connect.CodeUnavailable, err)
		}
		return connect.NewError(connect.CodeInternal, err)
	}
	notifierID := s.timer.AddNotifier(w)
	zlog.Debug().Msgf("api: watch started: subscription=%s", subscriptionID)

	defer func() {
		s.timer.RemoveNotifier(notifierID)
		// The adapter reports itself detached once closed, so a failed
		// unsubscribe is cleaned up by the next broadcast.
		_ = s.timer.Unsubscribe(context.WithoutCancel(ctx), subscriptionID)
		zlog.Debug().Msgf("api: watch ended: subscription=%s", subscriptionID)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.timer.Done():
			return nil
		case ev := <-w.events:
			if err := stream.Send(ev); err != nil {
				return err
			}
		}
	}
}

// watchAdapter queues snapshots and completions for a single stream so that
// only the handler goroutine writes to it.
type watchAdapter struct {
	events chan *WatchEvent
	done   chan struct{}
}

func newWatchAdapter() *watchAdapter {
	return &watchAdapter{
		events: make(chan *WatchEvent, watchQueueSize),
		done:   make(chan struct{}),
	}
}

// Send implements notification.Observer.
func (a *watchAdapter) Send(snap session.Snapshot) error {
	wire := SnapshotFrom(snap)
	return a.push(&WatchEvent{Snapshot: &wire})
}

// Notify implements notification.Notifier.
func (a *watchAdapter) Notify(c session.Completion) error {
	wire := CompletionFrom(c)
	return a.push(&WatchEvent{Completion: &wire})
}

func (a *watchAdapter) push(ev *WatchEvent) error {
	select {
	case <-a.done:
		return notification.ErrDetached
	default:
	}

	select {
	case a.events <- ev:
		return nil
	default:
		return errors.New("watch queue full")
	}
}

func (a *watchAdapter) close() {
	close(a.done)
}
