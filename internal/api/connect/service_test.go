package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/freetime/internal/app/notification"
	"github.com/osa030/freetime/internal/app/timer"
	"github.com/osa030/freetime/internal/domain/session"
	"github.com/osa030/freetime/internal/infra/checkpoint"
	"github.com/osa030/freetime/internal/infra/clock"
)

type testServer struct {
	clock *clock.Fake
	ctrl  *timer.Controller
	url   string
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	fake := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctrl := timer.New(timer.Config{TickInterval: time.Second}, timer.Deps{
		Clock:     fake,
		Store:     checkpoint.NewMemoryStore(),
		Settings:  session.StaticProvider(session.Config{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 1, CyclesBeforeLongBreak: 4}),
		Observers: notification.NewManager(100 * time.Millisecond),
	})
	_, err := ctrl.Recover(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = ctrl.Run(ctx)
	}()

	mux := http.NewServeMux()
	path, handler := NewHandler(NewTimerService(ctrl), connect.WithInterceptors(NewTokenInterceptor(token)))
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
		srv.Close()
	})
	return &testServer{clock: fake, ctrl: ctrl, url: srv.URL}
}

func TestTimerService_Commands(t *testing.T) {
	ts := newTestServer(t, "")
	client := NewClient(http.DefaultClient, ts.url, "")
	ctx := context.Background()

	resp, err := client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{RemainingSeconds: 60, Phase: "WORK", Status: "STOPPED"}, resp.Snapshot)

	resp, err = client.Start(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.True(t, resp.Snapshot.Running)

	resp, err = client.Pause(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, "PAUSED", resp.Snapshot.Status)

	resp, err = client.Pause(ctx)
	require.NoError(t, err, "invalid commands are not RPC errors")
	assert.False(t, resp.Applied)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, "PAUSED", resp.Snapshot.Status)

	resp, err = client.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", resp.Snapshot.Status)

	resp, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "STOPPED", resp.Snapshot.Status)

	resp, err = client.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, 60, resp.Snapshot.RemainingSeconds)
}

func TestTimerService_Unavailable(t *testing.T) {
	ts := newTestServer(t, "")
	client := NewClient(http.DefaultClient, ts.url, "")

	require.NoError(t, ts.ctrl.Shutdown(context.Background()))

	_, err := client.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestTimerService_Auth(t *testing.T) {
	ts := newTestServer(t, "secret")
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		wantCode connect.Code
	}{
		{name: "missing token", token: "", wantCode: connect.CodeUnauthenticated},
		{name: "wrong token", token: "guess", wantCode: connect.CodeUnauthenticated},
		{name: "valid token", token: "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(http.DefaultClient, ts.url, tt.token)

			_, err := client.GetSnapshot(ctx)
			watchCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			watchErr := client.Watch(watchCtx, func(*WatchEvent) error {
				return errStop
			})

			if tt.wantCode == 0 {
				assert.NoError(t, err)
				assert.ErrorIs(t, watchErr, errStop)
				return
			}
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))
			assert.Equal(t, tt.wantCode, connect.CodeOf(watchErr))
		})
	}
}

var errStop = errors.New("stop watching")

func TestTimerService_Watch(t *testing.T) {
	ts := newTestServer(t, "")
	client := NewClient(http.DefaultClient, ts.url, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *WatchEvent, 256)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(ctx, func(ev *WatchEvent) error {
			events <- ev
			return nil
		})
	}()

	next := func() *WatchEvent {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch event")
			return nil
		}
	}

	first := next()
	require.NotNil(t, first.Snapshot, "current state is sent first")
	assert.Equal(t, "STOPPED", first.Snapshot.Status)

	_, err := client.Start(ctx)
	require.NoError(t, err)
	ev := next()
	require.NotNil(t, ev.Snapshot)
	assert.True(t, ev.Snapshot.Running)

	for remaining := 59; remaining > 0; remaining-- {
		require.True(t, ts.clock.Tick())
		ev := next()
		require.NotNil(t, ev.Snapshot)
		assert.Equal(t, remaining, ev.Snapshot.RemainingSeconds)
	}

	require.True(t, ts.clock.Tick())
	ev = next()
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "SHORT_BREAK", ev.Snapshot.Phase)

	ev = next()
	require.NotNil(t, ev.Completion)
	assert.Equal(t, uint64(1), ev.Completion.Seq)
	assert.Equal(t, "WORK", ev.Completion.Ended)
	assert.Equal(t, "SHORT_BREAK", ev.Completion.Started)
	assert.True(t, time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC).Equal(ev.Completion.At))

	cancel()
	select {
	case <-watchErr:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not end after cancel")
	}
}
