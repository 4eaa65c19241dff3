package connect

import (
	"context"

	"connectrpc.com/connect"
)

// Client is a typed client for the TimerService.
type Client struct {
	start       *connect.Client[CommandRequest, CommandResponse]
	pause       *connect.Client[CommandRequest, CommandResponse]
	resume      *connect.Client[CommandRequest, CommandResponse]
	reset       *connect.Client[CommandRequest, CommandResponse]
	stop        *connect.Client[CommandRequest, CommandResponse]
	getSnapshot *connect.Client[CommandRequest, CommandResponse]
	watch       *connect.Client[WatchRequest, WatchEvent]
}

// NewClient creates a client for the service at baseURL, attaching token to
// every call when it is not empty.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	}, opts...)

	return &Client{
		start:       connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+StartProcedure, opts...),
		pause:       connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:      connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+ResumeProcedure, opts...),
		reset:       connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+ResetProcedure, opts...),
		stop:        connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+StopProcedure, opts...),
		getSnapshot: connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
		watch:       connect.NewClient[WatchRequest, WatchEvent](httpClient, baseURL+WatchProcedure, opts...),
	}
}

func call(ctx context.Context, c *connect.Client[CommandRequest, CommandResponse]) (*CommandResponse, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(&CommandRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Start starts or continues the timer.
func (c *Client) Start(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.start)
}

// Pause pauses the timer.
func (c *Client) Pause(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.pause)
}

// Resume resumes the timer.
func (c *Client) Resume(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.resume)
}

// Reset resets the timer.
func (c *Client) Reset(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.reset)
}

// Stop stops the timer.
func (c *Client) Stop(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.stop)
}

// GetSnapshot returns the current timer state.
func (c *Client) GetSnapshot(ctx context.Context) (*CommandResponse, error) {
	return call(ctx, c.getSnapshot)
}

// Watch calls fn for every event until ctx ends, the stream closes or fn
// returns an error.
func (c *Client) Watch(ctx context.Context, fn func(*WatchEvent) error) error {
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(&WatchRequest{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
