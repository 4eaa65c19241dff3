// Package connect provides the Connect RPC surface of the timer daemon.
package connect

import (
	"context"
	"crypto/subtle"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// TokenHeader is the header name for the control API token.
	TokenHeader = "X-Timer-Token"
)

// TokenInterceptor authenticates control API calls. On the server it rejects
// calls without the configured token; on the client it attaches the token.
// An empty token disables the check.
type TokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates a TokenInterceptor for token.
func NewTokenInterceptor(token string) *TokenInterceptor {
	return &TokenInterceptor{token: token}
}

var _ connect.Interceptor = (*TokenInterceptor)(nil)

// WrapUnary implements connect.Interceptor.
func (i *TokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			i.attach(req.Header())
			return next(ctx, req)
		}
		if err := i.verify(req.Header()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		i.attach(conn.RequestHeader())
		return conn
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.verify(conn.RequestHeader()); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *TokenInterceptor) attach(h http.Header) {
	if i.token != "" {
		h.Set(TokenHeader, i.token)
	}
}

func (i *TokenInterceptor) verify(h http.Header) error {
	if i.token == "" {
		return nil
	}
	token := h.Get(TokenHeader)
	if token == "" {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	return nil
}
