package connecttransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
	"github.com/lwbtt0915/joyrpc/pkg/transport"
)

const procedure = "/joyrpc.Tunnel/Call"

// Dial opens a fresh Channel to u over one Connect bidi-streaming call,
// running over plain h2c. It matches invoker.DialFunc.
func Dial(ctx context.Context, u *joyurl.URL) (*transport.Channel, error) {
	baseURL := "http://" + u.Address()
	httpClient := &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}

	client := connect.NewClient[frameMsg, frameMsg](
		httpClient,
		baseURL+procedure,
		connect.WithCodec(rawCodec{}),
	)
	stream := client.CallBidiStream(ctx)

	conn := newStreamConn(stream, addr("local"), addr(u.Address()), func() error {
		_ = stream.CloseRequest()
		return stream.CloseResponse()
	})
	return transport.New(conn, transport.Options{}, nil), nil
}

// Server is the ServerTransport plugin serving the tunnel procedure over
// plain h2c, grounded on the teacher's own h2c.NewHandler(mux,
// &http2.Server{}) gateway wiring.
type Server struct {
	httpServer *http.Server
	lis        net.Listener
}

// NewServer creates an unstarted Server.
func NewServer() *Server {
	return &Server{}
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Start binds u's port and begins accepting tunnel streams, each
// wrapped in a Channel that dispatches request frames to handler.
func (s *Server) Start(ctx context.Context, u *joyurl.URL, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", u.Port()))
	if err != nil {
		return joyerr.Wrap(joyerr.CodeInit, "connect listen failed", err)
	}
	s.lis = lis

	mux := http.NewServeMux()
	mux.Handle(connect.NewBidiStreamHandler(procedure, tunnelHandler(handler), connect.WithCodec(rawCodec{})))

	s.httpServer = &http.Server{Handler: h2c.NewHandler(mux, &http2.Server{})}

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			logger.WithService("connecttransport").Warn("connect tunnel server stopped", "error", err)
		}
	}()
	return nil
}

// tunnelHandler adapts one inbound Connect stream into a Channel and
// blocks until that Channel closes.
func tunnelHandler(handler transport.Handler) func(context.Context, *connect.BidiStream[frameMsg, frameMsg]) error {
	return func(ctx context.Context, stream *connect.BidiStream[frameMsg, frameMsg]) error {
		conn := newStreamConn(stream, addr("local"), addr("remote"), nil)
		ch := transport.New(conn, transport.Options{IsServer: true}, handler)

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for ch.State() != transport.StateClosed {
			select {
			case <-ctx.Done():
				ch.Close()
				return ctx.Err()
			case <-ticker.C:
			}
		}
		return nil
	}
}

// Events returns nil: this transport has no lifecycle event stream of
// its own beyond the Channel-level events Manager already exposes.
func (s *Server) Events() <-chan transport.Event { return nil }

// Stop gracefully stops accepting tunnel streams, force-closing once
// ctx's deadline passes.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
