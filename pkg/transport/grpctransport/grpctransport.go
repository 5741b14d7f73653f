package grpctransport

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
	"github.com/lwbtt0915/joyrpc/pkg/transport"
)

func init() {
	encoding.RegisterCodec(rawCodec{})
}

const (
	serviceName = "joyrpc.Tunnel"
	methodName  = "/" + serviceName + "/Call"
)

var tunnelStreamDesc = grpc.StreamDesc{
	StreamName:    "Call",
	ServerStreams: true,
	ClientStreams: true,
}

// Dial opens a fresh Channel to u over one dedicated gRPC connection and
// its one tunnel stream. It matches invoker.DialFunc, so it can be
// assigned directly to ReferOptions.Dial.
func Dial(ctx context.Context, u *joyurl.URL) (*transport.Channel, error) {
	cc, err := grpc.NewClient(u.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeTransport, "grpc dial failed", err)
	}

	stream, err := cc.NewStream(ctx, &tunnelStreamDesc, methodName, grpc.CallContentSubtype(codecName))
	if err != nil {
		_ = cc.Close()
		return nil, joyerr.Wrap(joyerr.CodeTransport, "grpc tunnel stream open failed", err)
	}

	conn := newStreamConn(stream, addr("local"), addr(u.Address()), cc.Close)
	return transport.New(conn, transport.Options{}, nil), nil
}

// Server is the ServerTransport plugin (spec §6 openServer(URL)):
// listens over plain gRPC and hands every inbound tunnel stream to a
// Channel wired to the supplied Handler.
type Server struct {
	srv *grpc.Server
	lis net.Listener
}

// NewServer creates an unstarted Server.
func NewServer() *Server {
	return &Server{}
}

// Addr returns the listener's bound address, useful when u.Port() is 0
// and the OS picked an ephemeral port (as tests do).
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
		return joyerr.Wrap(joyerr.CodeInit, "grpc listen failed", err)
	}
	s.lis = lis

	s.srv = grpc.NewServer()
	s.srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Call",
				Handler:       tunnelHandler(handler),
				ServerStreams: true,
				ClientStreams: true,
			},
		},
	}, nil)

	go func() {
		if err := s.srv.Serve(lis); err != nil {
			logger.WithService("grpctransport").Warn("gRPC tunnel server stopped", "error", err)
		}
	}()
	return nil
}

// tunnelHandler adapts one inbound gRPC stream into a Channel and blocks
// until that Channel closes, keeping the RPC (and the underlying
// connection) alive for the Channel's whole lifetime.
func tunnelHandler(handler transport.Handler) func(srv any, stream grpc.ServerStream) error {
	return func(srv any, stream grpc.ServerStream) error {
		conn := newStreamConn(stream, addr("local"), addr("remote"), nil)
		ch := transport.New(conn, transport.Options{IsServer: true}, handler)

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for ch.State() != transport.StateClosed {
			select {
			case <-stream.Context().Done():
				ch.Close()
				return stream.Context().Err()
			case <-ticker.C:
			}
		}
		return nil
	}
}

// Events returns nil: this transport has no lifecycle event stream of
// its own beyond the Channel-level events Manager already exposes.
func (s *Server) Events() <-chan transport.Event { return nil }

// Stop gracefully stops accepting tunnel streams, force-stopping once
// ctx's deadline passes.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}
