package grpctransport

import (
	"net"
	"sync"
	"time"
)

// msgStream is the subset of grpc.ClientStream/grpc.ServerStream that
// streamConn needs: both satisfy it without modification.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// closableStream is implemented by grpc.ClientStream (CloseSend); a
// server-side grpc.ServerStream has no equivalent, so streamConn.Close
// checks for it rather than requiring it.
type closableStream interface {
	CloseSend() error
}

// addr is a minimal net.Addr for a stream that has no real socket
// address of its own.
type addr string

func (a addr) Network() string { return "grpc-stream" }
func (a addr) String() string  { return string(a) }

// streamConn adapts one gRPC bidi-streaming call into a net.Conn so a
// Channel can multiplex its own length-prefixed frames over it exactly
// as it would over a raw TCP connection: Read/Write operate on a byte
// cursor refilled from/flushed to the stream's message-at-a-time
// SendMsg/RecvMsg.
type streamConn struct {
	stream     msgStream
	localAddr  net.Addr
	remoteAddr net.Addr
	extraClose func() error

	mu      sync.Mutex
	pending frameBytes
}

func newStreamConn(stream msgStream, local, remote net.Addr, extraClose func() error) *streamConn {
	return &streamConn{stream: stream, localAddr: local, remoteAddr: remote, extraClose: extraClose}
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) == 0 {
		var msg frameBytes
		if err := c.stream.RecvMsg(&msg); err != nil {
			return 0, err
		}
		c.pending = msg
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	msg := append(frameBytes(nil), p...)
	if err := c.stream.SendMsg(&msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Close() error {
	var err error
	if cs, ok := c.stream.(closableStream); ok {
		err = cs.CloseSend()
	}
	if c.extraClose != nil {
		if extraErr := c.extraClose(); extraErr != nil && err == nil {
			err = extraErr
		}
	}
	return err
}

func (c *streamConn) LocalAddr() net.Addr  { return c.localAddr }
func (c *streamConn) RemoteAddr() net.Addr { return c.remoteAddr }

// Deadlines are not meaningful on a gRPC stream's byte cursor: the
// underlying call is already bounded by its own context.
func (c *streamConn) SetDeadline(t time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return nil }
