package connecttransport

import (
	"net"
	"sync"
	"time"
)

// bidiStream is the subset of *connect.BidiStream[frameMsg, frameMsg]
// (server side) and *connect.BidiStreamForClient[frameMsg, frameMsg]
// (client side) streamConn needs: both satisfy it without modification.
type bidiStream interface {
	Receive() (*frameMsg, error)
	Send(*frameMsg) error
}

type addr string

func (a addr) Network() string { return "connect-stream" }
func (a addr) String() string  { return string(a) }

// streamConn adapts one Connect bidi-streaming call into a net.Conn, the
// same role grpctransport's streamConn plays over a gRPC stream: Read/
// Write operate on a byte cursor refilled from/flushed to the stream's
// message-at-a-time Send/Receive.
type streamConn struct {
	stream     bidiStream
	localAddr  net.Addr
	remoteAddr net.Addr
	closeFn    func() error

	mu      sync.Mutex
	pending frameMsg
}

func newStreamConn(stream bidiStream, local, remote net.Addr, closeFn func() error) *streamConn {
	return &streamConn{stream: stream, localAddr: local, remoteAddr: remote, closeFn: closeFn}
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) == 0 {
		msg, err := c.stream.Receive()
		if err != nil {
			return 0, err
		}
		c.pending = *msg
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	msg := frameMsg(append([]byte(nil), p...))
	if err := c.stream.Send(&msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func (c *streamConn) LocalAddr() net.Addr  { return c.localAddr }
func (c *streamConn) RemoteAddr() net.Addr { return c.remoteAddr }

func (c *streamConn) SetDeadline(t time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return nil }
