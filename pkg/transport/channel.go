// Package transport implements the Channel, ChannelManager and Call Future
// Registry (spec §4.1, §4.2, §4.10): the sole objects that read from and
// write to a connection, multiplexing many concurrent calls over it by
// request id.
//
// The multiplexing design — one dedicated recvLoop goroutine, a
// sync.Map-backed pending table, a send mutex serializing writes — is
// grounded on the mini-rpc ClientTransport pattern; the reconnect backoff
// and per-endpoint state are grounded on the arkeep agent connection
// manager's exponential-backoff-with-jitter loop.
package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/codec"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
	"github.com/lwbtt0915/joyrpc/pkg/wheel"
)

// State is a Channel's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpened
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpened:
		return "OPENED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// HeartbeatMode selects how a Channel decides when to emit a heartbeat
// frame (spec §4.3).
type HeartbeatMode int

const (
	HeartbeatTiming HeartbeatMode = iota
	HeartbeatIdle
)

// Options configures a Channel at construction.
type Options struct {
	Codec              codec.Codec
	PayloadCap         int           // max outgoing payload size in bytes; 0 = unlimited
	HeartbeatMode      HeartbeatMode
	HeartbeatInterval  time.Duration
	HeartbeatMaxMisses int // consecutive heartbeat failures before DEAD, default 3
	IsServer           bool
	Wheel              *wheel.Wheel // shared timing wheel for call-deadline expiry
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = codec.JSON
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatMaxMisses <= 0 {
		o.HeartbeatMaxMisses = 3
	}
	return o
}

// Handler processes a server-side request frame and returns the response
// payload to send back. Exporter implements this to dispatch to the user's
// service implementation.
type Handler func(ctx context.Context, requestID uint64, payload []byte) (respPayload []byte, appErr bool)

// Channel wraps one duplex connection. It is the sole reader and writer of
// that connection (spec §4.1): all sends are serialized through sendMu, all
// reads happen on a single recvLoop goroutine.
type Channel struct {
	conn net.Conn
	opts Options

	sendMu sync.Mutex

	nextID    uint64
	futures   *FutureRegistry
	heartbeat *heartbeatState

	state   atomic.Int32
	closeMu sync.Mutex

	lastRead  atomic.Int64 // unix nano
	lastWrite atomic.Int64

	handler Handler
	attrs   sync.Map // per-channel attribute bag (arbitrary business metadata)

	log *channelLog
}

type channelLog struct{ id string }

// New wraps conn as an OPENED Channel and starts its recvLoop and heartbeat
// loop. handler is consulted for server-side request frames; it may be nil
// on a pure client Channel.
func New(conn net.Conn, opts Options, handler Handler) *Channel {
	opts = opts.withDefaults()
	c := &Channel{
		conn:    conn,
		opts:    opts,
		futures: NewFutureRegistry(opts.Wheel),
		handler: handler,
		log:     &channelLog{id: conn.RemoteAddr().String()},
	}
	c.state.Store(int32(StateOpened))
	now := time.Now().UnixNano()
	c.lastRead.Store(now)
	c.lastWrite.Store(now)
	c.heartbeat = newHeartbeatState(c)

	go c.recvLoop()
	go c.heartbeat.run()
	return c
}

// State returns the Channel's current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// SetAttr/GetAttr expose the per-channel attribute bag (spec §3 "business
// executor handle" and similar opaque metadata).
func (c *Channel) SetAttr(key string, value any) { c.attrs.Store(key, value) }
func (c *Channel) GetAttr(key string) (any, bool) { return c.attrs.Load(key) }

// Submit sends a request frame and returns a future that resolves with the
// response payload or an error. The deadline is enforced by the Channel's
// shared timing wheel, not a per-call timer (spec §4.1).
func (c *Channel) Submit(ctx context.Context, payload []byte, deadline time.Time) (*Future, error) {
	if c.State() != StateOpened {
		return nil, joyerr.New(joyerr.CodeTransport, "channel not opened").WithRetriable(false)
	}
	if c.opts.PayloadCap > 0 && len(payload) > c.opts.PayloadCap {
		return nil, joyerr.New(joyerr.CodeOverload, "payload exceeds channel cap").WithRetriable(false)
	}

	id := atomic.AddUint64(&c.nextID, 1)
	fut := c.futures.register(id, deadline)

	f := codec.Frame{RequestID: id, Direction: codec.DirectionRequest, Payload: payload}
	if err := c.writeFrame(f); err != nil {
		c.futures.cancel(id)
		return nil, joyerr.Wrap(joyerr.CodeTransport, "channel send failed", err)
	}
	return fut, nil
}

func (c *Channel) writeFrame(f codec.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := codec.WriteFrame(c.conn, f); err != nil {
		return err
	}
	c.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// recvLoop is the Channel's single reader. It dispatches each incoming
// frame to the matching pending future, the heartbeat state, or the
// server-side handler, per frame Direction (spec §4.1).
func (c *Channel) recvLoop() {
	for {
		f, err := codec.ReadFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				logger.WithService("channel").Warn("channel read failed, closing", "remote", c.log.id, "error", err)
			}
			c.Close()
			return
		}
		c.lastRead.Store(time.Now().UnixNano())

		switch f.Direction {
		case codec.DirectionHeartbeat:
			c.heartbeat.onReceive(f)
		case codec.DirectionResponse:
			c.futures.complete(f.RequestID, f.Payload, f.IsError())
		case codec.DirectionRequest:
			c.handleServerRequest(f)
		}
	}
}

func (c *Channel) handleServerRequest(f codec.Frame) {
	if c.handler == nil {
		logger.WithService("channel").Warn("request frame received on channel with no handler", "id", f.RequestID)
		return
	}
	go func() {
		resp, appErr := c.handler(context.Background(), f.RequestID, f.Payload)
		flags := codec.FlagNone
		if appErr {
			flags = codec.FlagError
		}
		respFrame := codec.Frame{RequestID: f.RequestID, Direction: codec.DirectionResponse, Flags: flags, Payload: resp}
		if err := c.writeFrame(respFrame); err != nil {
			logger.WithService("channel").Warn("failed to write response frame", "id", f.RequestID, "error", err)
		}
	}()
}

// Close idempotently tears down the Channel: every pending future fails
// with a transport-closed error in id order, then the connection is
// closed (spec §4.1, §4.10).
func (c *Channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if State(c.state.Load()) == StateClosed {
		return nil
	}
	c.state.Store(int32(StateClosing))
	c.heartbeat.stop()
	c.futures.drain(joyerr.New(joyerr.CodeTransport, "channel closed").WithRetriable(true))
	err := c.conn.Close()
	c.state.Store(int32(StateClosed))
	return err
}

// IdleDuration returns how long the Channel has been silent in both
// directions, used by the IDLE heartbeat mode.
func (c *Channel) IdleDuration() time.Duration {
	lastRead := time.Unix(0, c.lastRead.Load())
	lastWrite := time.Unix(0, c.lastWrite.Load())
	last := lastRead
	if lastWrite.After(last) {
		last = lastWrite
	}
	return time.Since(last)
}
