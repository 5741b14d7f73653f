package transport

import (
	"sync/atomic"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/codec"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// heartbeatRequestID is the dedicated id used for every heartbeat frame so
// it never occupies a Request-id slot reserved for user calls (spec §4.3).
const heartbeatRequestID = 0

// heartbeatState implements the Heartbeat Engine for a single Channel: it
// emits heartbeat frames per the configured mode (TIMING or IDLE) and
// tracks consecutive failures, closing the Channel as DEAD after
// opts.HeartbeatMaxMisses (spec §4.3).
type heartbeatState struct {
	ch      *Channel
	misses  atomic.Int32
	inFlight atomic.Bool
	stopCh  chan struct{}
	stopped atomic.Bool
}

func newHeartbeatState(ch *Channel) *heartbeatState {
	return &heartbeatState{ch: ch, stopCh: make(chan struct{})}
}

func (h *heartbeatState) run() {
	ticker := time.NewTicker(h.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			if h.ch.opts.HeartbeatMode == HeartbeatIdle && h.ch.IdleDuration() < h.ch.opts.HeartbeatInterval {
				continue
			}
			h.send()
		}
	}
}

// tickInterval drives the ticker at a finer grain than the configured
// heartbeat interval so IDLE mode can react promptly once the channel goes
// quiet, without busy-polling.
func (h *heartbeatState) tickInterval() time.Duration {
	if h.ch.opts.HeartbeatMode == HeartbeatIdle {
		quarter := h.ch.opts.HeartbeatInterval / 4
		if quarter < time.Second {
			quarter = time.Second
		}
		return quarter
	}
	return h.ch.opts.HeartbeatInterval
}

func (h *heartbeatState) send() {
	if !h.inFlight.CompareAndSwap(false, true) {
		// previous heartbeat still outstanding; treat this tick as a miss
		h.recordMiss()
		return
	}
	f := codec.Frame{RequestID: heartbeatRequestID, Direction: codec.DirectionHeartbeat}
	if err := h.ch.writeFrame(f); err != nil {
		h.inFlight.Store(false)
		h.recordMiss()
		return
	}
	// onReceive clears inFlight and resets misses when the peer answers;
	// if no reply arrives before the next tick, recordMiss above handles it.
}

// onReceive is called from the Channel's recvLoop when a heartbeat frame
// arrives — either the peer's periodic ping (answered immediately) or our
// own outstanding ping's reply.
func (h *heartbeatState) onReceive(f codec.Frame) {
	if f.Direction != codec.DirectionHeartbeat {
		return
	}
	if h.inFlight.CompareAndSwap(true, false) {
		// This was the peer answering our own outstanding ping.
		h.misses.Store(0)
		return
	}
	// No ping of ours was outstanding: the peer pinged us first, so answer
	// it exactly once. The peer's own onReceive sees its inFlight flag
	// flip and does not re-reply, so the exchange terminates in one hop.
	reply := codec.Frame{RequestID: heartbeatRequestID, Direction: codec.DirectionHeartbeat}
	_ = h.ch.writeFrame(reply)
}

func (h *heartbeatState) recordMiss() {
	max := h.ch.opts.HeartbeatMaxMisses
	n := h.misses.Add(1)
	if int(n) >= max {
		logger.WithService("heartbeat").Warn("channel heartbeat exhausted, closing as dead",
			"remote", h.ch.log.id, "misses", n)
		go h.ch.Close()
	}
}

func (h *heartbeatState) stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
}
