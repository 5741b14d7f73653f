package transport

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

// Event is emitted on a transport's event stream (spec §6: "each exposing
// start/stop and an event stream").
type Event struct {
	Kind    EventKind
	Channel *Channel
	Err     error
}

// EventKind enumerates the transport lifecycle events a caller can observe.
type EventKind int

const (
	EventChannelOpened EventKind = iota
	EventChannelClosed
	EventListenerStarted
	EventListenerStopped
)

// ClientTransport is the Transport plugin contract for the dialing side
// (spec §6): openClient(URL) → ClientTransport. The concrete protocol
// packages (grpctransport, connecttransport) do not implement it; each
// exposes a Dial function matching invoker.DialFunc that returns a Channel.
type ClientTransport interface {
	// Open dials u and returns an OPENED Channel multiplexed over it.
	Open(ctx context.Context, u *joyurl.URL) (*Channel, error)
	// Events returns the transport's lifecycle event stream.
	Events() <-chan Event
	// Stop tears down any resources owned by the transport itself (not
	// individual Channels, which the ChannelManager owns).
	Stop(ctx context.Context) error
}

// ServerTransport is the Transport plugin contract for the listening side
// (spec §6): openServer(URL) → ServerTransport, running an accept loop that
// wraps each inbound connection in a Channel and dispatches requests to
// handler.
type ServerTransport interface {
	// Start binds u and begins accepting connections, invoking handler for
	// every inbound request frame.
	Start(ctx context.Context, u *joyurl.URL, handler Handler) error
	// Events returns the transport's lifecycle event stream.
	Events() <-chan Event
	// Stop gracefully stops accepting new connections and, on the given
	// context's deadline, force-closes any still open.
	Stop(ctx context.Context) error
}
