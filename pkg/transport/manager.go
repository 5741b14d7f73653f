package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// Opener dials a fresh connection-backed Channel for a given endpoint key,
// e.g. a gRPC or TCP dial wrapped in transport.New. Supplied by the
// concrete transport plugin (grpctransport, connecttransport, ...).
type Opener func(ctx context.Context, key string) (*Channel, error)

const (
	backoffInitial = 200 * time.Millisecond
	backoffMax     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.2
)

type entry struct {
	mu       sync.Mutex
	channel  *Channel
	refCount int
	backoff  time.Duration // per-endpoint backoff state (spec §5)
}

// Manager is the ChannelManager (spec §4.2): a pool of shared Channels
// keyed by (endpoint, protocol), reference-counted, with exponential
// backoff+jitter reconnection grounded on the arkeep agent connection
// manager's Run/connect loop.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates an empty ChannelManager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// key derives the pool key from a URL: (endpoint, protocol).
func key(u *joyurl.URL) string {
	return u.Scheme() + "://" + u.Address()
}

// Connect returns the existing OPENED Channel for u's endpoint, or opens
// one via opener and caches it. Each call increments the endpoint's
// reference count; callers must pair it with Release.
func (m *Manager) Connect(ctx context.Context, u *joyurl.URL, opener Opener) (*Channel, error) {
	k := key(u)

	m.mu.Lock()
	e, ok := m.entries[k]
	if !ok {
		e = &entry{backoff: backoffInitial}
		m.entries[k] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.channel != nil && e.channel.State() == StateOpened {
		e.refCount++
		return e.channel, nil
	}

	ch, err := m.dialWithBackoff(ctx, e, k, opener)
	if err != nil {
		return nil, err
	}
	e.channel = ch
	e.refCount++
	e.backoff = backoffInitial
	return ch, nil
}

// dialWithBackoff retries opener until it succeeds or ctx is done,
// sleeping the endpoint's current backoff (with jitter) between attempts
// and doubling it up to backoffMax, per spec §4.2 "Reconnection on error
// uses exponential backoff with jitter; backoff state is per-endpoint".
func (m *Manager) dialWithBackoff(ctx context.Context, e *entry, k string, opener Opener) (*Channel, error) {
	for {
		ch, err := opener(ctx, k)
		if err == nil {
			return ch, nil
		}

		logger.WithService("channel-manager").Warn("connect failed, backing off",
			"endpoint", k, "backoff", e.backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, joyerr.Wrap(joyerr.CodeTransport, "connect aborted", ctx.Err())
		case <-time.After(jitter(e.backoff)):
		}
		e.backoff = nextBackoff(e.backoff)
	}
}

// Release decrements the endpoint's reference count. When it reaches zero
// the Channel is closed and evicted from the pool, unless keepAlive is
// true (the URL requests sharing beyond this caller's lifetime).
func (m *Manager) Release(u *joyurl.URL, keepAlive bool) {
	k := key(u)

	m.mu.Lock()
	e, ok := m.entries[k]
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refCount > 0 {
		e.refCount--
	}
	if e.refCount == 0 && !keepAlive && e.channel != nil {
		e.channel.Close()
		e.channel = nil
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
	}
}

// Lookup returns the currently pooled Channel for u, if any, without
// affecting its reference count.
func (m *Manager) Lookup(u *joyurl.URL) (*Channel, bool) {
	m.mu.Lock()
	e, ok := m.entries[key(u)]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channel == nil {
		return nil, false
	}
	return e.channel, true
}

// CloseAll closes every pooled Channel, used by the Shutdown Coordinator's
// "release channels" hook.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.channel != nil {
			e.channel.Close()
		}
		e.mu.Unlock()
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
