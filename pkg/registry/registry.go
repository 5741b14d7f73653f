// Package registry implements the Registry Client contract (spec §4.4,
// §6): subscribe to a provider list and a config overlay for a service
// key, deliver updates as a monotonic stream. Duplicate/out-of-order
// updates are filtered by version; a subscriber always replays the current
// snapshot on (re)subscribe.
//
// Version-ordering semantics are grounded on the gossip package's
// StateMachine.Update: generation/version comparison decides whether an
// incoming update supersedes what is locally held, never applying an
// update derived from an older snapshot (spec §8 "for all applied
// versions v1 < v2: the node set at v2 is not derived from any snapshot
// older than v2").
package registry

import (
	"context"
	"sync"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

// Snapshot is one versioned view of a service key's provider list.
type Snapshot struct {
	Version   uint64
	Providers []*joyurl.URL
}

// ConfigSnapshot is one versioned view of a service key's attribute
// overrides (spec §4.4 "Configure stream").
type ConfigSnapshot struct {
	Version uint64
	Params  map[string]string
}

// Key identifies a subscription target: an interface name plus a logical
// alias group (spec §4.4 "(interface, alias)").
type Key struct {
	Interface string
	Alias     string
}

// Listener receives cluster-stream updates. Implementations must not
// block — backends deliver synchronously from their update-apply path.
type ClusterListener func(Snapshot)

// ConfigListener receives configure-stream updates.
type ConfigListener func(ConfigSnapshot)

// Handle cancels a subscription. Unsubscribing is idempotent.
type Handle interface {
	Unsubscribe()
}

// Backend is the Registry plugin contract (spec §6): subscribeCluster,
// subscribeConfigure, register, deregister. Concrete backends (memory,
// redis, postgres) implement this; each applies versionGate itself for
// the version filtering and replay-on-subscribe semantics common to all
// of them.
type Backend interface {
	SubscribeCluster(ctx context.Context, key Key, fn ClusterListener) (Handle, error)
	SubscribeConfigure(ctx context.Context, key Key, fn ConfigListener) (Handle, error)
	Register(ctx context.Context, key Key, node *joyurl.URL) error
	Deregister(ctx context.Context, key Key, node *joyurl.URL) error
}

// versionGate drops snapshots whose version does not exceed the last
// applied one, implementing the "updates with older version are dropped"
// contract (spec §4.4) the same way gossip's StateMachine.Update rejects a
// stale Generation/Version pair.
type versionGate struct {
	mu      sync.Mutex
	lastVer uint64
	seen    bool
}

// apply reports whether snap should be delivered to subscribers: true the
// first time, and thereafter only if snap.Version is strictly greater than
// the last applied version.
func (g *versionGate) apply(version uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seen {
		g.seen = true
		g.lastVer = version
		return true
	}
	if version <= g.lastVer {
		return false
	}
	g.lastVer = version
	return true
}
