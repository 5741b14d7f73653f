package cluster

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
	"github.com/lwbtt0915/joyrpc/pkg/registry"
)

// EventKind enumerates the observable Cluster events (spec §4.8 "nodeAdded,
// nodeRemoved").
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeRemoved
	EventNodeUpdated
)

// Event is emitted whenever the live node set changes.
type Event struct {
	Kind EventKind
	Node *Node
}

// Listener observes Cluster events; must not block.
type Listener func(Event)

// Cluster holds a live set of Nodes computed from the Registry Client's
// cluster stream (spec §4.5). The exposed node set is an atomic
// copy-on-write snapshot: readers (LoadBalance) never observe a partial
// transition and never block writers (spec §5 "Cluster node set:
// copy-on-write snapshot; readers never block writers").
type Cluster struct {
	drainDeadline time.Duration

	mu        sync.Mutex // guards nodes map and listeners; snapshot is separate
	nodes     map[string]*Node // keyed by URL.Key()
	listeners []Listener

	snapshot atomic.Pointer[[]*Node]

	handle registry.Handle
}

// New creates an empty Cluster. drainDeadline is how long remove holds a
// removed Node in CLOSING before marking it DEAD (spec §4.5). In-flight
// calls on the Node are not tracked: the full deadline is always waited out.
func New(drainDeadline time.Duration) *Cluster {
	c := &Cluster{nodes: make(map[string]*Node), drainDeadline: drainDeadline}
	empty := []*Node{}
	c.snapshot.Store(&empty)
	return c
}

// OnEvent registers a Listener for node add/remove/update events.
func (c *Cluster) OnEvent(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Follow subscribes to src's cluster stream and applies every snapshot
// as a diff against the current node set (spec §4.5).
func (c *Cluster) Follow(ctx context.Context, src registry.Backend, key registry.Key) error {
	handle, err := src.SubscribeCluster(ctx, key, func(snap registry.Snapshot) {
		c.ApplySnapshot(snap)
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	return nil
}

// Unfollow cancels the registry subscription started by Follow, if any.
func (c *Cluster) Unfollow() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		h.Unsubscribe()
	}
}

// ApplySnapshot computes the diff between snap's provider set and the
// current node set: new URLs become CANDIDATE Nodes beginning warm-up,
// vanished URLs are removed (CLOSING → drain → DEAD), and URLs present in
// both are updated in place (spec §4.5).
func (c *Cluster) ApplySnapshot(snap registry.Snapshot) {
	incoming := make(map[string]*joyurl.URL, len(snap.Providers))
	for _, u := range snap.Providers {
		incoming[u.Key()] = u
	}

	var added, removed, updated []*Node

	c.mu.Lock()
	for key, u := range incoming {
		if existing, ok := c.nodes[key]; ok {
			existing.Weight = u.GetInt(joyurl.ParamWeight, existing.Weight)
			existing.Region = u.GetParam("region", existing.Region)
			updated = append(updated, existing)
			continue
		}
		n := newNode(u)
		c.nodes[key] = n
		added = append(added, n)
	}
	for key, n := range c.nodes {
		if _, ok := incoming[key]; !ok && n.state != NodeClosing && n.state != NodeDead {
			removed = append(removed, n)
		}
	}
	c.publishLocked()
	c.mu.Unlock()

	for _, n := range added {
		c.emit(Event{Kind: EventNodeAdded, Node: n})
	}
	for _, n := range updated {
		c.emit(Event{Kind: EventNodeUpdated, Node: n})
	}
	for _, n := range removed {
		c.remove(n)
	}
}

// remove transitions n to CLOSING, sleeps for drainDeadline, then marks
// it DEAD and evicts it from the node set. Eviction is idempotent (spec
// §3 "an eviction is idempotent").
func (c *Cluster) remove(n *Node) {
	c.mu.Lock()
	if n.state == NodeClosing || n.state == NodeDead {
		c.mu.Unlock()
		return
	}
	n.state = NodeClosing
	c.publishLocked()
	c.mu.Unlock()

	if c.drainDeadline > 0 {
		time.Sleep(c.drainDeadline)
	}

	c.mu.Lock()
	n.state = NodeDead
	delete(c.nodes, n.URL.Key())
	c.publishLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventNodeRemoved, Node: n})
}

// MarkConnected transitions n to CONNECTED on first successful heartbeat
// or first successful call (spec §4.5).
func (c *Cluster) MarkConnected(n *Node) {
	c.mu.Lock()
	if n.state != NodeDead && n.state != NodeClosing {
		n.state = NodeConnected
	}
	c.publishLocked()
	c.mu.Unlock()
}

// MarkWeak transitions n to WEAK (probe-only traffic), e.g. after
// transport errors that have not yet reached the DEAD threshold.
func (c *Cluster) MarkWeak(n *Node) {
	c.mu.Lock()
	if n.state == NodeConnected {
		n.state = NodeWeak
	}
	c.publishLocked()
	c.mu.Unlock()
}

// publishLocked rebuilds the atomic snapshot from the current node map.
// Must be called with mu held.
func (c *Cluster) publishLocked() {
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	// Deterministic tie-break order aids debugging (spec §4.5 "Selection
	// must tie-break deterministically on URL").
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].URL.Key() < nodes[j].URL.Key() })
	c.snapshot.Store(&nodes)
}

// Snapshot returns the current atomic node-set snapshot (spec §5:
// "iterators never observe a partial transition").
func (c *Cluster) Snapshot() []*Node {
	return *c.snapshot.Load()
}

// Eligible returns the subset of the current snapshot eligible for
// ordinary traffic (spec §4.5 admission policy).
func (c *Cluster) Eligible() []*Node {
	all := c.Snapshot()
	out := make([]*Node, 0, len(all))
	for _, n := range all {
		if n.Eligible() {
			out = append(out, n)
		}
	}
	return out
}

func (c *Cluster) emit(ev Event) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
	logger.WithService("cluster").Debug("node event", "kind", ev.Kind, "url", ev.Node.URL.Key())
}
