package registry

import (
	"context"
	"sync"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

// MemoryBackend is an in-process Registry backend: useful for tests and for
// a single-process deployment with no external coordination service. It
// holds the full membership and config state in memory and fans out
// updates synchronously to subscribers.
type MemoryBackend struct {
	mu     sync.Mutex
	keys   map[Key]*memoryKeyState
}

type memoryKeyState struct {
	mu              sync.Mutex
	version         uint64
	providers       map[string]*joyurl.URL // keyed by URL.Key()
	clusterSubs     map[*memorySub]struct{}
	configVersion   uint64
	configParams    map[string]string
	configSubs      map[*memoryConfigSub]struct{}
}

type memorySub struct {
	fn   ClusterListener
	gate *versionGate
}

type memoryConfigSub struct {
	fn   ConfigListener
	gate *versionGate
}

// NewMemoryBackend creates an empty in-memory Registry backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{keys: make(map[Key]*memoryKeyState)}
}

func (b *MemoryBackend) state(key Key) *memoryKeyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.keys[key]
	if !ok {
		st = &memoryKeyState{
			providers:   make(map[string]*joyurl.URL),
			clusterSubs: make(map[*memorySub]struct{}),
			configSubs:  make(map[*memoryConfigSub]struct{}),
		}
		b.keys[key] = st
	}
	return st
}

func (st *memoryKeyState) snapshot() Snapshot {
	providers := make([]*joyurl.URL, 0, len(st.providers))
	for _, u := range st.providers {
		providers = append(providers, u)
	}
	return Snapshot{Version: st.version, Providers: providers}
}

// SubscribeCluster delivers the current snapshot immediately (possibly
// empty, spec §4.4 "a subscriber receives at least one snapshot ... after
// subscribe succeeds"), then delivers every future version-incrementing
// update.
func (b *MemoryBackend) SubscribeCluster(ctx context.Context, key Key, fn ClusterListener) (Handle, error) {
	st := b.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	sub := &memorySub{fn: fn, gate: &versionGate{}}
	st.clusterSubs[sub] = struct{}{}

	snap := st.snapshot()
	sub.gate.apply(snap.Version)
	fn(snap)

	return handleFunc(func() {
		st.mu.Lock()
		delete(st.clusterSubs, sub)
		st.mu.Unlock()
	}), nil
}

// SubscribeConfigure mirrors SubscribeCluster for the config overlay
// stream.
func (b *MemoryBackend) SubscribeConfigure(ctx context.Context, key Key, fn ConfigListener) (Handle, error) {
	st := b.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	sub := &memoryConfigSub{fn: fn, gate: &versionGate{}}
	st.configSubs[sub] = struct{}{}

	snap := ConfigSnapshot{Version: st.configVersion, Params: copyParams(st.configParams)}
	sub.gate.apply(snap.Version)
	fn(snap)

	return handleFunc(func() {
		st.mu.Lock()
		delete(st.configSubs, sub)
		st.mu.Unlock()
	}), nil
}

// Register adds node to key's provider set, bumps the version, and
// broadcasts the new snapshot to every subscriber whose version gate
// admits it (spec §4.4/§4.5: duplicate URLs collapse to one Node).
func (b *MemoryBackend) Register(ctx context.Context, key Key, node *joyurl.URL) error {
	st := b.state(key)
	st.mu.Lock()
	st.version++
	st.providers[node.Key()] = node
	snap := st.snapshot()
	subs := subSlice(st.clusterSubs)
	st.mu.Unlock()

	broadcast(subs, snap)
	return nil
}

// Deregister removes node from key's provider set and broadcasts.
// Deregistering an absent node is a no-op (idempotent eviction, spec §3).
func (b *MemoryBackend) Deregister(ctx context.Context, key Key, node *joyurl.URL) error {
	st := b.state(key)
	st.mu.Lock()
	delete(st.providers, node.Key())
	st.version++
	snap := st.snapshot()
	subs := subSlice(st.clusterSubs)
	st.mu.Unlock()

	broadcast(subs, snap)
	return nil
}

// SetConfig publishes a new config overlay version for key, used by tests
// and by an operator-facing admin surface.
func (b *MemoryBackend) SetConfig(key Key, params map[string]string) {
	st := b.state(key)
	st.mu.Lock()
	st.configVersion++
	st.configParams = copyParams(params)
	snap := ConfigSnapshot{Version: st.configVersion, Params: copyParams(params)}
	subs := make([]*memoryConfigSub, 0, len(st.configSubs))
	for s := range st.configSubs {
		subs = append(subs, s)
	}
	st.mu.Unlock()

	for _, s := range subs {
		if s.gate.apply(snap.Version) {
			s.fn(snap)
		}
	}
}

func subSlice(m map[*memorySub]struct{}) []*memorySub {
	out := make([]*memorySub, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	return out
}

func broadcast(subs []*memorySub, snap Snapshot) {
	for _, s := range subs {
		if s.gate.apply(snap.Version) {
			s.fn(snap)
		}
	}
}

func copyParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type handleFunc func()

func (h handleFunc) Unsubscribe() { h() }
