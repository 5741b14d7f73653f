// Package loadbalance implements LoadBalance and Route (spec §4.6):
// LoadBalance picks one Node from a snapshot of eligible Nodes; Route
// composes address filters, sticky rules, the LoadBalance pick, and a
// retry policy that re-enters Route with the failed Node excluded.
package loadbalance

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/lwbtt0915/joyrpc/pkg/cluster"
	"github.com/lwbtt0915/joyrpc/pkg/extension"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// LoadBalance is the plugin contract named extensions implement (spec
// §9 "tagged-interface pattern").
type LoadBalance interface {
	extension.Named
	// Pick selects one Node from candidates for req, or returns an error
	// (typically joyerr.CodeNoAvailableNode) if none can be chosen.
	Pick(req Request, candidates []*cluster.Node) (*cluster.Node, error)
}

// Request carries the per-call attributes LoadBalance/Route decisions can
// key on (sticky hash, region preference, attachments).
type Request struct {
	Interface  string
	Method     string
	Attachment map[string]string
}

func noAvailableNode() error {
	return joyerr.New(joyerr.CodeNoAvailableNode, "no eligible node available")
}

// RoundRobin cycles through candidates in order, keeping one counter per
// Cluster instance (spec §4.6 "stateful variants ... keep counters per
// Cluster").
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Name() string { return "roundrobin" }

func (r *RoundRobin) Pick(_ Request, candidates []*cluster.Node) (*cluster.Node, error) {
	if len(candidates) == 0 {
		return nil, noAvailableNode()
	}
	i := r.counter.Add(1) - 1
	return candidates[i%uint64(len(candidates))], nil
}

// Random picks uniformly at random among candidates.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (r *Random) Name() string { return "random" }

func (r *Random) Pick(_ Request, candidates []*cluster.Node) (*cluster.Node, error) {
	if len(candidates) == 0 {
		return nil, noAvailableNode()
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// Weighted picks with probability proportional to each Node's Weight
// (spec §4.6 "weighted ... variants"), falling back to uniform selection
// when every candidate has zero weight.
type Weighted struct{}

func NewWeighted() *Weighted { return &Weighted{} }

func (w *Weighted) Name() string { return "weighted" }

func (w *Weighted) Pick(_ Request, candidates []*cluster.Node) (*cluster.Node, error) {
	if len(candidates) == 0 {
		return nil, noAvailableNode()
	}
	total := 0
	for _, n := range candidates {
		if n.Weight > 0 {
			total += n.Weight
		}
	}
	if total == 0 {
		return candidates[rand.Intn(len(candidates))], nil
	}
	r := rand.Intn(total)
	for _, n := range candidates {
		if n.Weight <= 0 {
			continue
		}
		if r < n.Weight {
			return n, nil
		}
		r -= n.Weight
	}
	return candidates[len(candidates)-1], nil
}

// LeastActive picks the candidate with the fewest in-flight calls,
// breaking ties uniformly at random among the tied minimum. Active-call
// counts are tracked per Node URL in a mutex-guarded map, the same
// per-key-bucket-under-one-lock shape the teacher's rate limiter uses for
// its per-client counters.
type LeastActive struct {
	mu     sync.Mutex
	active map[string]int
}

func NewLeastActive() *LeastActive {
	return &LeastActive{active: make(map[string]int)}
}

func (l *LeastActive) Name() string { return "leastactive" }

// Begin marks the start of a call against n; callers must call End when
// the call completes (success or failure).
func (l *LeastActive) Begin(n *cluster.Node) {
	l.mu.Lock()
	l.active[n.URL.Key()]++
	l.mu.Unlock()
}

// End marks the completion of a call started with Begin.
func (l *LeastActive) End(n *cluster.Node) {
	l.mu.Lock()
	if c := l.active[n.URL.Key()]; c > 1 {
		l.active[n.URL.Key()] = c - 1
	} else {
		delete(l.active, n.URL.Key())
	}
	l.mu.Unlock()
}

func (l *LeastActive) Pick(_ Request, candidates []*cluster.Node) (*cluster.Node, error) {
	if len(candidates) == 0 {
		return nil, noAvailableNode()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	best := candidates[0]
	bestCount := l.active[best.URL.Key()]
	var tied []*cluster.Node
	tied = append(tied, best)

	for _, n := range candidates[1:] {
		c := l.active[n.URL.Key()]
		switch {
		case c < bestCount:
			best, bestCount = n, c
			tied = tied[:0]
			tied = append(tied, n)
		case c == bestCount:
			tied = append(tied, n)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil
	}
	return tied[rand.Intn(len(tied))], nil
}

// Sticky hashes Request.Attachment[stickyKey] to a stable candidate index,
// so repeat calls carrying the same sticky value land on the same Node
// while it remains eligible (spec §4.6 "sticky rules (hash on an
// attachment)"). It falls back to fallback when no sticky value is
// present.
type Sticky struct {
	stickyKey string
	fallback  LoadBalance
}

func NewSticky(stickyKey string, fallback LoadBalance) *Sticky {
	return &Sticky{stickyKey: stickyKey, fallback: fallback}
}

func (s *Sticky) Name() string { return "sticky" }

func (s *Sticky) Pick(req Request, candidates []*cluster.Node) (*cluster.Node, error) {
	if len(candidates) == 0 {
		return nil, noAvailableNode()
	}
	val, ok := req.Attachment[s.stickyKey]
	if !ok || val == "" {
		return s.fallback.Pick(req, candidates)
	}
	h := fnv32(val)
	return candidates[h%uint32(len(candidates))], nil
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
