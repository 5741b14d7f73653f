// Package cluster implements the Cluster and Node types (spec §4.5): a
// live set of Nodes computed from the Registry Client's cluster stream,
// with admission (warm-up), eviction, and up/down event emission.
//
// The diff-against-current-set and version-driven update logic is
// grounded on the gossip package's StateMachine.Update, generalized from
// a flat NodeAddr→EndpointState map to a full add/remove/update diff
// against joyurl.URL-identified Nodes.
package cluster

import (
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

// NodeState is a Node's membership lifecycle state (spec §3).
type NodeState int32

const (
	NodeCandidate NodeState = iota
	NodeConnecting
	NodeConnected
	NodeWeak
	NodeDead
	NodeClosing
)

func (s NodeState) String() string {
	switch s {
	case NodeCandidate:
		return "CANDIDATE"
	case NodeConnecting:
		return "CONNECTING"
	case NodeConnected:
		return "CONNECTED"
	case NodeWeak:
		return "WEAK"
	case NodeDead:
		return "DEAD"
	case NodeClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Node is a resolvable provider endpoint (spec §3): identity is its URL;
// lifetime runs from Cluster add to Cluster remove. A Node never returns
// from DEAD — a later re-add allocates a fresh Node (spec §4.5).
type Node struct {
	URL         *joyurl.URL
	Weight      int
	Region      string
	Datacenter  string
	WarmupUntil time.Time
	state       NodeState
}

func newNode(u *joyurl.URL) *Node {
	weight := u.GetInt(joyurl.ParamWeight, 100)
	warmupSeconds := u.GetInt(joyurl.ParamWarmup, 0)
	var warmupUntil time.Time
	if warmupSeconds > 0 {
		warmupUntil = time.Now().Add(time.Duration(warmupSeconds) * time.Second)
	}
	return &Node{
		URL:         u,
		Weight:      weight,
		Region:      u.GetParam("region", ""),
		Datacenter:  u.GetParam("datacenter", ""),
		WarmupUntil: warmupUntil,
		state:       NodeCandidate,
	}
}

// State returns the Node's current lifecycle state.
func (n *Node) State() NodeState { return n.state }

// Eligible reports whether the Node may receive ordinary traffic (spec
// §4.5 "eligible ... only when state ∈ {CONNECTED} AND warm-up deadline ≤
// now").
func (n *Node) Eligible() bool {
	return n.state == NodeConnected && (n.WarmupUntil.IsZero() || !time.Now().Before(n.WarmupUntil))
}

// ProbeEligible reports whether the Node may receive probe-only traffic
// (spec §4.5 "WEAK nodes may receive probe traffic only").
func (n *Node) ProbeEligible() bool {
	return n.state == NodeWeak
}
