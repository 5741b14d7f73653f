package loadbalance

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/cluster"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// AddressFilter narrows a candidate set before LoadBalance picks (spec
// §4.6 "address filters (region, tag)"). Implementations must not mutate
// the slice they are given.
type AddressFilter func(candidates []*cluster.Node) []*cluster.Node

// Region returns an AddressFilter keeping only Nodes in region, or every
// candidate if none match (degrading to "no region preference" rather
// than NoAvailableNode).
func Region(region string) AddressFilter {
	return func(candidates []*cluster.Node) []*cluster.Node {
		if region == "" {
			return candidates
		}
		out := make([]*cluster.Node, 0, len(candidates))
		for _, n := range candidates {
			if n.Region == region {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			return candidates
		}
		return out
	}
}

// RetryPolicy bounds how many additional attempts Route makes after a
// retriable failure (spec §4.6 "on retriable failure and remaining
// attempts, re-enter Route with the failed Node excluded").
type RetryPolicy struct {
	MaxAttempts int // total attempts including the first; 1 disables retry
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Route composes address filters, a LoadBalance pick, and a retry policy
// into the per-call Node-selection pipeline (spec §4.6).
type Route struct {
	cluster *cluster.Cluster
	balance LoadBalance
	filters []AddressFilter
	retry   RetryPolicy
}

// New builds a Route over c using balance as the LoadBalance strategy,
// applying filters in order before each pick.
func New(c *cluster.Cluster, balance LoadBalance, retry RetryPolicy, filters ...AddressFilter) *Route {
	return &Route{cluster: c, balance: balance, filters: filters, retry: retry}
}

// Invoke runs attempt once per try, feeding it the Node Route picked,
// retrying on a retriable joyerr.Error with the failed Node excluded from
// the next pick, up to the configured RetryPolicy.
func (r *Route) Invoke(ctx context.Context, req Request, attempt func(context.Context, *cluster.Node) error) error {
	excluded := make(map[string]struct{})
	var lastErr error

	for try := 0; try < r.retry.attempts(); try++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		node, err := r.pick(req, excluded)
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err = attempt(ctx, node)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retriable(err) {
			return err
		}
		excluded[node.URL.Key()] = struct{}{}
	}
	return lastErr
}

func (r *Route) pick(req Request, excluded map[string]struct{}) (*cluster.Node, error) {
	candidates := r.cluster.Eligible()
	for _, f := range r.filters {
		candidates = f(candidates)
	}
	if len(excluded) > 0 {
		filtered := candidates[:0:0]
		for _, n := range candidates {
			if _, skip := excluded[n.URL.Key()]; !skip {
				filtered = append(filtered, n)
			}
		}
		candidates = filtered
	}
	return r.balance.Pick(req, candidates)
}

func retriable(err error) bool {
	if e, ok := joyerr.As(err); ok {
		return e.Retriable()
	}
	return false
}
