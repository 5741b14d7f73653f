package loadbalance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/cluster"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

func newRouteCluster(urls ...*joyurl.URL) *cluster.Cluster {
	c := cluster.New(0)
	c.ApplySnapshot(snapshotOf(urls))
	for _, n := range c.Snapshot() {
		c.MarkConnected(n)
	}
	return c
}

func TestRoute_Invoke_SucceedsFirstTry(t *testing.T) {
	u := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", nil)
	c := newRouteCluster(u)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 3})

	calls := 0
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRoute_Invoke_RetriesOnRetriableErrorExcludingFailedNode(t *testing.T) {
	u1 := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", nil)
	u2 := joyurl.New("grpc", "127.0.0.1", 9001, "Echo", nil)
	c := newRouteCluster(u1, u2)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 2})

	var seen []string
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		seen = append(seen, n.URL.Key())
		if len(seen) == 1 {
			return joyerr.New(joyerr.CodeTransport, "connection reset").WithRetriable(true)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1], "retry must exclude the node that just failed")
}

func TestRoute_Invoke_NonRetriableErrorStopsImmediately(t *testing.T) {
	u := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", nil)
	c := newRouteCluster(u)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 3})

	calls := 0
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		calls++
		return joyerr.New(joyerr.CodeRemote, "application exception")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRoute_Invoke_ExhaustsRetriesThenReturnsLastError(t *testing.T) {
	u := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", nil)
	c := newRouteCluster(u)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 2})

	calls := 0
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		calls++
		return joyerr.New(joyerr.CodeTransport, "reset").WithRetriable(true)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "with only one eligible node, excluding it after try 1 leaves no candidate for try 2")
}

func TestRoute_Invoke_NoEligibleNodeReturnsNoAvailableNode(t *testing.T) {
	c := cluster.New(0)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 1})

	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		t.Fatal("attempt must not run with zero eligible nodes")
		return nil
	})
	require.Error(t, err)
	assert.True(t, joyerr.IsCode(err, joyerr.CodeNoAvailableNode))
}

func TestRegion_FiltersToMatchingNodesOnly(t *testing.T) {
	u1 := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", map[string]string{"region": "us"})
	u2 := joyurl.New("grpc", "127.0.0.1", 9001, "Echo", map[string]string{"region": "eu"})
	c := newRouteCluster(u1, u2)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 1}, Region("eu"))

	var picked string
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		picked = n.Region
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "eu", picked)
}

func TestRegion_DegradesWhenNoneMatch(t *testing.T) {
	u1 := joyurl.New("grpc", "127.0.0.1", 9000, "Echo", map[string]string{"region": "us"})
	c := newRouteCluster(u1)
	r := New(c, NewRoundRobin(), RetryPolicy{MaxAttempts: 1}, Region("ap"))

	calls := 0
	err := r.Invoke(context.Background(), Request{}, func(ctx context.Context, n *cluster.Node) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "with no region match, filter must degrade to the unfiltered set rather than fail the call")
}
