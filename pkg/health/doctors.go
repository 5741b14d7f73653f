package health

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/cluster"
)

// ClusterDoctor reports EXHAUSTED once a Cluster has no eligible Node
// left to route to, and DEAD once it has no Node at all (spec §3 "the set
// of nodes exposed to LoadBalance is an atomic snapshot").
type ClusterDoctor struct {
	name    string
	cluster *cluster.Cluster
}

// NewClusterDoctor names the doctor after the (interface, alias) pair its
// backing Cluster serves.
func NewClusterDoctor(name string, c *cluster.Cluster) *ClusterDoctor {
	return &ClusterDoctor{name: name, cluster: c}
}

func (d *ClusterDoctor) Name() string { return d.name }

func (d *ClusterDoctor) Check(ctx context.Context) Status {
	nodes := d.cluster.Snapshot()
	if len(nodes) == 0 {
		return StatusDead
	}
	if len(d.cluster.Eligible()) == 0 {
		return StatusExhausted
	}
	return StatusHealthy
}
