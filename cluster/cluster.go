// Package cluster implements a pool of NodeConnections, call routing,
// static membership, and cluster-wide drain/close.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sysdb/ndbclient/conn"
	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/stats"
)

// RoutingPolicy selects which healthy node a call is routed to.
type RoutingPolicy int

const (
	// RoutingRoundRobin cycles through healthy nodes in order.
	RoutingRoundRobin RoutingPolicy = iota
	// RoutingLeastInFlight picks the healthy node with the fewest
	// currently tracked calls.
	RoutingLeastInFlight
)

// Cluster owns a static set of NodeConnections: membership is fixed at
// Open. Reconnection is not attempted; a Failed node stays unhealthy for
// the Cluster's lifetime (see DESIGN.md).
type Cluster struct {
	cfg     ndb.Config
	logger  logrus.FieldLogger
	routing RoutingPolicy

	nodes    []*conn.NodeConnection
	byHostID map[int32]*conn.NodeConnection

	rrCounter atomic.Uint64

	stats    *stats.Registry
	executor *conn.Executor

	mu       sync.RWMutex
	draining bool
}

// Open connects to every host in cfg.Hosts and returns a Cluster backed by
// whichever subset successfully authenticates. It fails only if every
// host fails to connect.
func Open(ctx context.Context, cfg ndb.Config, policy RoutingPolicy, logger logrus.FieldLogger) (*Cluster, *ndb.Error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var statsRegistry *stats.Registry
	if cfg.Statistics {
		statsRegistry = stats.NewRegistry(true)
	}
	executor := conn.NewExecutor(8, 4096)

	cl := &Cluster{
		cfg:      cfg,
		logger:   logger,
		routing:  policy,
		byHostID: make(map[int32]*conn.NodeConnection),
		stats:    statsRegistry,
		executor: executor,
	}

	var lastErr *ndb.Error
	for _, host := range cfg.Hosts {
		nc, err := conn.Open(ctx, conn.Config{
			Host:                       host,
			Port:                       cfg.Port,
			User:                       cfg.User,
			Password:                   cfg.Password,
			MaxOutstandingTransactions: cfg.MaxOutstandingTransactions,
			CommandTimeout:             cfg.CommandTimeout,
			Logger:                     logger,
			Executor:                   executor,
			Stats:                      statsRegistry,
		})
		if err != nil {
			logger.WithError(err).WithField("host", host).Warn("failed to connect to node")
			lastErr = err
			continue
		}
		cl.nodes = append(cl.nodes, nc)
		cl.byHostID[nc.HostID()] = nc
	}

	if len(cl.nodes) == 0 {
		if lastErr == nil {
			lastErr = ndb.New(ndb.KindConnection, "no hosts configured")
		}
		return nil, ndb.Wrap(ndb.KindConnection, "failed to connect to any configured host", lastErr)
	}
	return cl, nil
}

// healthyNodes returns every node currently Authenticated.
func (cl *Cluster) healthyNodes() []*conn.NodeConnection {
	out := make([]*conn.NodeConnection, 0, len(cl.nodes))
	for _, n := range cl.nodes {
		if n.State() == conn.StateAuthenticated {
			out = append(out, n)
		}
	}
	return out
}

// selectNode applies the configured RoutingPolicy over the healthy node
// set. Partition-aware routing is not implemented; every call falls back
// to this policy regardless of any partition-key parameter it may carry.
func (cl *Cluster) selectNode() (*conn.NodeConnection, *ndb.Error) {
	healthy := cl.healthyNodes()
	if len(healthy) == 0 {
		return nil, ndb.New(ndb.KindConnection, "no healthy nodes available")
	}
	if cl.routing == RoutingLeastInFlight {
		best := healthy[0]
		for _, n := range healthy[1:] {
			if n.InFlight() < best.InFlight() {
				best = n
			}
		}
		return best, nil
	}
	i := cl.rrCounter.Add(1) - 1
	return healthy[i%uint64(len(healthy))], nil
}

// Submit routes one procedure invocation to a healthy node.
// AllowSystemCalls/AllowAdHocQueries gate procedure names starting with
// the server's reserved "@" prefix (system procedures) and the ad-hoc SQL
// entry point, per the matching configuration flags.
func (cl *Cluster) Submit(ctx context.Context, procedure string, params []ndb.Value, opts conn.SubmitOptions) (*ndb.Call, *ndb.Error) {
	cl.mu.RLock()
	draining := cl.draining
	cl.mu.RUnlock()
	if draining {
		return nil, ndb.New(ndb.KindConnection, "cluster is draining; no new submits accepted")
	}

	if err := cl.checkProcedureAllowed(procedure); err != nil {
		return nil, err
	}

	node, err := cl.selectNode()
	if err != nil {
		return nil, err
	}
	return node.Submit(ctx, procedure, params, opts)
}

func (cl *Cluster) checkProcedureAllowed(procedure string) *ndb.Error {
	if len(procedure) == 0 {
		return ndb.New(ndb.KindEncoding, "procedure name must not be empty")
	}
	if procedure[0] == '@' && !cl.cfg.AllowSystemCalls {
		return ndb.New(ndb.KindEncoding, fmt.Sprintf("system procedure %q requires AllowSystemCalls", procedure))
	}
	if procedure == "@AdHoc" && !cl.cfg.AllowAdHocQueries {
		return ndb.New(ndb.KindEncoding, "ad-hoc queries require AllowAdHocQueries")
	}
	return nil
}

// Stats returns the Cluster's statistics registry (nil if disabled).
func (cl *Cluster) Stats() *stats.Registry { return cl.stats }

// Nodes returns the full static node set, including unhealthy ones.
func (cl *Cluster) Nodes() []*conn.NodeConnection { return cl.nodes }

// Drain stops accepting new submits cluster-wide and waits for every node
// to drain, or until ctx is done.
func (cl *Cluster) Drain(ctx context.Context) error {
	cl.mu.Lock()
	cl.draining = true
	cl.mu.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, n := range cl.nodes {
		n := n
		eg.Go(func() error { return n.Drain(egCtx) })
	}
	return eg.Wait()
}

// Close closes every node, giving each up to grace to drain first.
func (cl *Cluster) Close(grace time.Duration) {
	var wg sync.WaitGroup
	for _, n := range cl.nodes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Close(grace)
		}()
	}
	wg.Wait()
	cl.executor.Stop()
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
