// Package client is the single untyped entry point for application code:
// callers name a procedure and supply a parameter vector rather than
// calling a generated per-procedure method.
package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sysdb/ndbclient/cluster"
	"github.com/sysdb/ndbclient/conn"
	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/stats"
)

// Client is a connected handle to a cluster, bound to one user/database
// pair at Open time.
type Client struct {
	cl     *cluster.Cluster
	logger logrus.FieldLogger
}

// Option customizes Open beyond what the connection string carries.
type Option func(*openOptions)

type openOptions struct {
	routing cluster.RoutingPolicy
	logger  logrus.FieldLogger
}

// WithRoutingPolicy overrides the default round-robin node routing.
func WithRoutingPolicy(p cluster.RoutingPolicy) Option {
	return func(o *openOptions) { o.routing = p }
}

// WithLogger overrides the default logrus.StandardLogger() sink.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *openOptions) { o.logger = l }
}

// Open parses connStr and connects to every configured host, returning a
// Client backed by whichever subset of hosts are reachable.
func Open(ctx context.Context, connStr string, opts ...Option) (*Client, *ndb.Error) {
	cfg, err := ndb.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	return OpenConfig(ctx, cfg, opts...)
}

// OpenConfig is Open for callers that already have a parsed Config, e.g.
// constructed programmatically rather than from a connection string.
func OpenConfig(ctx context.Context, cfg ndb.Config, opts ...Option) (*Client, *ndb.Error) {
	o := openOptions{routing: cluster.RoutingRoundRobin, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	cl, err := cluster.Open(ctx, cfg, o.routing, o.logger)
	if err != nil {
		return nil, err
	}
	return &Client{cl: cl, logger: o.logger}, nil
}

// CallOptions customizes one invocation beyond the client's defaults.
type CallOptions struct {
	// Timeout overrides the connection's CommandTimeout for this call. 0
	// means use the default.
	Timeout time.Duration
	// NonBlocking fails fast with a KindConnection error instead of
	// blocking on a node's outstanding-request credit window.
	NonBlocking bool
	// BatchTimeoutHintMS is passed through to the server as the
	// procedure invocation's batch timeout hint; 0 means the server
	// default.
	BatchTimeoutHintMS int32
}

func (o CallOptions) toSubmitOptions(cb func(*ndb.Call)) conn.SubmitOptions {
	return conn.SubmitOptions{
		Timeout:            o.Timeout,
		NonBlocking:        o.NonBlocking,
		BatchTimeoutHintMS: o.BatchTimeoutHintMS,
		Callback:           cb,
	}
}

// CallAsync submits procedure with params and returns immediately with a
// *ndb.Call the caller can Wait on or attach a callback to. It is the
// building block Call is implemented in terms of.
func (c *Client) CallAsync(ctx context.Context, procedure string, params []ndb.Value, opts CallOptions) (*ndb.Call, *ndb.Error) {
	return c.cl.Submit(ctx, procedure, params, opts.toSubmitOptions(nil))
}

// Call submits procedure with params and blocks until the result arrives,
// the call's deadline passes, or ctx is done.
func (c *Client) Call(ctx context.Context, procedure string, params []ndb.Value, opts CallOptions) (*ndb.ResultSet, *ndb.Error) {
	call, err := c.CallAsync(ctx, procedure, params, opts)
	if err != nil {
		return nil, err
	}
	if werr := call.Wait(ctx); werr != nil {
		return nil, ndb.Wrap(ndb.KindTimeout, "caller context done before call completed", werr)
	}
	return call.Result()
}

// CallCallback submits procedure with params and invokes cb exactly once,
// on the client's shared callback executor, when the call reaches a
// terminal state. Callbacks never run on the reader goroutine.
func (c *Client) CallCallback(ctx context.Context, procedure string, params []ndb.Value, opts CallOptions, cb func(*ndb.ResultSet, *ndb.Error)) (*ndb.Call, *ndb.Error) {
	return c.cl.Submit(ctx, procedure, params, opts.toSubmitOptions(func(call *ndb.Call) {
		res, err := call.Result()
		cb(res, err)
	}))
}

// Stats returns a statistics snapshot across every node in the cluster,
// keyed by procedure after aggregation. It returns nil if statistics were
// not enabled via the connection string.
func (c *Client) Stats(mode stats.SnapshotMode) map[string]stats.Snapshot {
	reg := c.cl.Stats()
	if reg == nil {
		return nil
	}
	return stats.Aggregate(reg.Snapshot(mode))
}

// Nodes exposes the underlying per-node connections, e.g. for callers that
// want per-node (rather than aggregated) statistics or health.
func (c *Client) Nodes() []*conn.NodeConnection { return c.cl.Nodes() }

// Drain stops accepting new calls and waits for in-flight calls to settle
// across the whole cluster, or until ctx is done.
func (c *Client) Drain(ctx context.Context) error { return c.cl.Drain(ctx) }

// Close tears down every node connection, giving in-flight calls up to
// grace to finish first.
func (c *Client) Close(grace time.Duration) { c.cl.Close(grace) }

// vim: set tw=78 sw=4 sw=4 noexpandtab :
