// Package conn implements one TCP connection to a cluster node
// (NodeConnection) with its reader/writer goroutines, in-flight call
// registry, credit window, and timeout sweep.
package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/stats"
	"github.com/sysdb/ndbclient/wire"
)

// State is the NodeConnection lifecycle state machine:
// Connecting -> Authenticated -> (Draining | Failed) -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateDraining
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultSweepInterval is the timeout-sweep tick.
const DefaultSweepInterval = 100 * time.Millisecond

// Config configures a single NodeConnection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	MaxOutstandingTransactions int
	CommandTimeout             time.Duration
	DialTimeout                time.Duration
	SweepInterval              time.Duration

	Logger   logrus.FieldLogger
	Executor *Executor
	Stats    *stats.Registry

	// Dial overrides the network dialer; nil uses a net.Dialer's
	// DialContext bounded by DialTimeout. Tests
	// use this to connect to an in-process fake server via net.Pipe or a
	// loopback listener.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (c *Config) setDefaults() {
	if c.MaxOutstandingTransactions <= 0 {
		c.MaxOutstandingTransactions = 3000
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Executor == nil {
		c.Executor = NewExecutor(4, 1024)
	}
}

// writeJob is one encoded frame queued for the writer goroutine.
type writeJob struct {
	payload []byte
}

// NodeConnection owns one TCP connection to a cluster node.
type NodeConnection struct {
	cfg  Config
	id   uuid.UUID
	addr string

	sock net.Conn

	hostID            int32
	connectionID      int64
	instanceTimestamp int64

	registry *registry
	sem      *semaphore.Weighted

	writeCh chan writeJob

	state atomic.Int32

	logger logrus.FieldLogger

	ctx       context.Context
	cancel    context.CancelFunc
	eg        *errgroup.Group
	drainedCh chan struct{}

	closeOnce sync.Once
}

// ConnectionID implements ndb.Owner.
func (nc *NodeConnection) ConnectionID() int64 { return nc.connectionID }

// ID returns the client-local connection UUID, distinct from the
// server-assigned ConnectionID.
func (nc *NodeConnection) ID() uuid.UUID { return nc.id }

// State returns the current lifecycle state.
func (nc *NodeConnection) State() State { return State(nc.state.Load()) }

// HostID returns the server-assigned host id from login.
func (nc *NodeConnection) HostID() int32 { return nc.hostID }

// InstanceTimestamp returns the shared instance timestamp from login.
func (nc *NodeConnection) InstanceTimestamp() int64 { return nc.instanceTimestamp }

// Addr returns "host:port".
func (nc *NodeConnection) Addr() string { return nc.addr }

// Open dials addr, performs the login exchange, and starts the reader,
// writer, and timeout-sweep goroutines. On failure it returns a *ndb.Error
// of KindAuthentication (login rejected), KindConnection (dial or socket
// failure), KindProtocol (malformed login response) or KindEncoding (login
// field over the size limit); Open never returns a NodeConnection in a
// non-Authenticated state.
func Open(ctx context.Context, cfg Config) (*NodeConnection, *ndb.Error) {
	cfg.setDefaults()
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	dial := cfg.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancelDial()
	sock, err := dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, ndb.Wrap(ndb.KindConnection, "dial failed", err)
	}

	nc := &NodeConnection{
		cfg:       cfg,
		id:        uuid.New(),
		addr:      addr,
		sock:      sock,
		registry:  newRegistry(),
		sem:       semaphore.NewWeighted(int64(cfg.MaxOutstandingTransactions)),
		writeCh:   make(chan writeJob, cfg.MaxOutstandingTransactions),
		logger:    cfg.Logger,
		drainedCh: make(chan struct{}),
	}
	nc.state.Store(int32(StateConnecting))

	if err := nc.login(ctx); err != nil {
		sock.Close()
		return nil, err
	}
	nc.state.Store(int32(StateAuthenticated))

	nc.ctx, nc.cancel = context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(nc.ctx)
	nc.eg = eg
	eg.Go(func() error { return nc.readLoop() })
	eg.Go(func() error { return nc.writeLoop() })
	eg.Go(func() error { return nc.sweepLoop(egCtx) })

	nc.logger.WithFields(logrus.Fields{
		"addr": addr, "host_id": nc.hostID, "connection_id": nc.connectionID, "conn_uuid": nc.id,
	}).Info("connection established")
	return nc, nil
}

func (nc *NodeConnection) login(ctx context.Context) *ndb.Error {
	payload, encErr := wire.EncodeLogin(wire.LoginRequest{
		Service:    "database",
		Username:   nc.cfg.User,
		Password:   nc.cfg.Password,
		AuthScheme: wire.AuthSHA1,
	})
	if encErr != nil {
		return encErr.(*ndb.Error)
	}
	if err := wire.WriteFrame(nc.sock, payload); err != nil {
		return ndb.Wrap(ndb.KindConnection, "failed to write login request", err)
	}
	respPayload, err := wire.ReadFrame(nc.sock)
	if err != nil {
		return ndb.Wrap(ndb.KindConnection, "failed to read login response", err)
	}
	resp, lerr := wire.DecodeLoginResponse(respPayload)
	if lerr != nil {
		return lerr
	}
	nc.hostID = resp.HostID
	nc.connectionID = resp.ConnectionID
	nc.instanceTimestamp = resp.InstanceTimestamp
	return nil
}

// SubmitOptions customizes one Submit call beyond the connection's
// defaults.
type SubmitOptions struct {
	Timeout            time.Duration // 0 means use the connection's CommandTimeout
	Callback           func(*ndb.Call)
	NonBlocking        bool // fail fast instead of blocking on the credit window
	BatchTimeoutHintMS int32
}

// Submit encodes and enqueues one procedure invocation. It returns
// synchronously for connection-closed, queue-full-over-limit (only when
// NonBlocking), a KindTimeout when a blocking submit's deadline or ctx
// ends before a credit-window slot frees up, and parameter-encoding-error;
// every other failure is delivered through the returned Call's completion.
func (nc *NodeConnection) Submit(ctx context.Context, procedure string, params []ndb.Value, opts SubmitOptions) (*ndb.Call, *ndb.Error) {
	switch nc.State() {
	case StateDraining:
		return nil, ndb.New(ndb.KindConnection, "connection is draining; no new submits accepted")
	case StateFailed, StateClosed:
		return nil, ndb.New(ndb.KindConnection, "connection is closed")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = nc.cfg.CommandTimeout
	}
	deadline := time.Now().Add(timeout)

	if opts.BatchTimeoutHintMS == 0 {
		opts.BatchTimeoutHintMS = wire.DefaultBatchTimeoutHint
	}

	if err := nc.acquireSlot(ctx, deadline, opts.NonBlocking); err != nil {
		return nil, err
	}

	call := ndb.NewCall(0, procedure, params, deadline, nc)
	if opts.Callback != nil {
		call.OnComplete(func(c *ndb.Call) {
			nc.cfg.Executor.Submit(func() { opts.Callback(c) })
		})
	}

	handle, ok := nc.registry.register(call)
	if !ok {
		nc.sem.Release(1)
		return nil, ndb.New(ndb.KindConnection, "connection is closed")
	}

	payload, encErr := wire.EncodeInvocation(handle, procedure, params, opts.BatchTimeoutHintMS)
	if encErr != nil {
		nc.releaseSlot(handle)
		return nil, encErr
	}

	nc.cfg.Stats.RecordSubmit(nc.addr, procedure)

	select {
	case nc.writeCh <- writeJob{payload: payload}:
	case <-nc.ctx.Done():
		nc.releaseSlot(handle)
		return nil, ndb.New(ndb.KindConnection, "connection is closed")
	}
	return call, nil
}

func (nc *NodeConnection) acquireSlot(ctx context.Context, deadline time.Time, nonBlocking bool) *ndb.Error {
	if nonBlocking {
		if nc.sem.TryAcquire(1) {
			return nil
		}
		return ndb.New(ndb.KindConnection, "outstanding request limit reached")
	}
	acqCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := nc.sem.Acquire(acqCtx, 1); err != nil {
		if nc.ctx.Err() != nil {
			return ndb.New(ndb.KindConnection, "connection is closed")
		}
		return ndb.New(ndb.KindTimeout, "timed out waiting for an outstanding-request slot")
	}
	return nil
}

// releaseSlot removes handle from the registry and frees its credit-window
// slot. Called once the matching server reply arrives, or once the
// connection is closing and no reply can ever arrive.
func (nc *NodeConnection) releaseSlot(handle int64) {
	nc.registry.release(handle)
	nc.sem.Release(1)
}

// Cancel transitions call to Aborted locally. There is no server-side
// cancel: the handle and its credit window slot are retained until the
// matching server reply arrives or the connection closes.
func (nc *NodeConnection) Cancel(call *ndb.Call) {
	call.CompleteAborted()
}

// InFlight returns the number of calls currently tracked (registered but
// not yet released).
func (nc *NodeConnection) InFlight() int { return nc.registry.size() }

// vim: set tw=78 sw=4 sw=4 noexpandtab :
