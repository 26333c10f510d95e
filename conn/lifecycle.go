package conn

import (
	"context"
	"time"

	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/stats"
)

// sweepLoop scans the in-flight map on a fixed tick and completes any Call
// whose absolute deadline has passed with TimedOut. A timed-out Call
// keeps its handle and credit-window slot until the matching server
// reply arrives (or the connection closes).
func (nc *NodeConnection) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(nc.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			for _, call := range nc.registry.snapshot() {
				if call.Status() != ndb.StatusPending {
					continue
				}
				if call.Deadline.IsZero() || now.Before(call.Deadline) {
					continue
				}
				if call.CompleteTimedOut() {
					nc.cfg.Stats.RecordComplete(nc.addr, call.Procedure, stats.OutcomeTimedOut, now.Sub(call.SubmittedAt()))
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// fail transitions the connection to Failed and completes every pending
// call with a connection-scoped error. Failed is entered from Authenticated
// or Draining on a socket error or a protocol error; an authentication
// rejection happens inside Open, which returns the error instead of a
// NodeConnection.
func (nc *NodeConnection) fail(cause *ndb.Error) {
	if !nc.state.CompareAndSwap(int32(StateAuthenticated), int32(StateFailed)) &&
		!nc.state.CompareAndSwap(int32(StateDraining), int32(StateFailed)) {
		return
	}
	nc.logger.WithError(cause).WithField("addr", nc.addr).Warn("connection failed")
	nc.registry.closeRegistry()
	for _, call := range nc.registry.snapshot() {
		if call.Status() == ndb.StatusPending {
			call.CompleteFailed(cause)
			nc.cfg.Stats.RecordComplete(nc.addr, call.Procedure, stats.OutcomeError, time.Since(call.SubmittedAt()))
		}
		nc.releaseSlot(call.Handle)
	}
	nc.cancel()
	nc.sock.Close()
	close(nc.drainedCh)
}

// Drain stops accepting new submits and waits for every in-flight call to
// either complete or have its deadline pass, or until ctx is done. New
// submits after Drain begin fail fast, per the State() switch in Submit.
func (nc *NodeConnection) Drain(ctx context.Context) error {
	nc.state.CompareAndSwap(int32(StateAuthenticated), int32(StateDraining))
	for {
		if nc.State() != StateDraining {
			return nil
		}
		settled := true
		now := time.Now()
		for _, call := range nc.registry.snapshot() {
			if now.Before(call.Deadline) {
				settled = false
				break
			}
		}
		if settled {
			return nil
		}
		select {
		case <-time.After(nc.cfg.SweepInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close drains in-flight calls best-effort within the grace period, then
// forcibly tears down the connection. Any blocked Submit/Wait callers are
// unblocked and see a connection-closed error.
func (nc *NodeConnection) Close(grace time.Duration) {
	nc.closeOnce.Do(func() {
		if grace > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), grace)
			_ = nc.Drain(ctx)
			cancel()
		}
		if nc.state.CompareAndSwap(int32(StateAuthenticated), int32(StateClosed)) ||
			nc.state.CompareAndSwap(int32(StateDraining), int32(StateClosed)) ||
			nc.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
			nc.registry.closeRegistry()
			for _, call := range nc.registry.snapshot() {
				if call.Status() == ndb.StatusPending {
					call.CompleteFailed(ndb.New(ndb.KindConnection, "connection closed"))
				}
				nc.releaseSlot(call.Handle)
			}
			if nc.cancel != nil {
				nc.cancel()
			}
			nc.sock.Close()
		}
		nc.cfg.Logger.WithField("addr", nc.addr).Info("connection closed")
	})
}

// Wait blocks until the connection's reader/writer/sweeper goroutines have
// exited (i.e. the connection has failed or been closed).
func (nc *NodeConnection) Wait() {
	if nc.eg == nil {
		return
	}
	_ = nc.eg.Wait()
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
