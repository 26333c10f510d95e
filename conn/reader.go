package conn

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/stats"
	"github.com/sysdb/ndbclient/wire"
)

// readLoop owns the receive buffer and dispatches inbound frames to the
// matching Call by handle. It is the only goroutine that reads from the
// socket.
func (nc *NodeConnection) readLoop() error {
	for {
		payload, err := wire.ReadFrame(nc.sock)
		if err != nil {
			nc.fail(classifyReadErr(err))
			return err
		}

		resp, derr := wire.DecodeResponse(payload)
		if derr != nil {
			nc.logger.WithError(derr).Error("protocol error decoding response")
			nc.fail(derr)
			return derr
		}

		nc.dispatch(resp)
	}
}

func classifyReadErr(err error) *ndb.Error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ndb.Wrap(ndb.KindConnection, "connection closed by peer", err)
	}
	return ndb.Wrap(ndb.KindConnection, "read failed", err)
}

// dispatch matches one decoded response to its Call and completes it. A
// handle that does not match any tracked call (already released, or
// never existed) is logged and discarded without touching any state.
func (nc *NodeConnection) dispatch(resp *wire.Response) {
	call, ok := nc.registry.lookup(resp.Handle)
	if !ok {
		nc.logger.WithField("handle", resp.Handle).Debug("reply for unknown or already-released handle, discarding")
		return
	}

	// The handle's credit-window slot and registry entry are freed the
	// moment a reply arrives, regardless of whether the Call itself was
	// already locally completed (timed out or aborted): a late reply for
	// an already-terminal Call is discarded silently but still releases
	// the slot it was holding.
	defer nc.releaseSlot(resp.Handle)

	elapsed := time.Since(call.SubmittedAt())

	if call.Status() != ndb.StatusPending {
		nc.logger.WithFields(logrus.Fields{"handle": resp.Handle, "status": call.Status()}).
			Debug("late reply for already-completed call, discarding")
		return
	}

	if resp.Status != wire.StatusOK {
		serr := ndb.ServerError(int32(resp.Status), resp.StatusString)
		call.CompleteFailed(serr)
		nc.recordComplete(call, stats.OutcomeError, elapsed)
		return
	}

	tables := make([]ndb.Table, len(resp.Tables))
	for i, t := range resp.Tables {
		tables[i] = t
	}
	result := &ndb.ResultSet{
		ServerTimestamp:  time.Now(),
		ClusterRoundTrip: resp.ClusterRoundTrip,
		AppStatus:        resp.AppStatus,
		AppStatusString:  resp.AppStatusString,
		Tables:           tables,
	}
	call.CompleteSuccess(result)
	nc.recordComplete(call, stats.OutcomeSuccess, elapsed)
}

func (nc *NodeConnection) recordComplete(call *ndb.Call, outcome stats.Outcome, elapsed time.Duration) {
	nc.cfg.Stats.RecordComplete(nc.addr, call.Procedure, outcome, elapsed)
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
