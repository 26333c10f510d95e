package ndb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the terminal-or-not state of a Call. A Call transitions exactly
// once, from Pending to one of the four terminal states.
type Status int32

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
	StatusTimedOut
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Tag identifies the wire type of a Value.
type Tag int8

const (
	TagInt8      Tag = 3
	TagInt16     Tag = 4
	TagInt32     Tag = 5
	TagInt64     Tag = 6
	TagFloat64   Tag = 8
	TagString    Tag = 9
	TagTimestamp Tag = 11
	TagDecimal   Tag = 22
	TagVarbinary Tag = 25
	TagArray     Tag = -99
)

// Value is a single scalar or array value as exchanged on the wire, either
// as a call parameter or as a table cell. Null=true represents the per-type
// null sentinel; a nil Bytes or empty Str with Null=false encodes as a
// zero-length value, not as null. See the wire package's encoder/decoder
// for the sentinel byte patterns.
type Value struct {
	Tag       Tag
	Null      bool
	Int       int64
	Float     float64
	Str       string
	Bytes     []byte
	Decimal   decimal.Decimal
	Timestamp time.Time
	// Array holds the element values when Tag == TagArray; ElemTag is the
	// declared element type.
	ElemTag Tag
	Array   []Value
}

// Table is implemented by table.Table; ndb references it only by this
// narrow interface to avoid an import cycle between the data-model package
// and the table-access package.
type Table interface {
	RowCount() int
	ColumnCount() int
	StatusByte() int8
}

// ResultSet is what a successfully completed Call carries: the frame-level
// metadata plus zero or more decoded tables.
type ResultSet struct {
	ServerTimestamp time.Time
	ClusterRoundTrip time.Duration
	AppStatus       int8
	AppStatusString string
	Tables          []Table
}

// Owner is the minimal back-reference surface a Call needs from its owning
// connection: enough for Cancel and for stats attribution, without ndb
// importing the conn package.
type Owner interface {
	// ConnectionID is the server-assigned connection id from login, or 0
	// if not yet authenticated.
	ConnectionID() int64
}

// Call is a single in-flight invocation of a server procedure. It is
// created by the caller's submit, mutated only through its Complete*
// transitions (reader, timeout sweeper, explicit cancel, or connection
// teardown), and observed at most once to completion by
// each of a waiter and a callback.
type Call struct {
	Handle    int64
	Procedure string
	Params    []Value
	Deadline  time.Time
	Owner     Owner

	submittedAt time.Time

	state    atomic.Int32 // Status, CAS'd exactly once away from Pending
	mu       sync.Mutex   // guards result/err/callback below the CAS line
	result   *ResultSet
	err      *Error
	callback func(*Call)

	waiterOnce sync.Once
	waiterCh   chan struct{}
}

// NewCall constructs a Pending Call. submittedAt is recorded for latency
// stats; deadline is the absolute wall-clock time already computed by the
// caller.
func NewCall(handle int64, procedure string, params []Value, deadline time.Time, owner Owner) *Call {
	return &Call{
		Handle:      handle,
		Procedure:   procedure,
		Params:      params,
		Deadline:    deadline,
		Owner:       owner,
		submittedAt: time.Now(),
	}
}

// SubmittedAt returns the time the call was registered, used for latency
// accounting.
func (c *Call) SubmittedAt() time.Time { return c.submittedAt }

// Status returns the current status. Safe for concurrent use.
func (c *Call) Status() Status { return Status(c.state.Load()) }

// OnComplete registers cb to run (on whatever goroutine calls it — the
// conn package always does so on its shared callback executor) once the
// Call reaches a terminal state. If the Call is already terminal, cb runs
// synchronously from this call.
func (c *Call) OnComplete(cb func(*Call)) {
	c.mu.Lock()
	if c.state.Load() != int32(StatusPending) {
		c.mu.Unlock()
		cb(c)
		return
	}
	c.callback = cb
	c.mu.Unlock()
}

// Wait blocks until the Call is terminal or ctx is done, whichever comes
// first. It lazily creates the waiter channel on first use.
func (c *Call) Wait(ctx context.Context) error {
	if c.Status() != StatusPending {
		return nil
	}
	c.waiterOnce.Do(func() { c.waiterCh = make(chan struct{}) })
	select {
	case <-c.waiterCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the decoded result and error, valid only once Status() is
// terminal.
func (c *Call) Result() (*ResultSet, *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

// complete is the single CAS transition point. It returns true only for
// the caller that actually won the transition from Pending; every other
// caller (e.g. a racing timeout sweep and a racing reader dispatch) gets
// false and must not touch result/err/callback.
func (c *Call) complete(status Status, result *ResultSet, err *Error) bool {
	if !c.state.CompareAndSwap(int32(StatusPending), int32(status)) {
		return false
	}
	c.mu.Lock()
	c.result = result
	c.err = err
	cb := c.callback
	c.mu.Unlock()

	c.waiterOnce.Do(func() { c.waiterCh = make(chan struct{}) })
	close(c.waiterCh)

	if cb != nil {
		cb(c)
	}
	return true
}

// CompleteSuccess transitions the Call to Success. Called only by the
// owning connection's reader.
func (c *Call) CompleteSuccess(result *ResultSet) bool {
	return c.complete(StatusSuccess, result, nil)
}

// CompleteFailed transitions the Call to Failed with err. Called by the
// reader (server error, protocol error) or by connection-failure fan-out.
func (c *Call) CompleteFailed(err *Error) bool {
	return c.complete(StatusFailed, nil, err)
}

// CompleteTimedOut transitions the Call to TimedOut. Called only by the
// timeout sweeper.
func (c *Call) CompleteTimedOut() bool {
	return c.complete(StatusTimedOut, nil, New(KindTimeout, "deadline exceeded"))
}

// CompleteAborted transitions the Call to Aborted. Called only by an
// explicit client-side cancel.
func (c *Call) CompleteAborted() bool {
	return c.complete(StatusAborted, nil, New(KindAbort, "call aborted by caller"))
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
