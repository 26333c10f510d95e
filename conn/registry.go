package conn

import (
	"sync"

	"github.com/sysdb/ndbclient/ndb"
)

// registry is the per-NodeConnection handle -> *ndb.Call map. It is
// guarded by a single short-held mutex; value updates on a matched Call
// go through the Call's own CAS so the registry lock is never held
// across I/O or across a callback invocation.
type registry struct {
	mu     sync.Mutex
	nextH  int64
	calls  map[int64]*ndb.Call
	closed bool
}

func newRegistry() *registry {
	return &registry{calls: make(map[int64]*ndb.Call)}
}

// register assigns the next monotonic handle to call and adds it to the
// map, returning the assigned handle. It refuses registration once the
// registry has been closed (after the connection fails or is closed).
func (r *registry) register(call *ndb.Call) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.nextH++
	h := r.nextH
	call.Handle = h
	r.calls[h] = call
	return h, true
}

// lookup returns the Call for handle, if still tracked.
func (r *registry) lookup(handle int64) (*ndb.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[handle]
	return c, ok
}

// release removes handle from the map. Called once a Call's server reply
// has arrived, when its request could not be encoded or enqueued, or for
// every remaining handle when the connection fails or closes; a handle
// whose reply never arrives stays tracked until then (handle wraparound is
// not a concern in practice at int64 width).
func (r *registry) release(handle int64) {
	r.mu.Lock()
	delete(r.calls, handle)
	r.mu.Unlock()
}

// size reports the number of tracked in-flight calls.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// snapshot returns a copy of all tracked calls, for the timeout sweep and
// for connection-failure fan-out.
func (r *registry) snapshot() []*ndb.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ndb.Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

// closeRegistry marks the registry closed; no further register calls will
// succeed. Existing entries are left in place for the caller to drain or
// fail.
func (r *registry) closeRegistry() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
