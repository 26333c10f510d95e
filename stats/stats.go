// Package stats implements rolling per-procedure/per-node counters (an
// all-time snapshot and a since-last-reset snapshot) plus a power-of-two
// latency histogram, optionally mirrored into Prometheus.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counters is one rolling snapshot: call count, error count, aborted
// count, timed-out count, and total elapsed microseconds (for mean
// latency). All fields are atomic so updating a counter never takes a
// lock; only looking up its (node, procedure) entry does.
type counters struct {
	calls     atomic.Int64
	errors    atomic.Int64
	aborted   atomic.Int64
	timedOut  atomic.Int64
	elapsedUS atomic.Int64
}

// Snapshot is a point-in-time, non-atomic-as-a-whole read of a counters
// pair; individual fields are read atomically but not as one transaction.
type Snapshot struct {
	Calls        int64
	Errors       int64
	Aborted      int64
	TimedOut     int64
	ElapsedMicros int64
	MeanMicros   float64
	Histogram    [histogramBuckets]int64
}

func (c *counters) snapshot(hist *histogram) Snapshot {
	calls := c.calls.Load()
	s := Snapshot{
		Calls:         calls,
		Errors:        c.errors.Load(),
		Aborted:       c.aborted.Load(),
		TimedOut:      c.timedOut.Load(),
		ElapsedMicros: c.elapsedUS.Load(),
	}
	if calls > 0 {
		s.MeanMicros = float64(s.ElapsedMicros) / float64(calls)
	}
	if hist != nil {
		s.Histogram = hist.snapshot()
	}
	return s
}

// histogramBuckets covers power-of-two microsecond buckets from 1us to
// ~8s (2^23 us), plus one overflow bucket.
const histogramBuckets = 24

type histogram struct {
	buckets [histogramBuckets]atomic.Int64
}

func bucketFor(d time.Duration) int {
	us := d.Microseconds()
	if us < 1 {
		return 0
	}
	b := 0
	for us > 1 && b < histogramBuckets-1 {
		us >>= 1
		b++
	}
	return b
}

func (h *histogram) record(d time.Duration) {
	h.buckets[bucketFor(d)].Add(1)
}

func (h *histogram) snapshot() [histogramBuckets]int64 {
	var out [histogramBuckets]int64
	for i := range h.buckets {
		out[i] = h.buckets[i].Load()
	}
	return out
}

// procStats is the per-procedure, per-node counter bundle: an all-time
// pair and a since-reset pair, each with its own histogram.
type procStats struct {
	allTime    counters
	sinceReset counters
	allHist    histogram
	resetHist  histogram
}

// Registry tracks per-(node, procedure) statistics. Enabling statistics is
// a per-Cluster flag; when disabled, Registry is not constructed at all
// and callers hold a nil *Registry, which every method below treats as a
// no-op so the hot path never pays for disabled stats.
type Registry struct {
	enabled bool

	mu    sync.RWMutex
	procs map[key]*procStats

	promEnabled  bool
	promRegistry *prometheus.Registry
	promCalls    *prometheus.CounterVec
	promErrors   *prometheus.CounterVec
	promLatency  *prometheus.HistogramVec
}

type key struct {
	node      string
	procedure string
}

// NewRegistry builds a stats Registry. If enabled is false, all recording
// methods become no-ops (but remain safe to call, so call sites never
// need to branch on whether statistics are on).
func NewRegistry(enabled bool) *Registry {
	r := &Registry{enabled: enabled, procs: make(map[key]*procStats)}
	if enabled {
		r.promRegistry = prometheus.NewRegistry()
		r.promCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndbclient",
			Name:      "calls_total",
			Help:      "Total procedure invocations submitted, by node and procedure.",
		}, []string{"node", "procedure"})
		r.promErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndbclient",
			Name:      "call_errors_total",
			Help:      "Total procedure invocations that completed with an error, by node, procedure, and outcome.",
		}, []string{"node", "procedure", "outcome"})
		r.promLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ndbclient",
			Name:      "call_latency_seconds",
			Help:      "Procedure call latency, by node and procedure.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, histogramBuckets),
		}, []string{"node", "procedure"})
		r.promRegistry.MustRegister(r.promCalls, r.promErrors, r.promLatency)
		r.promEnabled = true
	}
	return r
}

// PrometheusRegistry exposes the private registry for scraping; nil if
// statistics are disabled.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.promRegistry
}

func (r *Registry) entry(node, procedure string) *procStats {
	k := key{node, procedure}
	r.mu.RLock()
	p, ok := r.procs[k]
	r.mu.RUnlock()
	if ok {
		return p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.procs[k]; ok {
		return p
	}
	p = &procStats{}
	r.procs[k] = p
	return p
}

// RecordSubmit marks a call as submitted, for the Prometheus call counter.
func (r *Registry) RecordSubmit(node, procedure string) {
	if r == nil || !r.enabled {
		return
	}
	if r.promEnabled {
		r.promCalls.WithLabelValues(node, procedure).Inc()
	}
}

// Outcome classifies how a call completed, for stats purposes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeAborted
	OutcomeTimedOut
)

// RecordComplete records a terminal call's contribution to both the
// all-time and since-reset counter pairs.
func (r *Registry) RecordComplete(node, procedure string, outcome Outcome, elapsed time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	p := r.entry(node, procedure)
	for _, c := range []*counters{&p.allTime, &p.sinceReset} {
		c.calls.Add(1)
		c.elapsedUS.Add(elapsed.Microseconds())
		switch outcome {
		case OutcomeError:
			c.errors.Add(1)
		case OutcomeAborted:
			c.aborted.Add(1)
		case OutcomeTimedOut:
			c.timedOut.Add(1)
		}
	}
	p.allHist.record(elapsed)
	p.resetHist.record(elapsed)

	if r.promEnabled {
		if outcome != OutcomeSuccess {
			out := "error"
			switch outcome {
			case OutcomeAborted:
				out = "aborted"
			case OutcomeTimedOut:
				out = "timed_out"
			}
			r.promErrors.WithLabelValues(node, procedure, out).Inc()
		}
		r.promLatency.WithLabelValues(node, procedure).Observe(elapsed.Seconds())
	}
}

// SnapshotMode selects whether Snapshot leaves the since-reset counters
// untouched or atomically zeroes them after reading.
type SnapshotMode int

const (
	SnapshotOnly SnapshotMode = iota
	SnapshotAndReset
)

// Entry is one (node, procedure) pair's all-time and since-reset
// snapshots.
type Entry struct {
	Node       string
	Procedure  string
	AllTime    Snapshot
	SinceReset Snapshot
}

// Snapshot returns the current counters for every tracked (node,
// procedure) pair. When mode is SnapshotAndReset, each since-reset counter
// and histogram bucket is atomically zeroed after being read (field by
// field, not as one transaction). A call still in flight at the moment of
// reset is counted into the fresh since-reset counters when it completes;
// it is not excluded from them.
func (r *Registry) Snapshot(mode SnapshotMode) []Entry {
	if r == nil || !r.enabled {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.procs))
	for k, p := range r.procs {
		e := Entry{
			Node:       k.node,
			Procedure:  k.procedure,
			AllTime:    p.allTime.snapshot(&p.allHist),
			SinceReset: p.sinceReset.snapshot(&p.resetHist),
		}
		out = append(out, e)
		if mode == SnapshotAndReset {
			p.sinceReset.calls.Store(0)
			p.sinceReset.errors.Store(0)
			p.sinceReset.aborted.Store(0)
			p.sinceReset.timedOut.Store(0)
			p.sinceReset.elapsedUS.Store(0)
			for i := range p.resetHist.buckets {
				p.resetHist.buckets[i].Store(0)
			}
		}
	}
	return out
}

// Aggregate sums the all-time counters of Snapshot's per-(node,procedure)
// entries into one cluster-wide Snapshot per procedure: the sum of
// per-procedure counters over every node equals the cluster-level
// aggregate. The since-reset counters are not aggregated.
func Aggregate(entries []Entry) map[string]Snapshot {
	out := make(map[string]Snapshot)
	for _, e := range entries {
		agg := out[e.Procedure]
		agg.Calls += e.AllTime.Calls
		agg.Errors += e.AllTime.Errors
		agg.Aborted += e.AllTime.Aborted
		agg.TimedOut += e.AllTime.TimedOut
		agg.ElapsedMicros += e.AllTime.ElapsedMicros
		for i := range agg.Histogram {
			agg.Histogram[i] += e.AllTime.Histogram[i]
		}
		out[e.Procedure] = agg
	}
	for proc, agg := range out {
		if agg.Calls > 0 {
			agg.MeanMicros = float64(agg.ElapsedMicros) / float64(agg.Calls)
		}
		out[proc] = agg
	}
	return out
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
