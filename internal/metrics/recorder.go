package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/stockscope/searchd/internal/cache"
	"github.com/stockscope/searchd/internal/domain"
)

// Outcome describes one completed search for instrumentation purposes.
type Outcome struct {
	Kind        domain.QueryKind
	CacheHit    bool
	Provider    string // provider that served the result; empty on cache hit
	Latency     time.Duration
	ResultCount int
	Degraded    bool // served from stale cache or local directory
}

// sampleSize bounds the rolling latency sample used for quantiles.
const sampleSize = 512

// Recorder consumes search outcomes on a buffered channel so recording
// never blocks or fails a request. When the buffer is full the outcome is
// dropped and counted, not waited for.
type Recorder struct {
	metrics *Metrics
	log     zerolog.Logger

	ch   chan Outcome
	done chan struct{}

	mu     sync.Mutex
	sample []float64 // rolling latency sample, milliseconds
	next   int
	filled bool
}

// NewRecorder starts the consuming goroutine. Call Close on shutdown.
func NewRecorder(m *Metrics, buffer int, log zerolog.Logger) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &Recorder{
		metrics: m,
		log:     log.With().Str("component", "metrics_recorder").Logger(),
		ch:      make(chan Outcome, buffer),
		done:    make(chan struct{}),
		sample:  make([]float64, sampleSize),
	}
	go r.consume()
	return r
}

// Record submits an outcome without blocking. Safe for concurrent use;
// never panics and never returns an error to the request path.
func (r *Recorder) Record(o Outcome) {
	select {
	case r.ch <- o:
	default:
		r.metrics.RecorderDroppedTotal.Inc()
	}
}

// Close drains outstanding outcomes and stops the consumer.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

func (r *Recorder) consume() {
	defer close(r.done)
	for o := range r.ch {
		r.apply(o)
	}
}

func (r *Recorder) apply(o Outcome) {
	r.metrics.SearchRequestsTotal.WithLabelValues(string(o.Kind)).Inc()
	r.metrics.SearchLatency.Observe(o.Latency.Seconds())

	if o.CacheHit {
		r.metrics.CacheHitsTotal.WithLabelValues(cache.NamespaceResults).Inc()
	} else {
		r.metrics.CacheMissesTotal.WithLabelValues(cache.NamespaceResults).Inc()
	}

	r.mu.Lock()
	r.sample[r.next] = float64(o.Latency.Microseconds()) / 1000.0
	r.next++
	if r.next == len(r.sample) {
		r.next = 0
		r.filled = true
	}
	r.mu.Unlock()
}

// LatencyQuantiles returns p50/p95/p99 over the rolling sample, in
// milliseconds. Returns nil until at least one outcome has been recorded.
func (r *Recorder) LatencyQuantiles() map[string]float64 {
	r.mu.Lock()
	n := r.next
	if r.filled {
		n = len(r.sample)
	}
	if n == 0 {
		r.mu.Unlock()
		return nil
	}
	data := make([]float64, n)
	copy(data, r.sample[:n])
	r.mu.Unlock()

	sort.Float64s(data)
	return map[string]float64{
		"p50": stat.Quantile(0.50, stat.Empirical, data, nil),
		"p95": stat.Quantile(0.95, stat.Empirical, data, nil),
		"p99": stat.Quantile(0.99, stat.Empirical, data, nil),
	}
}
