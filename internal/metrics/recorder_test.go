package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockscope/searchd/internal/domain"
)

func newTestRecorder(buffer int) (*Recorder, *Metrics) {
	m := New(prometheus.NewRegistry())
	r := NewRecorder(m, buffer, zerolog.Nop())
	return r, m
}

func TestRecorderCountsOutcomes(t *testing.T) {
	r, m := newTestRecorder(16)

	r.Record(Outcome{Kind: domain.KindSymbol, CacheHit: true, Latency: 2 * time.Millisecond, ResultCount: 1})
	r.Record(Outcome{Kind: domain.KindSymbol, CacheHit: false, Provider: "alphavantage", Latency: 40 * time.Millisecond, ResultCount: 3})
	r.Record(Outcome{Kind: domain.KindName, CacheHit: false, Provider: "yahoo", Latency: 60 * time.Millisecond, ResultCount: 5})
	r.Close()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("symbol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("name")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("search_results")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("search_results")))
}

func TestRecorderNeverBlocks(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := &Recorder{
		metrics: m,
		log:     zerolog.Nop(),
		ch:      make(chan Outcome, 1),
		done:    make(chan struct{}),
		sample:  make([]float64, sampleSize),
	}
	// No consumer: the buffer fills after one record, further records drop

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Record(Outcome{Kind: domain.KindSymbol, Latency: time.Millisecond})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.Equal(t, 99.0, testutil.ToFloat64(m.RecorderDroppedTotal))
}

func TestLatencyQuantiles(t *testing.T) {
	r, _ := newTestRecorder(256)

	for i := 1; i <= 100; i++ {
		r.Record(Outcome{Kind: domain.KindSymbol, Latency: time.Duration(i) * time.Millisecond})
	}
	r.Close()

	q := r.LatencyQuantiles()
	require.NotNil(t, q)
	assert.InDelta(t, 50, q["p50"], 2)
	assert.InDelta(t, 95, q["p95"], 2)
	assert.InDelta(t, 99, q["p99"], 2)
}

func TestLatencyQuantilesEmpty(t *testing.T) {
	r, _ := newTestRecorder(16)
	defer r.Close()

	assert.Nil(t, r.LatencyQuantiles())
}
