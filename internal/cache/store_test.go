package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockscope/searchd/internal/domain"
)

func newTestStore() (*Store, *time.Time) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := NewStore(zerolog.Nop())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStoreRoundTrip(t *testing.T) {
	s, _ := newTestStore()

	price := 123.45
	matches := []domain.StockMatch{
		{Symbol: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ", Price: &price},
	}

	err := s.Store(NamespaceResults, "AAPL", matches, 60*time.Second)
	require.NoError(t, err)

	data := s.GetIfFresh(NamespaceResults, "AAPL")
	require.NotNil(t, data)

	var decoded []domain.StockMatch
	require.NoError(t, Decode(data, &decoded))
	assert.Equal(t, matches, decoded)
}

func TestStoreOverwrites(t *testing.T) {
	s, _ := newTestStore()

	require.NoError(t, s.Store(NamespaceQuotes, "MSFT", "first", time.Minute))
	require.NoError(t, s.Store(NamespaceQuotes, "MSFT", "second", time.Minute))

	var value string
	data := s.GetIfFresh(NamespaceQuotes, "MSFT")
	require.NotNil(t, data)
	require.NoError(t, Decode(data, &value))
	assert.Equal(t, "second", value)
}

func TestGetIfFreshExpiry(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "MSFT", "cached", 60*time.Second))

	// Just before expiry: still fresh
	*now = now.Add(59 * time.Second)
	assert.NotNil(t, s.GetIfFresh(NamespaceResults, "MSFT"))

	// At expiry: treated as absent even though no sweep has run
	*now = now.Add(1 * time.Second)
	assert.Nil(t, s.GetIfFresh(NamespaceResults, "MSFT"))
}

func TestGetReturnsStale(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "MSFT", "cached", time.Second))
	*now = now.Add(time.Hour)

	// Fresh read misses, stale read still works
	assert.Nil(t, s.GetIfFresh(NamespaceResults, "MSFT"))
	assert.NotNil(t, s.Get(NamespaceResults, "MSFT"))
}

func TestLazyEvictionOnExpiredRead(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "MSFT", "cached", time.Second))
	*now = now.Add(time.Minute)

	// The expired fresh read evicts the entry, so the stale read misses too
	assert.Nil(t, s.GetIfFresh(NamespaceResults, "MSFT"))
	assert.Nil(t, s.Get(NamespaceResults, "MSFT"))
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "GONE", "cached", time.Minute))
	require.NoError(t, s.Delete(NamespaceResults, "GONE"))
	assert.Nil(t, s.Get(NamespaceResults, "GONE"))
}

func TestInvalidNamespace(t *testing.T) {
	s, _ := newTestStore()

	err := s.Store("bogus", "k", "v", time.Minute)
	assert.Error(t, err)
	assert.Nil(t, s.GetIfFresh("bogus", "k"))
	assert.Nil(t, s.Get("bogus", "k"))
}

func TestNamespaceIsolation(t *testing.T) {
	s, _ := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "AAPL", "results", time.Minute))
	require.NoError(t, s.Store(NamespaceQuotes, "AAPL", "quote", time.Minute))

	var value string
	require.NoError(t, Decode(s.GetIfFresh(NamespaceResults, "AAPL"), &value))
	assert.Equal(t, "results", value)
	require.NoError(t, Decode(s.GetIfFresh(NamespaceQuotes, "AAPL"), &value))
	assert.Equal(t, "quote", value)

	require.NoError(t, s.Delete(NamespaceResults, "AAPL"))
	assert.Nil(t, s.GetIfFresh(NamespaceResults, "AAPL"))
	assert.NotNil(t, s.GetIfFresh(NamespaceQuotes, "AAPL"))
}

func TestDeleteExpired(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "OLD", "v", time.Second))
	require.NoError(t, s.Store(NamespaceResults, "NEW", "v", time.Hour))
	require.NoError(t, s.Store(NamespaceQuotes, "OLD", "v", time.Second))

	*now = now.Add(time.Minute)

	deleted, err := s.DeleteExpired(NamespaceResults)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Quotes namespace untouched by a results-only sweep
	assert.NotNil(t, s.Get(NamespaceQuotes, "OLD"))
	assert.NotNil(t, s.GetIfFresh(NamespaceResults, "NEW"))
}

func TestDeleteAllExpired(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "A", "v", time.Second))
	require.NoError(t, s.Store(NamespaceQuotes, "B", "v", time.Second))
	require.NoError(t, s.Store(NamespaceMetadata, "C", "v", time.Hour))

	*now = now.Add(time.Minute)

	results, err := s.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, results[NamespaceResults])
	assert.Equal(t, 1, results[NamespaceQuotes])
	assert.Equal(t, 0, results[NamespaceMetadata])
}

func TestCounts(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "A", "v", time.Minute))
	require.NoError(t, s.Store(NamespaceResults, "B", "v", time.Second))
	require.NoError(t, s.Store(NamespaceMetadata, "C", "v", time.Hour))

	*now = now.Add(30 * time.Second)

	counts := s.Counts()
	assert.Equal(t, 1, counts[NamespaceResults])
	assert.Equal(t, 0, counts[NamespaceQuotes])
	assert.Equal(t, 1, counts[NamespaceMetadata])
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			keys := []string{"AAPL", "MSFT", "GOOG", "AMZN"}
			for j := 0; j < 200; j++ {
				key := keys[j%len(keys)]
				_ = s.Store(NamespaceQuotes, key, j, time.Minute)
				s.GetIfFresh(NamespaceQuotes, key)
				if j%50 == 0 {
					_, _ = s.DeleteExpired(NamespaceQuotes)
				}
			}
		}(i)
	}
	wg.Wait()

	// Every key written with a fresh TTL must be readable afterwards
	for _, key := range []string{"AAPL", "MSFT", "GOOG", "AMZN"} {
		assert.NotNil(t, s.GetIfFresh(NamespaceQuotes, key))
	}
}

func TestSweepJob(t *testing.T) {
	s, now := newTestStore()

	require.NoError(t, s.Store(NamespaceResults, "A", "v", time.Second))
	require.NoError(t, s.Store(NamespaceResults, "B", "v", time.Hour))
	*now = now.Add(time.Minute)

	job := NewSweepJob(s, zerolog.Nop())
	assert.Equal(t, "cache_sweep", job.Name())
	require.NoError(t, job.Run())

	assert.Nil(t, s.Get(NamespaceResults, "A"))
	assert.NotNil(t, s.GetIfFresh(NamespaceResults, "B"))
}
