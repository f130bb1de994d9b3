package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/cache"
	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
	"github.com/stockscope/searchd/internal/metrics"
)

// Directory is the local persisted symbol directory. Optional: a nil
// directory disables local matches and write-back.
type Directory interface {
	Lookup(q domain.Query, limit int) ([]domain.StockMatch, error)
	Upsert(m domain.StockMatch) error
}

// Config holds search service tuning.
type Config struct {
	ResultTTL   time.Duration
	QuoteTTL    time.Duration
	MetadataTTL time.Duration
	MaxResults  int
}

// Result is the client-facing answer to one search.
type Result struct {
	Query     string              `json:"query"`
	Kind      domain.QueryKind    `json:"kind"`
	Results   []domain.StockMatch `json:"results"`
	Count     int                 `json:"count"`
	CacheHit  bool                `json:"cache_hit"`
	Degraded  bool                `json:"degraded,omitempty"`
	Provider  string              `json:"provider,omitempty"`
	LatencyMs float64             `json:"latency_ms"`
}

// Service runs the full search flow: normalize, cache-aside lookup,
// provider fan-out, merge, rank, write-back. Provider problems degrade to
// stale cache or the local directory before they surface to the client.
type Service struct {
	cache    *cache.Store
	gw       *gateway.Gateway
	dir      Directory
	recorder *metrics.Recorder
	cfg      Config
	log      zerolog.Logger
}

// NewService wires the search flow. dir and recorder may be nil.
func NewService(store *cache.Store, gw *gateway.Gateway, dir Directory, recorder *metrics.Recorder, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		cache:    store,
		gw:       gw,
		dir:      dir,
		recorder: recorder,
		cfg:      cfg,
		log:      log.With().Str("component", "search").Logger(),
	}
}

// Search resolves a raw query string. The only errors it returns are
// ErrInvalidQuery and *gateway.AllProvidersFailed with no fallback left.
func (s *Service) Search(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()

	q, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	searchID := uuid.NewString()
	log := s.log.With().
		Str("search_id", searchID).
		Str("kind", string(q.Kind)).
		Str("key", q.Key).
		Logger()

	key := CacheKey(q)
	if matches, ok := s.cachedFresh(key, log); ok {
		log.Debug().Int("count", len(matches)).Msg("Served from cache")
		return s.finish(q, matches, start, resultOpts{cacheHit: true}), nil
	}

	// Detached from the request: a client that disconnects mid-search still
	// lets the provider call finish and warm the cache. Per-call deadlines
	// are applied inside the gateway.
	fresh, provider, err := s.fetchFresh(context.WithoutCancel(ctx), q)
	if err == nil {
		ranked := Rank(q, Merge(s.localMatches(q, log), fresh), s.cfg.MaxResults)
		s.writeBack(key, ranked, log)
		log.Info().Int("count", len(ranked)).Str("provider", provider).Msg("Search resolved")
		return s.finish(q, ranked, start, resultOpts{provider: provider}), nil
	}

	var apf *gateway.AllProvidersFailed
	if !errors.As(err, &apf) {
		return nil, err
	}

	if apf.NotFound() {
		// Every provider answered and none knows this query. Drop whatever
		// positive answer the cache still holds so it cannot resurface.
		if derr := s.cache.Delete(cache.NamespaceResults, key); derr != nil {
			log.Warn().Err(derr).Msg("Failed to drop stale cache entry")
		}
		log.Info().Msg("No provider has a match")
		return s.finish(q, nil, start, resultOpts{}), nil
	}

	// Providers are unhealthy. Stale data beats an error page.
	if matches, ok := s.cachedStale(key, log); ok {
		log.Warn().Err(err).Msg("All providers failed, serving stale cache")
		return s.finish(q, matches, start, resultOpts{cacheHit: true, degraded: true}), nil
	}
	if local := s.localMatches(q, log); len(local) > 0 {
		log.Warn().Err(err).Msg("All providers failed, serving local directory")
		ranked := Rank(q, local, s.cfg.MaxResults)
		return s.finish(q, ranked, start, resultOpts{degraded: true}), nil
	}

	log.Error().Err(err).Msg("All providers failed with nothing to fall back on")
	return nil, err
}

type resultOpts struct {
	cacheHit bool
	degraded bool
	provider string
}

func (s *Service) finish(q domain.Query, matches []domain.StockMatch, start time.Time, opts resultOpts) *Result {
	latency := time.Since(start)
	if s.recorder != nil {
		s.recorder.Record(metrics.Outcome{
			Kind:        q.Kind,
			CacheHit:    opts.cacheHit,
			Provider:    opts.provider,
			Latency:     latency,
			ResultCount: len(matches),
			Degraded:    opts.degraded,
		})
	}
	if matches == nil {
		matches = []domain.StockMatch{}
	}
	return &Result{
		Query:     q.Raw,
		Kind:      q.Kind,
		Results:   matches,
		Count:     len(matches),
		CacheHit:  opts.cacheHit,
		Degraded:  opts.degraded,
		Provider:  opts.provider,
		LatencyMs: float64(latency.Microseconds()) / 1000.0,
	}
}

func (s *Service) cachedFresh(key string, log zerolog.Logger) ([]domain.StockMatch, bool) {
	return s.decodeCached(s.cache.GetIfFresh(cache.NamespaceResults, key), log)
}

func (s *Service) cachedStale(key string, log zerolog.Logger) ([]domain.StockMatch, bool) {
	return s.decodeCached(s.cache.Get(cache.NamespaceResults, key), log)
}

func (s *Service) decodeCached(blob []byte, log zerolog.Logger) ([]domain.StockMatch, bool) {
	if blob == nil {
		return nil, false
	}
	var matches []domain.StockMatch
	if err := cache.Decode(blob, &matches); err != nil {
		log.Warn().Err(err).Msg("Failed to decode cached results, treating as miss")
		return nil, false
	}
	if len(matches) == 0 {
		return nil, false
	}
	return matches, true
}

// fetchFresh queries the provider chain. Fuzzy name input that also looks
// like a lowercase ticker ("msft") is fetched both ways concurrently; the
// first non-empty answer wins.
func (s *Service) fetchFresh(ctx context.Context, q domain.Query) ([]domain.StockMatch, string, error) {
	alt, ok := symbolAlternative(q)
	if !ok {
		return s.gw.Fetch(ctx, q)
	}

	type answer struct {
		matches  []domain.StockMatch
		provider string
		err      error
	}
	ch := make(chan answer, 2)
	for _, fq := range []domain.Query{alt, q} {
		go func(fq domain.Query) {
			m, p, err := s.gw.Fetch(ctx, fq)
			ch <- answer{m, p, err}
		}(fq)
	}

	var errs []error
	for i := 0; i < 2; i++ {
		a := <-ch
		if a.err == nil {
			return a.matches, a.provider, nil
		}
		errs = append(errs, a.err)
	}

	// Both legs failed. A real outage on either leg outranks a clean
	// not-found: the caller must degrade rather than report an empty result.
	for _, err := range errs {
		var apf *gateway.AllProvidersFailed
		if errors.As(err, &apf) && !apf.NotFound() {
			return nil, "", err
		}
	}
	return nil, "", errs[0]
}

// symbolAlternative returns a symbol-kind variant of a name query whose
// uppercased form is shaped like a ticker.
func symbolAlternative(q domain.Query) (domain.Query, bool) {
	if q.Kind != domain.KindName {
		return domain.Query{}, false
	}
	upper := strings.ToUpper(q.Key)
	if !symbolPattern.MatchString(upper) {
		return domain.Query{}, false
	}
	return domain.Query{Raw: q.Raw, Kind: domain.KindSymbol, Key: upper}, true
}

func (s *Service) localMatches(q domain.Query, log zerolog.Logger) []domain.StockMatch {
	if s.dir == nil {
		return nil
	}
	matches, err := s.dir.Lookup(q, s.cfg.MaxResults)
	if err != nil {
		log.Warn().Err(err).Msg("Directory lookup failed")
		return nil
	}
	return matches
}

// writeBack populates the cache namespaces and the directory from a fresh
// ranked result. Failures are logged, never surfaced: the search already
// succeeded.
func (s *Service) writeBack(key string, ranked []domain.StockMatch, log zerolog.Logger) {
	if err := s.cache.Store(cache.NamespaceResults, key, ranked, s.cfg.ResultTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache search results")
	}

	for _, m := range ranked {
		ticker := strings.ToUpper(m.Symbol)
		if m.Price != nil {
			if err := s.cache.Store(cache.NamespaceQuotes, ticker, *m.Price, s.cfg.QuoteTTL); err != nil {
				log.Warn().Err(err).Str("symbol", ticker).Msg("Failed to cache quote")
			}
		}
		if m.ISIN != "" || m.WKN != "" {
			if err := s.cache.Store(cache.NamespaceMetadata, ticker, m, s.cfg.MetadataTTL); err != nil {
				log.Warn().Err(err).Str("symbol", ticker).Msg("Failed to cache metadata")
			}
		}
		if s.dir != nil {
			if err := s.dir.Upsert(m); err != nil {
				log.Debug().Err(err).Str("symbol", ticker).Msg("Directory write-back failed")
			}
		}
	}
}
