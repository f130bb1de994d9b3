package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/domain"
)

// Config holds gateway tuning.
type Config struct {
	Timeout      time.Duration // per provider call
	RetryBackoff time.Duration // fixed wait before the single retry
	Breaker      BreakerConfig
}

// CallObserver is notified of every provider call outcome. Used to feed
// metrics without coupling the gateway to the metrics registry.
type CallObserver func(provider string, outcome string)

// Gateway tries providers in the configured priority order, guarding each
// with its own circuit breaker and retrying transient failures once.
type Gateway struct {
	providers []MarketDataProvider
	breakers  map[string]*Breaker
	cfg       Config
	log       zerolog.Logger
	observer  CallObserver

	// sleep is swappable for tests
	sleep func(time.Duration)
}

// New creates a gateway over providers in priority order.
func New(providers []MarketDataProvider, cfg Config, log zerolog.Logger) *Gateway {
	g := &Gateway{
		providers: providers,
		breakers:  make(map[string]*Breaker, len(providers)),
		cfg:       cfg,
		log:       log.With().Str("component", "gateway").Logger(),
		sleep:     time.Sleep,
	}
	for _, p := range providers {
		g.breakers[p.Name()] = NewBreaker(p.Name(), cfg.Breaker, log)
	}
	return g
}

// SetObserver registers a call outcome observer. Must be called before the
// gateway is shared across goroutines.
func (g *Gateway) SetObserver(obs CallObserver) {
	g.observer = obs
}

// States returns the current circuit state per provider.
func (g *Gateway) States() map[string]CircuitState {
	states := make(map[string]CircuitState, len(g.breakers))
	for name, b := range g.breakers {
		states[name] = b.State()
	}
	return states
}

var errCircuitOpen = errors.New("circuit open, provider skipped")

// Fetch resolves a query against the provider chain. It returns the matches
// and the name of the provider that served them. When every provider is
// exhausted it returns *AllProvidersFailed carrying the last error from each.
func (g *Gateway) Fetch(ctx context.Context, q domain.Query) ([]domain.StockMatch, string, error) {
	failures := make(map[string]error, len(g.providers))

	for _, p := range g.providers {
		name := p.Name()
		breaker := g.breakers[name]

		if !breaker.Allow() {
			g.log.Debug().Str("provider", name).Msg("Skipping provider, circuit open")
			g.observe(name, "skipped_open")
			failures[name] = fmt.Errorf("%s: %w", name, errCircuitOpen)
			continue
		}

		matches, err := g.callWithRetry(ctx, p, q)
		if err != nil {
			failures[name] = err
			g.log.Warn().
				Err(err).
				Str("provider", name).
				Str("query", q.Key).
				Str("kind", string(q.Kind)).
				Msg("Provider lookup failed, falling through")
			continue
		}

		if len(matches) == 0 {
			// A successful empty answer: the provider is healthy but knows
			// nothing about this query. Fall through so a broader vendor can
			// still match, and record it as a definitive not-found.
			failures[name] = NewProviderError(name, FailureNotFound, errors.New("no matches"))
			continue
		}

		return matches, name, nil
	}

	return nil, "", &AllProvidersFailed{Errors: failures}
}

// callWithRetry issues one provider call with the configured timeout and at
// most one retry after a fixed backoff for transient failures. Breaker and
// observer bookkeeping happen here so every outcome is recorded exactly once.
func (g *Gateway) callWithRetry(ctx context.Context, p MarketDataProvider, q domain.Query) ([]domain.StockMatch, error) {
	name := p.Name()
	breaker := g.breakers[name]

	var lastErr *ProviderError
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			g.sleep(g.cfg.RetryBackoff)
		}

		matches, err := g.callOnce(ctx, p, q)
		if err == nil {
			breaker.RecordSuccess()
			g.observe(name, "success")
			return matches, nil
		}

		lastErr = g.classify(name, err)
		g.observe(name, string(lastErr.Kind))

		if lastErr.Kind == FailureNotFound {
			// A definitive answer, not a health problem.
			breaker.RecordSuccess()
			return nil, lastErr
		}

		breaker.RecordFailure()

		if !lastErr.Kind.Transient() {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (g *Gateway) callOnce(ctx context.Context, p MarketDataProvider, q domain.Query) ([]domain.StockMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return p.Search(callCtx, q)
}

// classify normalizes arbitrary errors into typed provider failures.
// Clients return *ProviderError directly; anything else is mapped here.
func (g *Gateway) classify(provider string, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, FailureTimeout, err)
	}
	return NewProviderError(provider, FailureUpstream, err)
}

func (g *Gateway) observe(provider, outcome string) {
	if g.observer != nil {
		g.observer(provider, outcome)
	}
}
