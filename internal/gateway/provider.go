// Package gateway routes search lookups across external market-data
// providers with per-call timeouts, a single retry for transient failures,
// per-provider circuit breaking, and priority-ordered fallback.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stockscope/searchd/internal/domain"
)

// MarketDataProvider is the capability a vendor adapter must implement.
// Adapters are a closed set selected by configuration, not inheritance.
type MarketDataProvider interface {
	// Name identifies the provider in configuration, logs and metrics.
	Name() string
	// Search resolves a normalized query to zero or more matches.
	// Failures should be returned as *ProviderError so the gateway can
	// distinguish transient from definitive outcomes.
	Search(ctx context.Context, q domain.Query) ([]domain.StockMatch, error)
}

// FailureKind classifies a provider call failure.
type FailureKind string

const (
	// FailureTimeout - the call exceeded its deadline. Transient.
	FailureTimeout FailureKind = "timeout"
	// FailureRateLimited - HTTP 429. Not retried against the same provider.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureNotFound - HTTP 404/400, a definitive "no such security".
	FailureNotFound FailureKind = "not_found"
	// FailureUpstream - HTTP 5xx or a malformed response. Transient.
	FailureUpstream FailureKind = "upstream"
)

// Transient reports whether a retry against the same provider is worthwhile.
func (k FailureKind) Transient() bool {
	return k == FailureTimeout || k == FailureUpstream
}

// ProviderError is a typed failure from a single provider call.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a typed provider failure.
func NewProviderError(provider string, kind FailureKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// AllProvidersFailed is returned when every configured provider has been
// exhausted. It carries the last error observed from each provider so the
// caller can log a complete picture.
type AllProvidersFailed struct {
	Errors map[string]error // provider name -> last error
}

func (e *AllProvidersFailed) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for name, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// NotFound reports whether every recorded failure was a definitive
// not-found, i.e. the security does not exist rather than the providers
// being unhealthy.
func (e *AllProvidersFailed) NotFound() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, err := range e.Errors {
		var perr *ProviderError
		if !errors.As(err, &perr) || perr.Kind != FailureNotFound {
			return false
		}
	}
	return true
}
