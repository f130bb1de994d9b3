// Package alphavantage provides a client for the Alpha Vantage market-data
// API. The free tier is keyed and tightly rate limited; limit breaches are
// reported inside 200 responses rather than with a 429.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
)

const defaultBaseURL = "https://www.alphavantage.co"

// ProviderName identifies this adapter in configuration and metrics.
const ProviderName = "alphavantage"

// Client is the Alpha Vantage API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Alpha Vantage client. The HTTP client carries no
// timeout of its own; per-call deadlines arrive on the context.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		log:        log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements gateway.MarketDataProvider.
func (c *Client) Name() string { return ProviderName }

type searchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
	Note        string              `json:"Note"`
	Information string              `json:"Information"`
}

type quoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
}

// Search implements gateway.MarketDataProvider. All query kinds go through
// SYMBOL_SEARCH; exact ticker queries additionally pick up a live quote.
func (c *Client) Search(ctx context.Context, q domain.Query) ([]domain.StockMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", q.Key)
	params.Set("apikey", c.apiKey)

	var sr searchResponse
	if err := c.get(ctx, params, &sr); err != nil {
		return nil, err
	}
	// Rate limit breaches come back as 200 with an explanatory note.
	if sr.Note != "" || sr.Information != "" {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureRateLimited,
			fmt.Errorf("request throttled: %s%s", sr.Note, sr.Information))
	}

	matches := make([]domain.StockMatch, 0, len(sr.BestMatches))
	for _, raw := range sr.BestMatches {
		symbol := raw["1. symbol"]
		if symbol == "" {
			continue
		}
		matches = append(matches, domain.StockMatch{
			Symbol:   symbol,
			Name:     raw["2. name"],
			Exchange: raw["4. region"],
		})
	}

	if q.Kind == domain.KindSymbol && len(matches) > 0 {
		c.attachQuote(ctx, q.Key, matches)
	}

	return matches, nil
}

// attachQuote decorates the exact-ticker match with a live price.
// Best effort: a failed quote never fails the search.
func (c *Client) attachQuote(ctx context.Context, symbol string, matches []domain.StockMatch) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	var qr quoteResponse
	if err := c.get(ctx, params, &qr); err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
		return
	}
	price, err := strconv.ParseFloat(qr.GlobalQuote["05. price"], 64)
	if err != nil {
		return
	}

	for i := range matches {
		if matches[i].Symbol == symbol {
			matches[i].Price = &price
			if change, err := strconv.ParseFloat(qr.GlobalQuote["09. change"], 64); err == nil {
				matches[i].Change = &change
			}
			return
		}
	}
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return gateway.NewProviderError(ProviderName, gateway.FailureTimeout, err)
		}
		return gateway.NewProviderError(ProviderName, gateway.FailureUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func statusError(status int, body []byte) *gateway.ProviderError {
	err := fmt.Errorf("API error: status %d, body: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return gateway.NewProviderError(ProviderName, gateway.FailureRateLimited, err)
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		return gateway.NewProviderError(ProviderName, gateway.FailureNotFound, err)
	default:
		return gateway.NewProviderError(ProviderName, gateway.FailureUpstream, err)
	}
}
