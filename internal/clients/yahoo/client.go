// Package yahoo provides a client for the unauthenticated Yahoo Finance
// search API. Yahoo requires a browser-looking User-Agent; requests without
// one get rejected.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// ProviderName identifies this adapter in configuration and metrics.
const ProviderName = "yahoo"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client is a Yahoo Finance search client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		log:        log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements gateway.MarketDataProvider.
func (c *Client) Name() string { return ProviderName }

type searchResponse struct {
	Quotes []struct {
		Symbol    string  `json:"symbol"`
		ShortName string  `json:"shortname"`
		LongName  string  `json:"longname"`
		Exchange  string  `json:"exchange"`
		QuoteType string  `json:"quoteType"`
		Price     float64 `json:"regularMarketPrice"`
	} `json:"quotes"`
}

// Search implements gateway.MarketDataProvider. Yahoo's search endpoint is
// fuzzy, so symbols, names and identifiers all go through the same query.
func (c *Client) Search(ctx context.Context, q domain.Query) ([]domain.StockMatch, error) {
	params := url.Values{}
	params.Set("q", q.Key)
	params.Set("quotesCount", "20")
	params.Set("newsCount", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/finance/search?"+params.Encode(), nil)
	if err != nil {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, gateway.NewProviderError(ProviderName, gateway.FailureTimeout, err)
		}
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError(resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to decode response: %w", err))
	}

	matches := make([]domain.StockMatch, 0, len(sr.Quotes))
	for _, quote := range sr.Quotes {
		if quote.Symbol == "" || quote.QuoteType == "NEWS" {
			continue
		}
		name := quote.LongName
		if name == "" {
			name = quote.ShortName
		}
		m := domain.StockMatch{
			Symbol:   quote.Symbol,
			Name:     name,
			Exchange: quote.Exchange,
		}
		if quote.Price != 0 {
			price := quote.Price
			m.Price = &price
		}
		matches = append(matches, m)
	}
	return matches, nil
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
