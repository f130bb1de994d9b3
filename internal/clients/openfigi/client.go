// Package openfigi provides a client for Bloomberg's OpenFIGI mapping API.
// OpenFIGI resolves securities identifiers (ISINs, WKNs, tickers) to
// exchange listings; it has no fuzzy name search.
package openfigi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
)

const defaultBaseURL = "https://api.openfigi.com/v3"

// ProviderName identifies this adapter in configuration and metrics.
const ProviderName = "openfigi"

// mappingRequest is a request item for the OpenFIGI mapping API.
type mappingRequest struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

// mappingResult is a single listing in a mapping response.
type mappingResult struct {
	FIGI     string `json:"figi"`
	Ticker   string `json:"ticker"`
	ExchCode string `json:"exchCode"`
	Name     string `json:"name"`
}

type mappingResponse struct {
	Data    []mappingResult `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// Client is the OpenFIGI API client.
type Client struct {
	baseURL    string
	apiKey     string // optional, raises rate limits
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new OpenFIGI client.
// apiKey is optional but recommended for higher rate limits.
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

// Search implements gateway.MarketDataProvider. Name queries return nothing:
// OpenFIGI only maps identifiers, and an empty answer lets the gateway fall
// through to a fuzzy-capable vendor.
func (c *Client) Search(ctx context.Context, q domain.Query) ([]domain.StockMatch, error) {
	var idType string
	switch q.Kind {
	case domain.KindISIN:
		idType = "ID_ISIN"
	case domain.KindWKN:
		idType = "ID_WERTPAPIER"
	case domain.KindSymbol:
		idType = "TICKER"
	default:
		return nil, nil
	}

	responses, err := c.doRequest(ctx, []mappingRequest{{IDType: idType, IDValue: q.Key}})
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	if responses[0].Error != "" {
		// Per-item errors mean "no such identifier", not an unhealthy API.
		c.log.Debug().Str("error", responses[0].Error).Str("key", q.Key).Msg("Mapping returned no data")
		return nil, nil
	}

	matches := make([]domain.StockMatch, 0, len(responses[0].Data))
	for _, r := range responses[0].Data {
		if r.Ticker == "" {
			continue
		}
		m := domain.StockMatch{
			Symbol:   r.Ticker,
			Name:     r.Name,
			Exchange: exchangeCodes[r.ExchCode],
		}
		if m.Exchange == "" {
			m.Exchange = r.ExchCode
		}
		switch q.Kind {
		case domain.KindISIN:
			m.ISIN = q.Key
		case domain.KindWKN:
			m.WKN = q.Key
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *Client) doRequest(ctx context.Context, requests []mappingRequest) ([]mappingResponse, error) {
	body, err := json.Marshal(requests)
	if err != nil {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mapping", bytes.NewReader(body))
	if err != nil {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-OPENFIGI-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, gateway.NewProviderError(ProviderName, gateway.FailureTimeout, err)
		}
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError(resp.StatusCode, respBody)
	}

	var responses []mappingResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, gateway.NewProviderError(ProviderName, gateway.FailureUpstream,
			fmt.Errorf("failed to decode response: %w", err))
	}
	return responses, nil
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

// exchangeCodes maps Bloomberg exchange codes to common venue names.
var exchangeCodes = map[string]string{
	"US": "NYSE",
	"UN": "NYSE",
	"UW": "NASDAQ",
	"LN": "LSE",
	"GR": "XETRA",
	"GY": "XETRA",
	"FP": "EURONEXT",
	"NA": "EURONEXT",
	"SW": "SIX",
	"JT": "TSE",
	"HK": "HKEX",
	"AU": "ASX",
	"CT": "TSX",
}
