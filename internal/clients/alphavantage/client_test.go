package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient("test-key", zerolog.Nop())
	c.baseURL = srv.URL
	return c, srv
}

func TestSearchParsesBestMatches(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SYMBOL_SEARCH", r.URL.Query().Get("function"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"bestMatches": [
			{"1. symbol": "BA", "2. name": "Boeing Company", "4. region": "United States"},
			{"1. symbol": "BA.LON", "2. name": "BAE Systems plc", "4. region": "United Kingdom"}
		]}`))
	})
	defer srv.Close()

	matches, err := c.Search(context.Background(), domain.Query{Raw: "boeing", Kind: domain.KindName, Key: "boeing"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "BA", matches[0].Symbol)
	assert.Equal(t, "Boeing Company", matches[0].Name)
	assert.Equal(t, "United States", matches[0].Exchange)
}

func TestSearchAttachesQuoteForSymbolQuery(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "SYMBOL_SEARCH":
			w.Write([]byte(`{"bestMatches": [{"1. symbol": "IBM", "2. name": "International Business Machines", "4. region": "United States"}]}`))
		case "GLOBAL_QUOTE":
			assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
			w.Write([]byte(`{"Global Quote": {"05. price": "182.5000", "09. change": "-1.2500"}}`))
		}
	})
	defer srv.Close()

	matches, err := c.Search(context.Background(), domain.Query{Raw: "IBM", Kind: domain.KindSymbol, Key: "IBM"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].Price)
	assert.Equal(t, 182.5, *matches[0].Price)
	require.NotNil(t, matches[0].Change)
	assert.Equal(t, -1.25, *matches[0].Change)
}

func TestSearchQuoteFailureDoesNotFailSearch(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "SYMBOL_SEARCH":
			w.Write([]byte(`{"bestMatches": [{"1. symbol": "IBM", "2. name": "IBM", "4. region": "United States"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	defer srv.Close()

	matches, err := c.Search(context.Background(), domain.Query{Raw: "IBM", Kind: domain.KindSymbol, Key: "IBM"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Nil(t, matches[0].Price)
}

func TestSearchThrottleNoteMapsToRateLimited(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})
	defer srv.Close()

	_, err := c.Search(context.Background(), domain.Query{Raw: "IBM", Kind: domain.KindSymbol, Key: "IBM"})
	var perr *gateway.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, gateway.FailureRateLimited, perr.Kind)
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   gateway.FailureKind
	}{
		{http.StatusTooManyRequests, gateway.FailureRateLimited},
		{http.StatusNotFound, gateway.FailureNotFound},
		{http.StatusBadRequest, gateway.FailureNotFound},
		{http.StatusInternalServerError, gateway.FailureUpstream},
		{http.StatusBadGateway, gateway.FailureUpstream},
	}

	for _, tc := range cases {
		c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})

		_, err := c.Search(context.Background(), domain.Query{Raw: "IBM", Kind: domain.KindName, Key: "ibm"})
		var perr *gateway.ProviderError
		require.ErrorAs(t, err, &perr, "status %d", tc.status)
		assert.Equal(t, tc.kind, perr.Kind, "status %d", tc.status)
		srv.Close()
	}
}
