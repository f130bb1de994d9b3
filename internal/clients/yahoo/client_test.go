package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockscope/searchd/internal/domain"
	"github.com/stockscope/searchd/internal/gateway"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(zerolog.Nop())
	c.baseURL = srv.URL
	return c, srv
}

func TestSearchParsesQuotes(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "apple", r.URL.Query().Get("q"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0"))
		w.Write([]byte(`{"quotes": [
			{"symbol": "AAPL", "longname": "Apple Inc.", "exchange": "NMS", "quoteType": "EQUITY", "regularMarketPrice": 231.4},
			{"symbol": "APLE", "shortname": "Apple Hospitality REIT", "exchange": "NYQ", "quoteType": "EQUITY"},
			{"symbol": "", "quoteType": "EQUITY"}
		]}`))
	})
	defer srv.Close()

	matches, err := c.Search(context.Background(), domain.Query{Raw: "apple", Kind: domain.KindName, Key: "apple"})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "AAPL", matches[0].Symbol)
	assert.Equal(t, "Apple Inc.", matches[0].Name)
	require.NotNil(t, matches[0].Price)
	assert.Equal(t, 231.4, *matches[0].Price)

	// Falls back to shortname, no price field means no price
	assert.Equal(t, "Apple Hospitality REIT", matches[1].Name)
	assert.Nil(t, matches[1].Price)
}

func TestSearchEmptyAnswer(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes": []}`))
	})
	defer srv.Close()

	matches, err := c.Search(context.Background(), domain.Query{Raw: "zzzz", Kind: domain.KindName, Key: "zzzz"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   gateway.FailureKind
	}{
		{http.StatusTooManyRequests, gateway.FailureRateLimited},
		{http.StatusNotFound, gateway.FailureNotFound},
		{http.StatusInternalServerError, gateway.FailureUpstream},
	}

	for _, tc := range cases {
		c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})

		_, err := c.Search(context.Background(), domain.Query{Raw: "AAPL", Kind: domain.KindSymbol, Key: "AAPL"})
		var perr *gateway.ProviderError
		require.ErrorAs(t, err, &perr, "status %d", tc.status)
		assert.Equal(t, tc.kind, perr.Kind, "status %d", tc.status)
		assert.Equal(t, ProviderName, perr.Provider)
		srv.Close()
	}
}
