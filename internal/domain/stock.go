// Package domain holds the core types shared across searchd components.
// It has no infrastructure dependencies.
package domain

// QueryKind classifies what kind of identifier a search query contains.
type QueryKind string

const (
	// KindSymbol is an exchange ticker symbol (e.g. AAPL, MSFT)
	KindSymbol QueryKind = "symbol"
	// KindISIN is a 12-character International Securities Identification Number
	KindISIN QueryKind = "isin"
	// KindWKN is a German 6-character Wertpapierkennnummer
	KindWKN QueryKind = "wkn"
	// KindName is free-text company name input
	KindName QueryKind = "name"
)

// Query is a classified, normalized search query.
// Created per incoming request, immutable after construction.
type Query struct {
	Raw  string    // original input, trimmed
	Kind QueryKind // classification result
	Key  string    // normalized cache key (upper for identifiers, lower for names)
}

// StockMatch is a single ranked search result. Immutable once constructed.
type StockMatch struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Exchange      string   `json:"exchange"`
	ISIN          string   `json:"isin,omitempty"`
	WKN           string   `json:"wkn,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	Confidence    float64  `json:"confidence"`
}
