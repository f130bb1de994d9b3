package search

import (
	"sort"
	"strings"

	"github.com/stockscope/searchd/internal/domain"
)

// Ranking tiers, in order of decreasing precision of intent. Exact
// identifier matches beat fuzzy name matches; prefix beats substring.
const (
	tierExactSymbol = iota
	tierExactIdentifier
	tierNamePrefix
	tierNameSubstring
	tierOther
)

// Merge combines cache-side matches with freshly fetched ones,
// deduplicating by ticker symbol. When the same ticker appears on both
// sides the fresh result wins: it carries the more current price.
func Merge(cached, fresh []domain.StockMatch) []domain.StockMatch {
	merged := make([]domain.StockMatch, 0, len(cached)+len(fresh))
	seen := make(map[string]bool, len(cached)+len(fresh))

	for _, m := range fresh {
		if seen[m.Symbol] {
			continue
		}
		seen[m.Symbol] = true
		merged = append(merged, m)
	}
	for _, m := range cached {
		if seen[m.Symbol] {
			continue
		}
		seen[m.Symbol] = true
		merged = append(merged, m)
	}

	return merged
}

// Rank orders matches by how precisely they answer the query and caps the
// list at max. Ties within a tier break by ascending ticker so the order is
// deterministic. Confidence is derived from the tier.
func Rank(q domain.Query, matches []domain.StockMatch, max int) []domain.StockMatch {
	type scored struct {
		match domain.StockMatch
		tier  int
	}

	upperKey := strings.ToUpper(q.Key)
	lowerRaw := strings.ToLower(q.Raw)

	ranked := make([]scored, 0, len(matches))
	for _, m := range matches {
		tier := matchTier(m, upperKey, lowerRaw)
		m.Confidence = confidenceFor(tier)
		ranked = append(ranked, scored{match: m, tier: tier})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].tier != ranked[j].tier {
			return ranked[i].tier < ranked[j].tier
		}
		return ranked[i].match.Symbol < ranked[j].match.Symbol
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}

	out := make([]domain.StockMatch, len(ranked))
	for i, s := range ranked {
		out[i] = s.match
	}
	return out
}

func matchTier(m domain.StockMatch, upperKey, lowerRaw string) int {
	switch {
	case strings.ToUpper(m.Symbol) == upperKey:
		return tierExactSymbol
	case m.ISIN != "" && strings.ToUpper(m.ISIN) == upperKey,
		m.WKN != "" && strings.ToUpper(m.WKN) == upperKey:
		return tierExactIdentifier
	case strings.HasPrefix(strings.ToLower(m.Name), lowerRaw):
		return tierNamePrefix
	case strings.Contains(strings.ToLower(m.Name), lowerRaw):
		return tierNameSubstring
	default:
		return tierOther
	}
}

func confidenceFor(tier int) float64 {
	switch tier {
	case tierExactSymbol:
		return 1.0
	case tierExactIdentifier:
		return 0.9
	case tierNamePrefix:
		return 0.7
	case tierNameSubstring:
		return 0.5
	default:
		return 0.3
	}
}
