// Package directory maintains a local SQLite directory of securities this
// instance has resolved. It is derived data: written back from successful
// provider results, consulted as an extra match source for fuzzy name
// queries, and safe to delete at any time.
package directory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/stockscope/searchd/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS securities (
	symbol       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	exchange     TEXT NOT NULL DEFAULT '',
	isin         TEXT NOT NULL DEFAULT '',
	wkn          TEXT NOT NULL DEFAULT '',
	last_price   REAL,
	refreshed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_securities_isin ON securities(isin);
CREATE INDEX IF NOT EXISTS idx_securities_name ON securities(name);
CREATE INDEX IF NOT EXISTS idx_securities_refreshed ON securities(refreshed_at);
`

// Repository handles security directory database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// Open opens (or creates) the directory database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string, log zerolog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply directory schema: %w", err)
	}
	return NewRepository(db, log), nil
}

// NewRepository wraps an existing connection. The caller owns the schema.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "directory").Logger(),
		now: time.Now,
	}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Upsert records a resolved security, refreshing its timestamp. Identifier
// columns are only overwritten when the new match actually carries them, so
// a price-only provider cannot blank out an ISIN learned earlier.
func (r *Repository) Upsert(m domain.StockMatch) error {
	if m.Symbol == "" {
		return fmt.Errorf("refusing to store security without a symbol")
	}

	query := `
INSERT INTO securities (symbol, name, exchange, isin, wkn, last_price, refreshed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
	name         = excluded.name,
	exchange     = CASE WHEN excluded.exchange != '' THEN excluded.exchange ELSE exchange END,
	isin         = CASE WHEN excluded.isin != '' THEN excluded.isin ELSE isin END,
	wkn          = CASE WHEN excluded.wkn != '' THEN excluded.wkn ELSE wkn END,
	last_price   = COALESCE(excluded.last_price, last_price),
	refreshed_at = excluded.refreshed_at`

	var price interface{}
	if m.Price != nil {
		price = *m.Price
	}

	_, err := r.db.Exec(query,
		strings.ToUpper(m.Symbol), m.Name, m.Exchange,
		strings.ToUpper(m.ISIN), strings.ToUpper(m.WKN),
		price, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", m.Symbol, err)
	}
	return nil
}

// Lookup returns local matches for a normalized query. Symbol and
// identifier kinds use exact lookups; name kind searches with a substring
// LIKE. Errors are returned so the caller can decide to degrade.
func (r *Repository) Lookup(q domain.Query, limit int) ([]domain.StockMatch, error) {
	if limit < 1 {
		limit = 1
	}

	switch q.Kind {
	case domain.KindSymbol:
		return r.query("SELECT symbol, name, exchange, isin, wkn, last_price FROM securities WHERE symbol = ? LIMIT ?", q.Key, limit)
	case domain.KindISIN:
		return r.query("SELECT symbol, name, exchange, isin, wkn, last_price FROM securities WHERE isin = ? LIMIT ?", q.Key, limit)
	case domain.KindWKN:
		return r.query("SELECT symbol, name, exchange, isin, wkn, last_price FROM securities WHERE wkn = ? LIMIT ?", q.Key, limit)
	case domain.KindName:
		pattern := "%" + escapeLike(q.Key) + "%"
		return r.query(`SELECT symbol, name, exchange, isin, wkn, last_price FROM securities
			WHERE lower(name) LIKE ? ESCAPE '\' ORDER BY symbol LIMIT ?`, pattern, limit)
	default:
		return nil, fmt.Errorf("unknown query kind: %s", q.Kind)
	}
}

func (r *Repository) query(stmt string, args ...interface{}) ([]domain.StockMatch, error) {
	rows, err := r.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("directory query failed: %w", err)
	}
	defer rows.Close()

	var matches []domain.StockMatch
	for rows.Next() {
		var m domain.StockMatch
		var price sql.NullFloat64
		if err := rows.Scan(&m.Symbol, &m.Name, &m.Exchange, &m.ISIN, &m.WKN, &price); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		if price.Valid {
			p := price.Float64
			m.Price = &p
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Count returns the number of securities in the directory.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM securities").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count securities: %w", err)
	}
	return count, nil
}

// PruneStale deletes securities not refreshed within maxAge.
// Returns the number of rows deleted.
func (r *Repository) PruneStale(maxAge time.Duration) (int64, error) {
	cutoff := r.now().Add(-maxAge).Unix()

	result, err := r.db.Exec("DELETE FROM securities WHERE refreshed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale securities: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
