// Package cache provides the in-memory TTL store backing instant search.
// Values are stored as msgpack blobs with expiration timestamps for
// cache-first behavior. State is process-local and rebuilt on restart.
package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache namespaces. Query results and quotes rotate quickly because prices
// move; identifier metadata is stable and lives much longer.
const (
	NamespaceResults  = "search_results"
	NamespaceQuotes   = "quotes"
	NamespaceMetadata = "metadata"
)

// AllNamespaces lists every namespace for sweep operations.
var AllNamespaces = []string{NamespaceResults, NamespaceQuotes, NamespaceMetadata}

var validNamespaces = func() map[string]bool {
	m := make(map[string]bool, len(AllNamespaces))
	for _, ns := range AllNamespaces {
		m[ns] = true
	}
	return m
}()

const shardCount = 32

type entry struct {
	data       []byte
	insertedAt time.Time
	expiresAt  time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Store is a sharded, namespaced TTL cache. Readers and writers for
// different keys contend only on the owning shard's lock, and per-key
// get/put ordering is linearizable through that lock.
type Store struct {
	shards [shardCount]*shard
	log    zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewStore creates an empty cache store.
func NewStore(log zerolog.Logger) *Store {
	s := &Store{
		log: log.With().Str("component", "cache").Logger(),
		now: time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

func validateNamespace(ns string) error {
	if !validNamespaces[ns] {
		return fmt.Errorf("invalid cache namespace: %s", ns)
	}
	return nil
}

func (s *Store) shardFor(ns, key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(ns))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func compositeKey(ns, key string) string {
	return ns + "\x00" + key
}

// Store saves a value with expiration = now + ttl, overwriting any previous
// entry. Serialization failures are logged and swallowed: a broken cache
// write must never fail the search that triggered it.
func (s *Store) Store(ns, key string, value interface{}, ttl time.Duration) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		s.log.Warn().Err(err).Str("namespace", ns).Str("key", key).Msg("Failed to encode cache value")
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	now := s.now()
	sh := s.shardFor(ns, key)
	sh.mu.Lock()
	sh.entries[compositeKey(ns, key)] = entry{
		data:       data,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	sh.mu.Unlock()

	return nil
}

// GetIfFresh returns the stored blob only if it has not expired.
// Expired entries are treated as absent (lazy expiry) and opportunistically
// evicted. Returns nil if the key is missing or stale.
func (s *Store) GetIfFresh(ns, key string) []byte {
	if err := validateNamespace(ns); err != nil {
		s.log.Warn().Err(err).Msg("Cache read on invalid namespace")
		return nil
	}

	ck := compositeKey(ns, key)
	sh := s.shardFor(ns, key)

	sh.mu.RLock()
	e, ok := sh.entries[ck]
	sh.mu.RUnlock()

	if !ok {
		return nil
	}
	if !s.now().Before(e.expiresAt) {
		// Lazy eviction. Re-check under the write lock: a concurrent Store
		// may have refreshed the entry since the read above.
		sh.mu.Lock()
		if cur, ok := sh.entries[ck]; ok && !s.now().Before(cur.expiresAt) {
			delete(sh.entries, ck)
		}
		sh.mu.Unlock()
		return nil
	}
	return e.data
}

// Get returns the stored blob regardless of expiration status.
// Use this as a fallback when provider calls fail - stale data is better
// than no data. Returns nil if the key doesn't exist.
func (s *Store) Get(ns, key string) []byte {
	if err := validateNamespace(ns); err != nil {
		s.log.Warn().Err(err).Msg("Cache read on invalid namespace")
		return nil
	}

	sh := s.shardFor(ns, key)
	sh.mu.RLock()
	e, ok := sh.entries[compositeKey(ns, key)]
	sh.mu.RUnlock()

	if !ok {
		return nil
	}
	return e.data
}

// Delete removes a specific entry. Used when a provider returns a definitive
// not-found, so a negative outcome is never cached as long as a positive one.
func (s *Store) Delete(ns, key string) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}

	sh := s.shardFor(ns, key)
	sh.mu.Lock()
	delete(sh.entries, compositeKey(ns, key))
	sh.mu.Unlock()

	return nil
}

// DeleteExpired removes all expired entries in a namespace.
// Returns the number of entries removed.
func (s *Store) DeleteExpired(ns string) (int, error) {
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}

	prefix := ns + "\x00"
	now := s.now()
	deleted := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix && !now.Before(e.expiresAt) {
				delete(sh.entries, k)
				deleted++
			}
		}
		sh.mu.Unlock()
	}

	return deleted, nil
}

// DeleteAllExpired removes expired entries from every namespace.
// Returns a map of namespace to number of entries removed.
func (s *Store) DeleteAllExpired() (map[string]int, error) {
	results := make(map[string]int)
	for _, ns := range AllNamespaces {
		deleted, err := s.DeleteExpired(ns)
		if err != nil {
			return results, fmt.Errorf("failed to sweep namespace %s: %w", ns, err)
		}
		results[ns] = deleted
	}
	return results, nil
}

// Counts returns the number of live entries per namespace.
// Expired-but-unswept entries are not counted.
func (s *Store) Counts() map[string]int {
	counts := make(map[string]int, len(AllNamespaces))
	now := s.now()

	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			if now.Before(e.expiresAt) {
				for _, ns := range AllNamespaces {
					if len(k) > len(ns) && k[:len(ns)+1] == ns+"\x00" {
						counts[ns]++
						break
					}
				}
			}
		}
		sh.mu.RUnlock()
	}

	return counts
}

// Decode unmarshals a blob previously written by Store.
func Decode(data []byte, out interface{}) error {
	return msgpack.Unmarshal(data, out)
}
