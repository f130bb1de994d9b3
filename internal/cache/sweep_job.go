package cache

import (
	"github.com/rs/zerolog"
)

// SweepJob removes expired entries from all cache namespaces.
// Lazy expiry already hides stale entries from readers; the sweep only
// reclaims memory. It should be scheduled to run every minute or so.
type SweepJob struct {
	store *Store
	log   zerolog.Logger
}

// NewSweepJob creates a new cache sweep job.
func NewSweepJob(store *Store, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		store: store,
		log:   log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Run executes the sweep, removing expired entries from every namespace.
func (j *SweepJob) Run() error {
	results, err := j.store.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to sweep expired cache entries")
		return err
	}

	total := 0
	for ns, count := range results {
		if count > 0 {
			j.log.Debug().
				Str("namespace", ns).
				Int("deleted", count).
				Msg("Swept expired cache entries")
			total += count
		}
	}

	if total > 0 {
		j.log.Info().Int("total_deleted", total).Msg("Cache sweep completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "cache_sweep"
}
