package directory

import (
	"time"

	"github.com/rs/zerolog"
)

// maxSecurityAge is how long an unrefreshed directory row is kept. Rows
// older than this were last seen in provider traffic a month ago; the next
// search for them will repopulate the directory anyway.
const maxSecurityAge = 30 * 24 * time.Hour

// PruneJob removes directory rows that have not been refreshed recently.
// It should be scheduled to run daily.
type PruneJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewPruneJob creates a new directory prune job.
func NewPruneJob(repo *Repository, log zerolog.Logger) *PruneJob {
	return &PruneJob{
		repo: repo,
		log:  log.With().Str("job", "directory_prune").Logger(),
	}
}

// Run executes the prune.
func (j *PruneJob) Run() error {
	deleted, err := j.repo.PruneStale(maxSecurityAge)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune stale securities")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Pruned stale directory entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PruneJob) Name() string {
	return "directory_prune"
}
