package database

import (
	"context"
	"time"
)

// PurgeFinishedJobs deletes completed, failed and cancelled jobs whose last
// update is older than the retention period.
func (db *DB) PurgeFinishedJobs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < now() - $1::interval`,
		retention.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunMaintenance purges old jobs every interval until ctx is done.
// A zero retention disables purging.
func (db *DB) RunMaintenance(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	log := db.log.With().Str("component", "maintenance").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := db.PurgeFinishedJobs(ctx, retention)
		if err != nil {
			log.Warn().Err(err).Msg("job purge failed")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Dur("retention", retention).Msg("purged finished jobs")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
