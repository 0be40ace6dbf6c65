package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// purgeFinished deletes completed, failed and cancelled jobs last updated
// before the retention window. Queued jobs are never touched.
func purgeFinished(ctx context.Context, pool *pgxpool.Pool, retention time.Duration, dryRun bool) {
	const where = `status IN ('completed', 'failed', 'cancelled') AND updated_at < now() - $1::interval`

	var count int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE `+where, retention.String()).Scan(&count); err != nil {
		fmt.Printf("Error counting jobs: %v\n", err)
		return
	}
	fmt.Printf("%d finished job(s) older than %s\n", count, retention)

	if dryRun {
		fmt.Println("Dry run; pass 'apply' to delete.")
		return
	}

	tag, err := pool.Exec(ctx, `DELETE FROM jobs WHERE `+where, retention.String())
	if err != nil {
		fmt.Printf("Error deleting jobs: %v\n", err)
		return
	}
	fmt.Printf("Deleted %d job(s)\n", tag.RowsAffected())
}

// listFailures prints the most recent failed jobs with their errors.
func listFailures(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT id, filename, coalesce(settings->>'backend', ''), coalesce(error, ''), updated_at
		FROM jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT 50
	`)
	if err != nil {
		fmt.Printf("Error querying failures: %v\n", err)
		return
	}
	defer rows.Close()

	fmt.Println("── Recent Failures ──")
	n := 0
	for rows.Next() {
		var id, filename, backend, msg string
		var updated time.Time
		if err := rows.Scan(&id, &filename, &backend, &msg, &updated); err != nil {
			fmt.Printf("Error scanning row: %v\n", err)
			continue
		}
		if backend == "" {
			backend = "default"
		}
		fmt.Printf("  %s  %s  [%s] %s\n    %s\n", updated.Format(time.DateTime), id, backend, filename, msg)
		n++
	}
	if n == 0 {
		fmt.Println("  none")
	}
}
