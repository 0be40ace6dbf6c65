package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "failures" {
		listFailures(ctx, pool)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "purge" {
		if len(os.Args) < 3 {
			fmt.Println("usage: jobcheck purge <retention> [apply]")
			os.Exit(2)
		}
		retention, err := time.ParseDuration(os.Args[2])
		if err != nil || retention <= 0 {
			fmt.Printf("Invalid retention %q\n", os.Args[2])
			os.Exit(2)
		}
		dryRun := !(len(os.Args) > 3 && os.Args[3] == "apply")
		purgeFinished(ctx, pool, retention, dryRun)
		return
	}

	// Default: jobs per status
	rows, err := pool.Query(ctx, `
		SELECT status, count(*), coalesce(sum(file_size), 0), min(created_at), max(updated_at)
		FROM jobs
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		fmt.Printf("Error querying jobs: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	fmt.Println("Status       Count     Bytes          Oldest                Newest")
	fmt.Println("───────────────────────────────────────────────────────────────────────────")
	for rows.Next() {
		var status string
		var count, bytes int64
		var oldest, newest time.Time
		if err := rows.Scan(&status, &count, &bytes, &oldest, &newest); err != nil {
			fmt.Printf("Error scanning row: %v\n", err)
			continue
		}
		fmt.Printf("%-12s %-9d %-14d %-21s %s\n", status, count, bytes,
			oldest.Format(time.DateTime), newest.Format(time.DateTime))
	}
}
