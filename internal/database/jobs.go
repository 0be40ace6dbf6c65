package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

// ErrNotPersistable is returned when a job in flight is handed to SaveJob.
var ErrNotPersistable = errors.New("processing jobs are not persisted")

// jobRow is the column layout of the jobs table.
type jobRow struct {
	ID        string
	Filename  string
	FileSize  int64
	Status    string
	Progress  float64
	Error     *string
	Settings  []byte
	Result    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func rowFromJob(j *transcript.Job) (jobRow, error) {
	settings, err := json.Marshal(j.Settings)
	if err != nil {
		return jobRow{}, fmt.Errorf("marshal settings: %w", err)
	}
	row := jobRow{
		ID:        j.ID,
		Filename:  j.Filename,
		FileSize:  j.FileSize,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Settings:  settings,
		CreatedAt: time.UnixMilli(j.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(j.UpdatedAt).UTC(),
	}
	if j.Error != "" {
		row.Error = &j.Error
	}
	if j.Result != nil {
		if row.Result, err = json.Marshal(j.Result); err != nil {
			return jobRow{}, fmt.Errorf("marshal result: %w", err)
		}
	}
	return row, nil
}

func (r jobRow) job() (*transcript.Job, error) {
	j := &transcript.Job{
		ID:        r.ID,
		Filename:  r.Filename,
		FileSize:  r.FileSize,
		Status:    transcript.Status(r.Status),
		Progress:  r.Progress,
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	}
	if r.Error != nil {
		j.Error = *r.Error
	}
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &j.Settings); err != nil {
			return nil, fmt.Errorf("job %s settings: %w", r.ID, err)
		}
	}
	if len(r.Result) > 0 {
		j.Result = &transcript.Result{}
		if err := json.Unmarshal(r.Result, j.Result); err != nil {
			return nil, fmt.Errorf("job %s result: %w", r.ID, err)
		}
	}
	return j, nil
}

// SaveJob inserts or replaces a job.
func (db *DB) SaveJob(ctx context.Context, j *transcript.Job) error {
	if !j.Persistable() {
		return ErrNotPersistable
	}
	row, err := rowFromJob(j)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO jobs (id, filename, file_size, status, progress, error, settings, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			filename   = EXCLUDED.filename,
			file_size  = EXCLUDED.file_size,
			status     = EXCLUDED.status,
			progress   = EXCLUDED.progress,
			error      = EXCLUDED.error,
			settings   = EXCLUDED.settings,
			result     = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.Filename, row.FileSize, row.Status, row.Progress, row.Error,
		row.Settings, row.Result, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// ListJobs returns every stored job, newest first.
func (db *DB) ListJobs(ctx context.Context) ([]*transcript.Job, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, filename, file_size, status, progress, error, settings, result, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*transcript.Job
	for rows.Next() {
		var r jobRow
		if err := rows.Scan(&r.ID, &r.Filename, &r.FileSize, &r.Status, &r.Progress, &r.Error,
			&r.Settings, &r.Result, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		j, err := r.job()
		if err != nil {
			db.log.Warn().Err(err).Msg("skipping unreadable job row")
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job. Deleting a missing job is not an error.
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}
