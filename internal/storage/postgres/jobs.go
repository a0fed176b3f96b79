package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkessler/crawlscope/internal/store"
)

const jobColumns = `id, client_id, filename, file_type, status,
	total_lines, processed_lines, imported_lines, skipped_duplicates,
	skipped_filtered, parse_errors, error_message, started_at, finished_at`

// CreateJob inserts a job row.
func (s *Store) CreateJob(ctx context.Context, job store.ImportJob) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO import_jobs (
	id, client_id, filename, file_type, status,
	total_lines, processed_lines, imported_lines, skipped_duplicates,
	skipped_filtered, parse_errors, error_message, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.ClientID, job.Filename, job.FileType, job.Status,
		job.Counters.TotalLines, job.Counters.ProcessedLines,
		job.Counters.Imported, job.Counters.SkippedDuplicates,
		job.Counters.SkippedFiltered, job.Counters.ParseErrors,
		job.ErrorMessage, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches one job.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (store.ImportJob, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ImportJob{}, store.ErrNotFound
	}
	if err != nil {
		return store.ImportJob{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns a client's jobs newest first.
func (s *Store) ListJobs(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]store.ImportJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT `+jobColumns+` FROM import_jobs
WHERE client_id = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobProgress refreshes status and counters for a live job.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, status store.JobStatus, c store.JobCounters) error {
	tag, err := s.db.Exec(ctx, `
UPDATE import_jobs SET
	status = $2,
	total_lines = $3,
	processed_lines = $4,
	imported_lines = $5,
	skipped_duplicates = $6,
	skipped_filtered = $7,
	parse_errors = $8
WHERE id = $1`,
		id, status, c.TotalLines, c.ProcessedLines, c.Imported,
		c.SkippedDuplicates, c.SkippedFiltered, c.ParseErrors)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteJob records the terminal state of a job.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, status store.JobStatus, c store.JobCounters, errMsg *string, finishedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE import_jobs SET
	status = $2,
	total_lines = $3,
	processed_lines = $4,
	imported_lines = $5,
	skipped_duplicates = $6,
	skipped_filtered = $7,
	parse_errors = $8,
	error_message = $9,
	finished_at = $10
WHERE id = $1`,
		id, status, c.TotalLines, c.ProcessedLines, c.Imported,
		c.SkippedDuplicates, c.SkippedFiltered, c.ParseErrors,
		errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteJob removes the job; its crawl records and reference URLs cascade
// away with it.
func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (store.ImportJob, error) {
	var job store.ImportJob
	err := row.Scan(
		&job.ID, &job.ClientID, &job.Filename, &job.FileType, &job.Status,
		&job.Counters.TotalLines, &job.Counters.ProcessedLines,
		&job.Counters.Imported, &job.Counters.SkippedDuplicates,
		&job.Counters.SkippedFiltered, &job.Counters.ParseErrors,
		&job.ErrorMessage, &job.StartedAt, &job.FinishedAt)
	return job, err
}
