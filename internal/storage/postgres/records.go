package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkessler/crawlscope/internal/store"
)

const insertRecordSQL = `
INSERT INTO crawl_records (
	client_id, job_id, ts, log_date, ip, path, http_code,
	response_size, user_agent, crawler, bot_family, page_type, dedup_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (client_id, dedup_key) DO NOTHING`

// InsertRecords batch-inserts crawl records. Rows whose dedup key already
// exists for the client are skipped by the unique constraint; the returned
// count is how many actually landed.
func (s *Store) InsertRecords(ctx context.Context, records []store.CrawlRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertRecordSQL,
			rec.ClientID, rec.JobID, rec.Timestamp, rec.LogDate, rec.IP,
			rec.Path, rec.HTTPCode, rec.ResponseSize, rec.UserAgent,
			rec.Crawler, rec.BotFamily, rec.PageType, rec.DedupKey)
	}

	results := s.db.SendBatch(ctx, batch)
	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return inserted, fmt.Errorf("insert record batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return inserted, fmt.Errorf("close record batch: %w", err)
	}
	return inserted, nil
}

const insertReferenceSQL = `
INSERT INTO reference_urls (client_id, job_id, url, http_code, indexability)
VALUES ($1, $2, $3, $4, $5)`

// ReplaceReferenceURLs atomically swaps the client's reference set for the
// new export.
func (s *Store) ReplaceReferenceURLs(ctx context.Context, clientID, jobID uuid.UUID, urls []store.ReferenceURL) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace reference urls: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM reference_urls WHERE client_id = $1`, clientID); err != nil {
		return 0, fmt.Errorf("clear reference urls: %w", err)
	}

	batch := &pgx.Batch{}
	for _, u := range urls {
		batch.Queue(insertReferenceSQL, clientID, jobID, u.URL, u.HTTPCode, u.Indexability)
	}
	results := tx.SendBatch(ctx, batch)
	var inserted int64
	for range urls {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert reference url: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close reference batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace reference urls: %w", err)
	}
	return inserted, nil
}
