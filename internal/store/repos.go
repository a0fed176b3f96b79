package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing unique
// row, such as a client name that is already taken.
var ErrDuplicate = errors.New("already exists")

// ClientRepository manages the clients that own all imported data.
type ClientRepository interface {
	CreateClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	// DeleteClient removes the client and, by cascade, all of its jobs,
	// crawl records and reference URLs.
	DeleteClient(ctx context.Context, id uuid.UUID) error
}

// JobRepository persists import job lifecycle state. Only the owning import
// session mutates a job; terminal jobs are never updated again.
type JobRepository interface {
	CreateJob(ctx context.Context, job ImportJob) error
	GetJob(ctx context.Context, id uuid.UUID) (ImportJob, error)
	ListJobs(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]ImportJob, error)
	// UpdateJobProgress transitions status and refreshes counters mid-import.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, status JobStatus, counters JobCounters) error
	// CompleteJob records the terminal status, final counters and optional
	// error message.
	CompleteJob(ctx context.Context, id uuid.UUID, status JobStatus, counters JobCounters, errMsg *string, finishedAt time.Time) error
	// DeleteJob removes the job and all rows it imported in one transaction.
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// RecordRepository persists classified log lines and reference exports.
type RecordRepository interface {
	// InsertRecords inserts a batch, silently skipping rows whose dedup key
	// already exists for the client, and returns how many were inserted.
	// The check-and-insert is atomic per key under concurrent imports.
	InsertRecords(ctx context.Context, records []CrawlRecord) (int64, error)
	// ReplaceReferenceURLs swaps the client's reference set for a new one.
	ReplaceReferenceURLs(ctx context.Context, clientID, jobID uuid.UUID, urls []ReferenceURL) (int64, error)
}

// CodeCount is one HTTP status bucket of a histogram.
type CodeCount struct {
	Code  int
	Count int64
}

// PeriodCount is one bucket of a day- or week-grouped series.
type PeriodCount struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}

// PageStat describes one distinct path with its crawl activity.
type PageStat struct {
	Path       string    `json:"path"`
	CrawlCount int64     `json:"crawl_count"`
	LastCrawl  time.Time `json:"last_crawl"`
	HTTPCode   int       `json:"http_code"`
}

// Totals carries the scalar aggregates of a filtered record set.
type Totals struct {
	TotalCrawls int64
	UniquePages int64
	MinDate     *time.Time
	MaxDate     *time.Time
}

// StatsRepository exposes the read-only aggregation queries. All methods are
// safe to call concurrently with ongoing imports and tolerate seeing a
// partially imported state.
type StatsRepository interface {
	Totals(ctx context.Context, f RecordFilter) (Totals, error)
	HTTPCodeCounts(ctx context.Context, f RecordFilter) ([]CodeCount, error)
	// FrequencySeries groups crawl counts by "day" or "week".
	FrequencySeries(ctx context.Context, f RecordFilter, groupBy string) ([]PeriodCount, error)
	TopPages(ctx context.Context, f RecordFilter, limit int) ([]PageStat, error)
	// ListPages returns the total distinct-path count plus one page of
	// results sorted by crawl count descending, then path ascending.
	ListPages(ctx context.Context, f RecordFilter, limit, offset int) (int64, []PageStat, error)
	// CrawledPaths returns every distinct path matching the filter with its
	// crawl count and last crawl time, for the orphan set difference.
	CrawledPaths(ctx context.Context, f RecordFilter) ([]PageStat, error)
	// ReferencePaths returns the URL set of the client's most recent
	// reference export.
	ReferencePaths(ctx context.Context, clientID uuid.UUID) ([]string, error)
}
