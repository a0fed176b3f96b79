// Package store defines the persistence-facing domain types and repository
// interfaces shared by the importer, the stats service and the HTTP API.
package store

import (
	"time"

	"github.com/google/uuid"
)

// FileType declares what kind of file an import job ingests.
type FileType string

// Supported import file types.
const (
	FileRawLog          FileType = "raw_log"
	FileCSVLog          FileType = "csv_log"
	FileExcelLog        FileType = "excel_log"
	FileReferenceExport FileType = "reference_export"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

// Job lifecycle states. Transitions run waiting -> counting -> importing ->
// completed|error; terminal jobs are immutable.
const (
	JobWaiting   JobStatus = "waiting"
	JobCounting  JobStatus = "counting"
	JobImporting JobStatus = "importing"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Client owns imports and crawl records. Deleting a client cascades to all
// dependent rows.
type Client struct {
	ID        uuid.UUID
	Name      string
	Domain    string
	CreatedAt time.Time
}

// JobCounters tracks per-line accounting for an import job. For a completed
// job Imported + SkippedDuplicates + SkippedFiltered + ParseErrors equals
// ProcessedLines equals TotalLines.
type JobCounters struct {
	TotalLines        int64
	ProcessedLines    int64
	Imported          int64
	SkippedDuplicates int64
	SkippedFiltered   int64
	ParseErrors       int64
}

// ImportJob is one tracked attempt to ingest a file for a client.
type ImportJob struct {
	ID           uuid.UUID
	ClientID     uuid.UUID
	Filename     string
	FileType     FileType
	Status       JobStatus
	Counters     JobCounters
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// CrawlRecord is one classified, deduplicated log line. DedupKey is unique
// per client and derived from (client, timestamp, path, user agent).
type CrawlRecord struct {
	ClientID     uuid.UUID
	JobID        uuid.UUID
	Timestamp    time.Time
	LogDate      time.Time
	IP           string
	Path         string
	HTTPCode     int
	ResponseSize int64
	UserAgent    string
	Crawler      string
	BotFamily    string
	PageType     string
	DedupKey     string
}

// ReferenceURL is one entry from a reference crawl export, used only for
// orphan-page computation.
type ReferenceURL struct {
	ClientID     uuid.UUID
	JobID        uuid.UUID
	URL          string
	HTTPCode     *int
	Indexability *string
}

// RecordFilter narrows aggregation queries. Zero values mean "no filter".
type RecordFilter struct {
	ClientID  uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Crawler   string
	BotFamily string
	PageType  string
	HTTPCode  int
	Search    string
	Path      string
}
