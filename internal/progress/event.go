package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkessler/crawlscope/internal/store"
)

// Event is one snapshot of an import job's progress. Events for a job are
// published in order; a terminal event (completed or error) is always last.
type Event struct {
	JobID uuid.UUID `json:"job_id"`
	// Status mirrors the job row: waiting, counting, importing, completed
	// or error.
	Status            store.JobStatus `json:"status"`
	TotalLines        int64           `json:"total_lines"`
	ProcessedLines    int64           `json:"processed_lines"`
	Imported          int64           `json:"imported"`
	SkippedDuplicates int64           `json:"skipped_duplicates"`
	SkippedFiltered   int64           `json:"skipped_filtered"`
	ParseErrors       int64           `json:"parse_errors"`
	// Percent is capped at 99 while importing; only a terminal completed
	// event carries 100.
	Percent int `json:"percent"`
	// Error holds the failure message on an error event, empty otherwise.
	Error string    `json:"error,omitempty"`
	TS    time.Time `json:"ts"`
}

// Terminal reports whether this event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Status {
	case store.JobWaiting, store.JobCounting, store.JobImporting, store.JobCompleted:
	case store.JobError:
		if e.Error == "" {
			return errors.New("error event requires a message")
		}
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return fmt.Errorf("percent %d out of range", e.Percent)
	}
	return nil
}

// Counters bundles the event's tallies back into the job-row form.
func (e Event) Counters() store.JobCounters {
	return store.JobCounters{
		TotalLines:        e.TotalLines,
		ProcessedLines:    e.ProcessedLines,
		Imported:          e.Imported,
		SkippedDuplicates: e.SkippedDuplicates,
		SkippedFiltered:   e.SkippedFiltered,
		ParseErrors:       e.ParseErrors,
	}
}

// FromCounters builds an Event snapshot for a job.
func FromCounters(jobID uuid.UUID, status store.JobStatus, c store.JobCounters, percent int, ts time.Time) Event {
	return Event{
		JobID:             jobID,
		Status:            status,
		TotalLines:        c.TotalLines,
		ProcessedLines:    c.ProcessedLines,
		Imported:          c.Imported,
		SkippedDuplicates: c.SkippedDuplicates,
		SkippedFiltered:   c.SkippedFiltered,
		ParseErrors:       c.ParseErrors,
		Percent:           percent,
		TS:                ts,
	}
}
