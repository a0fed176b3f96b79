package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/botreg"
	"github.com/mkessler/crawlscope/internal/dedup"
	"github.com/mkessler/crawlscope/internal/logparse"
	"github.com/mkessler/crawlscope/internal/store"
)

// Scanner buffers for raw log streaming. Access logs occasionally carry very
// long request lines, so the cap is well above bufio's default.
const (
	scanBufSize = 64 * 1024
	scanBufMax  = 1024 * 1024
)

// runSession drives one background log import to its terminal state. The
// uploaded temp file is removed when the session ends, whatever the outcome.
func (m *Manager) runSession(ctx context.Context, job store.ImportJob, path string) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("remove import temp file",
				zap.String("path", path), zap.Error(err))
		}
	}()

	var (
		counters store.JobCounters
		err      error
	)
	switch job.FileType {
	case store.FileExcelLog:
		counters, err = m.runExcelImport(ctx, job, path)
	default:
		counters, err = m.runLogImport(ctx, job, path)
	}

	// The job context may already be canceled; terminal writes use a fresh
	// one so the outcome is always recorded.
	finishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := m.clk.Now()

	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) {
			msg = "import canceled"
		}
		if cerr := m.jobs.CompleteJob(finishCtx, job.ID, store.JobError, counters, &msg, now); cerr != nil {
			m.logger.Error("record failed import",
				zap.String("job_id", job.ID.String()), zap.Error(cerr))
		}
		m.publish(job.ID, store.JobError, counters, percentOf(counters), msg)
		m.logger.Warn("import failed",
			zap.String("job_id", job.ID.String()),
			zap.String("filename", job.Filename),
			zap.String("reason", msg))
		return
	}

	// A completed job's counters always sum to its total.
	counters.TotalLines = counters.ProcessedLines
	if cerr := m.jobs.CompleteJob(finishCtx, job.ID, store.JobCompleted, counters, nil, now); cerr != nil {
		msg := fmt.Sprintf("record completion: %v", cerr)
		m.publish(job.ID, store.JobError, counters, percentOf(counters), msg)
		m.logger.Error("record completed import",
			zap.String("job_id", job.ID.String()), zap.Error(cerr))
		return
	}
	m.publish(job.ID, store.JobCompleted, counters, 100, "")
	m.logger.Info("import completed",
		zap.String("job_id", job.ID.String()),
		zap.String("filename", job.Filename),
		zap.Int64("imported", counters.Imported),
		zap.Int64("skipped_duplicates", counters.SkippedDuplicates),
		zap.Int64("skipped_filtered", counters.SkippedFiltered),
		zap.Int64("parse_errors", counters.ParseErrors))
}

func (m *Manager) runLogImport(ctx context.Context, job store.ImportJob, path string) (store.JobCounters, error) {
	sess := m.newSession(job)

	if err := sess.transition(ctx, store.JobCounting); err != nil {
		return sess.counters, err
	}

	f, err := os.Open(path)
	if err != nil {
		return sess.counters, fmt.Errorf("open upload: %w", err)
	}
	total, err := logparse.CountLines(f)
	f.Close()
	if err != nil {
		return sess.counters, fmt.Errorf("count lines: %w", err)
	}
	if job.FileType == store.FileCSVLog && total > 0 {
		total-- // header row
	}
	sess.counters.TotalLines = total

	if err := sess.transition(ctx, store.JobImporting); err != nil {
		return sess.counters, err
	}

	f, err = os.Open(path)
	if err != nil {
		return sess.counters, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	if job.FileType == store.FileCSVLog {
		err = sess.consumeCSV(ctx, f)
	} else {
		err = sess.consumeRaw(ctx, f)
	}
	if err != nil {
		return sess.counters, err
	}
	if err := sess.flush(ctx); err != nil {
		return sess.counters, err
	}
	return sess.counters, nil
}

// runExcelImport ingests a per-day-sheet workbook. The workbook must be
// parsed whole, so there is no counting phase; the line total is known as
// soon as importing starts.
func (m *Manager) runExcelImport(ctx context.Context, job store.ImportJob, path string) (store.JobCounters, error) {
	sess := m.newSession(job)

	f, err := os.Open(path)
	if err != nil {
		return sess.counters, fmt.Errorf("open upload: %w", err)
	}
	lines, err := logparse.ParseExcelLogs(f)
	f.Close()
	if err != nil {
		return sess.counters, fmt.Errorf("parse workbook: %w", err)
	}
	sess.counters.TotalLines = int64(len(lines))

	if err := sess.transition(ctx, store.JobImporting); err != nil {
		return sess.counters, err
	}
	for i := range lines {
		if err := ctx.Err(); err != nil {
			return sess.counters, err
		}
		if err := sess.consumeLine(ctx, lines[i], nil); err != nil {
			return sess.counters, err
		}
	}
	if err := sess.flush(ctx); err != nil {
		return sess.counters, err
	}
	return sess.counters, nil
}

func (m *Manager) importReference(ctx context.Context, job store.ImportJob, r io.Reader) (int64, error) {
	entries, err := logparse.ParseReferenceExport(r)
	if err != nil {
		return 0, fmt.Errorf("parse reference export: %w", err)
	}
	if len(entries) == 0 {
		return 0, errors.New("no URLs found in reference export")
	}
	urls := make([]store.ReferenceURL, 0, len(entries))
	for _, entry := range entries {
		url := store.ReferenceURL{
			ClientID: job.ClientID,
			JobID:    job.ID,
			URL:      entry.URL,
			HTTPCode: entry.HTTPCode,
		}
		if entry.Indexability != "" {
			idx := entry.Indexability
			url.Indexability = &idx
		}
		urls = append(urls, url)
	}
	return m.records.ReplaceReferenceURLs(ctx, job.ClientID, job.ID, urls)
}

// session carries the mutable state of one import run.
type session struct {
	m        *Manager
	job      store.ImportJob
	counters store.JobCounters
	batch    []store.CrawlRecord

	lastEmitLines int64
	lastEmitAt    time.Time
}

func (m *Manager) newSession(job store.ImportJob) *session {
	return &session{
		m:          m,
		job:        job,
		batch:      make([]store.CrawlRecord, 0, m.cfg.BatchSize),
		lastEmitAt: m.clk.Now(),
	}
}

// transition persists a status change and announces it immediately.
func (s *session) transition(ctx context.Context, status store.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.m.jobs.UpdateJobProgress(ctx, s.job.ID, status, s.counters); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	s.job.Status = status
	s.m.publish(s.job.ID, status, s.counters, percentOf(s.counters), "")
	s.lastEmitLines = s.counters.ProcessedLines
	s.lastEmitAt = s.m.clk.Now()
	return nil
}

func (s *session) consumeRaw(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scanBufSize), scanBufMax)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		parsed, perr := logparse.ParseLine(scanner.Text())
		if err := s.consumeLine(ctx, parsed, perr); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	return nil
}

func (s *session) consumeCSV(ctx context.Context, r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	colMap, ok := logparse.CSVColumnMap(header)
	if !ok {
		return errors.New("csv log is missing required url and user agent columns")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// A mangled row is a per-line failure, not a fatal one.
			if cerr := s.consumeLine(ctx, logparse.ParsedLine{}, err); cerr != nil {
				return cerr
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read csv row: %w", err)
		}
		parsed, perr := logparse.ParseCSVRow(row, colMap)
		if cerr := s.consumeLine(ctx, parsed, perr); cerr != nil {
			return cerr
		}
	}
}

// consumeLine accounts for one physical line. Precedence: a parse failure
// beats the bot filter, which beats the duplicate check.
func (s *session) consumeLine(ctx context.Context, parsed logparse.ParsedLine, perr error) error {
	s.counters.ProcessedLines++

	switch {
	case perr != nil:
		s.counters.ParseErrors++
	default:
		bot, family, ok := botreg.Classify(parsed.UserAgent)
		if !ok {
			s.counters.SkippedFiltered++
			break
		}
		ts := parsed.Timestamp
		s.batch = append(s.batch, store.CrawlRecord{
			ClientID:     s.job.ClientID,
			JobID:        s.job.ID,
			Timestamp:    ts,
			LogDate:      time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			IP:           parsed.IP,
			Path:         parsed.Path,
			HTTPCode:     parsed.HTTPCode,
			ResponseSize: parsed.ResponseSize,
			UserAgent:    parsed.UserAgent,
			Crawler:      bot,
			BotFamily:    family,
			PageType:     parsed.PageType,
			DedupKey:     dedup.Key(s.job.ClientID, ts, parsed.Path, parsed.UserAgent),
		})
		if len(s.batch) >= s.m.cfg.BatchSize {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}

	return s.maybeEmit(ctx)
}

// flush inserts the pending batch. The store skips rows whose dedup key is
// already present; whatever it does not insert was a duplicate.
func (s *session) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	inserted, err := s.m.records.InsertRecords(ctx, s.batch)
	if err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	s.counters.Imported += inserted
	s.counters.SkippedDuplicates += int64(len(s.batch)) - inserted
	s.batch = s.batch[:0]
	return nil
}

// maybeEmit persists counters and publishes a snapshot on a line-count or
// time cadence, so slow imports still stream visible progress.
func (s *session) maybeEmit(ctx context.Context) error {
	now := s.m.clk.Now()
	if s.counters.ProcessedLines-s.lastEmitLines < s.m.cfg.EmitEveryLines &&
		now.Sub(s.lastEmitAt) < s.m.cfg.EmitInterval {
		return nil
	}
	if err := s.m.jobs.UpdateJobProgress(ctx, s.job.ID, s.job.Status, s.counters); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	s.m.publish(s.job.ID, s.job.Status, s.counters, percentOf(s.counters), "")
	s.lastEmitLines = s.counters.ProcessedLines
	s.lastEmitAt = now
	return nil
}

// percentOf reports completion capped at 99; only a terminal completed
// event carries 100.
func percentOf(c store.JobCounters) int {
	if c.TotalLines <= 0 {
		return 0
	}
	pct := int(c.ProcessedLines * 100 / c.TotalLines)
	if pct > 99 {
		pct = 99
	}
	return pct
}
