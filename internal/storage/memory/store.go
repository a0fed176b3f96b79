// Package memory implements every repository interface in-memory, for
// development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkessler/crawlscope/internal/store"
)

// Store is an in-memory implementation of the client, job, record and stats
// repositories. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]store.Client
	jobs    map[uuid.UUID]store.ImportJob
	records map[uuid.UUID][]store.CrawlRecord
	keys    map[uuid.UUID]map[string]struct{}
	refs    map[uuid.UUID][]store.ReferenceURL
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		clients: make(map[uuid.UUID]store.Client),
		jobs:    make(map[uuid.UUID]store.ImportJob),
		records: make(map[uuid.UUID][]store.CrawlRecord),
		keys:    make(map[uuid.UUID]map[string]struct{}),
		refs:    make(map[uuid.UUID][]store.ReferenceURL),
	}
}

// CreateClient stores a new client. Names are unique.
func (s *Store) CreateClient(_ context.Context, c store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clients {
		if existing.Name == c.Name {
			return store.ErrDuplicate
		}
	}
	s.clients[c.ID] = c
	return nil
}

// GetClient fetches a client by ID.
func (s *Store) GetClient(_ context.Context, id uuid.UUID) (store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return store.Client{}, store.ErrNotFound
	}
	return c, nil
}

// ListClients returns all clients sorted by name.
func (s *Store) ListClients(_ context.Context) ([]store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteClient removes the client and everything it owns.
func (s *Store) DeleteClient(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.clients, id)
	delete(s.records, id)
	delete(s.keys, id)
	delete(s.refs, id)
	for jobID, job := range s.jobs {
		if job.ClientID == id {
			delete(s.jobs, jobID)
		}
	}
	return nil
}

// CreateJob stores a new import job.
func (s *Store) CreateJob(_ context.Context, job store.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (store.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ImportJob{}, store.ErrNotFound
	}
	return job, nil
}

// ListJobs returns a client's jobs newest first.
func (s *Store) ListJobs(_ context.Context, clientID uuid.UUID, limit, offset int) ([]store.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []store.ImportJob
	for _, job := range s.jobs {
		if job.ClientID == clientID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// UpdateJobProgress refreshes a live job's status and counters.
func (s *Store) UpdateJobProgress(_ context.Context, id uuid.UUID, status store.JobStatus, counters store.JobCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.Counters = counters
	s.jobs[id] = job
	return nil
}

// CompleteJob records the terminal state of a job.
func (s *Store) CompleteJob(_ context.Context, id uuid.UUID, status store.JobStatus, counters store.JobCounters, errMsg *string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.Counters = counters
	job.ErrorMessage = errMsg
	job.FinishedAt = &finishedAt
	s.jobs[id] = job
	return nil
}

// DeleteJob removes the job and every row it imported, crawl records and
// reference URLs alike.
func (s *Store) DeleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.jobs, id)

	kept := s.records[job.ClientID][:0]
	for _, rec := range s.records[job.ClientID] {
		if rec.JobID == id {
			delete(s.keys[job.ClientID], rec.DedupKey)
			continue
		}
		kept = append(kept, rec)
	}
	s.records[job.ClientID] = kept

	refs := s.refs[job.ClientID][:0]
	for _, ref := range s.refs[job.ClientID] {
		if ref.JobID == id {
			continue
		}
		refs = append(refs, ref)
	}
	s.refs[job.ClientID] = refs
	return nil
}

// InsertRecords appends records whose dedup key is unseen for the client and
// reports how many were inserted.
func (s *Store) InsertRecords(_ context.Context, records []store.CrawlRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, rec := range records {
		keys := s.keys[rec.ClientID]
		if keys == nil {
			keys = make(map[string]struct{})
			s.keys[rec.ClientID] = keys
		}
		if _, dup := keys[rec.DedupKey]; dup {
			continue
		}
		keys[rec.DedupKey] = struct{}{}
		s.records[rec.ClientID] = append(s.records[rec.ClientID], rec)
		inserted++
	}
	return inserted, nil
}

// ReplaceReferenceURLs swaps the client's reference set.
func (s *Store) ReplaceReferenceURLs(_ context.Context, clientID, jobID uuid.UUID, urls []store.ReferenceURL) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := make([]store.ReferenceURL, len(urls))
	copy(replaced, urls)
	for i := range replaced {
		replaced[i].ClientID = clientID
		replaced[i].JobID = jobID
	}
	s.refs[clientID] = replaced
	return int64(len(replaced)), nil
}

// Totals computes the scalar aggregates of the filtered record set.
func (s *Store) Totals(_ context.Context, f store.RecordFilter) (store.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t store.Totals
	paths := make(map[string]struct{})
	for _, rec := range s.filtered(f) {
		t.TotalCrawls++
		paths[rec.Path] = struct{}{}
		ts := rec.Timestamp
		if t.MinDate == nil || ts.Before(*t.MinDate) {
			minTS := ts
			t.MinDate = &minTS
		}
		if t.MaxDate == nil || ts.After(*t.MaxDate) {
			maxTS := ts
			t.MaxDate = &maxTS
		}
	}
	t.UniquePages = int64(len(paths))
	return t, nil
}

// HTTPCodeCounts histograms the filtered records by status code.
func (s *Store) HTTPCodeCounts(_ context.Context, f store.RecordFilter) ([]store.CodeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byCode := make(map[int]int64)
	for _, rec := range s.filtered(f) {
		byCode[rec.HTTPCode]++
	}
	out := make([]store.CodeCount, 0, len(byCode))
	for code, count := range byCode {
		out = append(out, store.CodeCount{Code: code, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// FrequencySeries groups crawl counts by day or ISO week.
func (s *Store) FrequencySeries(_ context.Context, f store.RecordFilter, groupBy string) ([]store.PeriodCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPeriod := make(map[string]int64)
	for _, rec := range s.filtered(f) {
		byPeriod[periodKey(rec.Timestamp, groupBy)]++
	}
	out := make([]store.PeriodCount, 0, len(byPeriod))
	for period, count := range byPeriod {
		out = append(out, store.PeriodCount{Period: period, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// TopPages returns the most crawled paths.
func (s *Store) TopPages(_ context.Context, f store.RecordFilter, limit int) ([]store.PageStat, error) {
	s.mu.RLock()
	pages := s.pageStats(f)
	s.mu.RUnlock()
	if limit > 0 && limit < len(pages) {
		pages = pages[:limit]
	}
	return pages, nil
}

// ListPages returns the total distinct-path count plus one page of results.
func (s *Store) ListPages(_ context.Context, f store.RecordFilter, limit, offset int) (int64, []store.PageStat, error) {
	s.mu.RLock()
	pages := s.pageStats(f)
	s.mu.RUnlock()
	total := int64(len(pages))
	if offset >= len(pages) {
		return total, nil, nil
	}
	pages = pages[offset:]
	if limit > 0 && limit < len(pages) {
		pages = pages[:limit]
	}
	return total, pages, nil
}

// CrawledPaths returns every distinct path matching the filter.
func (s *Store) CrawledPaths(_ context.Context, f store.RecordFilter) ([]store.PageStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageStats(f), nil
}

// ReferencePaths returns the URL set of the client's latest reference export.
func (s *Store) ReferencePaths(_ context.Context, clientID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.refs[clientID]
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.URL)
	}
	return out, nil
}

func (s *Store) pageStats(f store.RecordFilter) []store.PageStat {
	type agg struct {
		count    int64
		last     time.Time
		lastCode int
	}
	byPath := make(map[string]*agg)
	for _, rec := range s.filtered(f) {
		a := byPath[rec.Path]
		if a == nil {
			a = &agg{}
			byPath[rec.Path] = a
		}
		a.count++
		if !rec.Timestamp.Before(a.last) {
			a.last = rec.Timestamp
			a.lastCode = rec.HTTPCode
		}
	}
	pages := make([]store.PageStat, 0, len(byPath))
	for path, a := range byPath {
		pages = append(pages, store.PageStat{
			Path:       path,
			CrawlCount: a.count,
			LastCrawl:  a.last,
			HTTPCode:   a.lastCode,
		})
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].CrawlCount != pages[j].CrawlCount {
			return pages[i].CrawlCount > pages[j].CrawlCount
		}
		return pages[i].Path < pages[j].Path
	})
	return pages
}

func (s *Store) filtered(f store.RecordFilter) []store.CrawlRecord {
	var src []store.CrawlRecord
	if f.ClientID != uuid.Nil {
		src = s.records[f.ClientID]
	} else {
		for _, recs := range s.records {
			src = append(src, recs...)
		}
	}
	var out []store.CrawlRecord
	for _, rec := range src {
		if matches(rec, f) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec store.CrawlRecord, f store.RecordFilter) bool {
	if f.StartDate != nil && rec.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && rec.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.Crawler != "" && rec.Crawler != f.Crawler {
		return false
	}
	if f.BotFamily != "" && rec.BotFamily != f.BotFamily {
		return false
	}
	if f.PageType != "" && rec.PageType != f.PageType {
		return false
	}
	if f.HTTPCode != 0 && rec.HTTPCode != f.HTTPCode {
		return false
	}
	if f.Path != "" && rec.Path != f.Path {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(rec.Path), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func periodKey(ts time.Time, groupBy string) string {
	if groupBy == "week" {
		// Start of the ISO week, matching date_trunc('week', ...).
		weekday := int(ts.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return ts.AddDate(0, 0, 1-weekday).Format("2006-01-02")
	}
	return ts.Format("2006-01-02")
}
