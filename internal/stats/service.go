// Package stats computes the read-side aggregates served by the API:
// dashboard summaries, page listings, orphan pages, period comparisons and
// crawl frequency series.
package stats

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/dedup"
	"github.com/mkessler/crawlscope/internal/store"
)

const topPagesLimit = 20

// CodeStat is one HTTP status bucket with its share of all crawls.
type CodeStat struct {
	Code       int     `json:"code"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DateRange bounds the crawl activity of a filtered set.
type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Dashboard is the main per-client summary.
type Dashboard struct {
	TotalCrawls int64               `json:"total_crawls"`
	UniquePages int64               `json:"unique_pages"`
	DateRange   DateRange           `json:"date_range"`
	HTTPCodes   []CodeStat          `json:"http_codes"`
	DailyCrawls []store.PeriodCount `json:"daily_crawls"`
	TopPages    []store.PageStat    `json:"top_pages"`
}

// OrphanPage is a crawled path absent from the client's reference export,
// meaning bots reach it without the site linking to it.
type OrphanPage struct {
	Path       string    `json:"path"`
	CrawlCount int64     `json:"crawl_count"`
	LastCrawl  time.Time `json:"last_crawl"`
}

// OrphanPages is one page of the orphan listing.
type OrphanPages struct {
	Total   int64        `json:"total"`
	Orphans []OrphanPage `json:"orphans"`
}

// PageList is one page of the crawled-pages listing.
type PageList struct {
	Total int64            `json:"total"`
	Pages []store.PageStat `json:"pages"`
}

// PeriodStats summarizes crawl activity inside one date window.
type PeriodStats struct {
	Period      string     `json:"period"`
	TotalCrawls int64      `json:"total_crawls"`
	UniquePages int64      `json:"unique_pages"`
	HTTPCodes   []CodeStat `json:"http_codes"`
}

// PeriodComparison contrasts two date windows. CrawlDeltaPercent is nil when
// period A saw no crawls, since the relative change is undefined there.
type PeriodComparison struct {
	PeriodA           PeriodStats `json:"period_a"`
	PeriodB           PeriodStats `json:"period_b"`
	CrawlDelta        int64       `json:"crawl_delta"`
	CrawlDeltaPercent *float64    `json:"crawl_delta_percent"`
}

// Service answers aggregation queries on top of the stats repository.
type Service struct {
	repo   store.StatsRepository
	logger *zap.Logger
}

// NewService wires a stats service.
func NewService(repo store.StatsRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Dashboard builds the per-client summary for the filtered record set.
func (s *Service) Dashboard(ctx context.Context, f store.RecordFilter) (Dashboard, error) {
	totals, err := s.repo.Totals(ctx, f)
	if err != nil {
		return Dashboard{}, fmt.Errorf("totals: %w", err)
	}
	codes, err := s.codeStats(ctx, f, totals.TotalCrawls)
	if err != nil {
		return Dashboard{}, err
	}
	daily, err := s.repo.FrequencySeries(ctx, f, "day")
	if err != nil {
		return Dashboard{}, fmt.Errorf("daily series: %w", err)
	}
	top, err := s.repo.TopPages(ctx, f, topPagesLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("top pages: %w", err)
	}
	return Dashboard{
		TotalCrawls: totals.TotalCrawls,
		UniquePages: totals.UniquePages,
		DateRange:   DateRange{Start: totals.MinDate, End: totals.MaxDate},
		HTTPCodes:   codes,
		DailyCrawls: daily,
		TopPages:    top,
	}, nil
}

// Pages lists crawled paths with filters and pagination.
func (s *Service) Pages(ctx context.Context, f store.RecordFilter, limit, offset int) (PageList, error) {
	total, pages, err := s.repo.ListPages(ctx, f, limit, offset)
	if err != nil {
		return PageList{}, fmt.Errorf("list pages: %w", err)
	}
	return PageList{Total: total, Pages: pages}, nil
}

// Orphans returns crawled paths missing from the client's latest reference
// export. The crawled side honors the same filters as the page listing. Both
// sides are compared trailing-slash normalized, and reference URLs are
// reduced to their path component so absolute exports match path-only log
// entries.
func (s *Service) Orphans(ctx context.Context, f store.RecordFilter, limit, offset int) (OrphanPages, error) {
	crawled, err := s.repo.CrawledPaths(ctx, f)
	if err != nil {
		return OrphanPages{}, fmt.Errorf("crawled paths: %w", err)
	}
	refs, err := s.repo.ReferencePaths(ctx, f.ClientID)
	if err != nil {
		return OrphanPages{}, fmt.Errorf("reference paths: %w", err)
	}

	known := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		known[dedup.NormalizePath(referencePath(ref))] = struct{}{}
	}

	var orphans []OrphanPage
	for _, page := range crawled {
		if _, ok := known[dedup.NormalizePath(page.Path)]; ok {
			continue
		}
		orphans = append(orphans, OrphanPage{
			Path:       page.Path,
			CrawlCount: page.CrawlCount,
			LastCrawl:  page.LastCrawl,
		})
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].CrawlCount != orphans[j].CrawlCount {
			return orphans[i].CrawlCount > orphans[j].CrawlCount
		}
		return orphans[i].Path < orphans[j].Path
	})

	total := int64(len(orphans))
	if offset >= len(orphans) {
		return OrphanPages{Total: total}, nil
	}
	orphans = orphans[offset:]
	if limit > 0 && limit < len(orphans) {
		orphans = orphans[:limit]
	}
	return OrphanPages{Total: total, Orphans: orphans}, nil
}

// ComparePeriods contrasts crawl activity in two date windows.
func (s *Service) ComparePeriods(ctx context.Context, clientID uuid.UUID, aStart, aEnd, bStart, bEnd time.Time) (PeriodComparison, error) {
	periodA, err := s.periodStats(ctx, clientID, aStart, aEnd)
	if err != nil {
		return PeriodComparison{}, err
	}
	periodB, err := s.periodStats(ctx, clientID, bStart, bEnd)
	if err != nil {
		return PeriodComparison{}, err
	}

	cmp := PeriodComparison{
		PeriodA:    periodA,
		PeriodB:    periodB,
		CrawlDelta: periodB.TotalCrawls - periodA.TotalCrawls,
	}
	if periodA.TotalCrawls > 0 {
		pct := round2(float64(cmp.CrawlDelta) / float64(periodA.TotalCrawls) * 100)
		cmp.CrawlDeltaPercent = &pct
	}
	return cmp, nil
}

// Range returns the first and last crawl timestamps for a filtered set.
func (s *Service) Range(ctx context.Context, f store.RecordFilter) (DateRange, error) {
	totals, err := s.repo.Totals(ctx, f)
	if err != nil {
		return DateRange{}, fmt.Errorf("totals: %w", err)
	}
	return DateRange{Start: totals.MinDate, End: totals.MaxDate}, nil
}

// Frequency returns the crawl count series for a client, optionally scoped
// to one path, grouped by day or week.
func (s *Service) Frequency(ctx context.Context, clientID uuid.UUID, path, groupBy string) ([]store.PeriodCount, error) {
	switch groupBy {
	case "day", "week":
	default:
		return nil, fmt.Errorf("group_by must be day or week, got %q", groupBy)
	}
	series, err := s.repo.FrequencySeries(ctx, store.RecordFilter{ClientID: clientID, Path: path}, groupBy)
	if err != nil {
		return nil, fmt.Errorf("frequency series: %w", err)
	}
	return series, nil
}

func (s *Service) periodStats(ctx context.Context, clientID uuid.UUID, start, end time.Time) (PeriodStats, error) {
	f := store.RecordFilter{ClientID: clientID, StartDate: &start, EndDate: &end}
	totals, err := s.repo.Totals(ctx, f)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("period totals: %w", err)
	}
	codes, err := s.codeStats(ctx, f, totals.TotalCrawls)
	if err != nil {
		return PeriodStats{}, err
	}
	return PeriodStats{
		Period:      fmt.Sprintf("%s - %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		TotalCrawls: totals.TotalCrawls,
		UniquePages: totals.UniquePages,
		HTTPCodes:   codes,
	}, nil
}

func (s *Service) codeStats(ctx context.Context, f store.RecordFilter, total int64) ([]CodeStat, error) {
	counts, err := s.repo.HTTPCodeCounts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("http code counts: %w", err)
	}
	codes := make([]CodeStat, 0, len(counts))
	for _, c := range counts {
		stat := CodeStat{Code: c.Code, Count: c.Count}
		if total > 0 {
			stat.Percentage = round2(float64(c.Count) / float64(total) * 100)
		}
		codes = append(codes, stat)
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].Count != codes[j].Count {
			return codes[i].Count > codes[j].Count
		}
		return codes[i].Code < codes[j].Code
	})
	return codes, nil
}

// referencePath reduces an absolute reference URL to its path component;
// path-only entries pass through unchanged.
func referencePath(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ref
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
