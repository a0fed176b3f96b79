package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mkessler/crawlscope/internal/store"
)

// pageStatSelect aggregates per-path activity; the http code is the one
// seen on the most recent crawl of the path.
const pageStatSelect = `
SELECT path,
	COUNT(*) AS crawl_count,
	MAX(ts) AS last_crawl,
	(ARRAY_AGG(http_code ORDER BY ts DESC))[1] AS http_code
FROM crawl_records`

// Totals computes the scalar aggregates of the filtered record set.
func (s *Store) Totals(ctx context.Context, f store.RecordFilter) (store.Totals, error) {
	where, args := recordWhere(f)
	var t store.Totals
	err := s.db.QueryRow(ctx, `
SELECT COUNT(*), COUNT(DISTINCT path), MIN(ts), MAX(ts)
FROM crawl_records`+where, args...).
		Scan(&t.TotalCrawls, &t.UniquePages, &t.MinDate, &t.MaxDate)
	if err != nil {
		return store.Totals{}, fmt.Errorf("select totals: %w", err)
	}
	return t, nil
}

// HTTPCodeCounts histograms the filtered records by status code.
func (s *Store) HTTPCodeCounts(ctx context.Context, f store.RecordFilter) ([]store.CodeCount, error) {
	where, args := recordWhere(f)
	rows, err := s.db.Query(ctx, `
SELECT http_code, COUNT(*)
FROM crawl_records`+where+`
GROUP BY http_code
ORDER BY http_code`, args...)
	if err != nil {
		return nil, fmt.Errorf("select http code counts: %w", err)
	}
	defer rows.Close()

	var counts []store.CodeCount
	for rows.Next() {
		var c store.CodeCount
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, fmt.Errorf("scan http code count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate http code counts: %w", err)
	}
	return counts, nil
}

// FrequencySeries groups crawl counts by day or ISO week.
func (s *Store) FrequencySeries(ctx context.Context, f store.RecordFilter, groupBy string) ([]store.PeriodCount, error) {
	var expr string
	switch groupBy {
	case "week":
		expr = `TO_CHAR(DATE_TRUNC('week', log_date), 'YYYY-MM-DD')`
	case "day":
		expr = `TO_CHAR(log_date, 'YYYY-MM-DD')`
	default:
		return nil, fmt.Errorf("group by %q is not supported", groupBy)
	}
	where, args := recordWhere(f)
	rows, err := s.db.Query(ctx, `
SELECT `+expr+` AS period, COUNT(*)
FROM crawl_records`+where+`
GROUP BY 1
ORDER BY 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("select frequency series: %w", err)
	}
	defer rows.Close()

	var series []store.PeriodCount
	for rows.Next() {
		var pc store.PeriodCount
		if err := rows.Scan(&pc.Period, &pc.Count); err != nil {
			return nil, fmt.Errorf("scan frequency bucket: %w", err)
		}
		series = append(series, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frequency series: %w", err)
	}
	return series, nil
}

// TopPages returns the most crawled paths.
func (s *Store) TopPages(ctx context.Context, f store.RecordFilter, limit int) ([]store.PageStat, error) {
	where, args := recordWhere(f)
	args = append(args, limit)
	return s.queryPageStats(ctx, pageStatSelect+where+`
GROUP BY path
ORDER BY crawl_count DESC, path ASC
LIMIT $`+fmt.Sprint(len(args)), args)
}

// ListPages returns the distinct-path total plus one page of results.
func (s *Store) ListPages(ctx context.Context, f store.RecordFilter, limit, offset int) (int64, []store.PageStat, error) {
	where, args := recordWhere(f)
	var total int64
	err := s.db.QueryRow(ctx, `
SELECT COUNT(DISTINCT path) FROM crawl_records`+where, args...).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("count pages: %w", err)
	}

	args = append(args, limit, offset)
	pages, err := s.queryPageStats(ctx, pageStatSelect+where+`
GROUP BY path
ORDER BY crawl_count DESC, path ASC
LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args)
	if err != nil {
		return 0, nil, err
	}
	return total, pages, nil
}

// CrawledPaths returns every distinct path matching the filter.
func (s *Store) CrawledPaths(ctx context.Context, f store.RecordFilter) ([]store.PageStat, error) {
	where, args := recordWhere(f)
	return s.queryPageStats(ctx, pageStatSelect+where+`
GROUP BY path
ORDER BY crawl_count DESC, path ASC`, args)
}

// ReferencePaths returns the client's current reference URL set.
func (s *Store) ReferencePaths(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT url FROM reference_urls WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, fmt.Errorf("select reference urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan reference url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference urls: %w", err)
	}
	return urls, nil
}

func (s *Store) queryPageStats(ctx context.Context, sql string, args []any) ([]store.PageStat, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select page stats: %w", err)
	}
	defer rows.Close()

	var pages []store.PageStat
	for rows.Next() {
		var p store.PageStat
		if err := rows.Scan(&p.Path, &p.CrawlCount, &p.LastCrawl, &p.HTTPCode); err != nil {
			return nil, fmt.Errorf("scan page stat: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page stats: %w", err)
	}
	return pages, nil
}

// recordWhere builds the WHERE clause for a record filter. Zero filter
// fields add no condition.
func recordWhere(f store.RecordFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(format string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.ClientID != uuid.Nil {
		add("client_id = $%d", f.ClientID)
	}
	if f.StartDate != nil {
		add("ts >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("ts <= $%d", *f.EndDate)
	}
	if f.Crawler != "" {
		add("crawler = $%d", f.Crawler)
	}
	if f.BotFamily != "" {
		add("bot_family = $%d", f.BotFamily)
	}
	if f.PageType != "" {
		add("page_type = $%d", f.PageType)
	}
	if f.HTTPCode != 0 {
		add("http_code = $%d", f.HTTPCode)
	}
	if f.Path != "" {
		add("path = $%d", f.Path)
	}
	if f.Search != "" {
		add("path ILIKE $%d", "%"+f.Search+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}
