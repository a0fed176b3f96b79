package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/crawlscope/internal/dedup"
	"github.com/mkessler/crawlscope/internal/stats"
	"github.com/mkessler/crawlscope/internal/storage/memory"
	"github.com/mkessler/crawlscope/internal/store"
)

func seedRecord(clientID uuid.UUID, ts time.Time, path string, code int) store.CrawlRecord {
	return store.CrawlRecord{
		ClientID:  clientID,
		JobID:     uuid.Nil,
		Timestamp: ts,
		LogDate:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Path:      path,
		HTTPCode:  code,
		UserAgent: "Googlebot/2.1",
		Crawler:   "Googlebot",
		BotFamily: "Google",
		PageType:  "page",
		DedupKey:  dedup.Key(clientID, ts, path, "Googlebot/2.1"),
	}
}

func seed(t *testing.T, s *memory.Store, clientID uuid.UUID, records ...store.CrawlRecord) {
	t.Helper()
	inserted, err := s.InsertRecords(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, int64(len(records)), inserted)
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	day1 := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 13, 8, 0, 0, 0, time.UTC)

	seed(t, s, clientID,
		seedRecord(clientID, day1, "/a", 200),
		seedRecord(clientID, day1.Add(time.Hour), "/a", 200),
		seedRecord(clientID, day2, "/a", 200),
		seedRecord(clientID, day2.Add(time.Hour), "/b", 404),
	)

	d, err := svc.Dashboard(context.Background(), store.RecordFilter{ClientID: clientID})
	require.NoError(t, err)

	assert.Equal(t, int64(4), d.TotalCrawls)
	assert.Equal(t, int64(2), d.UniquePages)
	require.NotNil(t, d.DateRange.Start)
	assert.Equal(t, day1, *d.DateRange.Start)

	require.Len(t, d.HTTPCodes, 2)
	assert.Equal(t, stats.CodeStat{Code: 200, Count: 3, Percentage: 75}, d.HTTPCodes[0])
	assert.Equal(t, stats.CodeStat{Code: 404, Count: 1, Percentage: 25}, d.HTTPCodes[1])

	assert.Equal(t, []store.PeriodCount{
		{Period: "2026-01-12", Count: 2},
		{Period: "2026-01-13", Count: 2},
	}, d.DailyCrawls)

	require.NotEmpty(t, d.TopPages)
	assert.Equal(t, "/a", d.TopPages[0].Path)
	assert.Equal(t, int64(3), d.TopPages[0].CrawlCount)
}

func TestDashboardEmpty(t *testing.T) {
	t.Parallel()

	svc := stats.NewService(memory.NewStore(), nil)
	d, err := svc.Dashboard(context.Background(), store.RecordFilter{ClientID: uuid.New()})
	require.NoError(t, err)
	assert.Zero(t, d.TotalCrawls)
	assert.Nil(t, d.DateRange.Start)
	assert.Empty(t, d.HTTPCodes)
}

func TestOrphans(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	ts := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	seed(t, s, clientID,
		seedRecord(clientID, ts, "/linked", 200),
		seedRecord(clientID, ts.Add(time.Minute), "/orphan", 200),
		seedRecord(clientID, ts.Add(2*time.Minute), "/orphan", 200),
		seedRecord(clientID, ts.Add(3*time.Minute), "/also-linked/", 200),
	)
	_, err := s.ReplaceReferenceURLs(context.Background(), clientID, uuid.New(), []store.ReferenceURL{
		{URL: "https://example.com/linked"},
		{URL: "https://example.com/also-linked"},
	})
	require.NoError(t, err)

	got, err := svc.Orphans(context.Background(), store.RecordFilter{ClientID: clientID}, 50, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.Total)
	require.Len(t, got.Orphans, 1)
	assert.Equal(t, "/orphan", got.Orphans[0].Path)
	assert.Equal(t, int64(2), got.Orphans[0].CrawlCount)
	assert.Equal(t, ts.Add(2*time.Minute), got.Orphans[0].LastCrawl)
}

func TestOrphansHonorsFilters(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	ts := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	gpt := seedRecord(clientID, ts, "/gpt-only", 200)
	gpt.UserAgent = "GPTBot/1.0"
	gpt.Crawler = "GPTBot"
	gpt.BotFamily = "OpenAI"
	gpt.DedupKey = dedup.Key(clientID, ts, "/gpt-only", "GPTBot/1.0")

	seed(t, s, clientID,
		seedRecord(clientID, ts, "/google-only", 200),
		gpt,
	)

	// Orphan detection takes the same filters as the page listing; the
	// family filter leaves only the GPTBot path on the crawled side.
	got, err := svc.Orphans(context.Background(), store.RecordFilter{ClientID: clientID, BotFamily: "OpenAI"}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Total)
	require.Len(t, got.Orphans, 1)
	assert.Equal(t, "/gpt-only", got.Orphans[0].Path)

	end := ts.Add(-time.Hour)
	got, err = svc.Orphans(context.Background(), store.RecordFilter{ClientID: clientID, EndDate: &end}, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, got.Total, "date window excludes every crawl")
}

func TestOrphansNoReferenceSet(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	ts := time.Now().UTC()

	seed(t, s, clientID, seedRecord(clientID, ts, "/a", 200))

	// Without a reference export every crawled path counts as orphan.
	got, err := svc.Orphans(context.Background(), store.RecordFilter{ClientID: clientID}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Total)
}

func TestOrphansPagination(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	ts := time.Now().UTC()

	seed(t, s, clientID,
		seedRecord(clientID, ts, "/o1", 200),
		seedRecord(clientID, ts.Add(time.Second), "/o2", 200),
		seedRecord(clientID, ts.Add(2*time.Second), "/o3", 200),
	)

	page, err := svc.Orphans(context.Background(), store.RecordFilter{ClientID: clientID}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Orphans, 1)
	assert.Equal(t, "/o3", page.Orphans[0].Path)
}

func TestComparePeriods(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	week1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	week2 := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)

	seed(t, s, clientID,
		seedRecord(clientID, week1, "/a", 200),
		seedRecord(clientID, week1.Add(time.Hour), "/b", 200),
		seedRecord(clientID, week2, "/a", 200),
		seedRecord(clientID, week2.Add(time.Hour), "/b", 200),
		seedRecord(clientID, week2.Add(2*time.Hour), "/c", 200),
	)

	cmp, err := svc.ComparePeriods(context.Background(), clientID,
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 18, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, int64(2), cmp.PeriodA.TotalCrawls)
	assert.Equal(t, int64(3), cmp.PeriodB.TotalCrawls)
	assert.Equal(t, int64(1), cmp.CrawlDelta)
	require.NotNil(t, cmp.CrawlDeltaPercent)
	assert.Equal(t, 50.0, *cmp.CrawlDeltaPercent)
}

func TestComparePeriodsEmptyBaseline(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	week2 := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)

	seed(t, s, clientID, seedRecord(clientID, week2, "/a", 200))

	cmp, err := svc.ComparePeriods(context.Background(), clientID,
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 18, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cmp.CrawlDelta)
	assert.Nil(t, cmp.CrawlDeltaPercent, "relative change is undefined against an empty baseline")
}

func TestFrequency(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	day1 := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)

	seed(t, s, clientID,
		seedRecord(clientID, day1, "/a", 200),
		seedRecord(clientID, day1.Add(time.Hour), "/b", 200),
		seedRecord(clientID, day1.AddDate(0, 0, 1), "/a", 200),
	)

	all, err := svc.Frequency(context.Background(), clientID, "", "day")
	require.NoError(t, err)
	assert.Equal(t, []store.PeriodCount{
		{Period: "2026-01-12", Count: 2},
		{Period: "2026-01-13", Count: 1},
	}, all)

	single, err := svc.Frequency(context.Background(), clientID, "/a", "day")
	require.NoError(t, err)
	assert.Equal(t, []store.PeriodCount{
		{Period: "2026-01-12", Count: 1},
		{Period: "2026-01-13", Count: 1},
	}, single)

	_, err = svc.Frequency(context.Background(), clientID, "", "month")
	assert.Error(t, err)
}

func TestPagesPassthrough(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	svc := stats.NewService(s, nil)
	clientID := uuid.New()
	ts := time.Now().UTC()

	seed(t, s, clientID,
		seedRecord(clientID, ts, "/a", 200),
		seedRecord(clientID, ts.Add(time.Second), "/a", 200),
		seedRecord(clientID, ts.Add(2*time.Second), "/b", 404),
	)

	list, err := svc.Pages(context.Background(), store.RecordFilter{ClientID: clientID, HTTPCode: 404}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Pages, 1)
	assert.Equal(t, "/b", list.Pages[0].Path)
}
