package importer_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clocksys "github.com/mkessler/crawlscope/internal/clock/system"
	idgen "github.com/mkessler/crawlscope/internal/id/uuid"
	"github.com/mkessler/crawlscope/internal/importer"
	"github.com/mkessler/crawlscope/internal/progress"
	"github.com/mkessler/crawlscope/internal/storage/memory"
	"github.com/mkessler/crawlscope/internal/store"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu        sync.Mutex
	events    []progress.Event
	forgotten []uuid.UUID
}

func (b *recordingBus) Publish(evt progress.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) Forget(jobID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgotten = append(b.forgotten, jobID)
}

func (b *recordingBus) Events() []progress.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]progress.Event(nil), b.events...)
}

type fixture struct {
	store   *memory.Store
	bus     *recordingBus
	manager *importer.Manager
	client  store.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := memory.NewStore()
	bus := &recordingBus{}
	m := importer.NewManager(
		importer.Config{BatchSize: 2, EmitEveryLines: 1},
		s, s, s, bus, clocksys.New(), idgen.New(),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, m.Close(ctx))
	})

	client := store.Client{ID: uuid.New(), Name: "acme", Domain: "example.com"}
	require.NoError(t, s.CreateClient(context.Background(), client))
	return &fixture{store: s, bus: bus, manager: m, client: client}
}

func writeUpload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func waitTerminal(t *testing.T, s *memory.Store, jobID uuid.UUID) store.ImportJob {
	t.Helper()
	var job store.ImportJob
	require.Eventually(t, func() bool {
		var err error
		job, err = s.GetJob(context.Background(), jobID)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func rawLine(ts, path, ua string) string {
	return `66.249.66.1 - - [` + ts + ` +0000] "GET ` + path + ` HTTP/1.1" 200 512 "-" "` + ua + `"`
}

func TestRawLogImport(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := strings.Join([]string{
		rawLine("15/Jan/2026:08:30:00", "/products", googlebotUA),
		rawLine("15/Jan/2026:08:31:00", "/products", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"),
		rawLine("15/Jan/2026:08:30:00", "/products", googlebotUA), // duplicate of line 1
	}, "\n") + "\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)
	assert.Equal(t, store.JobWaiting, job.Status)

	final := waitTerminal(t, fx.store, job.ID)
	assert.Equal(t, store.JobCompleted, final.Status)
	assert.Equal(t, store.JobCounters{
		TotalLines:        3,
		ProcessedLines:    3,
		Imported:          1,
		SkippedDuplicates: 1,
		SkippedFiltered:   1,
	}, final.Counters)
	require.NotNil(t, final.FinishedAt)

	totals, err := fx.store.Totals(context.Background(), store.RecordFilter{ClientID: fx.client.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.TotalCrawls)
}

func TestRawLogImportIdempotentRerun(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := rawLine("15/Jan/2026:08:30:00", "/a", googlebotUA) + "\n" +
		rawLine("15/Jan/2026:08:31:00", "/b", googlebotUA) + "\n"

	job1, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "day1.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)
	first := waitTerminal(t, fx.store, job1.ID)
	assert.Equal(t, int64(2), first.Counters.Imported)

	job2, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "day1-again.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)
	second := waitTerminal(t, fx.store, job2.ID)

	assert.Equal(t, store.JobCompleted, second.Status)
	assert.Equal(t, int64(0), second.Counters.Imported)
	assert.Equal(t, int64(2), second.Counters.SkippedDuplicates)
}

func TestRawLogImportCountsParseErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := rawLine("15/Jan/2026:08:30:00", "/a", googlebotUA) + "\n" +
		"total garbage\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)

	final := waitTerminal(t, fx.store, job.ID)
	assert.Equal(t, store.JobCompleted, final.Status)
	assert.Equal(t, int64(1), final.Counters.ParseErrors)
	assert.Equal(t, int64(1), final.Counters.Imported)
}

func TestCSVLogImport(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := strings.Join([]string{
		"ip,datetime,url,status,size,user_agent",
		"66.249.66.1,2026-01-15 08:30:00,/a,200,512," + googlebotUA,
		"66.249.66.1,2026-01-15 08:31:00,/b,404,0,GPTBot/1.0",
	}, "\n") + "\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "export.csv", store.FileCSVLog, writeUpload(t, content))
	require.NoError(t, err)

	final := waitTerminal(t, fx.store, job.ID)
	assert.Equal(t, store.JobCompleted, final.Status)
	assert.Equal(t, int64(2), final.Counters.TotalLines, "header row is not counted")
	assert.Equal(t, int64(2), final.Counters.Imported)
}

func TestCSVLogImportMissingColumnsFails(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := "foo,bar\n1,2\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "export.csv", store.FileCSVLog, writeUpload(t, content))
	require.NoError(t, err)

	final := waitTerminal(t, fx.store, job.ID)
	assert.Equal(t, store.JobError, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "missing required")
}

func TestImportRemovesTempFile(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	path := writeUpload(t, rawLine("15/Jan/2026:08:30:00", "/a", googlebotUA)+"\n")

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, path)
	require.NoError(t, err)
	waitTerminal(t, fx.store, job.ID)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProgressEventSequence(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, rawLine("15/Jan/2026:08:30:0"+string(rune('0'+i%10)), "/p", googlebotUA))
	}
	content := strings.Join(lines, "\n") + "\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)
	waitTerminal(t, fx.store, job.ID)

	require.Eventually(t, func() bool {
		events := fx.bus.Events()
		return len(events) > 0 && events[len(events)-1].Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	events := fx.bus.Events()
	assert.Equal(t, store.JobWaiting, events[0].Status)

	var processed int64
	seenImporting := false
	for _, evt := range events {
		require.Equal(t, job.ID, evt.JobID)
		assert.GreaterOrEqual(t, evt.ProcessedLines, processed, "processed lines never regress")
		processed = evt.ProcessedLines
		if evt.Status == store.JobImporting {
			seenImporting = true
			assert.LessOrEqual(t, evt.Percent, 99)
		}
	}
	assert.True(t, seenImporting)

	last := events[len(events)-1]
	assert.Equal(t, store.JobCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, last.TotalLines,
		last.Imported+last.SkippedDuplicates+last.SkippedFiltered+last.ParseErrors)
}

func TestSubmitLogFileUnknownClient(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, err := fx.manager.SubmitLogFile(context.Background(),
		uuid.New(), "access.log", store.FileRawLog, writeUpload(t, "x\n"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitLogFileRejectsReferenceType(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "crawl.csv", store.FileReferenceExport, writeUpload(t, "x\n"))
	assert.Error(t, err)
}

func TestDeleteJobPurgesRecords(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	content := rawLine("15/Jan/2026:08:30:00", "/a", googlebotUA) + "\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)
	waitTerminal(t, fx.store, job.ID)

	require.NoError(t, fx.manager.DeleteJob(context.Background(), job.ID))

	_, err = fx.store.GetJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	totals, err := fx.store.Totals(context.Background(), store.RecordFilter{ClientID: fx.client.ID})
	require.NoError(t, err)
	assert.Zero(t, totals.TotalCrawls)
	assert.Contains(t, fx.bus.forgotten, job.ID)
}

func TestDeleteJobWaitsForRunningSession(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	var lines []string
	for i := 0; i < 5000; i++ {
		lines = append(lines, rawLine("15/Jan/2026:08:30:00", "/p"+strconv.Itoa(i), googlebotUA))
	}
	content := strings.Join(lines, "\n") + "\n"

	job, err := fx.manager.SubmitLogFile(context.Background(),
		fx.client.ID, "access.log", store.FileRawLog, writeUpload(t, content))
	require.NoError(t, err)

	// Delete while the session is (very likely) mid-import. The purge must
	// run after the session goroutine has exited, so no late batch flush can
	// land rows behind it.
	require.NoError(t, fx.manager.DeleteJob(context.Background(), job.ID))

	_, err = fx.store.GetJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	totals, err := fx.store.Totals(context.Background(), store.RecordFilter{ClientID: fx.client.ID})
	require.NoError(t, err)
	assert.Zero(t, totals.TotalCrawls)
}

func TestCancelJobUnknown(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	assert.False(t, fx.manager.CancelJob(uuid.New()))
}

func TestImportReference(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	input := "Adresse,Code HTTP\nhttps://example.com/a,200\nhttps://example.com/b,301\n"

	job, n, err := fx.manager.ImportReference(context.Background(),
		fx.client.ID, "crawl.csv", strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, store.JobCompleted, job.Status)
	assert.Equal(t, int64(2), job.Counters.Imported)

	paths, err := fx.store.ReferencePaths(context.Background(), fx.client.ID)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	// A later export replaces the earlier one.
	_, n, err = fx.manager.ImportReference(context.Background(),
		fx.client.ID, "crawl2.csv", strings.NewReader("URL\nhttps://example.com/c\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	paths, err = fx.store.ReferencePaths(context.Background(), fx.client.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/c"}, paths)
}

func TestImportReferenceEmptyFails(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	job, _, err := fx.manager.ImportReference(context.Background(),
		fx.client.ID, "crawl.csv", strings.NewReader("URL\n"))
	require.Error(t, err)

	stored, gerr := fx.store.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, store.JobError, stored.Status)
}
