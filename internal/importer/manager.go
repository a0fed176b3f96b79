// Package importer runs import jobs: it streams uploaded log files through
// parsing, bot classification and deduplication into the record store,
// publishing progress snapshots along the way.
package importer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/progress"
	"github.com/mkessler/crawlscope/internal/store"
)

const (
	defaultBatchSize      = 5000
	defaultEmitEveryLines = 1000
	defaultEmitInterval   = 500 * time.Millisecond
)

// Config tunes batching and progress emission.
//   - BatchSize: rows per insert batch (default 5000).
//   - EmitEveryLines: publish a progress snapshot at least every N lines
//     (default 1000).
//   - EmitInterval: also publish when this much time has passed since the
//     last snapshot (default 500ms).
//   - Logger: optional structured logger.
type Config struct {
	BatchSize      int
	EmitEveryLines int64
	EmitInterval   time.Duration
	Logger         *zap.Logger
}

// ProgressBus is the slice of the progress hub the importer needs.
type ProgressBus interface {
	Publish(evt progress.Event)
	Forget(jobID uuid.UUID)
}

// Manager owns the lifecycle of import jobs. Log imports run on background
// goroutines with per-job cancellation; reference imports run synchronously.
type Manager struct {
	cfg     Config
	clients store.ClientRepository
	jobs    store.JobRepository
	records store.RecordRepository
	bus     ProgressBus
	clk     store.Clock
	ids     store.IDGenerator
	logger  *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running map[uuid.UUID]runningJob
	wg      sync.WaitGroup
}

// runningJob tracks a live session: its cancel func and a channel closed
// when the session goroutine exits.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wires an importer against its repositories and progress bus.
func NewManager(
	cfg Config,
	clients store.ClientRepository,
	jobs store.JobRepository,
	records store.RecordRepository,
	bus ProgressBus,
	clk store.Clock,
	ids store.IDGenerator,
) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.EmitEveryLines <= 0 {
		cfg.EmitEveryLines = defaultEmitEveryLines
	}
	if cfg.EmitInterval <= 0 {
		cfg.EmitInterval = defaultEmitInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		clients:    clients,
		jobs:       jobs,
		records:    records,
		bus:        bus,
		clk:        clk,
		ids:        ids,
		logger:     cfg.Logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[uuid.UUID]runningJob),
	}
}

// SubmitLogFile registers a job for an uploaded log file and starts the
// import in the background. The file at path is owned by the session from
// here on and removed when it finishes. fileType must be one of raw_log,
// csv_log or excel_log.
func (m *Manager) SubmitLogFile(ctx context.Context, clientID uuid.UUID, filename string, fileType store.FileType, path string) (store.ImportJob, error) {
	switch fileType {
	case store.FileRawLog, store.FileCSVLog, store.FileExcelLog:
	default:
		return store.ImportJob{}, fmt.Errorf("file type %q cannot run as a log import", fileType)
	}
	if _, err := m.clients.GetClient(ctx, clientID); err != nil {
		return store.ImportJob{}, fmt.Errorf("resolve client: %w", err)
	}

	jobID, err := m.ids.NewID()
	if err != nil {
		return store.ImportJob{}, err
	}
	job := store.ImportJob{
		ID:        jobID,
		ClientID:  clientID,
		Filename:  filename,
		FileType:  fileType,
		Status:    store.JobWaiting,
		StartedAt: m.clk.Now(),
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return store.ImportJob{}, fmt.Errorf("create job: %w", err)
	}
	m.publish(job.ID, store.JobWaiting, store.JobCounters{}, 0, "")

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	m.mu.Lock()
	m.running[job.ID] = runningJob{cancel: cancel, done: done}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.finish(job.ID)
		defer close(done)
		m.runSession(jobCtx, job, path)
	}()
	return job, nil
}

// ImportReference synchronously replaces the client's reference URL set from
// a crawl-export CSV. It returns the completed job and the number of URLs.
func (m *Manager) ImportReference(ctx context.Context, clientID uuid.UUID, filename string, r io.Reader) (store.ImportJob, int64, error) {
	if _, err := m.clients.GetClient(ctx, clientID); err != nil {
		return store.ImportJob{}, 0, fmt.Errorf("resolve client: %w", err)
	}
	jobID, err := m.ids.NewID()
	if err != nil {
		return store.ImportJob{}, 0, err
	}
	job := store.ImportJob{
		ID:        jobID,
		ClientID:  clientID,
		Filename:  filename,
		FileType:  store.FileReferenceExport,
		Status:    store.JobImporting,
		StartedAt: m.clk.Now(),
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return store.ImportJob{}, 0, fmt.Errorf("create job: %w", err)
	}

	n, err := m.importReference(ctx, job, r)
	if err != nil {
		msg := err.Error()
		counters := store.JobCounters{}
		if cerr := m.jobs.CompleteJob(ctx, job.ID, store.JobError, counters, &msg, m.clk.Now()); cerr != nil {
			m.logger.Error("complete reference job", zap.Error(cerr))
		}
		m.publish(job.ID, store.JobError, counters, 0, msg)
		return job, 0, err
	}

	counters := store.JobCounters{TotalLines: n, ProcessedLines: n, Imported: n}
	if err := m.jobs.CompleteJob(ctx, job.ID, store.JobCompleted, counters, nil, m.clk.Now()); err != nil {
		return job, n, fmt.Errorf("complete job: %w", err)
	}
	m.publish(job.ID, store.JobCompleted, counters, 100, "")
	job.Status = store.JobCompleted
	job.Counters = counters
	return job, n, nil
}

// CancelJob aborts a running import. It reports whether a session was
// actually running; the session itself records the error terminal state.
func (m *Manager) CancelJob(jobID uuid.UUID) bool {
	m.mu.Lock()
	run, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

// DeleteJob cancels the job if it is still running and waits for the session
// to exit before removing it with all the rows it imported and dropping its
// retained progress state. Purging only after the session is gone keeps a
// late batch flush from landing rows behind the delete.
func (m *Manager) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	run, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		run.cancel()
		select {
		case <-run.done:
		case <-ctx.Done():
			return fmt.Errorf("wait for import session: %w", ctx.Err())
		}
	}
	if err := m.jobs.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	m.bus.Forget(jobID)
	return nil
}

// Close cancels every running session and waits for them to wind down or
// for ctx to expire.
func (m *Manager) Close(ctx context.Context) error {
	m.baseCancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("importer close wait: %w", ctx.Err())
	}
}

func (m *Manager) finish(jobID uuid.UUID) {
	m.mu.Lock()
	if run, ok := m.running[jobID]; ok {
		run.cancel()
		delete(m.running, jobID)
	}
	m.mu.Unlock()
}

func (m *Manager) publish(jobID uuid.UUID, status store.JobStatus, counters store.JobCounters, percent int, errMsg string) {
	if m.bus == nil {
		return
	}
	evt := progress.FromCounters(jobID, status, counters, percent, m.clk.Now())
	evt.Error = errMsg
	m.bus.Publish(evt)
}
