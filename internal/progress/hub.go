package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls subscriber buffering and sink behavior for the Hub.
//   - SubscriberBuffer: per-subscriber channel capacity (default 64).
//   - SinkTimeout: per-sink timeout while consuming an event (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	SubscriberBuffer int
	SinkTimeout      time.Duration
	BaseContext      context.Context
	Logger           *zap.Logger
}

const (
	defaultSubscriberBuffer = 64
	defaultSinkTimeout      = 5 * time.Second
)

// Hub fans import progress events out to per-job subscribers and registered
// sinks. Publish never blocks: a subscriber that stops draining its channel
// is dropped and its channel closed. The latest event per job is retained so
// a subscriber arriving mid-import (or after a terminal event) immediately
// sees the current state.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	latest map[uuid.UUID]Event
	closed bool

	closeOnce sync.Once
}

type subscriber struct {
	ch chan Event
}

// NewHub initializes a Hub with the supplied sinks. The returned Hub is
// immediately ready to accept events and subscribers.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		latest: make(map[uuid.UUID]Event),
	}
}

// Publish delivers an event to every subscriber of its job and to every
// sink. It never blocks; stalled subscribers are disconnected. A terminal
// event closes all of the job's subscriber channels after delivery.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest[evt.JobID] = evt
	for sub := range h.subs[evt.JobID] {
		select {
		case sub.ch <- evt:
		default:
			delete(h.subs[evt.JobID], sub)
			close(sub.ch)
			h.logger.Warn("dropping stalled progress subscriber",
				zap.String("job_id", evt.JobID.String()))
		}
	}
	if evt.Terminal() {
		for sub := range h.subs[evt.JobID] {
			close(sub.ch)
		}
		delete(h.subs, evt.JobID)
	}
	h.mu.Unlock()

	h.fanOut(evt)
}

// Subscribe registers for a job's event stream. The returned channel first
// yields the job's latest retained event, if any; it is closed once a
// terminal event has been delivered or the returned cancel func runs.
// Cancel is idempotent and must be called when the consumer goes away.
func (h *Hub) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.cfg.SubscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	last, hasLast := h.latest[jobID]
	if hasLast {
		sub.ch <- last
	}
	if hasLast && last.Terminal() {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[jobID]; ok {
				if _, live := set[sub]; live {
					delete(set, sub)
					close(sub.ch)
					if len(set) == 0 {
						delete(h.subs, jobID)
					}
				}
			}
		})
	}
	return sub.ch, cancel
}

// Latest returns the most recent retained event for a job.
func (h *Hub) Latest(jobID uuid.UUID) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	evt, ok := h.latest[jobID]
	return evt, ok
}

// Forget drops the retained state for a job and disconnects its
// subscribers. Used when a job is deleted.
func (h *Hub) Forget(jobID uuid.UUID) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, jobID)
	for sub := range h.subs[jobID] {
		close(sub.ch)
	}
	delete(h.subs, jobID)
}

// Close disconnects every subscriber and closes the sinks. It is safe to
// call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var firstErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		for jobID, set := range h.subs {
			for sub := range set {
				close(sub.ch)
			}
			delete(h.subs, jobID)
		}
		h.mu.Unlock()

		for _, sink := range h.sinks {
			if sink == nil {
				continue
			}
			if err := sink.Close(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("progress sink close: %w", err)
			}
		}
	})
	return firstErr
}

func (h *Hub) fanOut(evt Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}
