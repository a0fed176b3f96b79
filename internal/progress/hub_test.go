package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/crawlscope/internal/store"
)

func sampleEvent(jobID uuid.UUID, status store.JobStatus) Event {
	evt := Event{
		JobID:  jobID,
		Status: status,
		TS:     time.Now().UTC(),
	}
	if status == store.JobError {
		evt.Error = "boom"
	}
	if status == store.JobCompleted {
		evt.Percent = 100
	}
	return evt
}

// TestHubDeliversToSubscriber verifies a subscriber receives events published
// for its job, in order.
func TestHubDeliversToSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	hub.Publish(sampleEvent(jobID, store.JobCounting))
	hub.Publish(sampleEvent(jobID, store.JobImporting))

	first := <-ch
	require.Equal(t, store.JobCounting, first.Status)
	second := <-ch
	require.Equal(t, store.JobImporting, second.Status)
}

// TestHubScopesEventsPerJob asserts events for one job never reach another
// job's subscribers.
func TestHubScopesEventsPerJob(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobA, jobB := uuid.New(), uuid.New()
	chB, cancel := hub.Subscribe(jobB)
	defer cancel()

	hub.Publish(sampleEvent(jobA, store.JobImporting))

	select {
	case evt := <-chB:
		t.Fatalf("unexpected event for job B: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHubLateSubscriberGetsLatest verifies a subscriber arriving mid-import
// immediately sees the retained snapshot.
func TestHubLateSubscriberGetsLatest(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	evt := sampleEvent(jobID, store.JobImporting)
	evt.ProcessedLines = 500
	hub.Publish(evt)

	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	got := <-ch
	require.Equal(t, int64(500), got.ProcessedLines)
}

// TestHubTerminalEventClosesStream verifies a completed event is delivered
// and then the channel closes.
func TestHubTerminalEventClosesStream(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	hub.Publish(sampleEvent(jobID, store.JobCompleted))

	got, ok := <-ch
	require.True(t, ok)
	require.Equal(t, store.JobCompleted, got.Status)
	_, ok = <-ch
	require.False(t, ok, "channel should close after terminal event")
}

// TestHubSubscribeAfterTerminal verifies a subscriber arriving after the job
// finished still gets the final event, then a closed channel.
func TestHubSubscribeAfterTerminal(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	hub.Publish(sampleEvent(jobID, store.JobError))

	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	got, ok := <-ch
	require.True(t, ok)
	require.Equal(t, store.JobError, got.Status)
	require.Equal(t, "boom", got.Error)
	_, ok = <-ch
	require.False(t, ok)
}

// TestHubDropsStalledSubscriber asserts Publish never blocks on a subscriber
// that stops draining its channel.
func TestHubDropsStalledSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{SubscriberBuffer: 1})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.Publish(sampleEvent(jobID, store.JobImporting))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// The stalled subscriber's channel ends up closed after draining.
	require.Eventually(t, func() bool {
		for {
			if _, ok := <-ch; !ok {
				return true
			}
		}
	}, time.Second, 10*time.Millisecond)
}

// TestHubRejectsInvalidEvent verifies invalid events are discarded instead
// of reaching subscribers.
func TestHubRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	hub.Publish(Event{JobID: jobID}) // missing timestamp and status

	select {
	case evt := <-ch:
		t.Fatalf("invalid event delivered: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHubForgetDisconnects verifies Forget closes subscribers and drops the
// retained event.
func TestHubForgetDisconnects(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	hub.Publish(sampleEvent(jobID, store.JobImporting))
	ch, cancel := hub.Subscribe(jobID)
	defer cancel()
	<-ch

	hub.Forget(jobID)

	_, ok := <-ch
	require.False(t, ok)
	_, ok = hub.Latest(jobID)
	require.False(t, ok)
}

// TestHubFansOutToSinks verifies every published event reaches the sinks.
func TestHubFansOutToSinks(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{}, sink)

	jobID := uuid.New()
	hub.Publish(sampleEvent(jobID, store.JobCounting))
	hub.Publish(sampleEvent(jobID, store.JobCompleted))

	require.Len(t, sink.Events(), 2)
	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.Closed())
}

type stubSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
