package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/progress"
	"github.com/mkessler/crawlscope/internal/store"
)

// streamProgress serves the import progress of one job as a server-sent
// event stream. Each event is one JSON snapshot; the stream ends after the
// terminal event. A job that already finished yields its final snapshot and
// closes immediately.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	job, err := s.jobs.GetJob(ctx, jobID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("load job for progress stream failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := s.hub.Subscribe(jobID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Terminal jobs restarted from the database keep no retained event, so
	// synthesize the final snapshot from the stored row.
	if _, retained := s.hub.Latest(jobID); !retained && job.Status.Terminal() {
		evt := progress.FromCounters(job.ID, job.Status, job.Counters, 100, s.clk.Now())
		if job.ErrorMessage != nil {
			evt.Error = *job.ErrorMessage
		}
		if err := writeSSE(w, evt); err != nil {
			return
		}
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				return
			}
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, evt progress.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write progress event: %w", err)
	}
	return nil
}
