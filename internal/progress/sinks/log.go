package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/progress"
)

// LogSink emits structured logs for debugging import progress streams. It is
// useful during development or audits where metrics are unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("job_id", evt.JobID.String()),
		zap.String("status", string(evt.Status)),
		zap.Int64("total_lines", evt.TotalLines),
		zap.Int64("processed_lines", evt.ProcessedLines),
		zap.Int64("imported", evt.Imported),
		zap.Int64("skipped_duplicates", evt.SkippedDuplicates),
		zap.Int64("skipped_filtered", evt.SkippedFiltered),
		zap.Int64("parse_errors", evt.ParseErrors),
		zap.Int("percent", evt.Percent),
	}
	if evt.Error != "" {
		fields = append(fields, zap.String("error", evt.Error))
	}
	s.logger.Info("import progress", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
