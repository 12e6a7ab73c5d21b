// Package sinks holds the progress.Sink implementations: structured
// logs, the county stats store, and Prometheus collectors.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/progress"
)

// LogSink emits structured logs for progress streams; useful during
// development or when a durable store is unavailable.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("job_id", evt.JobUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("county", evt.County),
			zap.String("case_number", evt.CaseNumber),
			zap.String("url", evt.URL),
			zap.Int64("bytes", evt.Bytes),
			zap.Int("listings", evt.Listings),
			zap.Bool("created", evt.Created),
			zap.Bool("qualified", evt.Qualified),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
