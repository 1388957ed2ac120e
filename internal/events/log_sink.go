package events

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/logging"
)

// LogSink writes audit events through the shared structured logger.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	args := make([]any, 0, 4+len(e.Fields)*2)
	args = append(args, "event_id", e.ID, "event_type", string(e.Type))
	for k, v := range e.Fields {
		args = append(args, k, v)
	}
	s.log.Info(ctx, "audit event", args...)
}
