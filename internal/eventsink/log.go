package eventsink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

// LogSink writes pool events to the log when no broker is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{
		log: logger.With().Str("component", "pool-events").Logger(),
	}
}

func (s *LogSink) Publish(_ context.Context, events []models.PoolEvent) (int, error) {
	for _, ev := range events {
		s.log.Info().
			Str("type", string(ev.Type)).
			Str("worker", ev.Worker.String()).
			Str("task", ev.Task.String()).
			Time("at", ev.Timestamp).
			Msg("pool event")
	}
	return len(events), nil
}
