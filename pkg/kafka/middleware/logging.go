package kafka_middleware

import (
	"context"
	"time"

	"slotcore/pkg/kafka"
	"slotcore/pkg/logger"
)

// LoggingProducerMiddleware logs event sink publish operations through the
// engine's structured logger.
func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)
		duration := time.Since(start)

		if err != nil {
			log.Error("Event sink publish failed",
				"topic", msg.Topic,
				"key", msg.Key,
				"event_id", msg.GetEventID(),
				"event_kind", msg.GetEventKind(),
				"duration_ms", duration.Milliseconds(),
				"error", err,
			)
			return err
		}

		log.Debug("Event sink publish succeeded",
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_kind", msg.GetEventKind(),
			"duration_ms", duration.Milliseconds(),
		)
		return nil
	}
}
