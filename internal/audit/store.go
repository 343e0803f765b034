package audit

import (
	"context"

	"go.uber.org/zap"
)

// Store persists rejection events.
type Store interface {
	SaveLimitExceeded(ctx context.Context, event *LimitExceededEvent) error
}

// LogStore records events as structured log lines.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a store that writes to logger.
func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) SaveLimitExceeded(_ context.Context, event *LimitExceededEvent) error {
	s.logger.Info("rate limit exceeded",
		zap.String("event_id", event.ID),
		zap.String("scope", event.Scope),
		zap.String("client_ip", event.ClientIP),
		zap.String("method", event.Method),
		zap.String("path", event.Path),
		zap.Int64("current", event.Current),
		zap.Int64("limit", event.Limit),
		zap.Int64("retry_after", event.RetryAfter),
		zap.String("backend", event.Backend),
		zap.String("request_id", event.RequestID),
		zap.String("user_agent", event.UserAgent),
		zap.Time("occurred_at", event.OccurredAt),
	)

	return nil
}
