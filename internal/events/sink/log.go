package sink

import (
	"context"

	"github.com/serroba/quota-gate/internal/events"
	"go.uber.org/zap"
)

// Log is an events.Sink that only logs what it receives.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a new logging sink.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SaveRejected(_ context.Context, event *events.RejectedEvent) error {
	l.logger.Info("quota rejection received",
		zap.String("id", event.ID),
		zap.String("clientIp", event.ClientIP),
		zap.String("method", event.Method),
		zap.String("path", event.Path),
		zap.Uint64("limit", event.Limit),
		zap.Int("resetSeconds", event.ResetSeconds),
		zap.Time("rejectedAt", event.RejectedAt),
	)

	return nil
}
