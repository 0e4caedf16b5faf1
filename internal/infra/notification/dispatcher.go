package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/infra/logger"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, userID, deviceID, code string) error {
	return nil
}

// LoggingCodeDispatcher records code dispatch events for observability without
// delivering them. Actual delivery (SMS, email, push) belongs to a downstream
// notification service consuming the challenge events.
type LoggingCodeDispatcher struct {
	logger *zap.Logger
}

// NewLoggingCodeDispatcher constructs a code dispatcher backed by structured logging.
func NewLoggingCodeDispatcher(log *zap.Logger) port.CodeDispatcher {
	if log == nil {
		return noopDispatcher{}
	}
	return &LoggingCodeDispatcher{logger: log}
}

func (d *LoggingCodeDispatcher) Dispatch(ctx context.Context, userID, deviceID, code string) error {
	if d == nil || d.logger == nil {
		return nil
	}

	d.logger.Info("dispatch one-time code",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.String("code", logger.MaskString(code)),
	)
	return nil
}

var _ port.CodeDispatcher = (*LoggingCodeDispatcher)(nil)
