package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes events to the log. Used when redis is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info("Player notification",
		zap.String("type", string(event.Type)),
		zap.Int64("guild_id", event.GuildID),
		zap.Int64("user_id", event.UserID),
		zap.String("hive", event.HiveName),
		zap.String("bee", event.BeeName),
		zap.Int("brood", event.BroodCount))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
