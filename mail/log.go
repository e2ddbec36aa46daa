package mail

import (
	"context"
	"log/slog"
)

// LogMailer logs messages instead of sending them. It is meant for local
// development, where the passcode has to be read from the server log.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to logger, or slog.Default when
// logger is nil.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Deliver(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "mail delivered to log",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.TextBody),
	)
	return nil
}
