package email

import (
	"context"

	"github.com/jwalitptl/drivermed-api/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. Used in development.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email not delivered (log provider)", "to", msg.To, "subject", msg.Subject)
	return nil
}
