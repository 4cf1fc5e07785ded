package sms

import (
	"context"

	"go.uber.org/zap"

	"github.com/superapp/partnerauth/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. Development only.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a LogSender bound to the global logger.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.WithModule("sms")}
}

func (s *LogSender) Name() string { return DriverLog }

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("sms message", logger.Phone(to), zap.String("body", body))
	return nil
}
