package sms

import (
	"context"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, phone string, body string) error
}

// LogProvider stands in for a real SMS gateway in development: it only logs
// what would be sent.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("providers.sms")}
}

func (p *LogProvider) Send(ctx context.Context, phone string, body string) error {
	p.log.Info("sms send (noop gateway)",
		zap.String("phone", phone),
		zap.Int("body_len", len(body)),
	)
	return nil
}
