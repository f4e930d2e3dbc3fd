package push

import (
	"context"

	"go.uber.org/zap"
)

type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// LogProvider stands in for a real push gateway in development.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("providers.push")}
}

func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	p.log.Info("push send (noop gateway)",
		zap.String("title", msg.Title),
		zap.Bool("has_token", msg.Token != ""),
	)
	return nil
}
