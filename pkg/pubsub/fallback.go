package pubsub

import (
	"context"
	"log/slog"
)

// FallbackPublisher is wired when no transport is configured: every message
// is logged and dropped.
type FallbackPublisher struct {
	log *slog.Logger
}

func NewFallback(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPublisher{log: logger.With(slog.String("transport", "none"))}
}

func (p *FallbackPublisher) Publish(_ context.Context, msg Message) error {
	p.log.Warn("no transport, change dropped",
		slog.String("topic", msg.Topic),
		slog.String("type", msg.Meta.Type),
	)
	return nil
}

func (p *FallbackPublisher) Close() error { return nil }
