package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
	Dial          func(ctx context.Context, url string) (*amqp.Connection, error)
}

const MaxDelay = 60 * time.Second

// DialWithRetry tries to connect to RabbitMQ with jittered exponential backoff.
// It respects context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, cfg ConnectionOptions) (*amqp.Connection, error) {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = func(_ context.Context, u string) (*amqp.Connection, error) { return amqp.Dial(u) }
	}

	var lastErr error
	backoff := delay
	for i := 1; i <= attempts; i++ {
		conn, err := dial(ctx, cfg.URL)
		if err == nil {
			if i > 1 {
				logger.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := JitteredDelay(backoff, MaxDelay, 0)
		logger.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
		if backoff*2 < MaxDelay {
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
