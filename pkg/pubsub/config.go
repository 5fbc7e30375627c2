package pubsub

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig defines connection settings and the change exchange.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	// AppID is stamped on every message as producer when Meta.Producer is empty.
	AppID string

	PublishPoolSize    int
	PoolRetryDelayMs   int
	ConnTimeoutSeconds int
	RetryAttempts      int
	RetryDelay         time.Duration
	// Confirm waits for a broker ack on every publish.
	Confirm bool

	Dialer func(ctx context.Context, url string) (*amqp.Connection, error)
}

func (c RabbitMQConfig) dialer() func(ctx context.Context, url string) (*amqp.Connection, error) {
	if c.Dialer != nil {
		return c.Dialer
	}
	timeout := Dsec(c.ConnTimeoutSeconds, 30)
	return func(_ context.Context, u string) (*amqp.Connection, error) {
		return amqp.DialConfig(u, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	}
}
