package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisPublisher sends each message with PUBLISH, using the topic as the
// Redis channel. Redis pub/sub keeps no copy for absent subscribers.
type RedisPublisher struct {
	client redis.UniversalClient
	log    *slog.Logger
}

func NewRedisPublisher(client redis.UniversalClient, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, log: logger}
}

// DialRedis opens a client and verifies it with PING.
func DialRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPublisher(client, logger), nil
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("message topic is required")
	}
	body, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	receivers, err := p.client.Publish(ctx, msg.Topic, body).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Topic, err)
	}
	p.log.Debug("published", slog.String("key", msg.Topic), slog.Int64("receivers", receivers))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
