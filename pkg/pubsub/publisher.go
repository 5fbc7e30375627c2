package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/common"
)

// Message is one delivery request: Data is JSON-encoded as the body and Topic
// is used verbatim as the routing key / channel name.
type Message struct {
	Topic string
	Data  any
	Meta  common.Meta
}

// Publisher delivers messages to the bus. Retry and durability belong to the
// implementation; callers make a single attempt.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

var ErrNacked = errors.New("publish not confirmed by broker")

// -----------------------------------------------------------------------------
// AMQP
// -----------------------------------------------------------------------------

type AMQPPublisher struct {
	conn   *amqp.Connection
	pool   *ChannelPool
	config RabbitMQConfig
	log    *slog.Logger
}

func NewAMQPPublisher(ctx context.Context, config RabbitMQConfig, logger *slog.Logger) (*AMQPPublisher, error) {
	const op = "pubsub.NewAMQPPublisher"

	if config.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}
	if config.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	host := ""
	if u, _ := url.Parse(config.URL); u != nil {
		host = u.Host
	}
	logger.With("op", op).Info("connecting to rabbitmq", slog.String("host", host))

	conn, err := DialWithRetry(ctx, ConnectionOptions{
		URL:           config.URL,
		RetryAttempts: config.RetryAttempts,
		Delay:         config.RetryDelay,
		Logger:        logger,
		Dial:          config.dialer(),
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = SafeClose(ch)
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", config.Exchange, err)
	}
	_ = ch.Close()

	logger.With("op", op).Info("publisher ready", slog.String("exchange", config.Exchange))
	return &AMQPPublisher{
		conn:   conn,
		pool:   NewChannelPool(conn, config.PublishPoolSize, config.Confirm),
		config: config,
		log:    logger,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("message topic is required")
	}
	body, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pub := buildPublishing(body, fillMeta(msg.Meta, p.config.AppID))

	ch, err := p.pool.Borrow(ctx, p.config.PoolRetryDelayMs)
	if err != nil {
		return fmt.Errorf("borrow channel: %w", err)
	}
	defer p.pool.Return(ch)

	if !p.config.Confirm {
		if err := ch.PublishWithContext(ctx, p.config.Exchange, msg.Topic, false, false, pub); err != nil {
			return err
		}
		p.log.Debug("published", slog.String("key", msg.Topic), slog.String("exchange", p.config.Exchange))
		return nil
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.config.Exchange, msg.Topic, false, false, pub)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, msg.Topic)
	}
	p.log.Debug("published", slog.String("key", msg.Topic), slog.String("exchange", p.config.Exchange))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.pool.Close()
	return p.conn.Close()
}

// fillMeta defaults the message id, correlation id, time and producer.
func fillMeta(m common.Meta, producer string) common.Meta {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CorrelationID == "" {
		m.CorrelationID = m.ID
	}
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	if m.Producer == "" {
		m.Producer = producer
	}
	return m
}

func buildPublishing(body []byte, m common.Meta) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     m.ID,
		CorrelationId: m.CorrelationID,
		Type:          m.Type,
		Timestamp:     m.Time,
		AppId:         m.Producer,
	}
}
