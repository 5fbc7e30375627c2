package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoison indicates non-retriable "bad content" (e.g., JSON decode fail).
// Poison deliveries are rejected without requeue.
var ErrPoison = errors.New("poison message")

type Handler func(ctx context.Context, d amqp.Delivery) error

// JSONHandler decodes the body into T and hands it over with the routing key.
// Decode failures and failed Validate() (when T has one) become ErrPoison.
func JSONHandler[T any](h func(ctx context.Context, topic string, v T) error) Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		if vv, ok := any(v).(interface{ Validate() error }); ok {
			if err := vv.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrPoison, err)
			}
		}
		return h(ctx, d.RoutingKey, v)
	}
}

type Subscriber interface {
	// Handle binds pattern (AMQP topic syntax) to h. First matching pattern wins.
	Handle(pattern string, h Handler)
	// Start declares the queue and starts workers. An empty queue name gets a
	// private auto-delete queue.
	Start(queueName string) error
	Close() error
}

type SubscriberOptions struct {
	BufferCap      int
	Workers        int
	Prefetch       int
	HandlerTimeout time.Duration
	// DeadLetterExchange receives rejected deliveries; empty disables it.
	DeadLetterExchange string
}

func (o *SubscriberOptions) normalize() {
	if o.BufferCap <= 0 {
		o.BufferCap = 64
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Prefetch <= 0 {
		o.Prefetch = 10
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 10 * time.Second
	}
}

type binding struct {
	pattern string
	handler Handler
}

type rmqSubscriber struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
	opts     SubscriberOptions
	bindings []binding
	msgChan  chan amqp.Delivery
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewSubscriber(ctx context.Context, config RabbitMQConfig, logger *slog.Logger, opts SubscriberOptions) (Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts.normalize()
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
		return nil, err
	}
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &rmqSubscriber{
		conn:     conn,
		ch:       ch,
		exchange: config.Exchange,
		log:      logger,
		opts:     opts,
		msgChan:  make(chan amqp.Delivery, opts.BufferCap),
		done:     make(chan struct{}),
	}, nil
}

func (s *rmqSubscriber) Handle(pattern string, h Handler) {
	s.bindings = append(s.bindings, binding{pattern: pattern, handler: h})
}

func (s *rmqSubscriber) Start(queueName string) error {
	var startErr error
	s.once.Do(func() {
		name, err := s.setupQueue(queueName)
		if err != nil {
			startErr = err
			return
		}
		s.runWorkerPool()
		s.log.Info("subscriber started", slog.String("queue", name), slog.Int("bindings", len(s.bindings)))
	})
	return startErr
}

func (s *rmqSubscriber) setupQueue(queueName string) (string, error) {
	if err := s.ch.Qos(s.opts.Prefetch, 0, false); err != nil {
		return "", err
	}

	args := amqp.Table{}
	if s.opts.DeadLetterExchange != "" {
		if err := s.declareDeadLetter(queueName); err != nil {
			return "", fmt.Errorf("declare dead letter: %w", err)
		}
		args["x-dead-letter-exchange"] = s.opts.DeadLetterExchange
	}

	durable, autoDelete, exclusive := true, false, false
	if queueName == "" {
		queueName = "changefeed.tail." + uuid.NewString()
		durable, autoDelete, exclusive = false, true, true
	}
	q, err := s.ch.QueueDeclare(queueName, durable, autoDelete, exclusive, false, args)
	if err != nil {
		return "", err
	}
	for _, b := range s.bindings {
		if err := s.ch.QueueBind(q.Name, b.pattern, s.exchange, false, nil); err != nil {
			return "", err
		}
	}
	msgs, err := s.ch.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		return "", err
	}

	go func() {
		for {
			select {
			case <-s.done:
				close(s.msgChan)
				return
			case msg, ok := <-msgs:
				if !ok {
					close(s.msgChan)
					return
				}
				s.msgChan <- msg
			}
		}
	}()
	return q.Name, nil
}

// declareDeadLetter sets up a fanout exchange and a durable parking queue for
// rejected deliveries.
func (s *rmqSubscriber) declareDeadLetter(queueName string) error {
	ex := s.opts.DeadLetterExchange
	if err := s.ch.ExchangeDeclare(ex, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	deadQ := FirstNonEmpty(queueName, ex) + ".dead"
	if _, err := s.ch.QueueDeclare(deadQ, true, false, false, false, nil); err != nil {
		return err
	}
	return s.ch.QueueBind(deadQ, "", ex, false, nil)
}

func (s *rmqSubscriber) runWorkerPool() {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
}

func (s *rmqSubscriber) handlerFor(key string) Handler {
	for _, b := range s.bindings {
		if MatchTopic(b.pattern, key) {
			return b.handler
		}
	}
	return nil
}

func (s *rmqSubscriber) workerLoop() {
	defer s.wg.Done()
	for msg := range s.msgChan {
		handler := s.handlerFor(msg.RoutingKey)
		if handler == nil {
			s.log.Warn("no handler", slog.String("key", msg.RoutingKey))
			_ = msg.Nack(false, false)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandlerTimeout)
		err := handler(ctx, msg)
		cancel()
		switch {
		case errors.Is(err, ErrPoison):
			s.log.Error("poison message", slog.String("key", msg.RoutingKey), slog.Any("error", err))
			_ = msg.Nack(false, false)
		case err != nil:
			s.log.Error("handler error", slog.String("key", msg.RoutingKey), slog.Any("error", err))
			_ = msg.Nack(false, true)
		default:
			_ = msg.Ack(false)
		}
	}
}

func (s *rmqSubscriber) Close() error {
	close(s.done)
	s.wg.Wait()
	_ = s.ch.Close()
	return s.conn.Close()
}
