// Package app assembles a change feed from an AppConfig.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roboricindustries/raycon-changefeed/internal/config"
	"github.com/roboricindustries/raycon-changefeed/internal/metrics"
	"github.com/roboricindustries/raycon-changefeed/pkg/changefeed"
	"github.com/roboricindustries/raycon-changefeed/pkg/pubsub"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

type App struct {
	Config     *config.AppConfig
	Registry   *changefeed.Registry
	Publisher  pubsub.Publisher
	Reader     store.Reader
	Resolver   *changefeed.TargetResolver
	Dispatcher *changefeed.Dispatcher
	Metrics    *metrics.Prom
	Topics     changefeed.TopicBuilder

	log     *slog.Logger
	closers []io.Closer
}

type Option func(*options)

type options struct {
	publisher pubsub.Publisher
	reader    store.Reader
}

// WithPublisher skips transport setup.
func WithPublisher(p pubsub.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithReader skips opening database.dsn.
func WithReader(r store.Reader) Option {
	return func(o *options) { o.reader = r }
}

// NewPublisher picks the transport named by cfg.Transport.
func NewPublisher(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (pubsub.Publisher, error) {
	switch cfg.Transport {
	case config.TransportAMQP:
		return pubsub.NewAMQPPublisher(ctx, cfg.RabbitMQ(), logger)
	case config.TransportRedis:
		return pubsub.DialRedis(ctx, cfg.RedisOptions(), logger)
	case config.TransportNone:
		return pubsub.NewFallback(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Build connects the transport and the read store, then registers one list
// per configured entity. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:     cfg,
		Registry:   changefeed.NewRegistry(),
		Metrics:    metrics.NewProm(),
		Dispatcher: changefeed.NewDispatcher(cfg.Notify.Detached, cfg.Notify.Timeout()),
		Topics:     changefeed.TopicBuilder{Prefix: cfg.AppPrefix},
		log:        logger,
	}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	a.Publisher = o.publisher
	if a.Publisher == nil {
		if a.Publisher, err = NewPublisher(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, a.Publisher)

	a.Reader = o.reader
	if a.Reader == nil && cfg.Database.DSN != "" {
		db, err := store.OpenSQL(ctx, cfg.Database.DSN, store.WithTables(cfg.Database.TableMap()))
		if err != nil {
			return nil, err
		}
		a.Reader = db
		a.closers = append(a.closers, db)
	}

	a.Resolver, err = changefeed.NewTargetResolver(a.Reader, changefeed.ResolverOptions{
		LinkEntity:       cfg.Notify.LinkEntity,
		SoftDeleteField:  cfg.Notify.SoftDeleteField,
		HoldingCacheSize: cfg.Notify.HoldingCacheSize,
		HoldingCacheTTL:  cfg.Notify.HoldingCacheTTL(),
	}, logger, a.Metrics)
	if err != nil {
		return nil, err
	}

	deps := changefeed.Deps{
		Publisher:       a.Publisher,
		Resolver:        a.Resolver,
		Dispatcher:      a.Dispatcher,
		Topics:          a.Topics,
		Logger:          logger,
		Observer:        a.Metrics,
		SoftDeleteField: cfg.Notify.SoftDeleteField,
		Producer:        cfg.AppPrefix,
	}
	for _, e := range cfg.Entities {
		pc, err := e.PluginConfig()
		if err != nil {
			return nil, err
		}
		if err := a.Registry.Register(changefeed.List{Name: e.Name}, changefeed.Notifications(pc, deps)); err != nil {
			return nil, err
		}
	}

	logger.Info("changefeed assembled",
		slog.String("transport", cfg.Transport),
		slog.Int("entities", len(cfg.Entities)),
		slog.Bool("detached", cfg.Notify.Detached),
	)
	return a, nil
}

// Close waits for detached notifications, then closes the publisher and
// the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for notifications: %w", err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
