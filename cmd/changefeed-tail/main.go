// changefeed-tail subscribes to the change topics of one channel target and
// logs every notification it receives.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/roboricindustries/raycon-changefeed/internal/config"
	"github.com/roboricindustries/raycon-changefeed/internal/metrics"
	"github.com/roboricindustries/raycon-changefeed/pkg/changefeed"
	"github.com/roboricindustries/raycon-changefeed/pkg/pubsub"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
)

func main() {
	var (
		configPath = flag.String("config", "changefeed.yaml", "Path to the YAML config")
		channel    = flag.String("channel", changefeed.OrganizationChannel, "Channel, e.g. user or organization")
		id         = flag.String("id", "*", "Target id, * for any")
		entity     = flag.String("entity", "", "Entity type to follow (empty for all)")
		queue      = flag.String("queue", "", "Durable queue name (empty for a private queue)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Transport != config.TransportAMQP {
		logger.Error("changefeed-tail requires the amqp transport", slog.String("transport", cfg.Transport))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewProm()
	if cfg.Metrics.Enabled {
		go func() {
			if err := prom.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	sub, err := pubsub.NewSubscriber(ctx, cfg.RabbitMQ(), logger, pubsub.SubscriberOptions{})
	if err != nil {
		logger.Error("subscribe failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer sub.Close()

	name := "*"
	if *entity != "" {
		name = changefeed.EntityName(*entity)
	}
	topics := changefeed.TopicBuilder{Prefix: cfg.AppPrefix}
	pattern := topics.Build(*channel, *id, name)

	sub.Handle(pattern, pubsub.JSONHandler(func(ctx context.Context, topic string, ev changes.EntityChangedV1) error {
		prom.Received(entityOf(topic), string(ev.Operation))
		logger.Info("change",
			slog.String("topic", topic),
			slog.String("id", ev.ID),
			slog.String("operation", string(ev.Operation)),
		)
		return nil
	}))
	if err := sub.Start(*queue); err != nil {
		logger.Error("start failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("tailing changes", slog.String("pattern", pattern))
	<-ctx.Done()
	logger.Info("shutting down")
}

// entityOf returns the last word of a topic.
func entityOf(topic string) string {
	return topic[strings.LastIndex(topic, ".")+1:]
}
