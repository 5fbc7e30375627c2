// changefeed-emit loads one record from the database and publishes its change
// notifications as if the mutation had just been committed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/roboricindustries/raycon-changefeed/internal/app"
	"github.com/roboricindustries/raycon-changefeed/internal/config"
	"github.com/roboricindustries/raycon-changefeed/pkg/changefeed"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
)

func main() {
	var (
		configPath = flag.String("config", "changefeed.yaml", "Path to the YAML config")
		entity     = flag.String("entity", "", "Entity type, e.g. Ticket")
		id         = flag.String("id", "", "Record id")
		op         = flag.String("op", string(changes.Update), "Operation: create, update or delete")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	operation := changes.Operation(*op)
	if *entity == "" || *id == "" || !operation.Valid() {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		logger.Error("database.dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build failed", slog.Any("error", err))
		os.Exit(1)
	}

	code := emit(ctx, a, logger, *entity, *id, operation)
	if err := a.Close(ctx); err != nil {
		logger.Error("close failed", slog.Any("error", err))
		code = 1
	}
	os.Exit(code)
}

func emit(ctx context.Context, a *app.App, logger *slog.Logger, entity, id string, op changes.Operation) int {
	if _, ok := a.Registry.Lookup(entity); !ok {
		logger.Error("entity is not configured", slog.String("entity", entity))
		return 1
	}
	rec, err := a.Reader.GetByID(ctx, entity, id)
	if err != nil {
		logger.Error("load record failed", slog.String("entity", entity), slog.String("id", id), slog.Any("error", err))
		return 1
	}
	if rec == nil {
		logger.Error("record not found", slog.String("entity", entity), slog.String("id", id))
		return 1
	}

	ch := changefeed.Change{Entity: entity, Operation: op}
	if op == changes.Delete {
		ch.Existing = rec
	} else {
		ch.Updated = rec
	}
	if err := a.Registry.AfterChange(ctx, ch); err != nil {
		logger.Error("after change failed", slog.Any("error", err))
		return 1
	}
	logger.Info("change emitted", slog.String("entity", entity), slog.String("id", id), slog.String("operation", string(op)))
	return 0
}
