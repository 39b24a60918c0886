package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/example/sportshop/internal/config"
	"github.com/example/sportshop/internal/infrastructure/kafka"
	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/example/sportshop/internal/ledger"
	"github.com/example/sportshop/internal/logger"
	"github.com/example/sportshop/internal/shutdown"
)

func main() {
	rebuild := flag.Bool("rebuild", false, "replay the event log into a fresh revenue view before consuming")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: "sportshop-projector", Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := run(cfg, *rebuild, log); err != nil {
		log.Error("projector stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, rebuild bool, log *slog.Logger) error {
	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required")
	}

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}

	projector := ledger.NewProjector(store.NewPostgresRevenueView(db), log)
	if rebuild {
		// The replay does not publish, so no broker is needed here.
		n, err := projector.Rebuild(ctx, store.NewPostgresEventStore(db, nil))
		if err != nil {
			return err
		}
		log.Info("revenue view rebuilt", "events", n)
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup, log)
	defer consumer.Close()

	log.Info("consuming ledger events", "topic", cfg.KafkaTopic, "group", cfg.KafkaConsumerGroup)
	if err := consumer.Consume(ctx, projector.HandleMessage); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
