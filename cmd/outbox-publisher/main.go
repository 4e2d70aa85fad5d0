package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db"
	"github.com/angelmondragon/eventprize-backend/pkg/instance"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
	"github.com/angelmondragon/eventprize-backend/pkg/metrics"
	"github.com/angelmondragon/eventprize-backend/pkg/migrate"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/registry"
	"github.com/angelmondragon/eventprize-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	listDLQ := flag.Int("list-dlq", 0, "print the N most recent dead-lettered events and exit")
	requeue := flag.String("requeue", "", "hand a dead-lettered outbox event id back to the publisher and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.GetID(),
		"serviceKind": serviceName,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	switch {
	case *listDLQ > 0:
		if err := printDLQ(ctx, dlqRepo, *listDLQ); err != nil {
			logg.Error(ctx, "failed to list dead letters", err)
			os.Exit(1)
		}
		return
	case *requeue != "":
		if err := requeueEvent(ctx, logg, dbClient, dlqRepo, *requeue); err != nil {
			logg.Error(ctx, "failed to requeue dead letter", err)
			os.Exit(1)
		}
		return
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "topics", eventRegistry.Topics()), "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func printDLQ(ctx context.Context, repo *outbox.DLQRepository, limit int) error {
	entries, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		msg := ""
		if e.ErrorMessage != nil {
			msg = *e.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%d\t%s\n", e.FailedAt.Format("2006-01-02T15:04:05Z07:00"), e.EventID, e.EventType, e.ErrorReason, e.AttemptCount, msg)
	}
	return nil
}

func requeueEvent(ctx context.Context, logg *logger.Logger, client *db.Client, repo *outbox.DLQRepository, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", raw, err)
	}
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.Requeue(ctx, tx, eventID)
	}); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "outbox_id", eventID.String()), "dead letter requeued")
	return nil
}
