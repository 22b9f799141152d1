package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/callbuttons"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/migrate"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"github.com/angelmondragon/nursecall-backend/pkg/mqtt"
	"github.com/angelmondragon/nursecall-backend/pkg/pubsub"
	"github.com/angelmondragon/nursecall-backend/pkg/redis"
)

const serviceKind = "callbutton-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.Prepare(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to prepare schema", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	storeOpts := docstore.Options{Channel: cfg.Store.NotifyChannel, Logger: logg}
	if cfg.FeatureFlags.RedisNotify {
		notifier, err := redis.NewNotifier(redisClient, logg)
		if err != nil {
			logg.Error(ctx, "failed to build redis notifier", err)
			os.Exit(1)
		}
		storeOpts.Notifier = notifier
	}
	store, err := docstore.New(dbClient.DB(), storeOpts)
	if err != nil {
		logg.Error(ctx, "failed to build document store", err)
		os.Exit(1)
	}

	var publisher alerts.EventPublisher
	if cfg.FeatureFlags.PublishAlerts {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		publisher, err = alerts.NewPubSubPublisher(pubsubClient, pubsubClient.AlertsTopic())
		if err != nil {
			logg.Error(ctx, "failed to build alert publisher", err)
			os.Exit(1)
		}
	}

	alertService, err := alerts.NewService(alerts.ServiceParams{
		Store:        store,
		Source:       mirror.FromStore(store),
		Publisher:    publisher,
		Logger:       logg,
		HistoryLimit: cfg.Store.AlertHistoryLimit,
	})
	if err != nil {
		logg.Error(ctx, "failed to create alert service", err)
		os.Exit(1)
	}

	mqttClient, err := mqtt.NewClient(ctx, cfg.MQTT, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to mqtt broker", err)
		os.Exit(1)
	}
	defer mqttClient.Close()

	consumer, err := callbuttons.NewConsumer(callbuttons.Options{
		Alerts:     alertService,
		Subscriber: mqttClient,
		Dedupe:     redisClient,
		Logger:     logg,
		Topic:      cfg.MQTT.Topic,
		QoS:        cfg.MQTT.QoS,
	})
	if err != nil {
		logg.Error(ctx, "failed to create call-button consumer", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting call-button worker")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "call-button worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "call-button worker shutting down gracefully")
}
