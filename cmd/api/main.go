package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/text/language"

	"github.com/angelmondragon/nursecall-backend/api/controllers"
	"github.com/angelmondragon/nursecall-backend/api/routes"
	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/auth"
	"github.com/angelmondragon/nursecall-backend/internal/dashboard"
	"github.com/angelmondragon/nursecall-backend/internal/office"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	"github.com/angelmondragon/nursecall-backend/internal/users"
	"github.com/angelmondragon/nursecall-backend/pkg/auth/session"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
	"github.com/angelmondragon/nursecall-backend/pkg/migrate"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"github.com/angelmondragon/nursecall-backend/pkg/notify"
	"github.com/angelmondragon/nursecall-backend/pkg/photostore"
	"github.com/angelmondragon/nursecall-backend/pkg/pubsub"
	"github.com/angelmondragon/nursecall-backend/pkg/redis"
	"github.com/angelmondragon/nursecall-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.Prepare(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	ready := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := metrics.NewStoreMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	var notifier notify.Notifier = notify.NewLocal()
	if cfg.FeatureFlags.RedisNotify {
		redisNotifier, err := redis.NewNotifier(redisClient, logg)
		if err != nil {
			return err
		}
		notifier = redisNotifier
	}

	store, err := docstore.New(dbClient.DB(), docstore.Options{
		Notifier: notifier,
		Channel:  cfg.Store.NotifyChannel,
		Logger:   logg,
		Metrics:  storeMetrics,
	})
	if err != nil {
		return err
	}
	source := mirror.FromStore(store)
	locale := language.Make(cfg.App.Locale)

	var pubsubClient *pubsub.Client
	if cfg.FeatureFlags.PublishAlerts {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return err
		}
		closers = append(closers, pubsubClient)
		ready["pubsub"] = pubsubClient
	}

	photos, media, err := buildPhotoStore(ctx, cfg, logg, ready, &closers)
	if err != nil {
		return err
	}

	roomService, err := rooms.NewService(rooms.ServiceParams{Store: store, Source: source, Locale: locale})
	if err != nil {
		return err
	}
	patientService, err := patients.NewService(patients.ServiceParams{Store: store, Source: source, Locale: locale})
	if err != nil {
		return err
	}

	var publisher alerts.EventPublisher
	if pubsubClient != nil {
		publisher, err = alerts.NewPubSubPublisher(pubsubClient, pubsubClient.AlertsTopic())
		if err != nil {
			return err
		}
	}
	alertService, err := alerts.NewService(alerts.ServiceParams{
		Store:        store,
		Source:       source,
		Publisher:    publisher,
		Logger:       logg,
		HistoryLimit: cfg.Store.AlertHistoryLimit,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceParams{
		Store:         store,
		Source:        source,
		Photos:        photos,
		MaxPhotoBytes: int64(cfg.Media.MaxUploadMB) << 20,
	})
	if err != nil {
		return err
	}
	officeService, err := office.NewService(office.ServiceParams{Store: store, Source: source, Logger: logg})
	if err != nil {
		return err
	}
	dashboardService, err := dashboard.NewService(dashboard.ServiceParams{
		Rooms:    roomService,
		Patients: patientService,
		Alerts:   alertService,
		Profiles: profileService,
	})
	if err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}
	gate, err := auth.NewGate(ctx, notifier, logg)
	if err != nil {
		return err
	}
	defer gate.Close()

	var mailer auth.Mailer = auth.NewLogMailer(logg)
	if pubsubClient != nil {
		mailer, err = auth.NewPubSubMailer(pubsubClient, pubsubClient.MailTopic())
		if err != nil {
			return err
		}
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		Resets:         redisClient,
		Profiles:       profileService,
		Gate:           gate,
		Mailer:         mailer,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		ResetConfig:    cfg.Reset,
		Logger:         logg,
	})
	if err != nil {
		return err
	}
	profiles.SetIdentityUpdater(profileService, authService)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			Redis:     redisClient,
			Sessions:  sessionManager,
			Gate:      gate,
			Ready:     ready,
			Registry:  registry,
			Metrics:   storeMetrics,
			HTTP:      httpMetrics,
			Media:     media,
			Auth:      authService,
			Rooms:     roomService,
			Patients:  patientService,
			Alerts:    alertService,
			Profiles:  profileService,
			Office:    officeService,
			Dashboard: dashboardService,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildPhotoStore picks the upload backend. The local backend also serves
// the files it stores.
func buildPhotoStore(ctx context.Context, cfg *config.Config, logg *logger.Logger, ready map[string]controllers.Pinger, closers *[]io.Closer) (photostore.Uploader, http.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Media.Backend)) {
	case "gcs":
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, client)
		ready["gcs"] = client
		return client, nil, nil
	default:
		local, err := photostore.NewLocal(cfg.Media.LocalPath, cfg.Media.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local.Handler(), nil
	}
}
