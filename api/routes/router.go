package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"

	"github.com/angelmondragon/nursecall-backend/api/controllers"
	"github.com/angelmondragon/nursecall-backend/api/middleware"
	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/auth"
	"github.com/angelmondragon/nursecall-backend/internal/dashboard"
	"github.com/angelmondragon/nursecall-backend/internal/office"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	"github.com/angelmondragon/nursecall-backend/pkg/auth/session"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/nursecall-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Deps is everything the router wires into handlers. Optional members may
// be nil: Redis disables idempotency and rate limiting, Media drops /media,
// Registry drops /metrics. Nil Metrics or HTTP only skip recording.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Gate     *auth.Gate
	Ready    map[string]controllers.Pinger
	Registry *prometheus.Registry
	Metrics  *metrics.StoreMetrics
	HTTP     *metrics.HTTPMetrics
	Media    http.Handler

	Auth      auth.Service
	Rooms     rooms.Service
	Patients  patients.Service
	Alerts    alerts.Service
	Profiles  profiles.Service
	Office    office.Service
	Dashboard dashboard.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	locale := language.Make(cfg.App.Locale)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var limiter middleware.RateLimitStore
	var idempotency pkgredis.IdempotencyStore
	if d.Redis != nil {
		limiter, idempotency = d.Redis, d.Redis
	}

	signInPolicy := middleware.NewAuthRateLimitPolicy(
		"signin",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signUpPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	resetPolicy := middleware.NewAuthRateLimitPolicy(
		"password-reset",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Ready))
	})
	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}
	if d.Media != nil {
		r.Method(http.MethodGet, "/media/*", http.StripPrefix("/media/", d.Media))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotency, logg))
		r.With(middleware.AuthRateLimit(signUpPolicy, limiter, locale, logg)).Post("/signup", controllers.AuthSignUp(d.Auth, locale, logg))
		r.With(middleware.AuthRateLimit(signInPolicy, limiter, locale, logg)).Post("/signin", controllers.AuthSignIn(d.Auth, locale, logg))
		r.Post("/refresh", controllers.AuthRefresh(d.Auth, locale, logg))
		r.With(middleware.AuthRateLimit(resetPolicy, limiter, locale, logg)).Post("/password-reset", controllers.AuthPasswordReset(d.Auth, locale, logg))
		r.Post("/password-reset/confirm", controllers.AuthConfirmPasswordReset(d.Auth, locale, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Post("/signout", controllers.AuthSignOut(d.Auth, locale, logg))
			r.Post("/password", controllers.AuthChangePassword(d.Auth, locale, logg))
			r.Patch("/identity", controllers.AuthUpdateIdentity(d.Auth, locale, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", controllers.RoomsList(d.Rooms, logg))
			r.Post("/", controllers.RoomCreate(d.Rooms, logg))
			r.Get("/{roomId}", controllers.RoomGet(d.Rooms, logg))
			r.Patch("/{roomId}", controllers.RoomUpdate(d.Rooms, logg))
			r.Delete("/{roomId}", controllers.RoomDelete(d.Rooms, logg))
		})
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", controllers.PatientsList(d.Patients, logg))
			r.Post("/", controllers.PatientCreate(d.Patients, logg))
			r.Get("/{patientId}", controllers.PatientGet(d.Patients, logg))
			r.Patch("/{patientId}", controllers.PatientUpdate(d.Patients, logg))
			r.Delete("/{patientId}", controllers.PatientDelete(d.Patients, logg))
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.AlertsList(d.Alerts, logg))
			r.Post("/", controllers.AlertRaise(d.Alerts, logg))
			r.Get("/{alertId}", controllers.AlertGet(d.Alerts, logg))
			r.Post("/{alertId}/handle", controllers.AlertHandle(d.Alerts, logg))
		})
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", controllers.ProfileGet(d.Profiles, logg))
			r.Patch("/", controllers.ProfileSave(d.Profiles, locale, logg))
			r.Post("/photo", controllers.ProfilePhoto(d.Profiles, maxUploadBytes(cfg), logg))
		})
		r.Route("/office", func(r chi.Router) {
			r.Get("/", controllers.OfficeGet(d.Office))
			r.Patch("/", controllers.OfficeUpdate(d.Office, logg))
		})
		r.Get("/dashboard", controllers.DashboardGet(d.Dashboard, logg))

		feeds := controllers.LiveFeeds{
			Rooms:     d.Rooms,
			Patients:  d.Patients,
			Alerts:    d.Alerts,
			Profiles:  d.Profiles,
			Office:    d.Office,
			Dashboard: d.Dashboard,
			Metrics:   d.Metrics,
			Heartbeat: cfg.Store.StreamHeartbeat,
		}
		if d.Gate != nil {
			feeds.Gate = d.Gate
		}
		r.Get("/live/{feed}", controllers.Live(feeds, logg))
	})

	return r
}

func maxUploadBytes(cfg *config.Config) int64 {
	if cfg.Media.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(cfg.Media.MaxUploadMB) << 20
}
