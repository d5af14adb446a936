package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/auth"
	"github.com/otpgate/otpgate/internal/config"
	"github.com/otpgate/otpgate/internal/identity"
	"github.com/otpgate/otpgate/internal/login"
	"github.com/otpgate/otpgate/internal/metrics"
	"github.com/otpgate/otpgate/internal/middleware"
	"github.com/otpgate/otpgate/internal/notification"
	"github.com/otpgate/otpgate/internal/otp"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Optional overrides, mainly for tests.
	Users      identity.Repository
	Provider   otp.Provider
	Registry   *prometheus.Registry
	BcryptCost int
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Users == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, m))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Services and handlers
	users := d.Users
	if users == nil {
		if d.DB != nil {
			users = identity.NewPostgresRepository(d.DB)
		} else {
			users = identity.NewMemoryRepository()
		}
	}
	identitySvc := identity.NewService(users, d.BcryptCost)

	provider, err := newProvider(d)
	if err != nil {
		return err
	}
	dispatcher := otp.NewDispatcher(provider, otp.Method(d.Cfg.OTP.Method))
	validator := otp.NewValidator(provider)

	sessions := auth.NewService(d.Cfg.Session, d.Cache)
	orchestrator := login.NewOrchestrator(identitySvc, dispatcher, validator, sessions, d.Logger, m)

	loginHandler := login.NewHandler(orchestrator)
	authHandler := auth.NewHandler(sessions)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit)
	idempotency := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterLoginRoutes(api, loginHandler, rateLimiter, idempotency)

	// Protected routes
	RegisterSessionRoutes(api, authHandler, middleware.SessionAuth(sessions))

	return nil
}

func newProvider(d Deps) (otp.Provider, error) {
	if d.Provider != nil {
		return d.Provider, nil
	}
	switch d.Cfg.OTP.Provider {
	case config.ProviderHTTP:
		return otp.NewHTTPProvider(otp.HTTPConfig{
			BaseURL: d.Cfg.OTP.APIURL,
			APIKey:  d.Cfg.OTP.APIKey,
			Timeout: d.Cfg.OTP.Timeout,
		})
	case config.ProviderRedis, "":
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required for OTP_PROVIDER=%s", config.ProviderRedis)
		}
		return otp.NewRedisProvider(d.Cache, notification.NewLoggerNotifier(d.Logger), otp.RedisConfig{
			CodeTTL:      d.Cfg.OTP.CodeTTL,
			Digits:       d.Cfg.OTP.Digits,
			MaxChecks:    d.Cfg.OTP.MaxChecks,
			SendsPerHour: d.Cfg.OTP.SendsPerHour,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OTP provider %q", d.Cfg.OTP.Provider)
	}
}
