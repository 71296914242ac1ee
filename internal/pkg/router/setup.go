package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	apiv1 "github.com/ManuelReschke/EduPortal/internal/api/v1"
	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/middleware"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries everything the routers need. Redis is optional; without it
// the rate limiter keeps its counters in memory.
type Config struct {
	API           apiv1.Dependencies
	JWT           middleware.JWTConfig
	Redis         *redis.Client
	AdminUser     string
	AdminPassword string
	RateLimit     int
	RateWindow    time.Duration
}

// ConfigFromEnv fills the auth and rate limit settings from the environment.
func ConfigFromEnv(api apiv1.Dependencies, rdb *redis.Client) Config {
	return Config{
		API:           api,
		JWT:           middleware.JWTConfigFromEnv(),
		Redis:         rdb,
		AdminUser:     env.GetEnv("ADMIN_USER", "admin"),
		AdminPassword: env.GetEnv("ADMIN_PASSWORD", ""),
		RateLimit:     env.GetEnvInt("API_RATE_LIMIT", 60),
		RateWindow:    env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
	}
}

func InstallRouter(app *fiber.App, cfg Config) {
	// System routes first so /metrics and /healthz bypass the API limiter.
	setup(app, NewHttpRouter(cfg), NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
