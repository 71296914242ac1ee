package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	apiv1 "github.com/ManuelReschke/EduPortal/internal/api/v1"
	"github.com/ManuelReschke/EduPortal/internal/pkg/middleware"
	"github.com/ManuelReschke/EduPortal/internal/pkg/usercontext"
)

// limiterDatabase keeps rate limit counters apart from the job queue and locks.
const limiterDatabase = 2

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// user context first so the limiter can key on the caller
	api := app.Group("/api", middleware.UserContextMiddleware(h.cfg.JWT), h.limiter())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "EduPortal API",
			"version": "v1",
		})
	})

	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer(h.cfg.API), apiv1.Guards{
		User:  middleware.RequireAPIAuth,
		Admin: adminAuth(h.cfg),
	})
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}

func (h ApiRouter) limiter() fiber.Handler {
	conf := limiter.Config{
		Max:        h.cfg.RateLimit,
		Expiration: h.cfg.RateWindow,
		// authenticated callers are limited per user, everyone else per IP
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetUserID(c); id != "" {
				return "user:" + id
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "rate_limited",
				"message": "Bạn gửi quá nhiều yêu cầu, vui lòng thử lại sau",
			})
		},
	}
	if conf.Max <= 0 {
		conf.Max = 60
	}
	if h.cfg.Redis != nil {
		conf.Storage = newLimiterStorage(h.cfg)
	}
	return limiter.New(conf)
}

// newLimiterStorage points fiber's Redis storage at the same server as the
// shared client, on its own database.
func newLimiterStorage(cfg Config) fiber.Storage {
	opts := cfg.Redis.Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
