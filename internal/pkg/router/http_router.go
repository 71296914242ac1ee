package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter serves the operational endpoints outside the versioned API.
type HttpRouter struct {
	cfg Config
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.handleHealth)
	app.Get("/metrics", adminAuth(h.cfg), adaptor.HTTPHandler(promhttp.Handler()))
}

func NewHttpRouter(cfg Config) *HttpRouter {
	return &HttpRouter{cfg: cfg}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok", "redis": "disabled"}
	if h.cfg.Redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		if err := h.cfg.Redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "ok"
		}
	}
	return c.JSON(status)
}

// adminAuth guards operator routes with HTTP basic auth. Without a configured
// password every request is refused.
func adminAuth(cfg Config) fiber.Handler {
	if cfg.AdminPassword == "" {
		log.Warn("[Security] ADMIN_PASSWORD is not set, admin routes are disabled")
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "unauthorized",
				"message": "Khu vực quản trị chưa được cấu hình",
			})
		}
	}
	return basicauth.New(basicauth.Config{
		Users: map[string]string{cfg.AdminUser: cfg.AdminPassword},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="Restricted"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "unauthorized",
				"message": "Sai thông tin đăng nhập quản trị",
			})
		},
	})
}
