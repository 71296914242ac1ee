package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// ServerInterface lists the v1 operations documented in public/docs/v1/openapi.yml.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetPlans(c *fiber.Ctx) error
	GetPopularPlan(c *fiber.Ctx) error
	GetPlan(c *fiber.Ctx, code string) error

	GetMembership(c *fiber.Ctx) error
	PostMembershipUpgrade(c *fiber.Ctx) error
	PostMembershipRenew(c *fiber.Ctx) error
	PutAutoRenewal(c *fiber.Ctx) error
	PutPaymentMethod(c *fiber.Ctx) error
	GetTransactions(c *fiber.Ctx) error
	GetAccess(c *fiber.Ctx) error
	PostEmailVerification(c *fiber.Ctx) error
	PostEmailVerificationConfirm(c *fiber.Ctx) error

	PostAdminExpire(c *fiber.Ctx) error
	PostAdminDueRenewals(c *fiber.Ctx) error
	PostAdminRefund(c *fiber.Ctx, id string) error
	PostAdminEnqueueRenewal(c *fiber.Ctx, userID string) error
	GetAdminQueue(c *fiber.Ctx) error
	GetAdminStats(c *fiber.Ctx) error
}

// Guards are the middlewares placed in front of protected route groups.
// A nil guard leaves the group open.
type Guards struct {
	User  fiber.Handler
	Admin fiber.Handler
}

// serverInterfaceWrapper converts path parameters before calling the handler.
type serverInterfaceWrapper struct {
	handler ServerInterface
}

func (w *serverInterfaceWrapper) GetPlan(c *fiber.Ctx) error {
	return w.handler.GetPlan(c, c.Params("code"))
}

func (w *serverInterfaceWrapper) PostAdminRefund(c *fiber.Ctx) error {
	return w.handler.PostAdminRefund(c, c.Params("id"))
}

func (w *serverInterfaceWrapper) PostAdminEnqueueRenewal(c *fiber.Ctx) error {
	return w.handler.PostAdminEnqueueRenewal(c, c.Params("user_id"))
}

func withGuard(guard fiber.Handler, h fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{guard, h}
}

// RegisterHandlers mounts every v1 route on router.
func RegisterHandlers(router fiber.Router, si ServerInterface, guards Guards) {
	w := &serverInterfaceWrapper{handler: si}

	router.Get("/ping", si.GetPing)
	router.Get("/plans", si.GetPlans)
	// registered before /plans/:code so "popular" is not taken as a code
	router.Get("/plans/popular", si.GetPopularPlan)
	router.Get("/plans/:code", w.GetPlan)

	user := func(h fiber.Handler) []fiber.Handler { return withGuard(guards.User, h) }
	router.Get("/membership", user(si.GetMembership)...)
	router.Post("/membership/upgrade", user(si.PostMembershipUpgrade)...)
	router.Post("/membership/renew", user(si.PostMembershipRenew)...)
	router.Put("/membership/auto-renewal", user(si.PutAutoRenewal)...)
	router.Put("/membership/payment-method", user(si.PutPaymentMethod)...)
	router.Get("/membership/transactions", user(si.GetTransactions)...)
	router.Get("/membership/access", user(si.GetAccess)...)
	router.Post("/verification/email", user(si.PostEmailVerification)...)
	router.Post("/verification/email/confirm", user(si.PostEmailVerificationConfirm)...)

	admin := func(h fiber.Handler) []fiber.Handler { return withGuard(guards.Admin, h) }
	router.Post("/admin/memberships/expire", admin(si.PostAdminExpire)...)
	router.Post("/admin/memberships/renew-due", admin(si.PostAdminDueRenewals)...)
	router.Post("/admin/memberships/:user_id/renew", admin(w.PostAdminEnqueueRenewal)...)
	router.Post("/admin/transactions/:id/refund", admin(w.PostAdminRefund)...)
	router.Get("/admin/queue", admin(si.GetAdminQueue)...)
	router.Get("/admin/stats", admin(si.GetAdminStats)...)
}
