package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

// PlanController exposes the pricing catalog.
type PlanController struct {
	catalog *pricing.Catalog
}

func NewPlanController(catalog *pricing.Catalog) *PlanController {
	return &PlanController{catalog: catalog}
}

func planResponse(p pricing.Plan) fiber.Map {
	return fiber.Map{
		"code":            p.Code,
		"name":            p.Name,
		"price":           p.Price,
		"currency":        p.Currency,
		"formatted_price": pricing.FormatPrice(p.Price, p.Currency),
		"billing_cycle":   p.BillingCycle,
		"limits":          p.Limits,
		"features":        p.Features,
		"is_popular":      p.IsPopular,
	}
}

// HandleListPlans returns the active plans in catalog order.
func (pc *PlanController) HandleListPlans(c *fiber.Ctx) error {
	plans := pc.catalog.GetActivePlans()
	items := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		items = append(items, planResponse(p))
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"plans": items})
}

// HandlePopularPlan returns the highlighted plan.
func (pc *PlanController) HandlePopularPlan(c *fiber.Ctx) error {
	p, ok := pc.catalog.GetPopularPlan()
	if !ok {
		return respondError(c, billing.ErrNotFound, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"plan": planResponse(p)})
}

// HandleGetPlan returns one plan by code.
func (pc *PlanController) HandleGetPlan(c *fiber.Ctx) error {
	p, ok := pc.catalog.GetPlanByCode(strings.ToLower(strings.TrimSpace(c.Params("code"))))
	if !ok || !p.IsActive {
		return respondError(c, billing.ErrInvalidPlan, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"plan": planResponse(p)})
}
