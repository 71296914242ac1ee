package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/entitlements"
	"github.com/ManuelReschke/EduPortal/internal/pkg/usercontext"
	"github.com/ManuelReschke/EduPortal/internal/pkg/utils"
)

// MembershipController serves the caller's own membership.
type MembershipController struct {
	svc *billing.Service
}

func NewMembershipController(svc *billing.Service) *MembershipController {
	return &MembershipController{svc: svc}
}

type upgradeRequest struct {
	Plan           string `json:"plan" validate:"required,max=20"`
	DurationMonths int    `json:"duration_months" validate:"lte=36"`
}

type autoRenewalRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required,max=32"`
	Token  string `json:"token" validate:"required,max=512"`
}

// profileResponse is the public shape of a profile, without the payment token.
func profileResponse(p *models.MembershipProfile) fiber.Map {
	if p == nil {
		return nil
	}
	return fiber.Map{
		"user_id":                p.AuthUserID,
		"email":                  p.Email,
		"full_name":              p.FullName,
		"avatar_url":             utils.AvatarURL(p.Email, 0),
		"email_verified_at":      formatTimePtr(p.EmailVerifiedAt),
		"membership_type":        p.MembershipType,
		"membership_status":      p.MembershipStatus,
		"membership_started_at":  formatTimePtr(p.MembershipStartedAt),
		"membership_expires_at":  formatTimePtr(p.MembershipExpiresAt),
		"auto_renewal":           p.AutoRenewal,
		"payment_method_saved":   p.PaymentMethodSaved,
		"default_payment_method": p.DefaultPaymentMethod,
	}
}

func transactionResponse(t *models.PaymentTransaction) fiber.Map {
	if t == nil {
		return nil
	}
	return fiber.Map{
		"id":             t.ID,
		"amount":         t.Amount,
		"currency":       t.Currency,
		"payment_method": t.PaymentMethod,
		"status":         t.Status,
		"from_plan":      t.FromPlan,
		"to_plan":        t.ToPlan,
		"upgrade_type":   t.UpgradeType,
		"transaction_id": t.GatewayTransactionID,
		"failure_reason": t.FailureReason,
		"payment_date":   formatTimePtr(t.PaymentDate),
		"description":    t.Description,
		"created_at":     formatTimePtr(&t.CreatedAt),
	}
}

func outcomeResponse(out *billing.Outcome) fiber.Map {
	if out == nil {
		return fiber.Map{}
	}
	return fiber.Map{
		"transaction": transactionResponse(out.Transaction),
		"profile":     profileResponse(out.Profile),
	}
}

// HandleGetMembership returns profile, plan and upgrade options.
func (mc *MembershipController) HandleGetMembership(c *fiber.Ctx) error {
	view, err := mc.svc.GetMembership(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{
		"profile":         profileResponse(view.Profile),
		"plan":            view.Plan,
		"formatted_price": view.FormattedPrice,
		"effective_plan":  mc.svc.EffectivePlan(view.Profile),
		"can_upgrade":     view.CanUpgrade,
		"upgrade_options": view.UpgradeOptions,
	})
}

// HandleUpgrade charges the caller and switches the plan.
func (mc *MembershipController) HandleUpgrade(c *fiber.Ctx) error {
	var req upgradeRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err, nil)
	}
	out, err := mc.svc.UpgradeMembership(c.UserContext(), usercontext.GetUserID(c), strings.ToLower(strings.TrimSpace(req.Plan)), req.DurationMonths)
	if err != nil {
		return respondError(c, err, outcomeResponse(out))
	}
	return respondOK(c, fiber.StatusOK, outcomeResponse(out))
}

// HandleRenew runs the caller's auto-renewal now.
func (mc *MembershipController) HandleRenew(c *fiber.Ctx) error {
	out, err := mc.svc.ProcessAutoRenewal(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err, outcomeResponse(out))
	}
	return respondOK(c, fiber.StatusOK, outcomeResponse(out))
}

// HandleSetAutoRenewal toggles auto-renewal.
func (mc *MembershipController) HandleSetAutoRenewal(c *fiber.Ctx) error {
	var req autoRenewalRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err, nil)
	}
	profile, err := mc.svc.SetAutoRenewal(c.UserContext(), usercontext.GetUserID(c), *req.Enabled)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"profile": profileResponse(profile)})
}

// HandleSavePaymentMethod stores the default payment method.
func (mc *MembershipController) HandleSavePaymentMethod(c *fiber.Ctx) error {
	var req paymentMethodRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err, nil)
	}
	profile, err := mc.svc.SavePaymentMethod(c.UserContext(), usercontext.GetUserID(c), req.Method, req.Token)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"profile": profileResponse(profile)})
}

// HandleTransactions lists the caller's payment history.
func (mc *MembershipController) HandleTransactions(c *fiber.Ctx) error {
	limit := billing.ClampHistoryLimit(c.QueryInt("limit", 0))
	txs, err := mc.svc.TransactionHistory(c.UserContext(), usercontext.GetUserID(c), limit)
	if err != nil {
		return respondError(c, err, nil)
	}
	items := make([]fiber.Map, 0, len(txs))
	for i := range txs {
		items = append(items, transactionResponse(&txs[i]))
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"transactions": items, "limit": limit})
}

// HandleAccess answers whether the caller may use features of ?required=.
func (mc *MembershipController) HandleAccess(c *fiber.Ctx) error {
	required := strings.ToLower(strings.TrimSpace(c.Query("required")))
	if !entitlements.IsKnown(required) {
		return respondError(c, billing.ErrInvalidPlan, nil)
	}
	ok, err := mc.svc.CheckAccess(c.UserContext(), usercontext.GetUserID(c), required)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"required": required, "has_access": ok})
}
