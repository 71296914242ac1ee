package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/security"
	"github.com/ManuelReschke/EduPortal/internal/pkg/usercontext"
)

// VerificationController confirms email addresses with emailed one-time codes.
type VerificationController struct {
	svc        *billing.Service
	challenges *security.ChallengeService
	notifier   mail.Notifier
	ttl        time.Duration
}

func NewVerificationController(svc *billing.Service, challenges *security.ChallengeService, notifier mail.Notifier, ttl time.Duration) *VerificationController {
	if ttl <= 0 {
		ttl = security.DefaultChallengeTTL
	}
	return &VerificationController{svc: svc, challenges: challenges, notifier: notifier, ttl: ttl}
}

type startVerificationRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=200"`
}

type confirmVerificationRequest struct {
	Token string `json:"token" validate:"required,uuid"`
	Code  string `json:"code" validate:"required,numeric,len=6"`
}

var verdictMessages = map[security.Verdict]string{
	security.VerdictInvalid:   "Mã xác thực không đúng",
	security.VerdictExpired:   "Mã xác thực đã hết hạn",
	security.VerdictExhausted: "Bạn đã nhập sai quá nhiều lần, vui lòng yêu cầu mã mới",
}

// HandleStartEmailVerification emails a code for the given or token email.
func (vc *VerificationController) HandleStartEmailVerification(c *fiber.Ctx) error {
	var req startVerificationRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondError(c, err, nil)
		}
	}
	uc := usercontext.GetUserContext(c)
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = uc.Email
	}
	if email == "" {
		return respondError(c, &billing.Error{Code: billing.CodeValidation, Message: "Thiếu địa chỉ email"}, nil)
	}

	ctx := c.UserContext()
	// the profile must exist before the verified address can be stored
	if _, err := vc.svc.GetMembership(ctx, uc.UserID); err != nil {
		return respondError(c, err, nil)
	}

	token, code, err := vc.challenges.CreateChallenge(ctx, uc.UserID, security.PurposeEmailVerification, email, vc.ttl)
	if err != nil {
		return respondError(c, err, nil)
	}
	err = vc.notifier.Notify(ctx, email, mail.TemplateEmailVerification, map[string]any{
		"Code":       code,
		"TTLMinutes": int(vc.ttl / time.Minute),
	})
	if err != nil {
		log.Errorf("[Verification] failed to send code to user %s: %v", uc.UserID, err)
		return respondError(c, err, nil)
	}

	return respondOK(c, fiber.StatusAccepted, fiber.Map{
		"token":      token,
		"expires_in": int(vc.ttl / time.Second),
	})
}

// HandleConfirmEmailVerification checks the code and marks the email verified.
func (vc *VerificationController) HandleConfirmEmailVerification(c *fiber.Ctx) error {
	var req confirmVerificationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err, nil)
	}
	uc := usercontext.GetUserContext(c)
	ctx := c.UserContext()

	verdict, challenge, err := vc.challenges.VerifyChallenge(ctx, req.Token, uc.UserID, security.PurposeEmailVerification, req.Code)
	if err != nil {
		return respondError(c, err, nil)
	}
	if verdict != security.VerdictValid {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   "verification_" + string(verdict),
			"verdict": verdict,
			"message": verdictMessages[verdict],
		})
	}

	profile, err := vc.svc.MarkEmailVerified(ctx, uc.UserID, challenge.Payload)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{
		"verdict": verdict,
		"profile": profileResponse(profile),
	})
}
