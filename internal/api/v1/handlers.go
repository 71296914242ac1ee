package apiv1

import (
	"time"

	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep response shapes in one place
	"github.com/ManuelReschke/EduPortal/app/controllers"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/security"
	"github.com/ManuelReschke/EduPortal/internal/pkg/statistics"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// Dependencies are the collaborators behind the v1 API.
type Dependencies struct {
	Billing         *billing.Service
	Challenges      *security.ChallengeService
	Notifier        mail.Notifier
	Scheduler       *jobqueue.Manager
	Stats           *statistics.Service
	VerificationTTL time.Duration
}

// APIServer implements ServerInterface
type APIServer struct {
	plans        *controllers.PlanController
	membership   *controllers.MembershipController
	verification *controllers.VerificationController
	admin        *controllers.AdminController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(deps Dependencies) *APIServer {
	return &APIServer{
		plans:        controllers.NewPlanController(deps.Billing.Catalog()),
		membership:   controllers.NewMembershipController(deps.Billing),
		verification: controllers.NewVerificationController(deps.Billing, deps.Challenges, deps.Notifier, deps.VerificationTTL),
		admin:        controllers.NewAdminController(deps.Billing, deps.Scheduler, deps.Stats),
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

func (s *APIServer) GetPlans(c *fiber.Ctx) error { return s.plans.HandleListPlans(c) }

func (s *APIServer) GetPopularPlan(c *fiber.Ctx) error { return s.plans.HandlePopularPlan(c) }

func (s *APIServer) GetPlan(c *fiber.Ctx, code string) error { return s.plans.HandleGetPlan(c) }

func (s *APIServer) GetMembership(c *fiber.Ctx) error { return s.membership.HandleGetMembership(c) }

func (s *APIServer) PostMembershipUpgrade(c *fiber.Ctx) error { return s.membership.HandleUpgrade(c) }

func (s *APIServer) PostMembershipRenew(c *fiber.Ctx) error { return s.membership.HandleRenew(c) }

func (s *APIServer) PutAutoRenewal(c *fiber.Ctx) error { return s.membership.HandleSetAutoRenewal(c) }

func (s *APIServer) PutPaymentMethod(c *fiber.Ctx) error {
	return s.membership.HandleSavePaymentMethod(c)
}

func (s *APIServer) GetTransactions(c *fiber.Ctx) error { return s.membership.HandleTransactions(c) }

func (s *APIServer) GetAccess(c *fiber.Ctx) error { return s.membership.HandleAccess(c) }

func (s *APIServer) PostEmailVerification(c *fiber.Ctx) error {
	return s.verification.HandleStartEmailVerification(c)
}

func (s *APIServer) PostEmailVerificationConfirm(c *fiber.Ctx) error {
	return s.verification.HandleConfirmEmailVerification(c)
}

func (s *APIServer) PostAdminExpire(c *fiber.Ctx) error { return s.admin.HandleExpireMemberships(c) }

func (s *APIServer) PostAdminDueRenewals(c *fiber.Ctx) error {
	return s.admin.HandleProcessDueRenewals(c)
}

func (s *APIServer) PostAdminRefund(c *fiber.Ctx, id string) error {
	return s.admin.HandleRefundTransaction(c)
}

func (s *APIServer) PostAdminEnqueueRenewal(c *fiber.Ctx, userID string) error {
	return s.admin.HandleEnqueueRenewal(c)
}

func (s *APIServer) GetAdminQueue(c *fiber.Ctx) error { return s.admin.HandleQueueStats(c) }

func (s *APIServer) GetAdminStats(c *fiber.Ctx) error { return s.admin.HandleStats(c) }
