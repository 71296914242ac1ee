package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EduPortal/internal/pkg/statistics"
)

// AdminController exposes operator actions behind basic auth.
type AdminController struct {
	svc       *billing.Service
	scheduler *jobqueue.Manager
	stats     *statistics.Service
}

// NewAdminController builds the controller. scheduler may be nil.
func NewAdminController(svc *billing.Service, scheduler *jobqueue.Manager, stats *statistics.Service) *AdminController {
	return &AdminController{svc: svc, scheduler: scheduler, stats: stats}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type dueRenewalsRequest struct {
	Window string `json:"window"`
}

// HandleExpireMemberships runs the expiry sweep now.
func (ac *AdminController) HandleExpireMemberships(c *fiber.Ctx) error {
	var (
		n   int
		err error
	)
	if ac.scheduler != nil {
		n, err = ac.scheduler.RunExpirySweep(c.UserContext())
	} else {
		n, err = ac.svc.CheckExpiredMemberships(c.UserContext())
	}
	if err != nil {
		if errors.Is(err, jobqueue.ErrSweepSkipped) {
			return respondError(c, &billing.Error{Code: billing.CodeBusy, Message: "Tác vụ đang chạy ở máy chủ khác", Err: err}, nil)
		}
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"expired": n})
}

// HandleProcessDueRenewals renews memberships expiring within window (default 24h).
func (ac *AdminController) HandleProcessDueRenewals(c *fiber.Ctx) error {
	var req dueRenewalsRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondError(c, err, nil)
		}
	}
	window := 24 * time.Hour
	if req.Window != "" {
		d, err := time.ParseDuration(req.Window)
		if err != nil || d <= 0 {
			return respondError(c, &billing.Error{Code: billing.CodeValidation, Message: "Khoảng thời gian không hợp lệ", Err: err}, nil)
		}
		window = d
	}
	summary, err := ac.svc.ProcessDueRenewals(c.UserContext(), window)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"summary": summary})
}

// HandleRefundTransaction marks a completed transaction refunded.
func (ac *AdminController) HandleRefundTransaction(c *fiber.Ctx) error {
	var req refundRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondError(c, err, nil)
		}
	}
	tx, err := ac.svc.RefundTransaction(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"transaction": transactionResponse(tx)})
}

// HandleEnqueueRenewal schedules an asynchronous auto-renewal for a user.
func (ac *AdminController) HandleEnqueueRenewal(c *fiber.Ctx) error {
	q := ac.queue()
	if q == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "queue_unavailable",
			"message": "Hàng đợi tác vụ chưa được cấu hình",
		})
	}
	job, err := q.EnqueueRenewal(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusAccepted, fiber.Map{"job_id": job.ID})
}

// HandleQueueStats reports job queue sizes and counters.
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	q := ac.queue()
	if q == nil {
		return respondOK(c, fiber.StatusOK, fiber.Map{"enabled": false})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	pending, err := q.GetQueueSize(ctx)
	if err != nil {
		return respondError(c, err, nil)
	}
	processing, err := q.GetProcessingSize(ctx)
	if err != nil {
		return respondError(c, err, nil)
	}
	stats, err := q.GetJobStats(ctx)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{
		"enabled":    true,
		"running":    q.IsRunning(),
		"pending":    pending,
		"processing": processing,
		"stats":      stats,
	})
}

// HandleStats reports plan counts and revenue. ?refresh=true skips the cache.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	if ac.stats == nil {
		return respondOK(c, fiber.StatusOK, fiber.Map{"enabled": false})
	}
	ctx := c.UserContext()
	if c.QueryBool("refresh") {
		if err := ac.stats.Invalidate(ctx); err != nil {
			log.Warnf("[API] could not drop cached statistics: %v", err)
		}
	}
	stats, err := ac.stats.GetMembershipStats(ctx)
	if err != nil {
		return respondError(c, err, nil)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"stats": stats})
}

func (ac *AdminController) queue() *jobqueue.Queue {
	if ac.scheduler == nil {
		return nil
	}
	return ac.scheduler.GetQueue()
}
