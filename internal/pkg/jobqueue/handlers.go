package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
)

// QueueNotifier implements mail.Notifier by enqueueing a send_email job, so
// delivery survives restarts and transient transport errors are retried.
type QueueNotifier struct {
	queue *Queue
}

func NewQueueNotifier(q *Queue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, to, template string, data map[string]any) error {
	if strings.TrimSpace(to) == "" {
		return mail.ErrNoRecipient
	}
	payload := EmailJobPayload{To: to, Template: template, Data: make(map[string]string, len(data))}
	for k, v := range data {
		payload.Data[k] = fmt.Sprint(v)
	}
	_, err := n.queue.EnqueueJob(ctx, JobTypeSendEmail, payload.ToMap())
	return err
}

// EmailHandler delivers send_email jobs through notifier.
func EmailHandler(notifier mail.Notifier) Handler {
	return func(ctx context.Context, job *Job) error {
		p, err := EmailJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(fmt.Errorf("decode email payload: %w", err))
		}
		data := make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			data[k] = v
		}
		err = notifier.Notify(ctx, p.To, p.Template, data)
		if errors.Is(err, mail.ErrNoRecipient) || errors.Is(err, mail.ErrUnknownTemplate) {
			return Permanent(err)
		}
		return err
	}
}

// Renewer is the part of billing.Service a renewal job needs.
type Renewer interface {
	ProcessAutoRenewal(ctx context.Context, userID string) (*billing.Outcome, error)
}

// RenewalHandler runs the auto-renewal of the user named in the job. Only
// store and lock errors are retried; a second charge attempt after a decline
// is left to the next scheduled sweep. A renewal whose charge is still
// pending needs reconciliation and is not retried; a completed charge is
// retried so the extension lands without charging again.
func RenewalHandler(r Renewer) Handler {
	return func(ctx context.Context, job *Job) error {
		p, err := RenewalJobPayloadFromMap(job.Payload)
		if err != nil || strings.TrimSpace(p.UserID) == "" {
			return Permanent(fmt.Errorf("invalid renewal payload: %v", job.Payload))
		}
		out, err := r.ProcessAutoRenewal(ctx, p.UserID)
		if err == nil {
			return nil
		}
		if out != nil && out.Transaction != nil && out.Transaction.Status == models.TransactionStatusPending {
			return Permanent(err)
		}
		switch billing.CodeOf(err) {
		case billing.CodeStoreError, billing.CodeBusy:
			return err
		default:
			return Permanent(err)
		}
	}
}

// EnqueueRenewal schedules an asynchronous auto-renewal for userID.
func (q *Queue) EnqueueRenewal(ctx context.Context, userID string) (*Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	return q.EnqueueJob(ctx, JobTypeRenewal, RenewalJobPayload{UserID: userID}.ToMap())
}
