package jobqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
)

type capturedMail struct {
	to       string
	template string
	data     map[string]any
}

type captureNotifier struct {
	sent []capturedMail
	err  error
}

func (c *captureNotifier) Notify(_ context.Context, to, template string, data map[string]any) error {
	c.sent = append(c.sent, capturedMail{to: to, template: template, data: data})
	return c.err
}

func TestEmailHandler(t *testing.T) {
	n := &captureNotifier{}
	h := EmailHandler(n)
	job := &Job{Payload: EmailJobPayload{
		To:       "lan@example.vn",
		Template: mail.TemplateMembershipExpired,
		Data:     map[string]string{"Name": "Lan"},
	}.ToMap()}

	require.NoError(t, h(context.Background(), job))
	require.Len(t, n.sent, 1)
	assert.Equal(t, "lan@example.vn", n.sent[0].to)
	assert.Equal(t, mail.TemplateMembershipExpired, n.sent[0].template)
	assert.Equal(t, "Lan", n.sent[0].data["Name"])
}

func TestEmailHandlerErrorClassification(t *testing.T) {
	job := &Job{Payload: EmailJobPayload{To: "a@b.vn", Template: "x"}.ToMap()}

	transient := errors.New("connection reset")
	err := EmailHandler(&captureNotifier{err: transient})(context.Background(), job)
	assert.ErrorIs(t, err, transient)
	assert.False(t, isPermanent(err))

	err = EmailHandler(&captureNotifier{err: mail.ErrUnknownTemplate})(context.Background(), job)
	assert.True(t, isPermanent(err))

	err = EmailHandler(&captureNotifier{})(context.Background(), &Job{Payload: map[string]interface{}{"to": 1}})
	assert.True(t, isPermanent(err))
}

func TestQueueNotifierRejectsEmptyRecipient(t *testing.T) {
	n := NewQueueNotifier(NewQueue(nil, 1))
	assert.ErrorIs(t, n.Notify(context.Background(), " ", mail.TemplateMembershipRenewed, nil), mail.ErrNoRecipient)
}

type fakeRenewer struct {
	userID string
	err    error
	tx     *models.PaymentTransaction
}

func (f *fakeRenewer) ProcessAutoRenewal(_ context.Context, userID string) (*billing.Outcome, error) {
	f.userID = userID
	return &billing.Outcome{Success: f.err == nil, Transaction: f.tx}, f.err
}

func TestRenewalHandler(t *testing.T) {
	job := &Job{Payload: RenewalJobPayload{UserID: "u7"}.ToMap()}

	r := &fakeRenewer{}
	require.NoError(t, RenewalHandler(r)(context.Background(), job))
	assert.Equal(t, "u7", r.userID)

	pending := &models.PaymentTransaction{ID: "tx1", Status: models.TransactionStatusPending}
	completed := &models.PaymentTransaction{ID: "tx1", Status: models.TransactionStatusCompleted}
	tests := []struct {
		name      string
		err       error
		tx        *models.PaymentTransaction
		permanent bool
	}{
		{"store errors retry", billing.ErrStore, nil, false},
		{"busy retries", billing.ErrBusy, nil, false},
		{"declines wait for the next sweep", billing.ErrGatewayFailure, nil, true},
		{"ineligible users are dropped", billing.ErrNotEligible, nil, true},
		{"pending charge needs reconciliation", billing.ErrStore, pending, true},
		{"completed charge retries the extension", billing.ErrStore, completed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RenewalHandler(&fakeRenewer{err: tt.err, tx: tt.tx})(context.Background(), job)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, isPermanent(err))
		})
	}

	err := RenewalHandler(r)(context.Background(), &Job{Payload: map[string]interface{}{}})
	assert.True(t, isPermanent(err))
}

func TestQueueNotifierEnqueuesEmail(t *testing.T) {
	q := newRedisQueue(t)
	n := NewQueueNotifier(q)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "lan@example.vn", mail.TemplateMembershipRenewed, map[string]any{"Plan": "Cao cấp"}))

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobTypeSendEmail, job.Type)
	p, err := EmailJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Cao cấp", p.Data["Plan"])
}
