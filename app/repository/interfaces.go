package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/EduPortal/app/models"
	"gorm.io/gorm"
)

var (
	// ErrVersionConflict is returned when a conditional profile update matched no row.
	ErrVersionConflict = errors.New("repository: profile version conflict")
	// ErrStatusConflict is returned when a transaction no longer has the expected status.
	ErrStatusConflict = errors.New("repository: transaction status conflict")
)

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ProfileRepository is the account store adapter for the membership aspect of profiles.
// It enforces no business rules.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.MembershipProfile, error)
	// Upsert merges patch into the row, inserting a free/active default when absent,
	// and always stamps updated_at.
	Upsert(ctx context.Context, userID string, patch ProfilePatch) (*models.MembershipProfile, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.MembershipProfile, error)
	MarkExpired(ctx context.Context, ids []string, now time.Time) ([]string, error)
	ListAutoRenewDue(ctx context.Context, before time.Time, limit int) ([]models.MembershipProfile, error)
	CountByPlan(ctx context.Context) ([]PlanCount, error)
}

// PlanCount is the number of profiles on one plan in one status.
type PlanCount struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// RevenueSum totals completed payments of one currency.
type RevenueSum struct {
	Currency string `json:"currency"`
	Total    int64  `json:"total"`
	Count    int64  `json:"count"`
}

// TransactionRepository stores ledger rows. Status transitions are validated by the caller.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	// UpdateStatus writes only if the row still has fromStatus.
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, upd TransactionUpdate) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.PaymentTransaction, error)
	// SumCompleted totals completed transactions paid at or after since.
	SumCompleted(ctx context.Context, since time.Time) ([]RevenueSum, error)
}

// TransactionUpdate carries the optional fields written alongside a status change.
type TransactionUpdate struct {
	GatewayTransactionID string
	FailureReason        string
	PaymentDate          *time.Time
	Description          *string
}

// Apply copies the update and new status onto tx.
func (u TransactionUpdate) Apply(tx *models.PaymentTransaction, status string, now time.Time) {
	tx.Status = status
	if u.GatewayTransactionID != "" {
		tx.GatewayTransactionID = u.GatewayTransactionID
	}
	if u.FailureReason != "" {
		tx.FailureReason = u.FailureReason
	}
	if u.PaymentDate != nil {
		d := *u.PaymentDate
		tx.PaymentDate = &d
	}
	if u.Description != nil {
		tx.Description = *u.Description
	}
	tx.UpdatedAt = now
}

func (u TransactionUpdate) columns(status string, now time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	if u.GatewayTransactionID != "" {
		cols["gateway_transaction_id"] = u.GatewayTransactionID
	}
	if u.FailureReason != "" {
		cols["failure_reason"] = u.FailureReason
	}
	if u.PaymentDate != nil {
		cols["payment_date"] = *u.PaymentDate
	}
	if u.Description != nil {
		cols["description"] = *u.Description
	}
	return cols
}

// Repositories holds all repository instances
type Repositories struct {
	Profile     ProfileRepository
	Transaction TransactionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile:     NewProfileRepository(db),
		Transaction: NewTransactionRepository(db),
	}
}
