package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Ledger applies the transaction state machine on top of the store.
type Ledger struct {
	repo repository.TransactionRepository
	now  func() time.Time
}

func NewLedger(repo repository.TransactionRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// CreateTransaction records a pending ledger entry.
func (l *Ledger) CreateTransaction(ctx context.Context, in NewTransaction) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, newError(CodeValidation, nil, "Thiếu mã người dùng")
	}
	if in.Amount < 0 {
		return nil, newError(CodeValidation, nil, "Số tiền không hợp lệ")
	}
	currency := in.Currency
	if currency == "" {
		currency = pricing.DefaultCurrency
	}
	tx := &models.PaymentTransaction{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Amount:        in.Amount,
		Currency:      currency,
		PaymentMethod: in.PaymentMethod,
		Status:        models.TransactionStatusPending,
		FromPlan:      in.FromPlan,
		ToPlan:        in.ToPlan,
		UpgradeType:   in.UpgradeType,
		Description:   in.Description,
		CreatedAt:     l.now(),
	}
	if err := l.repo.Create(ctx, tx); err != nil {
		return nil, newError(CodeStoreError, err, "")
	}
	return tx, nil
}

// Get loads one transaction.
func (l *Ledger) Get(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	tx, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newError(CodeNotFound, err, "Không tìm thấy giao dịch")
		}
		return nil, newError(CodeStoreError, err, "")
	}
	return tx, nil
}

// UpdateStatus moves a transaction forward. Backward or sideways moves fail
// with invalid_transition; the write is conditional on the status just read.
func (l *Ledger) UpdateStatus(ctx context.Context, id, status string, upd repository.TransactionUpdate) (*models.PaymentTransaction, error) {
	if !models.IsValidTransactionStatus(status) {
		return nil, newError(CodeValidation, nil, "Trạng thái giao dịch không hợp lệ")
	}
	tx, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(tx.Status, status) {
		return nil, newError(CodeInvalidTransition, nil, "")
	}

	if status == models.TransactionStatusCompleted && upd.PaymentDate == nil {
		paid := l.now()
		upd.PaymentDate = &paid
	}
	if err := l.repo.UpdateStatus(ctx, id, tx.Status, status, upd); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, newError(CodeInvalidTransition, err, "")
		case repository.IsNotFound(err):
			return nil, newError(CodeNotFound, err, "Không tìm thấy giao dịch")
		default:
			return nil, newError(CodeStoreError, err, "")
		}
	}
	upd.Apply(tx, status, l.now())
	return tx, nil
}

// GetHistory returns a user's newest transactions first.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int) ([]models.PaymentTransaction, error) {
	limit = ClampHistoryLimit(limit)
	txs, err := l.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, newError(CodeStoreError, err, "")
	}
	if txs == nil {
		txs = []models.PaymentTransaction{}
	}
	return txs, nil
}

// ClampHistoryLimit applies the default and bounds of history queries.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
