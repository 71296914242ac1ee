package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/EduPortal/app/models"
	"gorm.io/gorm"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a new ledger row
func (r *transactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// GetByID retrieves a transaction by its ID
func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateStatus performs a compare-and-set on the status column.
func (r *transactionRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, upd TransactionUpdate) error {
	res := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(upd.columns(toStatus, time.Now()))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStatusConflict
}

// ListByUser returns the newest transactions of a user first
func (r *transactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// SumCompleted returns revenue per currency since the given time
func (r *transactionRepository) SumCompleted(ctx context.Context, since time.Time) ([]RevenueSum, error) {
	var rows []RevenueSum
	err := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("status = ? AND payment_date >= ?", models.TransactionStatusCompleted, since).
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	return rows, err
}
