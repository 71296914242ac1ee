package models

import "time"

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
	TransactionStatusRefunded  = "refunded"
)

const (
	UpgradeTypeNew     = "new"
	UpgradeTypeUpgrade = "upgrade"
	UpgradeTypeRenewal = "renewal"
)

// transactionTransitions is the forward-only state machine of the ledger.
var transactionTransitions = map[string][]string{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusCompleted: {TransactionStatusRefunded},
}

// CanTransition reports whether a transaction may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidTransactionStatus reports whether status is one of the ledger statuses.
func IsValidTransactionStatus(status string) bool {
	switch status {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentTransaction is one entry of the billing ledger. Rows are never deleted.
type PaymentTransaction struct {
	ID                   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID               string     `gorm:"type:varchar(64);not null;index:idx_payment_transactions_user_created,priority:1" json:"user_id"`
	Amount               int64      `gorm:"not null;default:0" json:"amount"`
	Currency             string     `gorm:"type:varchar(8);not null;default:'VND'" json:"currency"`
	PaymentMethod        string     `gorm:"type:varchar(32);default:''" json:"payment_method"`
	Status               string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	FromPlan             string     `gorm:"type:varchar(20);not null" json:"from_plan"`
	ToPlan               string     `gorm:"type:varchar(20);not null" json:"to_plan"`
	UpgradeType          string     `gorm:"type:varchar(16);not null" json:"upgrade_type"`
	GatewayTransactionID string     `gorm:"type:varchar(191);default:''" json:"transaction_id,omitempty"`
	FailureReason        string     `gorm:"type:text" json:"failure_reason,omitempty"`
	PaymentDate          *time.Time `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	Description          string     `gorm:"type:text" json:"description"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index:idx_payment_transactions_user_created,priority:2" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// IsTerminal reports whether no further transition is possible.
func (t *PaymentTransaction) IsTerminal() bool {
	return len(transactionTransitions[t.Status]) == 0
}
