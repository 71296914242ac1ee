package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository"
	"github.com/ManuelReschke/EduPortal/app/repository/repositorytest"
)

func newTestLedger() (*Ledger, *repositorytest.Transactions) {
	repo := repositorytest.NewTransactions()
	l := NewLedger(repo)
	l.now = func() time.Time { return testNow }
	return l, repo
}

func createPending(t *testing.T, l *Ledger, userID string) *models.PaymentTransaction {
	t.Helper()
	tx, err := l.CreateTransaction(context.Background(), NewTransaction{
		UserID: userID, Amount: 199000, FromPlan: "free", ToPlan: "member", UpgradeType: models.UpgradeTypeNew,
	})
	require.NoError(t, err)
	return tx
}

func TestCreateTransaction(t *testing.T) {
	l, _ := newTestLedger()
	tx := createPending(t, l, "u1")

	_, err := uuid.Parse(tx.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, tx.Status)
	assert.Equal(t, "VND", tx.Currency)
	assert.Nil(t, tx.PaymentDate)

	_, err = l.CreateTransaction(context.Background(), NewTransaction{UserID: " "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.CreateTransaction(context.Background(), NewTransaction{UserID: "u1", Amount: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTransactionStateIsForwardOnly(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()

	tx := createPending(t, l, "u1")
	completed, err := l.UpdateStatus(ctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{GatewayTransactionID: "gw-1"})
	require.NoError(t, err)
	require.NotNil(t, completed.PaymentDate)
	assert.True(t, completed.PaymentDate.Equal(testNow))

	for _, to := range []string{
		models.TransactionStatusPending,
		models.TransactionStatusFailed,
		models.TransactionStatusCancelled,
		models.TransactionStatusCompleted,
	} {
		_, err := l.UpdateStatus(ctx, tx.ID, to, repository.TransactionUpdate{})
		assert.ErrorIs(t, err, ErrInvalidTransition, "completed -> %s", to)
	}

	stored, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)

	_, err = l.UpdateStatus(ctx, tx.ID, models.TransactionStatusRefunded, repository.TransactionUpdate{})
	assert.NoError(t, err)
}

func TestTerminalTransactionsRejectAllMoves(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	for _, terminal := range []string{models.TransactionStatusFailed, models.TransactionStatusCancelled} {
		tx := createPending(t, l, "u1")
		_, err := l.UpdateStatus(ctx, tx.ID, terminal, repository.TransactionUpdate{FailureReason: "x"})
		require.NoError(t, err)

		_, err = l.UpdateStatus(ctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	tx := createPending(t, l, "u1")

	_, err := l.UpdateStatus(ctx, tx.ID, "settled", repository.TransactionUpdate{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = l.UpdateStatus(ctx, "missing", models.TransactionStatusCompleted, repository.TransactionUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)

	repo.FailUpdate = errors.New("db down")
	_, err = l.UpdateStatus(ctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{})
	assert.ErrorIs(t, err, ErrStore)

	repo.FailUpdate = repository.ErrStatusConflict
	_, err = l.UpdateStatus(ctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetHistory(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createPending(t, l, "u1").ID)
	}
	createPending(t, l, "u2")

	history, err := l.GetHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID, "newest first")
	assert.Equal(t, ids[0], history[2].ID)

	history, err = l.GetHistory(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = l.GetHistory(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampHistoryLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampHistoryLimit(-5))
	assert.Equal(t, 1, ClampHistoryLimit(1))
	assert.Equal(t, 42, ClampHistoryLimit(42))
	assert.Equal(t, MaxHistoryLimit, ClampHistoryLimit(1000))
}
