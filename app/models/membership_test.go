package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{TransactionStatusPending, TransactionStatusCompleted},
		{TransactionStatusPending, TransactionStatusFailed},
		{TransactionStatusPending, TransactionStatusCancelled},
		{TransactionStatusCompleted, TransactionStatusRefunded},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	rejected := [][2]string{
		{TransactionStatusCompleted, TransactionStatusPending},
		{TransactionStatusCompleted, TransactionStatusFailed},
		{TransactionStatusFailed, TransactionStatusCompleted},
		{TransactionStatusRefunded, TransactionStatusCompleted},
		{TransactionStatusCancelled, TransactionStatusPending},
		{TransactionStatusPending, TransactionStatusRefunded},
		{TransactionStatusPending, TransactionStatusPending},
	}
	for _, tr := range rejected {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTransactionIsTerminal(t *testing.T) {
	assert.False(t, (&PaymentTransaction{Status: TransactionStatusPending}).IsTerminal())
	assert.False(t, (&PaymentTransaction{Status: TransactionStatusCompleted}).IsTerminal())
	assert.True(t, (&PaymentTransaction{Status: TransactionStatusFailed}).IsTerminal())
	assert.True(t, (&PaymentTransaction{Status: TransactionStatusRefunded}).IsTerminal())
}

func TestNewFreeProfileValidates(t *testing.T) {
	p := NewFreeProfile("u1")
	require.NoError(t, p.Validate())
	assert.Equal(t, "free", p.MembershipType)
	assert.True(t, p.IsActive())
	assert.Nil(t, p.MembershipExpiresAt)
}

func TestProfileValidateRejectsUnknownPlan(t *testing.T) {
	p := NewFreeProfile("u1")
	p.MembershipType = "gold"
	assert.Error(t, p.Validate())

	p = NewFreeProfile("u1")
	p.MembershipStatus = "paused"
	assert.Error(t, p.Validate())

	p = NewFreeProfile("u1")
	p.Email = "not-an-email"
	assert.Error(t, p.Validate())
}

func TestProfileIsExpiredAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	p := NewFreeProfile("u1")
	assert.False(t, p.IsExpiredAt(now), "nil expiry never expires")

	p.MembershipExpiresAt = &past
	assert.True(t, p.IsExpiredAt(now))

	p.MembershipStatus = MembershipStatusExpired
	assert.False(t, p.IsExpiredAt(now), "already expired rows are not active")

	p.MembershipStatus = MembershipStatusActive
	p.MembershipExpiresAt = &future
	assert.False(t, p.IsExpiredAt(now))
}

func TestHasSavedPaymentMethod(t *testing.T) {
	p := NewFreeProfile("u1")
	assert.False(t, p.HasSavedPaymentMethod())
	p.PaymentMethodSaved = true
	assert.False(t, p.HasSavedPaymentMethod())
	p.DefaultPaymentMethod = "vnpay"
	assert.True(t, p.HasSavedPaymentMethod())
}
