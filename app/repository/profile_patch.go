package repository

import (
	"time"

	"github.com/ManuelReschke/EduPortal/app/models"
)

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Email                *string
	FullName             *string
	EmailVerifiedAt      *time.Time
	MembershipType       *string
	MembershipStatus     *string
	MembershipStartedAt  *time.Time
	MembershipExpiresAt  *time.Time
	ClearExpiresAt       bool
	AutoRenewal          *bool
	PaymentMethodSaved   *bool
	DefaultPaymentMethod *string
	PaymentMethodToken   *string

	// ExpectedVersion makes the update conditional on the row's version.
	ExpectedVersion *int
}

func String(v string) *string { return &v }
func Bool(v bool) *bool       { return &v }
func Int(v int) *int          { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// Apply merges the patch into p in place.
func (patch ProfilePatch) Apply(p *models.MembershipProfile) {
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.EmailVerifiedAt != nil {
		p.EmailVerifiedAt = timePtr(*patch.EmailVerifiedAt)
	}
	if patch.MembershipType != nil {
		p.MembershipType = *patch.MembershipType
	}
	if patch.MembershipStatus != nil {
		p.MembershipStatus = *patch.MembershipStatus
	}
	if patch.MembershipStartedAt != nil {
		p.MembershipStartedAt = timePtr(*patch.MembershipStartedAt)
	}
	if patch.ClearExpiresAt {
		p.MembershipExpiresAt = nil
	} else if patch.MembershipExpiresAt != nil {
		p.MembershipExpiresAt = timePtr(*patch.MembershipExpiresAt)
	}
	if patch.AutoRenewal != nil {
		p.AutoRenewal = *patch.AutoRenewal
	}
	if patch.PaymentMethodSaved != nil {
		p.PaymentMethodSaved = *patch.PaymentMethodSaved
	}
	if patch.DefaultPaymentMethod != nil {
		p.DefaultPaymentMethod = *patch.DefaultPaymentMethod
	}
	if patch.PaymentMethodToken != nil {
		p.PaymentMethodToken = *patch.PaymentMethodToken
	}
}

// columns returns the column/value map for a gorm Updates call.
func (patch ProfilePatch) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if patch.Email != nil {
		cols["email"] = *patch.Email
	}
	if patch.FullName != nil {
		cols["full_name"] = *patch.FullName
	}
	if patch.EmailVerifiedAt != nil {
		cols["email_verified_at"] = *patch.EmailVerifiedAt
	}
	if patch.MembershipType != nil {
		cols["membership_type"] = *patch.MembershipType
	}
	if patch.MembershipStatus != nil {
		cols["membership_status"] = *patch.MembershipStatus
	}
	if patch.MembershipStartedAt != nil {
		cols["membership_started_at"] = *patch.MembershipStartedAt
	}
	if patch.ClearExpiresAt {
		cols["membership_expires_at"] = nil
	} else if patch.MembershipExpiresAt != nil {
		cols["membership_expires_at"] = *patch.MembershipExpiresAt
	}
	if patch.AutoRenewal != nil {
		cols["auto_renewal"] = *patch.AutoRenewal
	}
	if patch.PaymentMethodSaved != nil {
		cols["payment_method_saved"] = *patch.PaymentMethodSaved
	}
	if patch.DefaultPaymentMethod != nil {
		cols["default_payment_method"] = *patch.DefaultPaymentMethod
	}
	if patch.PaymentMethodToken != nil {
		cols["payment_method_token"] = *patch.PaymentMethodToken
	}
	return cols
}
