package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MembershipStatusActive    = "active"
	MembershipStatusExpired   = "expired"
	MembershipStatusSuspended = "suspended"
	MembershipStatusCancelled = "cancelled"
)

// MembershipProfile is the membership aspect of an account row in "profiles".
// Identity (ID, AuthUserID) is owned by the identity provider.
type MembershipProfile struct {
	ID                   string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	AuthUserID           string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"auth_user_id" validate:"required,max=64"`
	Email                string     `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email,max=200"`
	FullName             string     `gorm:"type:varchar(150);default:''" json:"full_name" validate:"max=150"`
	EmailVerifiedAt      *time.Time `gorm:"type:timestamp;default:null" json:"email_verified_at,omitempty"`
	MembershipType       string     `gorm:"type:varchar(20);not null;default:'free';index" json:"membership_type" validate:"oneof=free member premium"`
	MembershipStatus     string     `gorm:"type:varchar(20);not null;default:'active';index:idx_profiles_status_expires,priority:1" json:"membership_status" validate:"oneof=active expired suspended cancelled"`
	MembershipStartedAt  *time.Time `gorm:"type:timestamp;default:null" json:"membership_started_at,omitempty"`
	MembershipExpiresAt  *time.Time `gorm:"type:timestamp;default:null;index:idx_profiles_status_expires,priority:2" json:"membership_expires_at"`
	AutoRenewal          bool       `gorm:"default:false" json:"auto_renewal"`
	PaymentMethodSaved   bool       `gorm:"default:false" json:"payment_method_saved"`
	DefaultPaymentMethod string     `gorm:"type:varchar(32);default:''" json:"default_payment_method" validate:"max=32"`
	PaymentMethodToken   string     `gorm:"type:text" json:"-"`
	Version              int        `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MembershipProfile) TableName() string {
	return "profiles"
}

func (p *MembershipProfile) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// NewFreeProfile returns the registration default: free tier, active, no expiry.
func NewFreeProfile(userID string) *MembershipProfile {
	return &MembershipProfile{
		ID:               userID,
		AuthUserID:       userID,
		MembershipType:   "free",
		MembershipStatus: MembershipStatusActive,
		Version:          1,
	}
}

func (p *MembershipProfile) IsActive() bool {
	return p != nil && p.MembershipStatus == MembershipStatusActive
}

// IsExpiredAt reports whether an active membership has passed its expiry.
// A nil expiry never expires.
func (p *MembershipProfile) IsExpiredAt(now time.Time) bool {
	if p == nil || p.MembershipExpiresAt == nil {
		return false
	}
	return p.MembershipStatus == MembershipStatusActive && p.MembershipExpiresAt.Before(now)
}

// HasSavedPaymentMethod reports whether a default method is on file for auto-renewal.
func (p *MembershipProfile) HasSavedPaymentMethod() bool {
	return p != nil && p.PaymentMethodSaved && p.DefaultPaymentMethod != ""
}
