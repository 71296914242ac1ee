package billing

import (
	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

// Outcome is the result of a charge-backed membership change.
type Outcome struct {
	Success     bool                       `json:"success"`
	Transaction *models.PaymentTransaction `json:"transaction,omitempty"`
	Profile     *models.MembershipProfile  `json:"profile,omitempty"`
}

// MembershipView is the read model of a user's membership.
type MembershipView struct {
	Profile        *models.MembershipProfile `json:"profile"`
	Plan           pricing.Plan              `json:"plan"`
	FormattedPrice string                    `json:"formatted_price"`
	CanUpgrade     bool                      `json:"can_upgrade"`
	UpgradeOptions []string                  `json:"upgrade_options"`
}

// NewTransaction is the input for a ledger entry. Status is always pending.
type NewTransaction struct {
	UserID        string
	Amount        int64
	Currency      string
	PaymentMethod string
	FromPlan      string
	ToPlan        string
	UpgradeType   string
	Description   string
}

// RenewalSummary aggregates a batch renewal run.
type RenewalSummary struct {
	Attempted int `json:"attempted"`
	Renewed   int `json:"renewed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
