package billing

import (
	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/internal/pkg/entitlements"
)

// upgradeOrder lists tiers from lowest to highest rank.
var upgradeOrder = []entitlements.Plan{
	entitlements.PlanFree,
	entitlements.PlanMember,
	entitlements.PlanPremium,
}

// CanUpgrade reports whether an active profile has a higher tier available.
func CanUpgrade(p *models.MembershipProfile) bool {
	if !p.IsActive() {
		return false
	}
	return entitlements.Normalize(p.MembershipType) != entitlements.PlanPremium
}

// GetUpgradeOptions lists the tiers above the profile's current one, lowest first.
func GetUpgradeOptions(p *models.MembershipProfile) []string {
	options := []string{}
	if p == nil {
		return options
	}
	current := entitlements.Rank(p.MembershipType)
	for _, plan := range upgradeOrder {
		if entitlements.Rank(string(plan)) > current {
			options = append(options, string(plan))
		}
	}
	return options
}

func isEligibleUpgrade(p *models.MembershipProfile, target string) bool {
	return p.IsActive() && entitlements.Rank(target) > entitlements.Rank(p.MembershipType)
}

func upgradeTypeFor(fromPlan string) string {
	if entitlements.Normalize(fromPlan) == entitlements.PlanFree {
		return models.UpgradeTypeNew
	}
	return models.UpgradeTypeUpgrade
}

func isPaidPlan(plan string) bool {
	return entitlements.IsKnown(plan) && entitlements.Normalize(plan) != entitlements.PlanFree
}
