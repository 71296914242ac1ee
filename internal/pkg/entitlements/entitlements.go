package entitlements

import (
	"strings"

	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

type Plan = pricing.Code

const (
	PlanFree    = pricing.CodeFree
	PlanMember  = pricing.CodeMember
	PlanPremium = pricing.CodePremium
)

var ranks = map[Plan]int{
	PlanFree:    0,
	PlanMember:  1,
	PlanPremium: 2,
}

// Normalize maps any input to a known plan; unknown codes fall back to free.
func Normalize(plan string) Plan {
	p := Plan(strings.ToLower(strings.TrimSpace(plan)))
	if _, ok := ranks[p]; ok {
		return p
	}
	return PlanFree
}

// IsKnown reports whether plan names a tier with a rank.
func IsKnown(plan string) bool {
	_, ok := ranks[Plan(strings.ToLower(strings.TrimSpace(plan)))]
	return ok
}

// Rank orders tiers: free(0) < member(1) < premium(2). Unknown codes rank as free.
func Rank(plan string) int {
	return ranks[Normalize(plan)]
}

// HasAccess reports whether a user on userPlan may use content gated at requiredPlan.
func HasAccess(userPlan, requiredPlan string) bool {
	return Rank(userPlan) >= Rank(requiredPlan)
}

// LimitsFor returns the quotas of plan from the default catalog.
func LimitsFor(plan string) pricing.Limits {
	p, ok := pricing.Default().GetPlanByCode(string(Normalize(plan)))
	if !ok {
		return pricing.Limits{}
	}
	return p.Limits
}

func withinLimit(limit int, value int64) bool {
	if limit == pricing.Unlimited {
		return true
	}
	return value <= int64(limit)
}

// AllowsFileSize checks an upload size in bytes against the plan's per-file cap.
func AllowsFileSize(plan string, sizeBytes int64) bool {
	limit := LimitsFor(plan).MaxFileSizeMB
	if limit == pricing.Unlimited {
		return true
	}
	return sizeBytes <= int64(limit)*1024*1024
}

// AllowsUploadCount checks how many uploads were already made today.
func AllowsUploadCount(plan string, uploadsToday int) bool {
	return withinLimit(LimitsFor(plan).MaxUploadsPerDay, int64(uploadsToday)+1)
}

// StorageQuotaBytes returns the storage quota, or -1 when unlimited.
func StorageQuotaBytes(plan string) int64 {
	limit := LimitsFor(plan).MaxStorageMB
	if limit == pricing.Unlimited {
		return pricing.Unlimited
	}
	return int64(limit) * 1024 * 1024
}

func AllowsAPI(plan string) bool {
	return LimitsFor(plan).APIAccess
}
