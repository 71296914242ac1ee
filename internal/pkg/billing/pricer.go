package billing

import (
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

// RenewalPricer decides what an auto-renewal of a plan costs.
type RenewalPricer interface {
	RenewalPrice(plan pricing.Plan) int64
}

// CatalogRenewalPricer charges the catalog price.
type CatalogRenewalPricer struct{}

func (CatalogRenewalPricer) RenewalPrice(plan pricing.Plan) int64 {
	return plan.Price
}

// LegacyRenewalPricer reproduces the historical fixed renewal prices:
// member 199000, every other paid plan 299000.
type LegacyRenewalPricer struct{}

const (
	legacyMemberRenewal = 199000
	legacyOtherRenewal  = 299000
)

func (LegacyRenewalPricer) RenewalPrice(plan pricing.Plan) int64 {
	price := int64(legacyOtherRenewal)
	if plan.Code == pricing.CodeMember {
		price = legacyMemberRenewal
	}
	if price != plan.Price {
		log.Warnf("[Billing] legacy renewal price %d differs from catalog price %d for plan %s", price, plan.Price, plan.Code)
	}
	return price
}

// RenewalPricerFromName maps the RENEWAL_PRICING setting to a pricer.
func RenewalPricerFromName(name string) RenewalPricer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "legacy":
		return LegacyRenewalPricer{}
	case "", "catalog":
		return CatalogRenewalPricer{}
	default:
		log.Warnf("[Billing] unknown RENEWAL_PRICING %q, using catalog prices", name)
		return CatalogRenewalPricer{}
	}
}
