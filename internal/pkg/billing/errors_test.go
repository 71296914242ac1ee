package billing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

func TestErrorMatchesByCode(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("wrapped: %w", newError(CodeStoreError, cause, ""))

	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrGatewayFailure)
	assert.Equal(t, CodeStoreError, CodeOf(err))
	assert.Equal(t, defaultMessages[CodeStoreError], MessageOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeStoreError, CodeOf(errors.New("boom")))
}

func TestCustomMessage(t *testing.T) {
	err := newError(CodeValidation, nil, "Thiếu mã người dùng")
	assert.Equal(t, "Thiếu mã người dùng", MessageOf(err))
	assert.Contains(t, err.Error(), "validation")
}

func TestRenewalPricers(t *testing.T) {
	c := pricing.Default()
	member, _ := c.GetPlanByCode("member")
	premium, _ := c.GetPlanByCode("premium")

	assert.Equal(t, int64(199000), CatalogRenewalPricer{}.RenewalPrice(member))
	assert.Equal(t, int64(399000), CatalogRenewalPricer{}.RenewalPrice(premium))
	assert.Equal(t, int64(199000), LegacyRenewalPricer{}.RenewalPrice(member))
	assert.Equal(t, int64(299000), LegacyRenewalPricer{}.RenewalPrice(premium))

	assert.IsType(t, LegacyRenewalPricer{}, RenewalPricerFromName(" Legacy "))
	assert.IsType(t, CatalogRenewalPricer{}, RenewalPricerFromName(""))
	assert.IsType(t, CatalogRenewalPricer{}, RenewalPricerFromName("weird"))
}
