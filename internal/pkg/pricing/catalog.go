package pricing

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Code identifies a membership tier.
type Code string

const (
	CodeFree    Code = "free"
	CodeMember  Code = "member"
	CodePremium Code = "premium"
)

type BillingCycle string

const (
	CycleMonthly  BillingCycle = "monthly"
	CycleYearly   BillingCycle = "yearly"
	CycleLifetime BillingCycle = "lifetime"
)

const (
	// Unlimited marks a quota without an upper bound.
	Unlimited = -1

	DefaultCurrency = "VND"
	FreeLabel       = "Miễn phí"

	// DaysPerMonth is the fixed month length used for membership periods.
	DaysPerMonth = 30
)

// Limits are the quotas attached to a plan.
type Limits struct {
	MaxFileSizeMB    int  `json:"max_file_size_mb"`
	MaxStorageMB     int  `json:"max_storage_mb"`
	MaxUploadsPerDay int  `json:"max_uploads_per_day"`
	MaxProjects      int  `json:"max_projects"`
	APIAccess        bool `json:"api_access"`
}

// Plan is an immutable catalog entry.
type Plan struct {
	Code         Code         `json:"code"`
	Name         string       `json:"name"`
	Price        int64        `json:"price"`
	Currency     string       `json:"currency"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	Limits       Limits       `json:"limits"`
	Features     []string     `json:"features"`
	IsPopular    bool         `json:"is_popular"`
	IsActive     bool         `json:"is_active"`
}

func (p Plan) clone() Plan {
	p.Features = append([]string(nil), p.Features...)
	return p
}

// Catalog is a read-only, ordered set of plans. Callers always receive copies.
type Catalog struct {
	plans []Plan
	index map[Code]int
}

// NewCatalog builds a catalog preserving the given order.
func NewCatalog(plans []Plan) *Catalog {
	c := &Catalog{
		plans: make([]Plan, 0, len(plans)),
		index: make(map[Code]int, len(plans)),
	}
	for _, p := range plans {
		if _, dup := c.index[p.Code]; dup {
			continue
		}
		if p.Currency == "" {
			p.Currency = DefaultCurrency
		}
		c.index[p.Code] = len(c.plans)
		c.plans = append(c.plans, p.clone())
	}
	return c
}

var defaultCatalog = NewCatalog(DefaultPlans())

// Default returns the process-wide catalog seeded at start-up.
func Default() *Catalog {
	return defaultCatalog
}

// DefaultPlans is the seed catalog, ascending by price.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Code:         CodeFree,
			Name:         "Miễn phí",
			Price:        0,
			Currency:     DefaultCurrency,
			BillingCycle: CycleLifetime,
			Limits: Limits{
				MaxFileSizeMB:    10,
				MaxStorageMB:     100,
				MaxUploadsPerDay: 10,
				MaxProjects:      3,
				APIAccess:        false,
			},
			Features: []string{
				"Truy cập các khóa học miễn phí",
				"Tải lên tối đa 10 tệp mỗi ngày",
				"Dung lượng lưu trữ 100MB",
				"Hỗ trợ qua cộng đồng",
			},
			IsActive: true,
		},
		{
			Code:         CodeMember,
			Name:         "Thành viên",
			Price:        199000,
			Currency:     DefaultCurrency,
			BillingCycle: CycleMonthly,
			Limits: Limits{
				MaxFileSizeMB:    50,
				MaxStorageMB:     1024,
				MaxUploadsPerDay: 100,
				MaxProjects:      20,
				APIAccess:        false,
			},
			Features: []string{
				"Toàn bộ khóa học dành cho thành viên",
				"Tải xuống workflow n8n",
				"Dung lượng lưu trữ 1GB",
				"Hỗ trợ qua email",
			},
			IsPopular: true,
			IsActive:  true,
		},
		{
			Code:         CodePremium,
			Name:         "Premium",
			Price:        399000,
			Currency:     DefaultCurrency,
			BillingCycle: CycleMonthly,
			Limits: Limits{
				MaxFileSizeMB:    200,
				MaxStorageMB:     Unlimited,
				MaxUploadsPerDay: Unlimited,
				MaxProjects:      Unlimited,
				APIAccess:        true,
			},
			Features: []string{
				"Mọi quyền lợi của gói Thành viên",
				"Workflow n8n cao cấp",
				"Lưu trữ không giới hạn",
				"Truy cập API",
				"Hỗ trợ ưu tiên 24/7",
			},
			IsActive: true,
		},
	}
}

// GetPlanByCode looks a plan up by its exact code. Callers normalize input.
func (c *Catalog) GetPlanByCode(code string) (Plan, bool) {
	i, ok := c.index[Code(code)]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i].clone(), true
}

// GetActivePlans returns the active plans in catalog order.
func (c *Catalog) GetActivePlans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		if p.IsActive {
			out = append(out, p.clone())
		}
	}
	return out
}

// GetPopularPlan returns the first plan flagged popular in catalog order.
func (c *Catalog) GetPopularPlan() (Plan, bool) {
	for _, p := range c.plans {
		if p.IsPopular {
			return p.clone(), true
		}
	}
	return Plan{}, false
}

// Plans returns every plan, active or not, in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	for i, p := range c.plans {
		out[i] = p.clone()
	}
	return out
}

// FormatPrice renders an amount with Vietnamese digit grouping, e.g. "199.000 VND".
func FormatPrice(amount int64, currency string) string {
	if amount == 0 {
		return FreeLabel
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	p := message.NewPrinter(language.Vietnamese)
	return p.Sprintf("%d", amount) + " " + currency
}

// MembershipDuration converts months into the fixed 30-day period length.
func MembershipDuration(months int) time.Duration {
	if months <= 0 {
		months = 1
	}
	return time.Duration(months) * DaysPerMonth * 24 * time.Hour
}
