// Package repositorytest provides in-memory repositories for tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository"
)

func copyProfile(p *models.MembershipProfile) *models.MembershipProfile {
	cp := *p
	if p.EmailVerifiedAt != nil {
		t := *p.EmailVerifiedAt
		cp.EmailVerifiedAt = &t
	}
	if p.MembershipStartedAt != nil {
		t := *p.MembershipStartedAt
		cp.MembershipStartedAt = &t
	}
	if p.MembershipExpiresAt != nil {
		t := *p.MembershipExpiresAt
		cp.MembershipExpiresAt = &t
	}
	return &cp
}

func copyTransaction(tx *models.PaymentTransaction) *models.PaymentTransaction {
	cp := *tx
	if tx.PaymentDate != nil {
		t := *tx.PaymentDate
		cp.PaymentDate = &t
	}
	return &cp
}

// Profiles is a concurrency-safe in-memory ProfileRepository.
type Profiles struct {
	mu   sync.Mutex
	rows map[string]*models.MembershipProfile

	// FailUpsert, when set, is returned by every Upsert call.
	FailUpsert error
	Writes     int
}

func NewProfiles() *Profiles {
	return &Profiles{rows: map[string]*models.MembershipProfile{}}
}

// Seed stores a copy of p as-is.
func (r *Profiles) Seed(p *models.MembershipProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := copyProfile(p)
	if cp.Version == 0 {
		cp.Version = 1
	}
	r.rows[p.ID] = cp
}

func (r *Profiles) GetByUserID(ctx context.Context, userID string) (*models.MembershipProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyProfile(p), nil
}

func (r *Profiles) Upsert(ctx context.Context, userID string, patch repository.ProfilePatch) (*models.MembershipProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpsert != nil {
		return nil, r.FailUpsert
	}
	now := time.Now()

	existing, ok := r.rows[userID]
	if !ok {
		if patch.ExpectedVersion != nil {
			return nil, repository.ErrVersionConflict
		}
		p := models.NewFreeProfile(userID)
		patch.Apply(p)
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.rows[userID] = p
		r.Writes++
		return copyProfile(p), nil
	}

	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != existing.Version {
		return nil, repository.ErrVersionConflict
	}
	merged := copyProfile(existing)
	patch.Apply(merged)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.UpdatedAt = now
	merged.Version++
	r.rows[userID] = merged
	r.Writes++
	return copyProfile(merged), nil
}

func (r *Profiles) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.MembershipProfile, error) {
	return r.list(limit, func(p *models.MembershipProfile) bool {
		return p.IsExpiredAt(now)
	}), nil
}

func (r *Profiles) MarkExpired(ctx context.Context, ids []string, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []string
	for _, id := range ids {
		p, ok := r.rows[id]
		if !ok || !p.IsExpiredAt(now) {
			continue
		}
		p.MembershipStatus = models.MembershipStatusExpired
		p.UpdatedAt = now
		p.Version++
		changed = append(changed, id)
	}
	return changed, nil
}

func (r *Profiles) ListAutoRenewDue(ctx context.Context, before time.Time, limit int) ([]models.MembershipProfile, error) {
	return r.list(limit, func(p *models.MembershipProfile) bool {
		if !p.AutoRenewal || !p.HasSavedPaymentMethod() || p.MembershipType == "free" {
			return false
		}
		if p.MembershipStatus != models.MembershipStatusActive && p.MembershipStatus != models.MembershipStatusExpired {
			return false
		}
		return p.MembershipExpiresAt != nil && p.MembershipExpiresAt.Before(before)
	}), nil
}

func (r *Profiles) CountByPlan(ctx context.Context) ([]repository.PlanCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[[2]string]int64{}
	for _, p := range r.rows {
		counts[[2]string{p.MembershipType, p.MembershipStatus}]++
	}
	out := make([]repository.PlanCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, repository.PlanCount{Plan: k[0], Status: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plan != out[j].Plan {
			return out[i].Plan < out[j].Plan
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (r *Profiles) list(limit int, keep func(*models.MembershipProfile) bool) []models.MembershipProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.MembershipProfile
	for _, p := range r.rows {
		if keep(p) {
			out = append(out, *copyProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MembershipExpiresAt.Before(*out[j].MembershipExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Transactions is a concurrency-safe in-memory TransactionRepository.
type Transactions struct {
	mu   sync.Mutex
	rows map[string]*models.PaymentTransaction
	seq  int

	// FailUpdate, when set, is returned by every UpdateStatus call.
	FailUpdate error
}

func NewTransactions() *Transactions {
	return &Transactions{rows: map[string]*models.PaymentTransaction{}}
}

func (r *Transactions) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	// keep insertion order stable even when timestamps collide
	tx.CreatedAt = tx.CreatedAt.Add(time.Duration(r.seq) * time.Nanosecond)
	tx.UpdatedAt = tx.CreatedAt
	r.rows[tx.ID] = copyTransaction(tx)
	return nil
}

func (r *Transactions) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyTransaction(tx), nil
}

func (r *Transactions) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, upd repository.TransactionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	tx, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if tx.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	upd.Apply(tx, toStatus, time.Now())
	return nil
}

func (r *Transactions) ListByUser(ctx context.Context, userID string, limit int) ([]models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentTransaction
	for _, tx := range r.rows {
		if tx.UserID == userID {
			out = append(out, *copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Transactions) SumCompleted(ctx context.Context, since time.Time) ([]repository.RevenueSum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := map[string]*repository.RevenueSum{}
	for _, tx := range r.rows {
		if tx.Status != models.TransactionStatusCompleted || tx.PaymentDate == nil || tx.PaymentDate.Before(since) {
			continue
		}
		sum, ok := sums[tx.Currency]
		if !ok {
			sum = &repository.RevenueSum{Currency: tx.Currency}
			sums[tx.Currency] = sum
		}
		sum.Total += tx.Amount
		sum.Count++
	}
	out := make([]repository.RevenueSum, 0, len(sums))
	for _, sum := range sums {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// All returns every stored transaction for assertions.
func (r *Transactions) All() []models.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PaymentTransaction, 0, len(r.rows))
	for _, tx := range r.rows {
		out = append(out, *copyTransaction(tx))
	}
	return out
}
