package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository"
	"github.com/ManuelReschke/EduPortal/internal/pkg/entitlements"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/metrics"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

const (
	DefaultExpiryBatchSize     = 500
	DefaultRenewalRetryBackoff = 6 * time.Hour

	notifyTimeout = 30 * time.Second
	dateLayout    = "02/01/2006"
)

// errRenewalNotDue marks a profile that was renewed by someone else between
// the due-list query and acquiring its lock.
var (
	errRenewalNotDue    = errors.New("renewal no longer due")
	errUnsettledRenewal = errors.New("previous renewal charge is not settled")
)

// renewalClockSlack absorbs timestamp rounding in the store when comparing an
// expiry against the payment that produced it.
const renewalClockSlack = time.Minute

// Service owns the membership lifecycle: upgrades, renewals and expiry.
type Service struct {
	profiles repository.ProfileRepository
	ledger   *Ledger
	catalog  *pricing.Catalog
	gateway  PaymentGateway
	locker   Locker
	notifier mail.Notifier
	pricer   RenewalPricer

	gatewayTimeout      time.Duration
	expiryBatchSize     int
	renewalRetryBackoff time.Duration
	now                 func() time.Time

	notifications sync.WaitGroup
}

type Option func(*Service)

func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

func WithNotifier(n mail.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithRenewalPricer(p RenewalPricer) Option { return func(s *Service) { s.pricer = p } }

func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func WithExpiryBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.expiryBatchSize = n
		}
	}
}

func WithRenewalRetryBackoff(d time.Duration) Option {
	return func(s *Service) { s.renewalRetryBackoff = d }
}

// WithClock overrides time.Now for the service and its ledger.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.ledger.now = now
	}
}

// NewService creates the lifecycle service from its collaborators.
func NewService(
	profiles repository.ProfileRepository,
	transactions repository.TransactionRepository,
	catalog *pricing.Catalog,
	gateway PaymentGateway,
	opts ...Option,
) *Service {
	s := &Service{
		profiles:            profiles,
		ledger:              NewLedger(transactions),
		catalog:             catalog,
		gateway:             gateway,
		locker:              NewLocalLocker(),
		pricer:              CatalogRenewalPricer{},
		gatewayTimeout:      DefaultGatewayTimeout,
		expiryBatchSize:     DefaultExpiryBatchSize,
		renewalRetryBackoff: DefaultRenewalRetryBackoff,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ledger() *Ledger { return s.ledger }

func (s *Service) Catalog() *pricing.Catalog { return s.catalog }

// HasAccess compares plan ranks; unknown codes rank as free.
func (s *Service) HasAccess(userPlan, requiredPlan string) bool {
	return entitlements.HasAccess(userPlan, requiredPlan)
}

func (s *Service) CanUpgrade(p *models.MembershipProfile) bool { return CanUpgrade(p) }

func (s *Service) GetUpgradeOptions(p *models.MembershipProfile) []string {
	return GetUpgradeOptions(p)
}

// EffectivePlan is the plan a profile is entitled to right now. Inactive or
// lapsed memberships fall back to free.
func (s *Service) EffectivePlan(p *models.MembershipProfile) string {
	if !p.IsActive() || p.IsExpiredAt(s.now()) {
		return string(entitlements.PlanFree)
	}
	return string(entitlements.Normalize(p.MembershipType))
}

// UpgradeMembership charges for a higher plan and switches the profile to it
// for durationMonths 30-day periods.
func (s *Service) UpgradeMembership(ctx context.Context, userID, planCode string, durationMonths int) (out *Outcome, err error) {
	target := strings.ToLower(strings.TrimSpace(planCode))
	planLabel := "unknown"
	defer func() { metrics.ObserveUpgrade(planLabel, resultLabel(err)) }()

	plan, ok := s.catalog.GetPlanByCode(target)
	if !ok || !plan.IsActive {
		return nil, newError(CodeInvalidPlan, nil, "")
	}
	planLabel = target
	if durationMonths <= 0 {
		durationMonths = 1
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newError(CodeIneligibleUpgrade, err, "Không tìm thấy hồ sơ thành viên")
		}
		return nil, newError(CodeStoreError, err, "")
	}
	if !isEligibleUpgrade(profile, target) {
		return nil, newError(CodeIneligibleUpgrade, nil, "")
	}

	amount := plan.Price * int64(durationMonths)
	tx, err := s.ledger.CreateTransaction(ctx, NewTransaction{
		UserID:        userID,
		Amount:        amount,
		Currency:      plan.Currency,
		PaymentMethod: profile.DefaultPaymentMethod,
		FromPlan:      profile.MembershipType,
		ToPlan:        target,
		UpgradeType:   upgradeTypeFor(profile.MembershipType),
		Description:   fmt.Sprintf("Nâng cấp lên gói %s (%d tháng)", plan.Name, durationMonths),
	})
	if err != nil {
		return nil, err
	}

	// the charge may have happened; the caller going away must not skip recording it
	wctx := context.WithoutCancel(ctx)

	res, chargeErr := s.charge(ctx, tx, profile)
	if chargeErr != nil || !res.Completed() {
		failed := s.failTransaction(wctx, tx, res, chargeErr)
		return &Outcome{Success: false, Transaction: failed, Profile: profile}, newError(CodeGatewayFailure, chargeErr, "")
	}

	completed, err := s.ledger.UpdateStatus(wctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{
		GatewayTransactionID: res.GatewayTransactionID,
	})
	if err != nil {
		s.reconcile("transaction_complete", userID, tx.ID, err)
		return &Outcome{Success: false, Transaction: tx}, newError(CodeStoreError, err, "")
	}

	now := s.now()
	expires := now.Add(pricing.MembershipDuration(durationMonths))
	updated, err := s.profiles.Upsert(wctx, userID, repository.ProfilePatch{
		MembershipType:      repository.String(target),
		MembershipStatus:    repository.String(models.MembershipStatusActive),
		MembershipStartedAt: &now,
		MembershipExpiresAt: &expires,
		ExpectedVersion:     repository.Int(profile.Version),
	})
	if err != nil {
		s.reconcile("profile_update", userID, tx.ID, err)
		return &Outcome{Success: false, Transaction: completed}, newError(CodeStoreError, err, "")
	}

	log.Infof("[Billing] user %s upgraded %s -> %s until %s (tx %s)", userID, profile.MembershipType, target, expires.Format(time.RFC3339), tx.ID)
	s.notify(updated, mail.TemplateMembershipUpgraded, map[string]any{
		"Name":          displayName(updated),
		"Plan":          plan.Name,
		"Amount":        pricing.FormatPrice(amount, plan.Currency),
		"ExpiresAt":     expires.Format(dateLayout),
		"TransactionID": tx.ID,
	})
	return &Outcome{Success: true, Transaction: completed, Profile: updated}, nil
}

// ProcessAutoRenewal charges the saved payment method and extends the current
// paid plan by one period.
func (s *Service) ProcessAutoRenewal(ctx context.Context, userID string) (*Outcome, error) {
	return s.renew(ctx, userID, nil)
}

func (s *Service) renew(ctx context.Context, userID string, dueBefore *time.Time) (out *Outcome, err error) {
	planLabel := "unknown"
	defer func() {
		if !errors.Is(err, errRenewalNotDue) {
			metrics.ObserveRenewal(planLabel, resultLabel(err))
		}
	}()

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newError(CodeNotEligible, err, "Không tìm thấy hồ sơ thành viên")
		}
		return nil, newError(CodeStoreError, err, "")
	}
	planLabel = profile.MembershipType
	if err := renewalEligibility(profile); err != nil {
		return nil, err
	}
	plan, ok := s.catalog.GetPlanByCode(profile.MembershipType)
	if !ok {
		return nil, newError(CodeInvalidPlan, nil, "")
	}

	// a charge that already went through is settled before any new one
	last, err := s.unsettledRenewal(ctx, profile)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if last.Status == models.TransactionStatusCompleted {
			log.Warnf("[Billing] applying completed renewal %s for user %s without a new charge", last.ID, userID)
			return s.applyRenewal(ctx, profile, plan, last, last.Amount)
		}
		s.reconcile("renewal_pending", userID, last.ID, errUnsettledRenewal)
		return &Outcome{Success: false, Transaction: last, Profile: profile},
			newError(CodeStoreError, errUnsettledRenewal, "Giao dịch gia hạn trước đang chờ đối soát")
	}

	if dueBefore != nil && profile.MembershipExpiresAt != nil && !profile.MembershipExpiresAt.Before(*dueBefore) {
		return nil, errRenewalNotDue
	}
	amount := s.pricer.RenewalPrice(plan)

	tx, err := s.ledger.CreateTransaction(ctx, NewTransaction{
		UserID:        userID,
		Amount:        amount,
		Currency:      plan.Currency,
		PaymentMethod: profile.DefaultPaymentMethod,
		FromPlan:      profile.MembershipType,
		ToPlan:        profile.MembershipType,
		UpgradeType:   models.UpgradeTypeRenewal,
		Description:   fmt.Sprintf("Gia hạn gói %s (1 tháng)", plan.Name),
	})
	if err != nil {
		return nil, err
	}

	wctx := context.WithoutCancel(ctx)

	res, chargeErr := s.charge(ctx, tx, profile)
	if chargeErr != nil || !res.Completed() {
		failed := s.failTransaction(wctx, tx, res, chargeErr)
		s.notify(profile, mail.TemplateMembershipRenewalFailed, map[string]any{
			"Name":   displayName(profile),
			"Plan":   plan.Name,
			"Reason": failed.FailureReason,
		})
		return &Outcome{Success: false, Transaction: failed, Profile: profile}, newError(CodeGatewayFailure, chargeErr, "")
	}

	completed, err := s.ledger.UpdateStatus(wctx, tx.ID, models.TransactionStatusCompleted, repository.TransactionUpdate{
		GatewayTransactionID: res.GatewayTransactionID,
	})
	if err != nil {
		s.reconcile("transaction_complete", userID, tx.ID, err)
		return &Outcome{Success: false, Transaction: tx}, newError(CodeStoreError, err, "")
	}

	return s.applyRenewal(wctx, profile, plan, completed, amount)
}

// applyRenewal extends profile by one period for the completed transaction tx.
func (s *Service) applyRenewal(ctx context.Context, profile *models.MembershipProfile, plan pricing.Plan, tx *models.PaymentTransaction, amount int64) (*Outcome, error) {
	now := s.now()
	base := now
	if profile.MembershipExpiresAt != nil && profile.MembershipExpiresAt.After(now) {
		base = *profile.MembershipExpiresAt
	}
	expires := base.Add(pricing.MembershipDuration(1))
	patch := repository.ProfilePatch{
		MembershipStatus:    repository.String(models.MembershipStatusActive),
		MembershipExpiresAt: &expires,
		ExpectedVersion:     repository.Int(profile.Version),
	}
	if profile.MembershipStartedAt == nil || profile.MembershipStatus == models.MembershipStatusExpired {
		patch.MembershipStartedAt = &now
	}
	updated, err := s.profiles.Upsert(context.WithoutCancel(ctx), profile.ID, patch)
	if err != nil {
		s.reconcile("profile_update", profile.ID, tx.ID, err)
		return &Outcome{Success: false, Transaction: tx}, newError(CodeStoreError, err, "")
	}

	log.Infof("[Billing] renewed %s for user %s until %s (tx %s)", profile.MembershipType, profile.ID, expires.Format(time.RFC3339), tx.ID)
	s.notify(updated, mail.TemplateMembershipRenewed, map[string]any{
		"Name":      displayName(updated),
		"Plan":      plan.Name,
		"Amount":    pricing.FormatPrice(amount, plan.Currency),
		"ExpiresAt": expires.Format(dateLayout),
	})
	return &Outcome{Success: true, Transaction: tx, Profile: updated}, nil
}

// unsettledRenewal returns the user's latest transaction when it is a renewal
// whose charge may have run without the membership being extended: still
// pending, or completed while the expiry sits short of one period past the
// payment.
func (s *Service) unsettledRenewal(ctx context.Context, p *models.MembershipProfile) (*models.PaymentTransaction, error) {
	txs, err := s.ledger.GetHistory(ctx, p.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 || txs[0].UpgradeType != models.UpgradeTypeRenewal {
		return nil, nil
	}
	last := &txs[0]
	switch last.Status {
	case models.TransactionStatusPending:
		return last, nil
	case models.TransactionStatusCompleted:
		paid := last.CreatedAt
		if last.PaymentDate != nil {
			paid = *last.PaymentDate
		}
		covered := paid.Add(pricing.MembershipDuration(1) - renewalClockSlack)
		if p.MembershipExpiresAt == nil || p.MembershipExpiresAt.Before(covered) {
			return last, nil
		}
	}
	return nil, nil
}

func renewalEligibility(p *models.MembershipProfile) error {
	switch {
	case !p.HasSavedPaymentMethod():
		return newError(CodeNotEligible, nil, "Chưa lưu phương thức thanh toán mặc định")
	case !p.AutoRenewal:
		return newError(CodeNotEligible, nil, "Gia hạn tự động đang tắt")
	case !isPaidPlan(p.MembershipType):
		return newError(CodeNotEligible, nil, "Gói miễn phí không cần gia hạn")
	case p.MembershipStatus != models.MembershipStatusActive && p.MembershipStatus != models.MembershipStatusExpired:
		return newError(CodeNotEligible, nil, "Tài khoản đang bị tạm khóa hoặc đã hủy")
	}
	return nil
}

// CheckExpiredMemberships moves every active profile past its expiry to
// expired and returns how many rows changed.
func (s *Service) CheckExpiredMemberships(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		now := s.now()
		batch, err := s.profiles.ListExpired(ctx, now, s.expiryBatchSize)
		if err != nil {
			return total, newError(CodeStoreError, err, "")
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		changed, err := s.profiles.MarkExpired(ctx, ids, now)
		if err != nil {
			return total, newError(CodeStoreError, err, "")
		}
		n := len(changed)
		total += n
		metrics.AddExpired(n)

		// rows renewed between list and update keep their status and get no mail
		expired := make(map[string]bool, n)
		for _, id := range changed {
			expired[id] = true
		}
		for i := range batch {
			p := batch[i]
			if !expired[p.ID] {
				continue
			}
			s.notify(&p, mail.TemplateMembershipExpired, map[string]any{
				"Name":      displayName(&p),
				"Plan":      planName(s.catalog, p.MembershipType),
				"ExpiresAt": p.MembershipExpiresAt.Format(dateLayout),
			})
		}

		// rows that stopped matching between list and update would be listed forever
		if n == 0 || len(batch) < s.expiryBatchSize {
			break
		}
	}
	if total > 0 {
		log.Infof("[Billing] expired %d memberships", total)
	}
	return total, nil
}

// ProcessDueRenewals renews one batch of auto-renewing profiles expiring
// within window. A user whose last renewal attempt failed recently is skipped.
func (s *Service) ProcessDueRenewals(ctx context.Context, window time.Duration) (RenewalSummary, error) {
	var summary RenewalSummary
	before := s.now().Add(window)

	due, err := s.profiles.ListAutoRenewDue(ctx, before, s.expiryBatchSize)
	if err != nil {
		return summary, newError(CodeStoreError, err, "")
	}

	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if s.recentlyFailedRenewal(ctx, p.ID) {
			summary.Skipped++
			continue
		}

		summary.Attempted++
		_, err := s.renew(ctx, p.ID, &before)
		switch {
		case err == nil:
			summary.Renewed++
		case errors.Is(err, errRenewalNotDue):
			summary.Attempted--
			summary.Skipped++
		default:
			summary.Failed++
			log.Warnf("[Billing] auto-renewal for user %s failed: %v", p.ID, err)
		}
	}

	log.Infof("[Billing] renewal sweep: attempted=%d renewed=%d failed=%d skipped=%d",
		summary.Attempted, summary.Renewed, summary.Failed, summary.Skipped)
	return summary, nil
}

func (s *Service) recentlyFailedRenewal(ctx context.Context, userID string) bool {
	if s.renewalRetryBackoff <= 0 {
		return false
	}
	txs, err := s.ledger.GetHistory(ctx, userID, 1)
	if err != nil || len(txs) == 0 {
		return false
	}
	last := txs[0]
	return last.UpgradeType == models.UpgradeTypeRenewal &&
		last.Status == models.TransactionStatusFailed &&
		s.now().Sub(last.CreatedAt) < s.renewalRetryBackoff
}

// GetMembership returns the caller's membership, provisioning a free profile
// on first access.
func (s *Service) GetMembership(ctx context.Context, userID string) (*MembershipView, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if repository.IsNotFound(err) {
		profile, err = s.profiles.Upsert(ctx, userID, repository.ProfilePatch{})
	}
	if err != nil {
		return nil, newError(CodeStoreError, err, "")
	}

	plan, ok := s.catalog.GetPlanByCode(profile.MembershipType)
	if !ok {
		plan, _ = s.catalog.GetPlanByCode(string(pricing.CodeFree))
	}
	return &MembershipView{
		Profile:        profile,
		Plan:           plan,
		FormattedPrice: pricing.FormatPrice(plan.Price, plan.Currency),
		CanUpgrade:     CanUpgrade(profile),
		UpgradeOptions: GetUpgradeOptions(profile),
	}, nil
}

// CheckAccess reports whether the user's effective plan reaches requiredPlan.
func (s *Service) CheckAccess(ctx context.Context, userID, requiredPlan string) (bool, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.HasAccess(string(entitlements.PlanFree), requiredPlan), nil
		}
		return false, newError(CodeStoreError, err, "")
	}
	return s.HasAccess(s.EffectivePlan(profile), requiredPlan), nil
}

// SetAutoRenewal toggles auto-renewal. Enabling requires a saved payment method.
func (s *Service) SetAutoRenewal(ctx context.Context, userID string, enabled bool) (*models.MembershipProfile, error) {
	return s.updateProfile(ctx, userID, func(p *models.MembershipProfile) (repository.ProfilePatch, error) {
		if enabled && !p.HasSavedPaymentMethod() {
			return repository.ProfilePatch{}, newError(CodeNotEligible, nil, "Cần lưu phương thức thanh toán trước khi bật gia hạn tự động")
		}
		return repository.ProfilePatch{AutoRenewal: repository.Bool(enabled)}, nil
	})
}

// SavePaymentMethod stores the default payment method and its gateway token.
func (s *Service) SavePaymentMethod(ctx context.Context, userID, method, token string) (*models.MembershipProfile, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	token = strings.TrimSpace(token)
	if method == "" || token == "" {
		return nil, newError(CodeValidation, nil, "Thiếu phương thức hoặc mã thanh toán")
	}
	return s.updateProfile(ctx, userID, func(*models.MembershipProfile) (repository.ProfilePatch, error) {
		return repository.ProfilePatch{
			PaymentMethodSaved:   repository.Bool(true),
			DefaultPaymentMethod: repository.String(method),
			PaymentMethodToken:   repository.String(token),
		}, nil
	})
}

// MarkEmailVerified records a confirmed email address on the profile.
func (s *Service) MarkEmailVerified(ctx context.Context, userID, email string) (*models.MembershipProfile, error) {
	return s.updateProfile(ctx, userID, func(*models.MembershipProfile) (repository.ProfilePatch, error) {
		now := s.now()
		return repository.ProfilePatch{Email: repository.String(email), EmailVerifiedAt: &now}, nil
	})
}

func (s *Service) updateProfile(ctx context.Context, userID string, build func(*models.MembershipProfile) (repository.ProfilePatch, error)) (*models.MembershipProfile, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, newError(CodeNotFound, err, "Không tìm thấy hồ sơ thành viên")
		}
		return nil, newError(CodeStoreError, err, "")
	}
	patch, err := build(profile)
	if err != nil {
		return nil, err
	}
	patch.ExpectedVersion = repository.Int(profile.Version)

	updated, err := s.profiles.Upsert(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, newError(CodeBusy, err, "")
		}
		return nil, newError(CodeStoreError, err, "")
	}
	return updated, nil
}

// TransactionHistory lists the user's ledger entries, newest first.
func (s *Service) TransactionHistory(ctx context.Context, userID string, limit int) ([]models.PaymentTransaction, error) {
	return s.ledger.GetHistory(ctx, userID, limit)
}

// RefundTransaction marks a completed transaction refunded. The membership
// itself is not changed.
func (s *Service) RefundTransaction(ctx context.Context, txID, reason string) (*models.PaymentTransaction, error) {
	upd := repository.TransactionUpdate{}
	if reason = strings.TrimSpace(reason); reason != "" {
		upd.FailureReason = reason
	}
	tx, err := s.ledger.UpdateStatus(ctx, txID, models.TransactionStatusRefunded, upd)
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] refunded transaction %s of user %s", tx.ID, tx.UserID)
	return tx, nil
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.notifications.Wait()
}

func (s *Service) lockUser(ctx context.Context, userID string) (func(), error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeValidation, nil, "Thiếu mã người dùng")
	}
	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, newError(CodeBusy, err, "")
	}
	return unlock, nil
}

func (s *Service) charge(ctx context.Context, tx *models.PaymentTransaction, p *models.MembershipProfile) (ChargeResult, error) {
	if s.gateway == nil {
		return ChargeResult{}, errors.New("no payment gateway configured")
	}
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	return s.gateway.Charge(gctx, ChargeRequest{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Method:        p.DefaultPaymentMethod,
		Token:         p.PaymentMethodToken,
		Description:   tx.Description,
	})
}

// failTransaction marks tx failed and returns the updated row, or tx itself
// when the write fails.
func (s *Service) failTransaction(ctx context.Context, tx *models.PaymentTransaction, res ChargeResult, chargeErr error) *models.PaymentTransaction {
	reason := res.Reason
	switch {
	case errors.Is(chargeErr, context.DeadlineExceeded):
		reason = "payment gateway timeout"
	case chargeErr != nil:
		reason = chargeErr.Error()
	case reason == "":
		reason = "payment declined"
	}

	failed, err := s.ledger.UpdateStatus(ctx, tx.ID, models.TransactionStatusFailed, repository.TransactionUpdate{FailureReason: reason})
	if err != nil {
		s.reconcile("transaction_fail", tx.UserID, tx.ID, err)
		tx.FailureReason = reason
		return tx
	}
	log.Warnf("[Billing] payment for tx %s of user %s failed: %s", tx.ID, tx.UserID, reason)
	return failed
}

func (s *Service) reconcile(stage, userID, txID string, err error) {
	metrics.ReconcileRequired(stage)
	log.Errorf("[Billing] RECONCILE stage=%s user=%s tx=%s: %v", stage, userID, txID, err)
}

// notify sends an email in the background. Failures are logged only.
func (s *Service) notify(p *models.MembershipProfile, template string, data map[string]any) {
	if s.notifier == nil || p == nil || strings.TrimSpace(p.Email) == "" {
		return
	}
	to := p.Email
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Billing] notification %s panicked: %v", template, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, to, template, data); err != nil {
			log.Warnf("[Billing] notification %s to %s failed: %v", template, to, err)
		}
	}()
}

func displayName(p *models.MembershipProfile) string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.Email
}

func planName(c *pricing.Catalog, code string) string {
	if plan, ok := c.GetPlanByCode(code); ok {
		return plan.Name
	}
	return code
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(CodeOf(err))
}
