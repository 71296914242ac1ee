package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository/repositorytest"
	apiv1 "github.com/ManuelReschke/EduPortal/internal/api/v1"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/middleware"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/security"
	"github.com/ManuelReschke/EduPortal/internal/pkg/statistics"
)

var jwtSecret = []byte("router-test-secret")

type stubGateway struct {
	mu     sync.Mutex
	status string
}

func (g *stubGateway) Charge(_ context.Context, req billing.ChargeRequest) (billing.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == billing.ChargeFailed {
		return billing.ChargeResult{Status: billing.ChargeFailed, Reason: "card declined"}, nil
	}
	return billing.ChargeResult{Status: billing.ChargeCompleted, GatewayTransactionID: "gw-" + req.TransactionID}, nil
}

func (g *stubGateway) decline() {
	g.mu.Lock()
	g.status = billing.ChargeFailed
	g.mu.Unlock()
}

// inbox captures mails synchronously so verification codes can be read back.
type inbox struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (n *inbox) Notify(_ context.Context, to, template string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry := map[string]any{"to": to, "template": template}
	for k, v := range data {
		entry[k] = v
	}
	n.sent = append(n.sent, entry)
	return nil
}

func (n *inbox) last(template string) map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i]["template"] == template {
			return n.sent[i]
		}
	}
	return nil
}

type testServer struct {
	app      *fiber.App
	profiles *repositorytest.Profiles
	txs      *repositorytest.Transactions
	gateway  *stubGateway
	mail     *inbox
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	ts := &testServer{
		profiles: repositorytest.NewProfiles(),
		txs:      repositorytest.NewTransactions(),
		gateway:  &stubGateway{},
		mail:     &inbox{},
	}
	svc := billing.NewService(ts.profiles, ts.txs, pricing.Default(), ts.gateway, billing.WithNotifier(ts.mail))
	t.Cleanup(svc.Wait)

	cfg := Config{
		API: apiv1.Dependencies{
			Billing:         svc,
			Challenges:      security.NewChallengeService(security.NewMemoryChallengeStore(), security.WithBcryptCost(bcrypt.MinCost)),
			Notifier:        ts.mail,
			Stats:           statistics.NewService(ts.profiles, ts.txs, nil),
			VerificationTTL: 10 * time.Minute,
		},
		JWT:           middleware.JWTConfig{Secret: jwtSecret},
		AdminUser:     "ops",
		AdminPassword: "s3cret",
		RateLimit:     1000,
		RateWindow:    time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	ts.app = fiber.New()
	InstallRouter(ts.app, cfg)
	return ts
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwtSecret)
	require.NoError(t, err)
	return raw
}

type call struct {
	method string
	path   string
	body   string
	token  string
	admin  bool
}

func (ts *testServer) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.admin {
		req.SetBasicAuth("ops", "s3cret")
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func field(t *testing.T, m map[string]any, path ...string) any {
	t.Helper()
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		require.True(t, ok, "expected object at %q", key)
		cur = obj[key]
	}
	return cur
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/ping"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pong", body["ping"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/plans"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	plans := body["plans"].([]any)
	require.Len(t, plans, 3)
	assert.Equal(t, "free", plans[0].(map[string]any)["code"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/plans/popular"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "member", field(t, body, "plan", "code"))

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/plans/premium"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "premium", field(t, body, "plan", "code"))

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/plans/PREMIUM"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "premium", field(t, body, "plan", "code"))

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/plans/gold"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_plan", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/healthz"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "disabled", body["redis"])
}

func TestMembershipRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	for _, token := range []string{"", "not-a-token"} {
		status, body := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership", token: token})
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", body["error"])
	}
}

func TestUpgradeFlow(t *testing.T) {
	ts := newTestServer(t)
	token := tokenFor(t, "user-1")

	status, body := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership", token: token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "free", field(t, body, "profile", "membership_type"))
	assert.Equal(t, true, body["can_upgrade"])
	assert.ElementsMatch(t, []any{"member", "premium"}, body["upgrade_options"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{"plan":"member"}`})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, models.TransactionStatusCompleted, field(t, body, "transaction", "status"))
	assert.Equal(t, "member", field(t, body, "profile", "membership_type"))
	assert.NotNil(t, field(t, body, "profile", "membership_expires_at"))

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership/transactions?limit=5", token: token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
	assert.EqualValues(t, 5, body["limit"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership/access?required=member", token: token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["has_access"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership/access?required=premium", token: token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["has_access"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership/access?required=vip", token: token})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_plan", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{"plan":"free"}`})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ineligible_upgrade", body["error"])
}

func TestUpgradeRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	token := tokenFor(t, "user-1")

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{}`})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{"plan":"gold"}`})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_plan", body["error"])
	assert.Empty(t, ts.txs.All())
}

func TestUpgradeGatewayDecline(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.decline()
	token := tokenFor(t, "user-1")

	// provision the free profile first
	status, _ := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership", token: token})
	require.Equal(t, fiber.StatusOK, status)

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{"plan":"premium"}`})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "gateway_failure", body["error"])
	assert.Equal(t, models.TransactionStatusFailed, field(t, body, "transaction", "status"))
	assert.Equal(t, "free", field(t, body, "profile", "membership_type"))
}

func TestUpgradeWithoutProfileIsIneligible(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: tokenFor(t, "ghost"), body: `{"plan":"member"}`})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ineligible_upgrade", body["error"])
}

func TestAutoRenewalAndPaymentMethod(t *testing.T) {
	ts := newTestServer(t)
	token := tokenFor(t, "user-1")

	status, body := ts.do(t, call{method: fiber.MethodPut, path: "/api/v1/membership/auto-renewal", token: token, body: `{"enabled":true}`})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "not_eligible", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPut, path: "/api/v1/membership/auto-renewal", token: token, body: `{}`})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPut, path: "/api/v1/membership/payment-method", token: token, body: `{"method":"VNPay","token":"tok_abc"}`})
	require.Equal(t, fiber.StatusOK, status)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, "vnpay", profile["default_payment_method"])
	assert.Equal(t, true, profile["payment_method_saved"])
	assert.NotContains(t, profile, "payment_method_token")

	status, body = ts.do(t, call{method: fiber.MethodPut, path: "/api/v1/membership/auto-renewal", token: token, body: `{"enabled":true}`})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, field(t, body, "profile", "auto_renewal"))

	// free plan has nothing to renew
	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/renew", token: token})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "not_eligible", body["error"])
}

func TestRenewExtendsPaidPlan(t *testing.T) {
	ts := newTestServer(t)
	expires := time.Now().Add(48 * time.Hour)
	p := models.NewFreeProfile("user-2")
	p.MembershipType = "premium"
	p.MembershipExpiresAt = &expires
	p.AutoRenewal = true
	p.PaymentMethodSaved = true
	p.DefaultPaymentMethod = "momo"
	p.PaymentMethodToken = "tok_momo"
	ts.profiles.Seed(p)

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/renew", token: tokenFor(t, "user-2")})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, models.UpgradeTypeRenewal, field(t, body, "transaction", "upgrade_type"))

	got, err := ts.profiles.GetByUserID(context.Background(), "user-2")
	require.NoError(t, err)
	assert.True(t, got.MembershipExpiresAt.After(expires.Add(29*24*time.Hour)))
}

func TestEmailVerificationFlow(t *testing.T) {
	ts := newTestServer(t)
	token := tokenFor(t, "user-1")

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email", token: token, body: `{"email":"hoc.vien@example.com"}`})
	require.Equal(t, fiber.StatusAccepted, status, body)
	challengeToken := body["token"].(string)
	assert.EqualValues(t, 600, body["expires_in"])

	sent := ts.mail.last(mail.TemplateEmailVerification)
	require.NotNil(t, sent)
	assert.Equal(t, "hoc.vien@example.com", sent["to"])
	code := sent["Code"].(string)
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email/confirm", token: token,
		body: `{"token":"` + challengeToken + `","code":"` + wrong + `"}`})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "verification_invalid", body["error"])

	// another user cannot redeem the code
	status, _ = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email/confirm", token: tokenFor(t, "user-9"),
		body: `{"token":"` + challengeToken + `","code":"` + code + `"}`})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email/confirm", token: token,
		body: `{"token":"` + challengeToken + `","code":"` + code + `"}`})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "valid", body["verdict"])
	assert.Equal(t, "hoc.vien@example.com", field(t, body, "profile", "email"))
	assert.NotNil(t, field(t, body, "profile", "email_verified_at"))

	// single use
	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email/confirm", token: token,
		body: `{"token":"` + challengeToken + `","code":"` + code + `"}`})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "verification_expired", body["error"])
}

func TestEmailVerificationUsesTokenEmail(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email", token: tokenFor(t, "user-3")})
	require.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "user-3@example.com", ts.mail.last(mail.TemplateEmailVerification)["to"])

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/verification/email/confirm", token: tokenFor(t, "user-3"),
		body: `{"token":"not-a-uuid","code":"12"}`})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"])
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	past := time.Now().Add(-time.Hour)
	expired := models.NewFreeProfile("lapsed")
	expired.MembershipType = "member"
	expired.MembershipExpiresAt = &past
	ts.profiles.Seed(expired)

	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/expire"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	// a user token is not an admin credential
	status, _ = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/expire", token: tokenFor(t, "user-1")})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/expire", admin: true})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, body["expired"])

	got, err := ts.profiles.GetByUserID(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusExpired, got.MembershipStatus)

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/renew-due", admin: true, body: `{"window":"48h"}`})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotNil(t, body["summary"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/renew-due", admin: true, body: `{"window":"soon"}`})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/lapsed/renew", admin: true})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "queue_unavailable", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/admin/queue", admin: true})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["enabled"])

	status, body = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/admin/stats?refresh=true", admin: true})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.IsType(t, []any{}, field(t, body, "stats", "plans"))
}

func TestAdminRefund(t *testing.T) {
	ts := newTestServer(t)
	token := tokenFor(t, "user-1")
	ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/membership", token: token})
	status, body := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/membership/upgrade", token: token, body: `{"plan":"member"}`})
	require.Equal(t, fiber.StatusOK, status)
	txID := field(t, body, "transaction", "id").(string)

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/transactions/" + txID + "/refund", admin: true, body: `{"reason":"khách yêu cầu"}`})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, models.TransactionStatusRefunded, field(t, body, "transaction", "status"))

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/transactions/" + txID + "/refund", admin: true})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_transition", body["error"])

	status, body = ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/transactions/missing/refund", admin: true})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"])
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AdminPassword = "" })

	status, _ := ts.do(t, call{method: fiber.MethodPost, path: "/api/v1/admin/memberships/expire", admin: true})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMetricsBehindBasicAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	req.SetBasicAuth("ops", "s3cret")
	resp, err = ts.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		status, _ := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/ping"})
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body := ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/ping"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", body["error"])

	// authenticated callers get their own bucket
	status, _ = ts.do(t, call{method: fiber.MethodGet, path: "/api/v1/ping", token: tokenFor(t, "user-1")})
	assert.Equal(t, fiber.StatusOK, status)
}
