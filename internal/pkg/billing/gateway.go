package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/metrics"
)

const (
	ChargeCompleted = "completed"
	ChargeFailed    = "failed"

	DefaultGatewayTimeout = 30 * time.Second
)

// ChargeRequest is one payment attempt.
type ChargeRequest struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	Token         string `json:"token,omitempty"`
	Description   string `json:"description"`
}

// ChargeResult is the gateway verdict. A non-nil error from Charge means the
// outcome is unknown and is treated as failed.
type ChargeResult struct {
	Status               string `json:"status"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
	Reason               string `json:"reason,omitempty"`
}

func (r ChargeResult) Completed() bool {
	return r.Status == ChargeCompleted
}

// PaymentGateway charges a payment method.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// HTTPGateway talks JSON to a payment provider bridge.
type HTTPGateway struct {
	URL    string
	APIKey string

	HTTPClient *http.Client
}

func NewHTTPGatewayFromEnv() *HTTPGateway {
	return &HTTPGateway{
		URL:    strings.TrimSpace(env.GetEnv("PAYMENT_GATEWAY_URL", "")),
		APIKey: strings.TrimSpace(env.GetEnv("PAYMENT_GATEWAY_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("PAYMENT_GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		},
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	start := time.Now()
	res, err := g.charge(ctx, req)
	status := res.Status
	if err != nil {
		status = "error"
	}
	metrics.ObserveGatewayCharge(status, time.Since(start))
	return res, err
}

func (g *HTTPGateway) charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.URL == "" {
		return ChargeResult{}, errors.New("PAYMENT_GATEWAY_URL is not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.URL, "/")+"/charges", bytes.NewReader(payload))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.TransactionID)
	if g.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultGatewayTimeout}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 {
		return ChargeResult{}, fmt.Errorf("payment gateway error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out ChargeResult
	if err := json.Unmarshal(body, &out); err != nil {
		return ChargeResult{}, fmt.Errorf("payment gateway response: %w", err)
	}
	out.Status = strings.ToLower(strings.TrimSpace(out.Status))
	switch {
	case resp.StatusCode >= 400:
		// 4xx is a definitive decline
		out.Status = ChargeFailed
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("declined with status %d", resp.StatusCode)
		}
	case out.Status == ChargeCompleted && strings.TrimSpace(out.GatewayTransactionID) == "":
		return ChargeResult{}, errors.New("payment gateway returned completed without transaction id")
	case out.Status != ChargeCompleted:
		out.Status = ChargeFailed
	}
	return out, nil
}
