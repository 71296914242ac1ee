package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &HTTPGateway{URL: srv.URL, APIKey: "secret", HTTPClient: srv.Client()}
}

func TestHTTPGatewayCompleted(t *testing.T) {
	var got ChargeRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "tx-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"COMPLETED","gateway_transaction_id":"vnp-42"}`))
	})

	res, err := g.Charge(context.Background(), ChargeRequest{TransactionID: "tx-1", Amount: 199000, Currency: "VND", Method: "vnpay", Token: "tok"})
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Equal(t, "vnp-42", res.GatewayTransactionID)
	assert.Equal(t, int64(199000), got.Amount)
	assert.Equal(t, "tok", got.Token)
}

func TestHTTPGatewayResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantStatus string
		wantReason string
	}{
		{name: "declined body", status: 200, body: `{"status":"failed","reason":"insufficient funds"}`, wantStatus: ChargeFailed, wantReason: "insufficient funds"},
		{name: "unknown status", status: 200, body: `{"status":"processing"}`, wantStatus: ChargeFailed},
		{name: "client error", status: 402, body: `{}`, wantStatus: ChargeFailed, wantReason: "declined with status 402"},
		{name: "server error", status: 502, body: `bad gateway`, wantErr: true},
		{name: "garbage", status: 200, body: `<html>`, wantErr: true},
		{name: "completed without id", status: 200, body: `{"status":"completed"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := g.Charge(context.Background(), ChargeRequest{TransactionID: "tx"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, res.Reason)
			}
		})
	}
}

func TestHTTPGatewayTimeout(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := g.Charge(ctx, ChargeRequest{TransactionID: "tx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPGatewayNotConfigured(t *testing.T) {
	_, err := (&HTTPGateway{}).Charge(context.Background(), ChargeRequest{})
	assert.Error(t, err)
}
