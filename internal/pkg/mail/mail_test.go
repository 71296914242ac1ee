package mail

import (
	"context"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []Message
}

func (r *recordingTransport) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func TestRenderAllTemplates(t *testing.T) {
	data := map[string]any{
		"Name": "An", "Plan": "Premium", "Amount": "399.000 VND",
		"ExpiresAt": "17/11/2026", "TransactionID": "tx-1", "Reason": "declined",
		"Code": "123456", "TTLMinutes": 15,
	}
	for _, name := range []string{
		TemplateMembershipUpgraded,
		TemplateMembershipRenewed,
		TemplateMembershipRenewalFailed,
		TemplateMembershipExpired,
		TemplateEmailVerification,
	} {
		t.Run(name, func(t *testing.T) {
			subject, body, err := Render(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, body, "<!DOCTYPE html>")
		})
	}
}

func TestRenderEscapesData(t *testing.T) {
	_, body, err := Render(TemplateMembershipExpired, map[string]any{"Name": "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestTemplateNotifier(t *testing.T) {
	rec := &recordingTransport{}
	n := NewTemplateNotifier(rec)

	err := n.Notify(context.Background(), " user@example.com ", TemplateEmailVerification, map[string]any{"Code": "654321", "TTLMinutes": 15})
	require.NoError(t, err)
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "user@example.com", rec.sent[0].To)
	assert.Contains(t, rec.sent[0].HTML, "654321")

	assert.ErrorIs(t, n.Notify(context.Background(), "", TemplateEmailVerification, nil), ErrNoRecipient)
}

func TestSMTPTransportBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	tr := &SMTPTransport{
		Addr: "smtp.example.com:587", Host: "smtp.example.com",
		From: "no-reply@eduportal.vn", FromName: "EduPortal",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			assert.Nil(t, a, "no auth without credentials")
			return nil
		},
	}

	err := tr.Send(context.Background(), Message{To: "a@b.vn", Subject: "Gia hạn", HTML: "<p>ok</p>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@eduportal.vn", gotFrom)
	assert.Equal(t, []string{"a@b.vn"}, gotTo)

	raw := string(gotMsg)
	assert.True(t, strings.HasPrefix(raw, `From: "EduPortal" <no-reply@eduportal.vn>`))
	assert.Contains(t, raw, "Subject: =?UTF-8?q?")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>ok</p>"))
}

func TestSMTPTransportHonoursCancelledContext(t *testing.T) {
	called := false
	tr := &SMTPTransport{send: func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tr.Send(ctx, Message{To: "a@b.vn"}))
	assert.False(t, called)
}
