package mail

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
)

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier sends a templated email. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, to, template string, data map[string]any) error
}

var ErrNoRecipient = errors.New("mail: recipient is empty")

// TemplateNotifier renders templates and hands them to a transport.
type TemplateNotifier struct {
	transport Transport
}

func NewTemplateNotifier(t Transport) *TemplateNotifier {
	return &TemplateNotifier{transport: t}
}

func (n *TemplateNotifier) Notify(ctx context.Context, to, template string, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	subject, body, err := Render(template, data)
	if err != nil {
		return err
	}
	return n.transport.Send(ctx, Message{To: to, Subject: subject, HTML: body})
}

// LogTransport only logs messages. Used when no mail provider is configured.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg Message) error {
	log.Infof("[Mail] delivery disabled, dropping %q to %s", msg.Subject, msg.To)
	return nil
}

// NewNotifierFromEnv picks SendGrid when SENDGRID_API_KEY is set, SMTP when
// SMTP_HOST is set, and a logging transport otherwise.
func NewNotifierFromEnv() *TemplateNotifier {
	from := env.GetEnv("MAIL_FROM", "no-reply@eduportal.vn")
	fromName := env.GetEnv("MAIL_FROM_NAME", "EduPortal")

	if key := strings.TrimSpace(env.GetEnv("SENDGRID_API_KEY", "")); key != "" {
		log.Info("[Mail] using SendGrid transport")
		return NewTemplateNotifier(NewSendGridTransport(key, from, fromName))
	}
	if host := strings.TrimSpace(env.GetEnv("SMTP_HOST", "")); host != "" {
		log.Infof("[Mail] using SMTP transport via %s", host)
		return NewTemplateNotifier(NewSMTPTransportFromEnv(from, fromName))
	}
	log.Warn("[Mail] no mail provider configured, emails will only be logged")
	return NewTemplateNotifier(LogTransport{})
}
