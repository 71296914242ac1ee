package mail

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPTransport sends emails via SMTP
type SMTPTransport struct {
	Addr     string
	Host     string
	Username string
	Password string
	From     string
	FromName string

	send sendFunc
}

func NewSMTPTransportFromEnv(from, fromName string) *SMTPTransport {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "587")
	if sender := env.GetEnv("SMTP_SENDER", ""); sender != "" {
		from = sender
	}
	return &SMTPTransport{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Host:     host,
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		From:     from,
		FromName: fromName,
		send:     smtp.SendMail,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if t.Username != "" && t.Password != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}

	send := t.send
	if send == nil {
		send = smtp.SendMail
	}
	err := send(t.Addr, auth, t.From, []string{msg.To}, t.buildMessage(msg))
	if err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
		return err
	}
	log.Debugf("[Mail] email sent to %s via %s", msg.To, t.Addr)
	return nil
}

func (t *SMTPTransport) buildMessage(msg Message) []byte {
	from := (&mail.Address{Name: t.FromName, Address: t.From}).String()
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, msg.To, mime.QEncoding.Encode("UTF-8", msg.Subject)) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.HTML,
	)
}
