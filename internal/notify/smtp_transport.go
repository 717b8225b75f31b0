package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp is not configured")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS dials with TLS from the start (SMTPS). Otherwise STARTTLS
	// is used whenever the server offers it.
	ImplicitTLS bool
}

type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(ctx context.Context, m Mail) error {
	if t.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", t.cfg.From)
	msg.SetHeader("To", m.To)
	if len(m.CC) > 0 {
		msg.SetHeader("Cc", m.CC...)
	}
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	if a := m.Attachment; a != nil {
		data := a.Data
		msg.Attach(a.Filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}

	username := t.cfg.Username
	if t.cfg.Password == "" || t.cfg.Password == "CHANGE_ME" {
		// gomail skips authentication without a username
		username = ""
	}
	d := gomail.NewDialer(t.cfg.Host, t.cfg.Port, username, t.cfg.Password)
	if t.cfg.ImplicitTLS {
		d.SSL = true
	}
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp %s:%d: %w", t.cfg.Host, t.cfg.Port, err)
	}
	return nil
}
