// Package notify implements the notifier sink over SMTP. The scan cycle
// treats anything but a nil return as "not sent", so the reminder stays
// pending and is retried next cycle.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/duewatch/duewatch/internal/config"
)

// sendTimeout bounds one SMTP delivery, dial included.
const sendTimeout = 30 * time.Second

// Mailer sends reminder emails to the configured recipient.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

// NewMailer builds a Mailer from the SMTP configuration.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Server, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send delivers one reminder. It returns nil only on a confirmed handoff to
// the SMTP server.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	from := strings.TrimSpace(m.cfg.Username)
	if from == "" {
		from = m.cfg.Recipient
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", m.cfg.Recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	// gomail has no context support; run the send on the side and bound it
	// with the cycle's context plus a hard timeout.
	result := make(chan error, 1)
	go func() {
		result <- m.dialer.DialAndSend(msg)
	}()

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case errSend := <-result:
		if errSend != nil {
			return fmt.Errorf("notify: send: %w", errSend)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: send: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("notify: send: timeout after %s", sendTimeout)
	}
}
