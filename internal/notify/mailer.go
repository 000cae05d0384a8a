// Package notify delivers user-facing e-mail.
package notify

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

// Email is one outgoing message.
type Email struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers e-mail.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer sends plain-text mail over SMTP.  A dialer is opened per message;
// volume is one message per booking event.
type Mailer struct {
	cfg    MailConfig
	dialer *gomail.Dialer
}

// NewMailer returns an SMTP mailer.
func NewMailer(cfg MailConfig) *Mailer {
	if cfg.From == "" {
		cfg.From = "bookings@travel-booking.local"
	}
	return &Mailer{cfg: cfg, dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)}
}

// Send implements Sender.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return errors.New("notify: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.dialer.DialAndSend(m.Message(e))
}

// Message builds the MIME message for e.
func (m *Mailer) Message(e Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/plain", e.Text)
	return msg
}
