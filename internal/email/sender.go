// Package email delivers transactional mail through SMTP, SendGrid or Amazon SES.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwalitptl/drivermed-api/config"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
)

var ErrNoRecipient = errors.New("email: recipient required")

// Sender delivers a single message. Implementations are safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("email: subject required")
	}
	if m.Text == "" && m.HTML == "" {
		return errors.New("email: body required")
	}
	return nil
}

// NewSender builds the configured provider wrapped in a circuit breaker.
func NewSender(ctx context.Context, cfg config.EmailConfig, secrets config.Secrets, log *logger.Logger) (Sender, error) {
	from := Address{Email: cfg.From, Name: cfg.FromName}

	var sender Sender
	switch cfg.Provider {
	case "smtp":
		sender = NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: secrets.SMTPPassword,
			From:     from,
		})
	case "sendgrid":
		if secrets.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid provider")
		}
		sender = NewSendGridSender(secrets.SendGridAPIKey, from)
	case "ses":
		s, err := NewSESSender(ctx, cfg.SESRegion, from)
		if err != nil {
			return nil, err
		}
		sender = s
	case "log":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	return NewBreakerSender(sender, cfg.Provider, log), nil
}

type Address struct {
	Email string
	Name  string
}
