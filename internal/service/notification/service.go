// Package notification sends booking emails without holding up the request that caused them.
package notification

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/drivermed-api/internal/email"
	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

const (
	maxAttempts = 3

	kindConfirmation  = "confirmation"
	kindAdminBooking  = "admin_new_booking"
	kindPaymentFailed = "payment_failed"
	kindSlotConflict  = "slot_conflict"
	kindRefunded      = "payment_refunded"
	kindAdminInquiry  = "admin_inquiry"
	kindTransactional = "transactional"
)

type Config struct {
	AdminAddress string
	// Timeout bounds one message including retries.
	Timeout    time.Duration
	RetryDelay time.Duration
}

type Service struct {
	sender    email.Sender
	cfg       Config
	templates *template.Template
	logger    *logger.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
}

func NewService(sender email.Sender, cfg Config, logger *logger.Logger, metrics *metrics.Metrics) (*Service, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Service{
		sender:    sender,
		cfg:       cfg,
		templates: templates,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// OnConfirmed emails the customer their booking confirmation.
func (s *Service) OnConfirmed(ctx context.Context, b *model.Booking) {
	s.dispatchBooking(ctx, kindConfirmation, b.Email, b.CustomerName(),
		"Your "+b.ServiceTitle+" on "+b.Date+" is confirmed", b)
}

// OnNewBooking alerts the administrator.
func (s *Service) OnNewBooking(ctx context.Context, b *model.Booking) {
	s.dispatchBooking(ctx, kindAdminBooking, s.cfg.AdminAddress, "",
		"New booking: "+b.ServiceTitle+", "+b.Date+" "+b.Time+", "+b.LocationName, b)
}

func (s *Service) OnPaymentFailed(ctx context.Context, b *model.Booking) {
	s.dispatchBooking(ctx, kindPaymentFailed, b.Email, b.CustomerName(),
		"Your booking could not be completed", b)
}

func (s *Service) OnSlotConflict(ctx context.Context, b *model.Booking) {
	s.dispatchBooking(ctx, kindSlotConflict, b.Email, b.CustomerName(),
		"Your appointment slot is no longer available", b)
}

// OnPaymentRefunded tells the customer a payment that arrived after cancellation was returned.
func (s *Service) OnPaymentRefunded(ctx context.Context, b *model.Booking) {
	s.dispatchBooking(ctx, kindRefunded, b.Email, b.CustomerName(),
		"Your payment has been refunded", b)
}

func (s *Service) OnInquiry(ctx context.Context, inquiry *model.BusinessInquiry) {
	html, err := s.render(kindAdminInquiry, inquiry)
	if err != nil {
		s.failed(kindAdminInquiry, err)
		return
	}
	s.dispatch(ctx, kindAdminInquiry, email.Message{
		To:      s.cfg.AdminAddress,
		Subject: "New business enquiry from " + inquiry.Company,
		HTML:    html,
	})
}

// Send delivers an ad-hoc message synchronously. Paragraphs in body are separated by blank lines.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	html, err := s.render(kindTransactional, paragraphs)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	msg := email.Message{To: to, Subject: subject, Text: body, HTML: html}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.failed(kindTransactional, err)
		if errors.Is(err, email.ErrNoRecipient) {
			return apperrors.NewValidation("to is required", err)
		}
		return apperrors.NewUpstreamTimeout("email provider", err)
	}
	s.observe(kindTransactional, "sent")
	return nil
}

// Wait blocks until in-flight sends finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) dispatchBooking(ctx context.Context, kind, to, toName, subject string, b *model.Booking) {
	html, err := s.render(kind, newBookingView(b))
	if err != nil {
		s.failed(kind, err)
		return
	}
	s.dispatch(ctx, kind, email.Message{To: to, ToName: toName, Subject: subject, HTML: html})
}

// dispatch sends msg in the background. The caller's cancellation does not reach the send.
func (s *Service) dispatch(ctx context.Context, kind string, msg email.Message) {
	if strings.TrimSpace(msg.To) == "" {
		s.logger.Debug("notification skipped, no recipient", "kind", kind)
		s.observe(kind, "skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if err := s.deliver(ctx, msg); err != nil {
			s.failed(kind, err, "to", msg.To)
			return
		}
		s.observe(kind, "sent")
		s.logger.Debug("notification sent", "kind", kind, "to", msg.To)
	}()
}

func (s *Service) deliver(ctx context.Context, msg email.Message) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = s.sender.Send(ctx, msg); err == nil {
			return nil
		}
		if errors.Is(err, email.ErrNoRecipient) || errors.Is(err, circuitbreaker.ErrOpen) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

func (s *Service) failed(kind string, err error, fields ...interface{}) {
	s.observe(kind, "failed")
	s.logger.Error(err, "notification failed", append([]interface{}{"kind", kind}, fields...)...)
}

func (s *Service) observe(kind, status string) {
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(kind, status).Inc()
	}
}
