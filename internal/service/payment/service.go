package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/internal/service/booking"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

// Gateway is the payment processor as seen by the coordinator.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req *model.PaymentRequest) (*model.PaymentSession, error)
	CreatePaymentIntent(ctx context.Context, req *model.PaymentRequest) (*model.PaymentSession, error)
	FetchCheckoutSession(ctx context.Context, id string) (*model.ProviderEvent, error)
	FetchPaymentIntent(ctx context.Context, id string) (*model.ProviderEvent, error)
	Refund(ctx context.Context, paymentIntentID string) error
	ParseWebhook(payload []byte, signature string) (*model.ProviderEvent, error)
}

// Bookings is the slice of the booking service the coordinator drives.
type Bookings interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	AssignPaymentReference(ctx context.Context, id uuid.UUID, reference string) error
	FindByReference(ctx context.Context, refs []string) (*model.Booking, error)
	FindPendingByMatch(ctx context.Context, match model.BookingMatch) ([]*model.Booking, error)
	Transition(ctx context.Context, id uuid.UUID, event booking.Event) (*booking.TransitionResult, error)
}

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Service struct {
	cfg       Config
	gateway   Gateway
	bookings  Bookings
	processed repository.ProcessedEventStore
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewService builds the coordinator. processed may be nil, in which case duplicate
// deliveries are still absorbed by the idempotent state machine.
func NewService(cfg Config, gateway Gateway, bookings Bookings, processed repository.ProcessedEventStore, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}
	return &Service{
		cfg:       cfg,
		gateway:   gateway,
		bookings:  bookings,
		processed: processed,
		logger:    logger,
		metrics:   metrics,
	}
}

// Initiate starts a payment for an online booking and stores the processor reference.
func (s *Service) Initiate(ctx context.Context, bookingID uuid.UUID, mode model.PaymentMode) (*model.PaymentInitiation, error) {
	if mode != model.PaymentModeCheckout && mode != model.PaymentModeIntent {
		return nil, apperrors.NewValidation(fmt.Sprintf("mode must be one of [%s %s]", model.PaymentModeCheckout, model.PaymentModeIntent), nil)
	}

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentMethod != model.PaymentMethodOnline {
		return nil, apperrors.NewConflict("this booking is paid in person", nil)
	}
	if b.Status != model.BookingStatusPending || b.PaymentStatus != nil || b.HasPaymentReference() {
		return nil, apperrors.NewConflict("a payment has already been started for this booking", nil)
	}

	initiation := &model.PaymentInitiation{
		BookingID:   b.ID,
		Mode:        mode,
		AmountPence: b.AmountPence,
		Currency:    s.cfg.Currency,
	}

	if b.AmountPence == 0 {
		// Fully discounted: nothing to charge.
		if _, err := s.bookings.Transition(ctx, b.ID, booking.EventPaymentSucceeded); err != nil {
			return nil, err
		}
		s.observeInitiation(mode, "settled")
		initiation.Settled = true
		return initiation, nil
	}

	req := &model.PaymentRequest{
		BookingID:     b.ID,
		AmountPence:   b.AmountPence,
		Currency:      s.cfg.Currency,
		Description:   fmt.Sprintf("%s, %s %s at %s", b.ServiceTitle, b.Date, b.Time, b.LocationName),
		CustomerEmail: b.Email,
		Metadata:      model.PaymentMetadata(b),
		SuccessURL:    withQuery(s.cfg.SuccessURL, "booking_id="+b.ID.String()+"&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     withQuery(s.cfg.CancelURL, "booking_id="+b.ID.String()),
	}

	var session *model.PaymentSession
	if mode == model.PaymentModeCheckout {
		session, err = s.gateway.CreateCheckoutSession(ctx, req)
	} else {
		session, err = s.gateway.CreatePaymentIntent(ctx, req)
	}
	if err != nil {
		s.observeInitiation(mode, "error")
		s.logger.Error(err, "failed to start payment", "booking_id", b.ID.String(), "mode", string(mode))
		return nil, err
	}

	if err := s.bookings.AssignPaymentReference(ctx, b.ID, session.Reference); err != nil {
		s.observeInitiation(mode, "error")
		return nil, err
	}

	s.observeInitiation(mode, "ok")
	s.logger.Info("payment started",
		"booking_id", b.ID.String(),
		"mode", string(mode),
		"reference", session.Reference,
		"amount_pence", b.AmountPence)

	initiation.ProviderReference = session.Reference
	initiation.RedirectURL = session.RedirectURL
	initiation.ClientSecret = session.ClientSecret
	return initiation, nil
}

// HandleWebhook verifies and reconciles one processor notification.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("rejected payment webhook", "error", err.Error())
		return nil, err
	}

	if s.processed != nil {
		seen, err := s.processed.Seen(ctx, event.ID)
		if err != nil {
			s.logger.Warn("processed event lookup failed", "event_id", event.ID, "error", err.Error())
		} else if seen {
			s.observeReconcile(SourceWebhook, OutcomeAlreadyApplied)
			return &ReconcileResult{Outcome: OutcomeAlreadyApplied, EventID: event.ID}, nil
		}
	}

	result, err := s.Reconcile(ctx, SourceWebhook, event)
	if err != nil {
		return nil, err
	}

	if s.processed != nil {
		if err := s.processed.Remember(ctx, event.ID); err != nil {
			s.logger.Warn("failed to remember processed event", "event_id", event.ID, "error", err.Error())
		}
	}
	return result, nil
}

// HandleReturn reconciles the customer's return from the processor. The payment status
// is always fetched from the processor; the query string is only used to find it.
func (s *Service) HandleReturn(ctx context.Context, bookingID uuid.UUID, reference string) (*ReconcileResult, error) {
	var (
		event *model.ProviderEvent
		err   error
	)
	switch {
	case strings.HasPrefix(reference, checkoutPrefix):
		event, err = s.gateway.FetchCheckoutSession(ctx, reference)
	case strings.HasPrefix(reference, intentPrefix):
		event, err = s.gateway.FetchPaymentIntent(ctx, reference)
	default:
		return nil, apperrors.NewBadRequest("unrecognised payment reference", nil)
	}
	if err != nil {
		return nil, err
	}

	if owner := event.Metadata[model.MetaBookingID]; owner != "" && owner != bookingID.String() {
		return nil, apperrors.NewBadRequest("payment does not belong to this booking", nil)
	}

	result, err := s.Reconcile(ctx, SourceReturn, event)
	if err != nil {
		return nil, err
	}
	if result.Booking == nil {
		if result.Booking, err = s.bookings.Get(ctx, bookingID); err != nil {
			return nil, err
		}
	}
	return result, nil
}
