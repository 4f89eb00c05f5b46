package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/service/booking"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
)

type Outcome string

const (
	OutcomeTransitioned   Outcome = "transitioned"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeAmbiguous      Outcome = "ambiguous"
	OutcomeTerminal       Outcome = "terminal"
	OutcomeRefunded       Outcome = "refunded"
)

const (
	SourceWebhook = "webhook"
	SourceReturn  = "return"
)

// Processor reference prefixes.
const (
	checkoutPrefix = "cs_"
	intentPrefix   = "pi_"
)

type ReconcileResult struct {
	Outcome   Outcome        `json:"outcome"`
	EventID   string         `json:"event_id,omitempty"`
	BookingID *uuid.UUID     `json:"booking_id,omitempty"`
	Booking   *model.Booking `json:"-"`
}

var eventsByKind = map[model.ProviderEventKind]booking.Event{
	model.ProviderEventSucceeded: booking.EventPaymentSucceeded,
	model.ProviderEventFailed:    booking.EventPaymentFailed,
	model.ProviderEventExpired:   booking.EventPaymentExpired,
}

// Reconcile applies a processor outcome to the booking it belongs to. It is safe to call
// any number of times for the same event and from both the webhook and the return path.
func (s *Service) Reconcile(ctx context.Context, source string, event *model.ProviderEvent) (*ReconcileResult, error) {
	result := &ReconcileResult{EventID: event.ID}

	bookingEvent, ok := eventsByKind[event.Kind]
	if !ok {
		result.Outcome = OutcomeIgnored
		s.observeReconcile(source, result.Outcome)
		s.logger.Debug("payment event carries no outcome", "event_id", event.ID, "type", event.Type, "kind", string(event.Kind))
		return result, nil
	}

	target, err := s.locate(ctx, event)
	if err != nil {
		return nil, err
	}
	if target == nil {
		result.Outcome = OutcomeAmbiguous
		s.observeReconcile(source, result.Outcome)
		s.logger.Error(apperrors.NewReconciliationAmbiguous("no single booking matches payment event"),
			"payment event needs manual reconciliation",
			"event_id", event.ID,
			"type", event.Type,
			"references", event.References,
			"email", event.Metadata[model.MetaEmail])
		return result, nil
	}
	result.BookingID = &target.ID

	if bookingEvent == booking.EventPaymentFailed && checkoutOpen(target) {
		// A declined card leaves the checkout session open for another attempt; only
		// completion or expiry closes it.
		result.Booking = target
		result.Outcome = OutcomeIgnored
		s.observeReconcile(source, result.Outcome)
		s.logger.Info("declined payment on open checkout session",
			"booking_id", target.ID.String(),
			"event_id", event.ID)
		return result, nil
	}

	transition, err := s.bookings.Transition(ctx, target.ID, bookingEvent)
	switch {
	case err == nil:
		result.Booking = transition.Booking
		result.Outcome = OutcomeAlreadyApplied
		if transition.Changed {
			result.Outcome = OutcomeTransitioned
		}
	case errors.Is(err, apperrors.ErrKindTerminalState) && bookingEvent == booking.EventPaymentSucceeded:
		closed, outcome, err := s.refundAfterClose(ctx, target.ID, event)
		if err != nil {
			s.observeReconcile(source, "error")
			return nil, err
		}
		result.Booking = closed
		result.Outcome = outcome
	case errors.Is(err, apperrors.ErrKindTerminalState):
		result.Outcome = OutcomeTerminal
		s.logger.Warn("payment event for a closed booking", "booking_id", target.ID.String(), "event_id", event.ID, "kind", string(event.Kind))
	case errors.Is(err, apperrors.ErrKindInvalidTransition):
		result.Outcome = OutcomeIgnored
		s.logger.Warn("payment event does not apply to booking state", "booking_id", target.ID.String(), "state", target.State(), "kind", string(event.Kind))
	case errors.Is(err, apperrors.ErrKindSlotConflict) && bookingEvent == booking.EventPaymentSucceeded:
		refunded, err := s.refundConflict(ctx, target, event)
		if err != nil {
			s.observeReconcile(source, "error")
			return nil, err
		}
		result.Booking = refunded
		result.Outcome = OutcomeRefunded
	default:
		s.observeReconcile(source, "error")
		return nil, err
	}

	s.observeReconcile(source, result.Outcome)
	s.logger.Info("payment event reconciled",
		"booking_id", target.ID.String(),
		"event_id", event.ID,
		"source", source,
		"outcome", string(result.Outcome))
	return result, nil
}

// locate finds the booking by processor reference, then by the booking id carried in the
// signed metadata, then by the exact metadata tuple among pending bookings.
// It returns nil when nothing or more than one booking matches.
func (s *Service) locate(ctx context.Context, event *model.ProviderEvent) (*model.Booking, error) {
	b, err := s.bookings.FindByReference(ctx, event.References)
	if err != nil || b != nil {
		return b, err
	}

	if id, err := uuid.Parse(event.Metadata[model.MetaBookingID]); err == nil {
		b, err := s.bookings.Get(ctx, id)
		switch {
		case err == nil:
			return b, nil
		case !errors.Is(err, apperrors.ErrKindNotFound):
			return nil, err
		}
	}

	candidates, err := s.bookings.FindPendingByMatch(ctx, event.Match())
	if err != nil {
		return nil, err
	}
	if len(candidates) != 1 {
		return nil, nil
	}
	return candidates[0], nil
}

// refundConflict voids a captured payment whose slot went to another booking.
func (s *Service) refundConflict(ctx context.Context, b *model.Booking, event *model.ProviderEvent) (*model.Booking, error) {
	if event.RefundTarget == "" {
		return nil, apperrors.NewInternal(errors.New("payment event has no refundable payment"))
	}
	s.logger.Warn("slot taken before payment settled, refunding",
		"booking_id", b.ID.String(),
		"payment_intent", event.RefundTarget)

	if err := s.gateway.Refund(ctx, event.RefundTarget); err != nil {
		s.logger.Error(err, "refund after slot conflict failed", "booking_id", b.ID.String())
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RefundsOnSlotConflict.Inc()
	}

	res, err := s.bookings.Transition(ctx, b.ID, booking.EventSlotConflictRefunded)
	if err != nil {
		return nil, err
	}
	return res.Booking, nil
}

// refundAfterClose hands back a payment that succeeded after its booking was cancelled
// unpaid. Payments on bookings that were paid or already refunded are left alone.
func (s *Service) refundAfterClose(ctx context.Context, id uuid.UUID, event *model.ProviderEvent) (*model.Booking, Outcome, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if b.Status == model.BookingStatusCancelled && b.PaymentStatusValue() == model.PaymentStatusRefunded {
		return b, OutcomeAlreadyApplied, nil
	}
	if !booking.RefundableAfterClose(b) {
		s.logger.Warn("payment event for a closed booking", "booking_id", id.String(), "event_id", event.ID, "state", b.State())
		return b, OutcomeTerminal, nil
	}
	if event.RefundTarget == "" {
		s.logger.Error(apperrors.NewReconciliationAmbiguous("payment on cancelled booking has no refundable payment"),
			"payment needs manual refund",
			"booking_id", id.String(),
			"event_id", event.ID)
		return b, OutcomeTerminal, nil
	}

	s.logger.Warn("payment arrived after cancellation, refunding",
		"booking_id", id.String(),
		"state", b.State(),
		"payment_intent", event.RefundTarget)
	if err := s.gateway.Refund(ctx, event.RefundTarget); err != nil {
		s.logger.Error(err, "refund after cancellation failed", "booking_id", id.String())
		return nil, "", err
	}
	if s.metrics != nil {
		s.metrics.RefundsAfterClose.Inc()
	}

	res, err := s.bookings.Transition(ctx, id, booking.EventLatePaymentRefunded)
	if err != nil {
		return nil, "", err
	}
	return res.Booking, OutcomeRefunded, nil
}

// checkoutOpen reports whether b is paid through a checkout session that has not settled.
func checkoutOpen(b *model.Booking) bool {
	return b.Status == model.BookingStatusPending &&
		b.PaymentIntentID != nil && strings.HasPrefix(*b.PaymentIntentID, checkoutPrefix)
}

func (s *Service) observeReconcile(source string, outcome Outcome) {
	if s.metrics != nil {
		s.metrics.Reconciliations.WithLabelValues(source, string(outcome)).Inc()
	}
}

func (s *Service) observeInitiation(mode model.PaymentMode, status string) {
	if s.metrics != nil {
		s.metrics.PaymentInitiations.WithLabelValues(string(mode), status).Inc()
	}
}

func withQuery(base, query string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query
}
