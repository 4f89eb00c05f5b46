package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
)

type Event string

const (
	EventPaymentSucceeded     Event = "payment_succeeded"
	EventPaymentFailed        Event = "payment_failed"
	EventPaymentExpired       Event = "payment_expired"
	EventAdminConfirm         Event = "admin_confirm"
	EventAdminComplete        Event = "admin_complete"
	EventAdminCancel          Event = "admin_cancel"
	EventSlotConflictRefunded Event = "slot_conflict_refunded"
	EventLatePaymentRefunded  Event = "late_payment_refunded"
)

// TransitionResult describes what a state machine evaluation did.
type TransitionResult struct {
	Booking  *model.Booking
	Previous string
	Changed  bool
}

type target struct {
	status  model.BookingStatus
	payment *model.PaymentStatus
	noop    bool
}

func awaitingPayment(b *model.Booking) bool {
	ps := b.PaymentStatusValue()
	return b.Status == model.BookingStatusPending && (ps == "" || ps == model.PaymentStatusPending)
}

// RefundableAfterClose reports whether a payment captured for b must be handed back
// because the booking was cancelled before any payment was taken.
func RefundableAfterClose(b *model.Booking) bool {
	ps := b.PaymentStatusValue()
	return b.Status == model.BookingStatusCancelled &&
		(ps == "" || ps == model.PaymentStatusPending || ps == model.PaymentStatusFailed)
}

func in(b *model.Booking, status model.BookingStatus, payment model.PaymentStatus) bool {
	return b.Status == status && b.PaymentStatusValue() == payment
}

// plan evaluates the transition table for one event.
func plan(b *model.Booking, event Event) (target, error) {
	paid := model.PaymentStatusPtr(model.PaymentStatusPaid)

	switch event {
	case EventPaymentSucceeded:
		if in(b, model.BookingStatusConfirmed, model.PaymentStatusPaid) {
			return target{noop: true}, nil
		}
		if awaitingPayment(b) {
			return target{status: model.BookingStatusConfirmed, payment: paid}, nil
		}
	case EventPaymentFailed, EventPaymentExpired:
		if in(b, model.BookingStatusCancelled, model.PaymentStatusFailed) {
			return target{noop: true}, nil
		}
		if awaitingPayment(b) {
			return target{status: model.BookingStatusCancelled, payment: model.PaymentStatusPtr(model.PaymentStatusFailed)}, nil
		}
	case EventAdminConfirm:
		if in(b, model.BookingStatusConfirmed, model.PaymentStatusPaid) {
			return target{noop: true}, nil
		}
		if b.PaymentMethod == model.PaymentMethodInPerson && in(b, model.BookingStatusPending, model.PaymentStatusPending) {
			return target{status: model.BookingStatusConfirmed, payment: paid}, nil
		}
	case EventAdminComplete:
		if b.Status == model.BookingStatusCompleted {
			return target{noop: true}, nil
		}
		if in(b, model.BookingStatusConfirmed, model.PaymentStatusPaid) {
			return target{status: model.BookingStatusCompleted, payment: paid}, nil
		}
	case EventAdminCancel:
		if b.Status == model.BookingStatusCancelled {
			return target{noop: true}, nil
		}
		if !b.Status.IsTerminal() {
			return target{status: model.BookingStatusCancelled, payment: b.PaymentStatus}, nil
		}
	case EventSlotConflictRefunded:
		if in(b, model.BookingStatusCancelled, model.PaymentStatusRefunded) {
			return target{noop: true}, nil
		}
		if awaitingPayment(b) {
			return target{status: model.BookingStatusCancelled, payment: model.PaymentStatusPtr(model.PaymentStatusRefunded)}, nil
		}
	case EventLatePaymentRefunded:
		if in(b, model.BookingStatusCancelled, model.PaymentStatusRefunded) {
			return target{noop: true}, nil
		}
		if RefundableAfterClose(b) {
			return target{status: model.BookingStatusCancelled, payment: model.PaymentStatusPtr(model.PaymentStatusRefunded)}, nil
		}
	default:
		return target{}, apperrors.NewBadRequest("unknown booking event "+string(event), nil)
	}

	if b.Status.IsTerminal() {
		return target{}, apperrors.NewTerminalState(string(b.Status))
	}
	return target{}, apperrors.NewInvalidTransition(b.State(), string(event))
}

func outboxType(status model.BookingStatus) string {
	switch status {
	case model.BookingStatusConfirmed:
		return model.EventBookingConfirmed
	case model.BookingStatusCompleted:
		return model.EventBookingCompleted
	default:
		return model.EventBookingCancelled
	}
}

// Transition applies event to the booking. Re-applying an event whose effect is already
// in place returns Changed=false and no error.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, event Event) (*TransitionResult, error) {
	return s.TransitionWithNote(ctx, id, event, "")
}

// TransitionWithNote is Transition that also appends note to the booking's admin notes.
func (s *Service) TransitionWithNote(ctx context.Context, id uuid.UUID, event Event, note string) (*TransitionResult, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.apply(ctx, current, event, note)
	if errors.Is(err, repository.ErrStaleState) {
		// Another writer got there first; evaluate once more against the fresh row.
		s.logger.Debug("booking changed concurrently, re-reading", "booking_id", id.String(), "event", string(event))
		if current, err = s.Get(ctx, id); err != nil {
			return nil, err
		}
		result, err = s.apply(ctx, current, event, note)
		if errors.Is(err, repository.ErrStaleState) {
			s.observe(event, "stale")
			return nil, apperrors.NewConflict("booking was modified concurrently, please retry", err)
		}
	}
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.notify(ctx, result.Booking, event)
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, current *model.Booking, event Event, note string) (*TransitionResult, error) {
	previous := current.State()

	next, err := plan(current, event)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, apperrors.ErrKindTerminalState) {
			outcome = "terminal"
		}
		s.observe(event, outcome)
		s.logger.Warn("booking transition rejected",
			"booking_id", current.ID.String(),
			"state", previous,
			"event", string(event))
		return nil, err
	}
	if next.noop {
		s.observe(event, "noop")
		return &TransitionResult{Booking: current, Previous: previous}, nil
	}

	guard := repository.StateGuard{Status: current.Status, PaymentStatus: current.PaymentStatus}
	updated := *current
	updated.Status = next.status
	updated.PaymentStatus = next.payment
	if note = strings.TrimSpace(note); note != "" {
		updated.AdminNotes = appendNote(current.AdminNotes, note)
	}

	outbox, err := outboxEvent(outboxType(next.status), &updated, previous, string(event), s.now())
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if err := s.bookings.UpdateState(ctx, &updated, guard, outbox); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return nil, err
		case errors.Is(err, repository.ErrSlotTaken):
			s.observe(event, "slot_conflict")
			return nil, apperrors.NewSlotConflict(err)
		default:
			s.observe(event, "error")
			s.logger.Error(err, "failed to update booking state", "booking_id", current.ID.String(), "event", string(event))
			return nil, apperrors.NewPersistence(err)
		}
	}

	s.observe(event, "changed")
	s.logger.Info("booking transitioned",
		"booking_id", updated.ID.String(),
		"from", previous,
		"to", updated.State(),
		"event", string(event))
	return &TransitionResult{Booking: &updated, Previous: previous, Changed: true}, nil
}

func (s *Service) notify(ctx context.Context, b *model.Booking, event Event) {
	switch {
	case b.Status == model.BookingStatusConfirmed:
		s.notifier.OnConfirmed(ctx, b)
		// In-person bookings alerted the admin when they were created.
		if b.PaymentMethod == model.PaymentMethodOnline {
			s.notifier.OnNewBooking(ctx, b)
		}
	case event == EventPaymentFailed || event == EventPaymentExpired:
		s.notifier.OnPaymentFailed(ctx, b)
	case event == EventSlotConflictRefunded:
		s.notifier.OnSlotConflict(ctx, b)
	case event == EventLatePaymentRefunded:
		s.notifier.OnPaymentRefunded(ctx, b)
	}
}

func (s *Service) observe(event Event, outcome string) {
	if s.metrics != nil {
		s.metrics.BookingTransitions.WithLabelValues(string(event), outcome).Inc()
	}
}

func appendNote(existing *string, note string) *string {
	if existing == nil || *existing == "" {
		return &note
	}
	joined := *existing + "\n" + note
	return &joined
}
