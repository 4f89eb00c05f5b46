package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
)

func seed(f *fixture, status model.BookingStatus, payment *model.PaymentStatus, method model.PaymentMethod) *model.Booking {
	b := &model.Booking{
		ID:            uuid.New(),
		ServiceTitle:  testService.Title,
		LocationID:    testLoc.ID,
		Date:          "2025-06-10",
		Time:          "10:00",
		Email:         "ada@example.com",
		Status:        status,
		PaymentStatus: payment,
		PaymentMethod: method,
		AmountPence:   5500,
	}
	f.repo.Put(b)
	return b
}

func ps(s model.PaymentStatus) *model.PaymentStatus { return model.PaymentStatusPtr(s) }

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		name        string
		status      model.BookingStatus
		payment     *model.PaymentStatus
		method      model.PaymentMethod
		event       Event
		wantStatus  model.BookingStatus
		wantPayment *model.PaymentStatus
		wantOutbox  string
	}{
		{"online paid", model.BookingStatusPending, nil, model.PaymentMethodOnline, EventPaymentSucceeded,
			model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.EventBookingConfirmed},
		{"online paid after reference", model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline, EventPaymentSucceeded,
			model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.EventBookingConfirmed},
		{"payment failed", model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline, EventPaymentFailed,
			model.BookingStatusCancelled, ps(model.PaymentStatusFailed), model.EventBookingCancelled},
		{"session expired", model.BookingStatusPending, nil, model.PaymentMethodOnline, EventPaymentExpired,
			model.BookingStatusCancelled, ps(model.PaymentStatusFailed), model.EventBookingCancelled},
		{"admin confirms in person", model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodInPerson, EventAdminConfirm,
			model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.EventBookingConfirmed},
		{"admin completes", model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventAdminComplete,
			model.BookingStatusCompleted, ps(model.PaymentStatusPaid), model.EventBookingCompleted},
		{"admin cancels pending", model.BookingStatusPending, nil, model.PaymentMethodOnline, EventAdminCancel,
			model.BookingStatusCancelled, nil, model.EventBookingCancelled},
		{"admin cancels confirmed", model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventAdminCancel,
			model.BookingStatusCancelled, ps(model.PaymentStatusPaid), model.EventBookingCancelled},
		{"refunded after conflict", model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline, EventSlotConflictRefunded,
			model.BookingStatusCancelled, ps(model.PaymentStatusRefunded), model.EventBookingCancelled},
		{"late payment after failure refunded", model.BookingStatusCancelled, ps(model.PaymentStatusFailed), model.PaymentMethodOnline, EventLatePaymentRefunded,
			model.BookingStatusCancelled, ps(model.PaymentStatusRefunded), model.EventBookingCancelled},
		{"late payment after admin cancel refunded", model.BookingStatusCancelled, ps(model.PaymentStatusPending), model.PaymentMethodOnline, EventLatePaymentRefunded,
			model.BookingStatusCancelled, ps(model.PaymentStatusRefunded), model.EventBookingCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := seed(f, tt.status, tt.payment, tt.method)

			res, err := f.svc.Transition(context.Background(), b.ID, tt.event)
			require.NoError(t, err)
			assert.True(t, res.Changed)
			assert.Equal(t, tt.wantStatus, res.Booking.Status)
			assert.Equal(t, tt.wantPayment, res.Booking.PaymentStatus)
			assert.Equal(t, b.State(), res.Previous)

			stored, err := f.repo.Get(context.Background(), b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, []string{tt.wantOutbox}, f.repo.EventTypes())
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		status  model.BookingStatus
		payment *model.PaymentStatus
		method  model.PaymentMethod
		event   Event
		kind    error
	}{
		{"complete from pending", model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodInPerson, EventAdminComplete, apperrors.ErrKindInvalidTransition},
		{"admin confirm on online booking", model.BookingStatusPending, nil, model.PaymentMethodOnline, EventAdminConfirm, apperrors.ErrKindInvalidTransition},
		{"fail after confirm", model.BookingStatusConfirmed, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventPaymentFailed, apperrors.ErrKindInvalidTransition},
		{"pay after cancel", model.BookingStatusCancelled, ps(model.PaymentStatusFailed), model.PaymentMethodOnline, EventPaymentSucceeded, apperrors.ErrKindTerminalState},
		{"cancel after complete", model.BookingStatusCompleted, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventAdminCancel, apperrors.ErrKindTerminalState},
		{"refund after complete", model.BookingStatusCompleted, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventSlotConflictRefunded, apperrors.ErrKindTerminalState},
		{"late refund of a paid cancellation", model.BookingStatusCancelled, ps(model.PaymentStatusPaid), model.PaymentMethodOnline, EventLatePaymentRefunded, apperrors.ErrKindTerminalState},
		{"late refund on open booking", model.BookingStatusPending, nil, model.PaymentMethodOnline, EventLatePaymentRefunded, apperrors.ErrKindInvalidTransition},
		{"unknown event", model.BookingStatusPending, nil, model.PaymentMethodOnline, Event("teleport"), apperrors.ErrKindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := seed(f, tt.status, tt.payment, tt.method)

			res, err := f.svc.Transition(context.Background(), b.ID, tt.event)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.kind)

			stored, err := f.repo.Get(context.Background(), b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
			assert.Empty(t, f.repo.Events)
			assert.Empty(t, f.notifier.Calls())
		})
	}
}

func TestTransition_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)

	first, err := f.svc.Transition(context.Background(), b.ID, EventPaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := f.svc.Transition(context.Background(), b.ID, EventPaymentSucceeded)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, model.BookingStatusConfirmed, second.Booking.Status)

	assert.Equal(t, []string{model.EventBookingConfirmed}, f.repo.EventTypes())
	assert.Equal(t, []string{"confirmed", "new_booking"}, f.notifier.Calls())
}

func TestTransition_FailureReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusCancelled, ps(model.PaymentStatusFailed), model.PaymentMethodOnline)

	res, err := f.svc.Transition(context.Background(), b.ID, EventPaymentExpired)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, f.notifier.Calls())
}

func TestTransition_InPersonConfirmDoesNotRealertAdmin(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodInPerson)

	_, err := f.svc.Transition(context.Background(), b.ID, EventAdminConfirm)
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmed"}, f.notifier.Calls())
}

func TestTransition_FailureAndConflictNotifications(t *testing.T) {
	f := newFixture(t)
	failed := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)
	refunded := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)
	refunded.Time = "11:00"
	f.repo.Put(refunded)

	_, err := f.svc.Transition(context.Background(), failed.ID, EventPaymentFailed)
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), refunded.ID, EventSlotConflictRefunded)
	require.NoError(t, err)

	assert.Equal(t, []string{"payment_failed", "slot_conflict"}, f.notifier.Calls())
}

func TestTransition_SecondConfirmForSlotConflicts(t *testing.T) {
	f := newFixture(t)
	first := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)
	second := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)

	_, err := f.svc.Transition(context.Background(), first.ID, EventPaymentSucceeded)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), second.ID, EventPaymentSucceeded)
	assert.ErrorIs(t, err, apperrors.ErrKindSlotConflict)

	stored, err := f.repo.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, stored.Status)
}

// racingRepo lets another writer change the row between the read and the conditional update.
type racingRepo struct {
	*memoryRepo
	race func()
	once bool
}

type memoryRepo = memory.BookingRepository

func (r *racingRepo) UpdateState(ctx context.Context, b *model.Booking, guard repository.StateGuard, event *model.OutboxEvent) error {
	if !r.once {
		r.once = true
		r.race()
	}
	return r.memoryRepo.UpdateState(ctx, b, guard, event)
}

func TestTransition_ReReadsAfterConcurrentChange(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, nil, model.PaymentMethodOnline)

	racing := &racingRepo{memoryRepo: f.repo}
	racing.race = func() {
		// The reference lands between our read and our write.
		require.NoError(t, f.repo.SetPaymentReference(context.Background(), b.ID, "pi_123"))
	}
	f.svc.bookings = racing

	res, err := f.svc.Transition(context.Background(), b.ID, EventPaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "pending/pending", res.Previous)
	assert.Equal(t, model.BookingStatusConfirmed, res.Booking.Status)
}

func TestTransition_ConcurrentCompletionIsNoop(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, ps(model.PaymentStatusPending), model.PaymentMethodOnline)

	racing := &racingRepo{memoryRepo: f.repo}
	racing.race = func() {
		// A return-URL reconcile wins the race for the same payment.
		winner := *b
		winner.Status = model.BookingStatusConfirmed
		winner.PaymentStatus = ps(model.PaymentStatusPaid)
		f.repo.Put(&winner)
	}
	f.svc.bookings = racing

	res, err := f.svc.Transition(context.Background(), b.ID, EventPaymentSucceeded)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, f.notifier.Calls())
}

func TestTransitionWithNote_AppendsAdminNote(t *testing.T) {
	f := newFixture(t)
	note := "called customer"
	b := seed(f, model.BookingStatusPending, nil, model.PaymentMethodOnline)
	b.AdminNotes = &note
	f.repo.Put(b)

	res, err := f.svc.TransitionWithNote(context.Background(), b.ID, EventAdminCancel, "  no show  ")
	require.NoError(t, err)
	require.NotNil(t, res.Booking.AdminNotes)
	assert.Equal(t, "called customer\nno show", *res.Booking.AdminNotes)
}
