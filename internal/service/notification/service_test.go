package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/email"
	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []email.Message
	failures int
	err      error
	calls    int
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Sent() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.sent...)
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T, sender email.Sender, admin string) *Service {
	t.Helper()
	svc, err := NewService(sender, Config{
		AdminAddress: admin,
		Timeout:      time.Second,
		RetryDelay:   time.Millisecond,
	}, logger.Nop(), metrics.New("test"))
	require.NoError(t, err)
	return svc
}

func wait(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
}

func testBooking() *model.Booking {
	code := "2025D"
	return &model.Booking{
		ID:            uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		ServiceTitle:  "HGV/LGV Medical",
		LocationName:  "Bedford MK40 1UH",
		Date:          "2025-06-10",
		Time:          "10:00",
		FirstName:     "Sam",
		LastName:      "Haulier",
		Email:         "sam@example.com",
		Phone:         "07700 900456",
		AmountPence:   5000,
		VoucherCode:   &code,
		Status:        model.BookingStatusConfirmed,
		PaymentStatus: model.PaymentStatusPtr(model.PaymentStatusPaid),
		PaymentMethod: model.PaymentMethodOnline,
	}
}

func TestOnConfirmed_SendsToCustomer(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "admin@example.com")

	svc.OnConfirmed(context.Background(), testBooking())
	wait(t, svc)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sam@example.com", sent[0].To)
	assert.Equal(t, "Sam Haulier", sent[0].ToName)
	assert.Contains(t, sent[0].Subject, "HGV/LGV Medical")
	assert.Contains(t, sent[0].HTML, "£50.00")
	assert.Contains(t, sent[0].HTML, "2025D")
	assert.Contains(t, sent[0].HTML, "0F8FAD5B")
}

func TestOnNewBooking_GoesToAdmin(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "admin@example.com")

	svc.OnNewBooking(context.Background(), testBooking())
	wait(t, svc)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "admin@example.com", sent[0].To)
	assert.Contains(t, sent[0].HTML, "sam@example.com")
	assert.Contains(t, sent[0].HTML, "paid")
}

func TestOnNewBooking_SkippedWithoutAdminAddress(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "")

	svc.OnNewBooking(context.Background(), testBooking())
	wait(t, svc)
	assert.Equal(t, 0, sender.Calls())
}

func TestCustomerNotices(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "")

	svc.OnPaymentFailed(context.Background(), testBooking())
	svc.OnSlotConflict(context.Background(), testBooking())
	svc.OnPaymentRefunded(context.Background(), testBooking())
	wait(t, svc)

	sent := sender.Sent()
	require.Len(t, sent, 3)
	subjects := []string{sent[0].Subject, sent[1].Subject, sent[2].Subject}
	assert.Contains(t, subjects, "Your booking could not be completed")
	assert.Contains(t, subjects, "Your appointment slot is no longer available")
	assert.Contains(t, subjects, "Your payment has been refunded")
	for _, msg := range sent {
		if msg.Subject == "Your payment has been refunded" {
			assert.Contains(t, msg.HTML, "already been cancelled")
		}
	}
}

func TestDispatch_RetriesTransientFailures(t *testing.T) {
	sender := &fakeSender{failures: 2, err: errors.New("421 try again later")}
	svc := newTestService(t, sender, "")

	svc.OnConfirmed(context.Background(), testBooking())
	wait(t, svc)

	assert.Equal(t, 3, sender.Calls())
	assert.Len(t, sender.Sent(), 1)
}

func TestDispatch_GivesUpQuietly(t *testing.T) {
	sender := &fakeSender{failures: 10, err: errors.New("connection refused")}
	svc := newTestService(t, sender, "")

	svc.OnConfirmed(context.Background(), testBooking())
	wait(t, svc)

	assert.Equal(t, maxAttempts, sender.Calls())
	assert.Empty(t, sender.Sent())
}

func TestDispatch_OpenBreakerIsNotRetried(t *testing.T) {
	sender := &fakeSender{failures: 10, err: circuitbreaker.ErrOpen}
	svc := newTestService(t, sender, "")

	svc.OnConfirmed(context.Background(), testBooking())
	wait(t, svc)
	assert.Equal(t, 1, sender.Calls())
}

func TestDispatch_SurvivesCallerCancellation(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "")

	ctx, cancel := context.WithCancel(context.Background())
	svc.OnConfirmed(ctx, testBooking())
	cancel()
	wait(t, svc)

	assert.Len(t, sender.Sent(), 1)
}

func TestOnInquiry_EscapesUserInput(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "admin@example.com")

	svc.OnInquiry(context.Background(), &model.BusinessInquiry{
		FirstName:   "Jo",
		LastName:    "Fleet",
		Company:     "Fleet & Co",
		Email:       "jo@fleet.example",
		EnquiryType: "Fleet medicals",
		Message:     "<script>alert(1)</script>",
	})
	wait(t, svc)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "New business enquiry from Fleet & Co", sent[0].Subject)
	assert.NotContains(t, sent[0].HTML, "<script>")
	assert.Contains(t, sent[0].HTML, "&lt;script&gt;")
}

func TestSend_Synchronous(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, "")

	err := svc.Send(context.Background(), "sam@example.com", "Your results", "First para.\n\nSecond para.")
	require.NoError(t, err)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "First para.\n\nSecond para.", sent[0].Text)
	assert.Contains(t, sent[0].HTML, "<p>First para.</p>")
	assert.Contains(t, sent[0].HTML, "<p>Second para.</p>")
}

func TestSend_ProviderFailure(t *testing.T) {
	sender := &fakeSender{failures: 1, err: errors.New("timeout")}
	svc := newTestService(t, sender, "")

	err := svc.Send(context.Background(), "sam@example.com", "Hi", "Body")
	assert.ErrorIs(t, err, apperrors.ErrKindUpstreamTimeout)
}

func TestFormatPounds(t *testing.T) {
	assert.Equal(t, "£55.00", formatPounds(5500))
	assert.Equal(t, "£0.05", formatPounds(5))
	assert.Equal(t, "£0.00", formatPounds(0))
}
