package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleState means a conditional update matched no row because the record changed underneath.
	ErrStaleState = errors.New("record state changed concurrently")
	// ErrSlotTaken is raised by the confirmed-slot uniqueness constraint.
	ErrSlotTaken = errors.New("slot already confirmed for another booking")
	// ErrReferenceAlreadySet guards the set-once payment reference.
	ErrReferenceAlreadySet = errors.New("payment reference already set")
	ErrDuplicate           = errors.New("duplicate record")
)

// StateGuard is the (status, payment_status) pair a conditional update expects to find.
type StateGuard struct {
	Status        model.BookingStatus
	PaymentStatus *model.PaymentStatus
}

// All repository interfaces in one file
type (
	LocationRepository interface {
		Create(ctx context.Context, location *model.Location) error
		Get(ctx context.Context, id uuid.UUID) (*model.Location, error)
		List(ctx context.Context, activeOnly bool) ([]*model.Location, error)
	}

	FreezeRepository interface {
		Create(ctx context.Context, freeze *model.Freeze) error
		Delete(ctx context.Context, locationID, id uuid.UUID) error
		ListForDate(ctx context.Context, locationID uuid.UUID, date string) ([]*model.Freeze, error)
		ListFrom(ctx context.Context, locationID uuid.UUID, from string) ([]*model.Freeze, error)
	}

	ServiceRepository interface {
		Create(ctx context.Context, service *model.Service) error
		Update(ctx context.Context, service *model.Service) error
		Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
		List(ctx context.Context, activeOnly bool) ([]*model.Service, error)
	}

	BookingRepository interface {
		// Create inserts the booking and, when event is non-nil, its outbox event in one transaction.
		Create(ctx context.Context, booking *model.Booking, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, int, error)
		// BlockingTimes returns slot times held by pending or confirmed, non-placeholder bookings.
		BlockingTimes(ctx context.Context, locationID uuid.UUID, date string) ([]string, error)
		// FindByPaymentReference returns the booking whose reference equals any of refs.
		FindByPaymentReference(ctx context.Context, refs []string) (*model.Booking, error)
		// FindPendingByMatch returns every pending booking with the exact tuple.
		FindPendingByMatch(ctx context.Context, match model.BookingMatch) ([]*model.Booking, error)
		SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error
		// UpdateState moves a booking from guard to its current in-memory state and records
		// the outbox event in the same transaction.
		UpdateState(ctx context.Context, booking *model.Booking, guard StateGuard, event *model.OutboxEvent) error
	}

	InquiryRepository interface {
		Create(ctx context.Context, inquiry *model.BusinessInquiry) error
		Get(ctx context.Context, id uuid.UUID) (*model.BusinessInquiry, error)
		List(ctx context.Context, status model.InquiryStatus, page model.Pagination) ([]*model.BusinessInquiry, int, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.InquiryStatus) error
	}

	ProfileRepository interface {
		Create(ctx context.Context, profile *model.Profile) error
		GetByEmail(ctx context.Context, email string) (*model.Profile, error)
	}

	OutboxRepository interface {
		// ClaimPending marks up to limit due events as processing and returns them.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// ProcessedEventStore remembers processor event IDs that were already reconciled.
	ProcessedEventStore interface {
		Seen(ctx context.Context, eventID string) (bool, error)
		Remember(ctx context.Context, eventID string) error
	}
)
