// Package memory holds in-process repository implementations used by service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
)

// BookingRepository mirrors the postgres guards: conditional state updates,
// the set-once payment reference and one confirmed booking per slot.
type BookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]model.Booking
	Events   []*model.OutboxEvent
	// Fail, when set, is returned by every write.
	Fail error
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{bookings: map[uuid.UUID]model.Booking{}}
}

func (r *BookingRepository) Create(_ context.Context, b *model.Booking, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	r.bookings[b.ID] = *b
	if event != nil {
		r.Events = append(r.Events, event)
	}
	return nil
}

// Put stores b as-is, bypassing every guard.
func (r *BookingRepository) Put(b *model.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.bookings[b.ID] = *b
}

func (r *BookingRepository) Get(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *BookingRepository) List(_ context.Context, filter *model.BookingFilter) ([]*model.Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.LocationID != nil && b.LocationID != *filter.LocationID {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date+out[i].Time > out[j].Date+out[j].Time
	})
	total := len(out)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *BookingRepository) BlockingTimes(_ context.Context, locationID uuid.UUID, date string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var times []string
	for _, b := range r.bookings {
		if b.LocationID == locationID && b.Date == date && b.Status.BlocksSlot() && !b.IsPlaceholder {
			times = append(times, b.Time)
		}
	}
	return times, nil
}

func (r *BookingRepository) FindByPaymentReference(_ context.Context, refs []string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range refs {
		for _, b := range r.bookings {
			if b.PaymentIntentID != nil && *b.PaymentIntentID == ref {
				return &b, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (r *BookingRepository) FindPendingByMatch(_ context.Context, m model.BookingMatch) ([]*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if b.Status == model.BookingStatusPending && !b.IsPlaceholder &&
			strings.EqualFold(b.Email, m.Email) && b.ServiceTitle == m.ServiceTitle &&
			b.Date == m.Date && b.Time == m.Time {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *BookingRepository) SetPaymentReference(_ context.Context, id uuid.UUID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	for _, other := range r.bookings {
		if other.PaymentIntentID != nil && *other.PaymentIntentID == reference {
			return repository.ErrDuplicate
		}
	}
	b, ok := r.bookings[id]
	if !ok || b.PaymentIntentID != nil || b.Status != model.BookingStatusPending {
		return repository.ErrReferenceAlreadySet
	}
	b.PaymentIntentID = &reference
	b.PaymentStatus = model.PaymentStatusPtr(model.PaymentStatusPending)
	r.bookings[id] = b
	return nil
}

func (r *BookingRepository) UpdateState(_ context.Context, b *model.Booking, guard repository.StateGuard, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	current, ok := r.bookings[b.ID]
	if !ok || current.Status != guard.Status || !samePayment(current.PaymentStatus, guard.PaymentStatus) {
		return repository.ErrStaleState
	}
	if b.Status == model.BookingStatusConfirmed && !b.IsPlaceholder {
		for id, other := range r.bookings {
			if id != b.ID && other.Status == model.BookingStatusConfirmed && !other.IsPlaceholder &&
				other.LocationID == b.LocationID && other.Date == b.Date && other.Time == b.Time {
				return repository.ErrSlotTaken
			}
		}
	}
	b.UpdatedAt = time.Now().UTC()
	r.bookings[b.ID] = *b
	if event != nil {
		r.Events = append(r.Events, event)
	}
	return nil
}

// EventTypes lists the outbox event types recorded so far, in order.
func (r *BookingRepository) EventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.EventType)
	}
	return types
}

func samePayment(a, b *model.PaymentStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var _ repository.BookingRepository = (*BookingRepository)(nil)
