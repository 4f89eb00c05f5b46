package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/internal/service/discount"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

const maxPageSize = 100

type SlotChecker interface {
	Offers(hhmm string) bool
	IsAvailable(ctx context.Context, locationID uuid.UUID, date time.Time, hhmm string) (bool, error)
}

type DiscountResolver interface {
	Resolve(code string) (discount.Resolution, error)
}

// Notifier is told about booking milestones. Calls must not block.
type Notifier interface {
	OnConfirmed(ctx context.Context, booking *model.Booking)
	OnNewBooking(ctx context.Context, booking *model.Booking)
	OnPaymentFailed(ctx context.Context, booking *model.Booking)
	OnSlotConflict(ctx context.Context, booking *model.Booking)
	OnPaymentRefunded(ctx context.Context, booking *model.Booking)
}

type Service struct {
	bookings  repository.BookingRepository
	services  repository.ServiceRepository
	locations repository.LocationRepository
	slots     SlotChecker
	discounts DiscountResolver
	notifier  Notifier
	validator validator.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(
	bookings repository.BookingRepository,
	services repository.ServiceRepository,
	locations repository.LocationRepository,
	slots SlotChecker,
	discounts DiscountResolver,
	notifier Notifier,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		bookings:  bookings,
		services:  services,
		locations: locations,
		slots:     slots,
		discounts: discounts,
		notifier:  notifier,
		validator: validator.New(),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Create validates the request and stores a pending booking.
func (s *Service) Create(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	day, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.NewValidation("date must be a valid calendar date", err)
	}
	if req.Date < s.now().UTC().Format(model.DateLayout) {
		return nil, apperrors.NewValidation("date must not be in the past", nil)
	}
	if !s.slots.Offers(req.Time) {
		return nil, apperrors.NewValidation(fmt.Sprintf("time %s is not a bookable slot", req.Time), nil)
	}

	var dob *string
	if strings.TrimSpace(req.DateOfBirth) != "" {
		normalized, err := NormalizeDateOfBirth(req.DateOfBirth, s.now())
		if err != nil {
			return nil, apperrors.NewValidation("date_of_birth is not a recognisable date", err)
		}
		dob = &normalized
	}

	service, err := s.lookupService(ctx, uuid.MustParse(req.ServiceID))
	if err != nil {
		return nil, err
	}
	location, err := s.lookupLocation(ctx, uuid.MustParse(req.LocationID))
	if err != nil {
		return nil, err
	}

	resolution, err := s.discounts.Resolve(req.VoucherCode)
	if err != nil {
		return nil, err
	}

	available, err := s.slots.IsAvailable(ctx, location.ID, day, req.Time)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, apperrors.NewSlotConflict(nil)
	}

	b := &model.Booking{
		ID:                uuid.New(),
		ServiceID:         service.ID,
		ServiceTitle:      service.Title,
		ServicePricePence: service.PricePence,
		LocationID:        location.ID,
		LocationName:      location.Name,
		Date:              req.Date,
		Time:              req.Time,
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:             strings.TrimSpace(req.Phone),
		DateOfBirth:       dob,
		Postcode:          strings.ToUpper(strings.TrimSpace(req.Postcode)),
		LicenseNumber:     req.LicenseNumber,
		Employer:          req.Employer,
		VehicleType:       req.VehicleType,
		HearAboutUs:       req.HearAboutUs,
		MarketingConsent:  req.MarketingConsent,
		DiscountPence:     resolution.AmountPence,
		AmountPence:       discount.ApplyDiscount(service.PricePence, resolution.AmountPence),
		Status:            model.BookingStatusPending,
		PaymentMethod:     req.PaymentMethod,
	}
	if resolution.Requested {
		code := resolution.Code
		b.VoucherCode = &code
	}
	// Online bookings have no payment attempt until a processor reference exists.
	if req.PaymentMethod == model.PaymentMethodInPerson {
		b.PaymentStatus = model.PaymentStatusPtr(model.PaymentStatusPending)
	}

	event, err := outboxEvent(model.EventBookingCreated, b, "", "created", s.now())
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if err := s.bookings.Create(ctx, b, event); err != nil {
		s.logger.Error(err, "failed to create booking", "location_id", location.ID.String(), "date", b.Date, "time", b.Time)
		return nil, apperrors.NewPersistence(err)
	}

	if s.metrics != nil {
		s.metrics.BookingsCreated.WithLabelValues(string(b.PaymentMethod)).Inc()
	}
	s.logger.Info("booking created",
		"booking_id", b.ID.String(),
		"payment_method", string(b.PaymentMethod),
		"amount_pence", b.AmountPence)

	if b.PaymentMethod == model.PaymentMethodInPerson {
		s.notifier.OnNewBooking(ctx, b)
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("booking", err)
		}
		return nil, apperrors.NewDataUnavailable(err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, int, error) {
	filter.Normalize(maxPageSize)
	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.NewDataUnavailable(err)
	}
	return bookings, total, nil
}

// AssignPaymentReference stores the processor reference. It can be set only once.
func (s *Service) AssignPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	err := s.bookings.SetPaymentReference(ctx, id, reference)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrReferenceAlreadySet), errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("a payment has already been started for this booking", err)
	default:
		return apperrors.NewPersistence(err)
	}
}

// FindByReference returns the booking holding any of refs, or nil when none does.
func (s *Service) FindByReference(ctx context.Context, refs []string) (*model.Booking, error) {
	b, err := s.bookings.FindByPaymentReference(ctx, refs)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewDataUnavailable(err)
	}
	return b, nil
}

func (s *Service) FindPendingByMatch(ctx context.Context, match model.BookingMatch) ([]*model.Booking, error) {
	if !match.Complete() {
		return nil, nil
	}
	bookings, err := s.bookings.FindPendingByMatch(ctx, match)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	return bookings, nil
}

func (s *Service) lookupService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	service, err := s.services.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidation("service_id does not match a bookable service", err)
		}
		return nil, apperrors.NewDataUnavailable(err)
	}
	if !service.Active {
		return nil, apperrors.NewValidation("this service is no longer available", nil)
	}
	return service, nil
}

func (s *Service) lookupLocation(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	location, err := s.locations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidation("location_id does not match a location", err)
		}
		return nil, apperrors.NewDataUnavailable(err)
	}
	if !location.Active {
		return nil, apperrors.NewValidation("this location is not taking bookings", nil)
	}
	return location, nil
}

func outboxEvent(eventType string, b *model.Booking, previous, trigger string, at time.Time) (*model.OutboxEvent, error) {
	payload, err := json.Marshal(model.BookingEventPayload{
		BookingID:     b.ID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		PreviousState: previous,
		Trigger:       trigger,
		OccurredAt:    at.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking event: %w", err)
	}
	return &model.OutboxEvent{EventType: eventType, Payload: payload}, nil
}
