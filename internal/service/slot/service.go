package slot

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

const timeLayout = "15:04"

// BuildCatalog lists every slot start from open (inclusive) to close (exclusive) as zero-padded HH:MM.
func BuildCatalog(open, close string, intervalMinutes int) ([]string, error) {
	start, err := time.Parse(timeLayout, open)
	if err != nil {
		return nil, fmt.Errorf("invalid opening time %q: %w", open, err)
	}
	end, err := time.Parse(timeLayout, close)
	if err != nil {
		return nil, fmt.Errorf("invalid closing time %q: %w", close, err)
	}
	if intervalMinutes <= 0 {
		return nil, fmt.Errorf("slot interval must be positive")
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("opening time %s must be before closing time %s", open, close)
	}

	step := time.Duration(intervalMinutes) * time.Minute
	var slots []string
	for t := start; t.Before(end); t = t.Add(step) {
		slots = append(slots, t.Format(timeLayout))
	}
	return slots, nil
}

type Service struct {
	freezes  repository.FreezeRepository
	bookings repository.BookingRepository
	catalog  []string
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	freezes repository.FreezeRepository,
	bookings repository.BookingRepository,
	catalog []string,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		freezes:  freezes,
		bookings: bookings,
		catalog:  catalog,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Catalog returns a copy of the configured day template.
func (s *Service) Catalog() []string {
	return append([]string(nil), s.catalog...)
}

// Offers reports whether hhmm is a slot start in the day template.
func (s *Service) Offers(hhmm string) bool {
	return slices.Contains(s.catalog, hhmm)
}

// AvailableSlots computes the free slots for a location and day. Nothing is cached.
func (s *Service) AvailableSlots(ctx context.Context, locationID uuid.UUID, date time.Time) (*model.Availability, error) {
	day := date.Format(model.DateLayout)
	result := &model.Availability{LocationID: locationID, Date: day, Slots: []string{}}

	if day < s.now().UTC().Format(model.DateLayout) {
		s.observe("past")
		return result, nil
	}

	freezes, err := s.freezes.ListForDate(ctx, locationID, day)
	if err != nil {
		s.observe("error")
		s.logger.Error(err, "failed to load freezes", "location_id", locationID.String(), "date", day)
		return nil, apperrors.NewDataUnavailable(err)
	}

	for _, f := range freezes {
		if f.IsFullDay {
			result.Unavailable = true
			result.Reason = unavailableReason(f.Reason)
			s.observe("frozen")
			return result, nil
		}
	}

	taken, err := s.bookings.BlockingTimes(ctx, locationID, day)
	if err != nil {
		s.observe("error")
		s.logger.Error(err, "failed to load booked slots", "location_id", locationID.String(), "date", day)
		return nil, apperrors.NewDataUnavailable(err)
	}
	blocked := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		blocked[strings.TrimSpace(t)] = struct{}{}
	}

	for _, slot := range s.catalog {
		if _, ok := blocked[slot]; ok {
			continue
		}
		if frozen(freezes, slot) {
			continue
		}
		result.Slots = append(result.Slots, slot)
	}
	sort.Strings(result.Slots)

	s.observe("ok")
	return result, nil
}

// IsAvailable reports whether hhmm is currently offered for the location and day.
func (s *Service) IsAvailable(ctx context.Context, locationID uuid.UUID, date time.Time, hhmm string) (bool, error) {
	availability, err := s.AvailableSlots(ctx, locationID, date)
	if err != nil {
		return false, err
	}
	for _, slot := range availability.Slots {
		if slot == hhmm {
			return true, nil
		}
	}
	return false, nil
}

func frozen(freezes []*model.Freeze, slot string) bool {
	for _, f := range freezes {
		if f.Covers(slot) {
			return true
		}
	}
	return false
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "This location is closed on the selected date."
	}
	return fmt.Sprintf("This location is closed on the selected date: %s", reason)
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.SlotQueries.WithLabelValues(result).Inc()
	}
}
