package freeze

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

type Service struct {
	freezes   repository.FreezeRepository
	locations repository.LocationRepository
	validator validator.Validator
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(freezes repository.FreezeRepository, locations repository.LocationRepository, logger *logger.Logger) *Service {
	return &Service{
		freezes:   freezes,
		locations: locations,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the location's freezes from the given date on, today when from is empty.
func (s *Service) List(ctx context.Context, locationID uuid.UUID, from string) ([]*model.Freeze, error) {
	if from == "" {
		from = s.now().UTC().Format(model.DateLayout)
	} else if _, err := model.ParseDate(from); err != nil {
		return nil, apperrors.NewValidation("from must be a date (YYYY-MM-DD)", err)
	}
	freezes, err := s.freezes.ListFrom(ctx, locationID, from)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	return freezes, nil
}

func (s *Service) Create(ctx context.Context, locationID uuid.UUID, req *model.CreateFreezeRequest) (*model.Freeze, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return nil, apperrors.NewValidation("date must be a valid calendar date", err)
	}

	if _, err := s.locations.Get(ctx, locationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("location", err)
		}
		return nil, apperrors.NewDataUnavailable(err)
	}

	f := &model.Freeze{
		ID:         uuid.New(),
		LocationID: locationID,
		Date:       req.Date,
		IsFullDay:  req.IsFullDay,
		Reason:     strings.TrimSpace(req.Reason),
	}
	// A full-day freeze ignores any window that came with it.
	if !f.IsFullDay {
		f.StartTime = req.StartTime
		f.EndTime = req.EndTime
	}
	if err := f.Validate(); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	if err := s.freezes.Create(ctx, f); err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	s.logger.Info("freeze created",
		"location_id", locationID.String(),
		"date", f.Date,
		"full_day", f.IsFullDay)
	return f, nil
}

func (s *Service) Delete(ctx context.Context, locationID, id uuid.UUID) error {
	if err := s.freezes.Delete(ctx, locationID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("freeze", err)
		}
		return apperrors.NewPersistence(err)
	}
	s.logger.Info("freeze deleted", "location_id", locationID.String(), "freeze_id", id.String())
	return nil
}
