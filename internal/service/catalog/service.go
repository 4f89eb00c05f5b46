package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

const (
	keyActiveServices  = "services:active"
	keyActiveLocations = "locations:active"
)

// Service serves bookable services and locations. Public reads are cached and every
// admin write drops the cache.
type Service struct {
	services  repository.ServiceRepository
	locations repository.LocationRepository
	cache     *cache.Cache
	validator validator.Validator
	logger    *logger.Logger
}

func NewService(services repository.ServiceRepository, locations repository.LocationRepository, ttl time.Duration, logger *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		services:  services,
		locations: locations,
		cache:     cache.New(ttl, 2*ttl),
		validator: validator.New(),
		logger:    logger,
	}
}

func (s *Service) ActiveServices(ctx context.Context) ([]*model.Service, error) {
	if cached, found := s.cache.Get(keyActiveServices); found {
		return cached.([]*model.Service), nil
	}
	services, err := s.services.List(ctx, true)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	s.cache.Set(keyActiveServices, services, cache.DefaultExpiration)
	return services, nil
}

func (s *Service) AllServices(ctx context.Context) ([]*model.Service, error) {
	services, err := s.services.List(ctx, false)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	return services, nil
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	service, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, mapReadError("service", err)
	}
	return service, nil
}

func (s *Service) CreateService(ctx context.Context, req *model.CreateServiceRequest) (*model.Service, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	service := &model.Service{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(req.Title),
		Slug:            slug.Make(req.Title),
		Description:     req.Description,
		PricePence:      *req.PricePence,
		DurationMinutes: req.DurationMinutes,
		Active:          req.Active == nil || *req.Active,
	}
	if err := s.services.Create(ctx, service); err != nil {
		return nil, mapWriteError("service", err)
	}

	s.cache.Delete(keyActiveServices)
	s.logger.Info("service created", "service_id", service.ID.String(), "slug", service.Slug)
	return service, nil
}

// UpdateService applies the non-nil fields of req. Renaming regenerates the slug.
func (s *Service) UpdateService(ctx context.Context, id uuid.UUID, req *model.UpdateServiceRequest) (*model.Service, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	service, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, mapReadError("service", err)
	}
	if req.Title != nil {
		service.Title = strings.TrimSpace(*req.Title)
		service.Slug = slug.Make(service.Title)
	}
	if req.Description != nil {
		service.Description = *req.Description
	}
	if req.PricePence != nil {
		service.PricePence = *req.PricePence
	}
	if req.DurationMinutes != nil {
		service.DurationMinutes = *req.DurationMinutes
	}
	if req.Active != nil {
		service.Active = *req.Active
	}

	if err := s.services.Update(ctx, service); err != nil {
		return nil, mapWriteError("service", err)
	}
	s.cache.Delete(keyActiveServices)
	return service, nil
}

func (s *Service) ActiveLocations(ctx context.Context) ([]*model.Location, error) {
	if cached, found := s.cache.Get(keyActiveLocations); found {
		return cached.([]*model.Location), nil
	}
	locations, err := s.locations.List(ctx, true)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	s.cache.Set(keyActiveLocations, locations, cache.DefaultExpiration)
	return locations, nil
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	location, err := s.locations.Get(ctx, id)
	if err != nil {
		return nil, mapReadError("location", err)
	}
	return location, nil
}

func (s *Service) CreateLocation(ctx context.Context, req *model.CreateLocationRequest) (*model.Location, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	location := &model.Location{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(req.Name),
		Postcode: strings.ToUpper(strings.TrimSpace(req.Postcode)),
		Address:  req.Address,
		Active:   true,
	}
	if req.Latitude != nil && req.Longitude != nil {
		location.Latitude = *req.Latitude
		location.Longitude = *req.Longitude
	}
	if err := s.locations.Create(ctx, location); err != nil {
		return nil, mapWriteError("location", err)
	}

	s.cache.Delete(keyActiveLocations)
	s.logger.Info("location created", "location_id", location.ID.String(), "name", location.Name)
	return location, nil
}

func mapReadError(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, err)
	}
	return apperrors.NewDataUnavailable(err)
}

func mapWriteError(resource string, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("a "+resource+" with this name already exists", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	default:
		return apperrors.NewPersistence(err)
	}
}
