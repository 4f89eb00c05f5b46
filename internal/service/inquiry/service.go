package inquiry

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

const maxPageSize = 100

type Notifier interface {
	OnInquiry(ctx context.Context, inquiry *model.BusinessInquiry)
}

type Service struct {
	repo      repository.InquiryRepository
	notifier  Notifier
	validator validator.Validator
	logger    *logger.Logger
}

func NewService(repo repository.InquiryRepository, notifier Notifier, logger *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		validator: validator.New(),
		logger:    logger,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateInquiryRequest) (*model.BusinessInquiry, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	inquiry := &model.BusinessInquiry{
		ID:          uuid.New(),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		Company:     strings.TrimSpace(req.Company),
		EnquiryType: req.EnquiryType,
		Message:     strings.TrimSpace(req.Message),
		Status:      model.InquiryStatusNew,
	}
	if err := s.repo.Create(ctx, inquiry); err != nil {
		s.logger.Error(err, "failed to store inquiry", "company", inquiry.Company)
		return nil, apperrors.NewPersistence(err)
	}

	s.notifier.OnInquiry(ctx, inquiry)
	return inquiry, nil
}

func (s *Service) List(ctx context.Context, status model.InquiryStatus, page model.Pagination) ([]*model.BusinessInquiry, int, error) {
	page.Normalize(maxPageSize)
	inquiries, total, err := s.repo.List(ctx, status, page)
	if err != nil {
		return nil, 0, apperrors.NewDataUnavailable(err)
	}
	return inquiries, total, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req *model.UpdateInquiryStatusRequest) (*model.BusinessInquiry, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("inquiry", err)
		}
		return nil, apperrors.NewPersistence(err)
	}

	inquiry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewDataUnavailable(err)
	}
	return inquiry, nil
}
