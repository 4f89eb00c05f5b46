package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/pkg/auth"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/security"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Compared against when the email is unknown so both paths cost one bcrypt run.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoO5uZ4dJZ0Kxw1aYVn5r0jzSpo5Wb5tGa"

type Service struct {
	profiles  repository.ProfileRepository
	jwt       auth.JWTService
	hasher    security.PasswordHasher
	validator validator.Validator
	logger    *logger.Logger
}

func NewService(profiles repository.ProfileRepository, jwt auth.JWTService, hasher security.PasswordHasher, logger *logger.Logger) *Service {
	return &Service{
		profiles:  profiles,
		jwt:       jwt,
		hasher:    hasher,
		validator: validator.New(),
		logger:    logger,
	}
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	profile, err := s.profiles.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewDataUnavailable(err)
		}
		_ = s.hasher.Compare(dummyHash, req.Password)
		s.logger.Warn("login for unknown email")
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	if err := s.hasher.Compare(profile.PasswordHash, req.Password); err != nil {
		s.logger.Warn("login with wrong password", "profile_id", profile.ID.String())
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(profile.ID, profile.Email, profile.Role)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.logger.Info("staff login", "profile_id", profile.ID.String(), "role", profile.Role)
	return &model.LoginResponse{AccessToken: token, ExpiresAt: expiresAt, Profile: profile}, nil
}

// CreateProfile registers a staff account. Used by the admin seeding command.
func (s *Service) CreateProfile(ctx context.Context, email, name, password, role string) (*model.Profile, error) {
	if role != model.RoleAdmin && role != model.RoleStaff {
		return nil, apperrors.NewValidation("role must be admin or staff", nil)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordShort) || errors.Is(err, security.ErrPasswordLong) {
			return nil, apperrors.NewValidation(fmt.Sprintf("password must be %d to %d characters", security.MinPasswordLen, security.MaxPasswordLen), err)
		}
		return nil, apperrors.NewInternal(err)
	}

	profile := &model.Profile{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("a profile with this email already exists", err)
		}
		return nil, apperrors.NewPersistence(err)
	}
	return profile, nil
}
