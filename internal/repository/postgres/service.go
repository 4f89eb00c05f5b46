package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
)

const serviceColumns = `id, title, slug, description, price_pence, duration_minutes, active, created_at, updated_at`

func (r *serviceRepository) Create(ctx context.Context, s *model.Service) error {
	query := `
		INSERT INTO services (
			id, title, slug, description, price_pence, duration_minutes, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Title, s.Slug, s.Description, s.PricePence, s.DurationMinutes, s.Active, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *serviceRepository) Update(ctx context.Context, s *model.Service) error {
	query := `
		UPDATE services
		SET title = $1, slug = $2, description = $3, price_pence = $4,
			duration_minutes = $5, active = $6, updated_at = $7
		WHERE id = $8
	`
	s.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		s.Title, s.Slug, s.Description, s.PricePence, s.DurationMinutes, s.Active, s.UpdatedAt, s.ID,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to update service: %w", err)
	}
	return checkAffected(res, "update service")
}

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`

	var service model.Service
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		return nil, notFound(err, "get service")
	}
	return &service, nil
}

func (r *serviceRepository) List(ctx context.Context, activeOnly bool) ([]*model.Service, error) {
	query := `SELECT ` + serviceColumns + `
		FROM services
		WHERE ($1 = FALSE OR active)
		ORDER BY price_pence ASC, title ASC
	`
	services := []*model.Service{}
	if err := r.db.SelectContext(ctx, &services, query, activeOnly); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}
