package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

func (r *locationRepository) Create(ctx context.Context, l *model.Location) error {
	query := `
		INSERT INTO locations (
			id, name, postcode, address, latitude, longitude, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	l.ID = uuid.New()
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.Name, l.Postcode, l.Address, l.Latitude, l.Longitude, l.Active, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func (r *locationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	query := `
		SELECT id, name, postcode, address, latitude, longitude, active, created_at, updated_at
		FROM locations
		WHERE id = $1
	`
	var location model.Location
	if err := r.db.GetContext(ctx, &location, query, id); err != nil {
		return nil, notFound(err, "get location")
	}
	return &location, nil
}

func (r *locationRepository) List(ctx context.Context, activeOnly bool) ([]*model.Location, error) {
	query := `
		SELECT id, name, postcode, address, latitude, longitude, active, created_at, updated_at
		FROM locations
		WHERE ($1 = FALSE OR active)
		ORDER BY name ASC
	`
	locations := []*model.Location{}
	if err := r.db.SelectContext(ctx, &locations, query, activeOnly); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}
