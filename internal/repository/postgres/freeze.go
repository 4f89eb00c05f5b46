package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

const freezeColumns = `id, location_id, to_char(freeze_date, 'YYYY-MM-DD') AS freeze_date,
	is_full_day, start_time, end_time, reason, created_at`

func (r *freezeRepository) Create(ctx context.Context, f *model.Freeze) error {
	query := `
		INSERT INTO location_freezes (
			id, location_id, freeze_date, is_full_day, start_time, end_time, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	f.ID = uuid.New()
	f.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.LocationID, f.Date, f.IsFullDay, f.StartTime, f.EndTime, f.Reason, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create freeze: %w", err)
	}
	return nil
}

func (r *freezeRepository) Delete(ctx context.Context, locationID, id uuid.UUID) error {
	query := `DELETE FROM location_freezes WHERE id = $1 AND location_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, locationID)
	if err != nil {
		return fmt.Errorf("failed to delete freeze: %w", err)
	}
	return checkAffected(res, "delete freeze")
}

func (r *freezeRepository) ListForDate(ctx context.Context, locationID uuid.UUID, date string) ([]*model.Freeze, error) {
	query := `SELECT ` + freezeColumns + `
		FROM location_freezes
		WHERE location_id = $1 AND freeze_date = $2
		ORDER BY is_full_day DESC, start_time ASC
	`
	freezes := []*model.Freeze{}
	if err := r.db.SelectContext(ctx, &freezes, query, locationID, date); err != nil {
		return nil, fmt.Errorf("failed to list freezes: %w", err)
	}
	return freezes, nil
}

func (r *freezeRepository) ListFrom(ctx context.Context, locationID uuid.UUID, from string) ([]*model.Freeze, error) {
	query := `SELECT ` + freezeColumns + `
		FROM location_freezes
		WHERE location_id = $1 AND freeze_date >= $2
		ORDER BY freeze_date ASC, start_time ASC
	`
	freezes := []*model.Freeze{}
	if err := r.db.SelectContext(ctx, &freezes, query, locationID, from); err != nil {
		return nil, fmt.Errorf("failed to list freezes: %w", err)
	}
	return freezes, nil
}
