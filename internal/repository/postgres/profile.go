package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
)

func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO profiles (id, email, name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	p.ID = uuid.New()
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query, p.ID, p.Email, p.Name, p.PasswordHash, p.Role, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	query := `
		SELECT id, email, name, password_hash, role, created_at, updated_at
		FROM profiles
		WHERE email = $1
	`
	var profile model.Profile
	if err := r.db.GetContext(ctx, &profile, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return nil, notFound(err, "get profile")
	}
	return &profile, nil
}
