package model

import (
	"time"

	"github.com/google/uuid"
)

// Service is a bookable assessment type, e.g. "HGV/LGV Medical".
type Service struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Slug            string    `db:"slug" json:"slug"`
	Description     string    `db:"description" json:"description"`
	PricePence      int64     `db:"price_pence" json:"price_pence"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type CreateServiceRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	PricePence      *int64 `json:"price_pence" validate:"required,min=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=5,max=480"`
	Active          *bool  `json:"active"`
}

type UpdateServiceRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	PricePence      *int64  `json:"price_pence" validate:"omitempty,min=0"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=5,max=480"`
	Active          *bool   `json:"active"`
}
