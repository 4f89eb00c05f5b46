package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Location struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Postcode  string    `db:"postcode" json:"postcode"`
	Address   string    `db:"address" json:"address"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type LocationDistance struct {
	Location
	DistanceKm float64 `json:"distance_km"`
}

type CreateLocationRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Postcode  string   `json:"postcode" validate:"required,max=10"`
	Address   string   `json:"address" validate:"max=500"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// Freeze is an administrator-declared unavailability window.
type Freeze struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LocationID uuid.UUID `db:"location_id" json:"location_id"`
	Date       string    `db:"freeze_date" json:"date"`
	IsFullDay  bool      `db:"is_full_day" json:"is_full_day"`
	StartTime  *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime    *string   `db:"end_time" json:"end_time,omitempty"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

var ErrFreezeWindow = errors.New("partial freeze needs start_time before end_time")

// Validate enforces the window invariant for partial freezes.
func (f *Freeze) Validate() error {
	if f.IsFullDay {
		return nil
	}
	if f.StartTime == nil || f.EndTime == nil || *f.StartTime == "" || *f.EndTime == "" {
		return ErrFreezeWindow
	}
	if *f.StartTime >= *f.EndTime {
		return ErrFreezeWindow
	}
	return nil
}

// Covers reports whether the slot starting at hhmm falls inside the freeze.
// Times are zero-padded HH:MM so string order is time order.
func (f *Freeze) Covers(hhmm string) bool {
	if f.IsFullDay {
		return true
	}
	if f.StartTime == nil || f.EndTime == nil {
		return false
	}
	return hhmm >= *f.StartTime && hhmm < *f.EndTime
}

type CreateFreezeRequest struct {
	Date      string  `json:"date" validate:"required,isodate"`
	IsFullDay bool    `json:"is_full_day"`
	StartTime *string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime   *string `json:"end_time" validate:"omitempty,hhmm"`
	Reason    string  `json:"reason" validate:"required,max=300"`
}
