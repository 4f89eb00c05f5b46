package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/drivermed-api/internal/repository"
)

type locationRepository struct {
	db *sqlx.DB
}

type freezeRepository struct {
	db *sqlx.DB
}

type serviceRepository struct {
	db *sqlx.DB
}

type bookingRepository struct {
	BaseRepository
}

type inquiryRepository struct {
	db *sqlx.DB
}

type profileRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	BaseRepository
}

func NewLocationRepository(db *sqlx.DB) repository.LocationRepository {
	return &locationRepository{db: db}
}

func NewFreezeRepository(db *sqlx.DB) repository.FreezeRepository {
	return &freezeRepository{db: db}
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db}
}

func NewBookingRepository(db *sqlx.DB) repository.BookingRepository {
	return &bookingRepository{NewBaseRepository(db)}
}

func NewInquiryRepository(db *sqlx.DB) repository.InquiryRepository {
	return &inquiryRepository{db: db}
}

func NewProfileRepository(db *sqlx.DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}
