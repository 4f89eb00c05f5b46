package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
)

func TestFreezeRepository_ListForDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFreezeRepository(db)
	locationID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "location_id", "freeze_date", "is_full_day", "start_time", "end_time", "reason", "created_at"}).
		AddRow(uuid.NewString(), locationID.String(), "2025-06-10", false, "12:00", "13:00", "Lunch", time.Now())

	mock.ExpectQuery("FROM location_freezes\\s+WHERE location_id = \\$1 AND freeze_date = \\$2").
		WithArgs(locationID, "2025-06-10").
		WillReturnRows(rows)

	freezes, err := repo.ListForDate(context.Background(), locationID, "2025-06-10")
	require.NoError(t, err)
	require.Len(t, freezes, 1)
	assert.Equal(t, "2025-06-10", freezes[0].Date)
	require.NotNil(t, freezes[0].StartTime)
	assert.Equal(t, "12:00", *freezes[0].StartTime)
	assert.True(t, freezes[0].Covers("12:45"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFreezeRepository_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFreezeRepository(db)

	mock.ExpectExec("DELETE FROM location_freezes").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServiceRepository_CreateDuplicateSlug(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	mock.ExpectExec("INSERT INTO services").WillReturnError(&pq.Error{Code: "23505", Constraint: "services_slug_key"})

	err := repo.Create(context.Background(), &model.Service{Title: "HGV Medical", Slug: "hgv-medical", PricePence: 9900})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestLocationRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLocationRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "postcode", "address", "latitude", "longitude", "active", "created_at", "updated_at"}).
		AddRow(uuid.NewString(), "Leeds", "LS1 1AA", "1 Street", 53.8, -1.55, true, now, now)

	mock.ExpectQuery("FROM locations").WithArgs(true).WillReturnRows(rows)

	locations, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Leeds", locations[0].Name)
	assert.InDelta(t, 53.8, locations[0].Latitude, 0.0001)
}

func TestInquiryRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInquiryRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM business_inquiries").
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("FROM business_inquiries").
		WithArgs("new", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "phone", "company", "enquiry_type", "message", "status", "created_at", "updated_at"}).
			AddRow(uuid.NewString(), "Ann", "Fleet", "ann@haulage.example", "", "Haulage Ltd", "fleet", "Twenty drivers", "new", now, now))

	inquiries, total, err := repo.List(context.Background(), model.InquiryStatusNew, model.Pagination{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, inquiries, 1)
	assert.Equal(t, "Haulage Ltd", inquiries[0].Company)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_GetByEmailNormalizes(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM profiles").
		WithArgs("admin@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "created_at", "updated_at"}).
			AddRow(uuid.NewString(), "admin@example.com", "Admin", "hash", "admin", now, now))

	p, err := repo.GetByEmail(context.Background(), "  Admin@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
}
