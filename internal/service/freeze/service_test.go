package freeze

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
)

type memFreezes struct {
	items    []*model.Freeze
	lastFrom string
}

func (m *memFreezes) Create(_ context.Context, f *model.Freeze) error {
	m.items = append(m.items, f)
	return nil
}

func (m *memFreezes) Delete(_ context.Context, locationID, id uuid.UUID) error {
	for i, f := range m.items {
		if f.ID == id && f.LocationID == locationID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memFreezes) ListForDate(context.Context, uuid.UUID, string) ([]*model.Freeze, error) {
	return m.items, nil
}

func (m *memFreezes) ListFrom(_ context.Context, _ uuid.UUID, from string) ([]*model.Freeze, error) {
	m.lastFrom = from
	return m.items, nil
}

type oneLocation struct {
	repository.LocationRepository
	id uuid.UUID
}

func (o *oneLocation) Get(_ context.Context, id uuid.UUID) (*model.Location, error) {
	if id != o.id {
		return nil, repository.ErrNotFound
	}
	return &model.Location{ID: id, Active: true}, nil
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *memFreezes, uuid.UUID) {
	locationID := uuid.New()
	freezes := &memFreezes{}
	svc := NewService(freezes, &oneLocation{id: locationID}, logger.Nop())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }
	return svc, freezes, locationID
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		req     model.CreateFreezeRequest
		wantErr error
	}{
		{"full day", model.CreateFreezeRequest{Date: "2025-12-25", IsFullDay: true, Reason: "Christmas"}, nil},
		{"partial", model.CreateFreezeRequest{Date: "2025-06-10", StartTime: strPtr("12:00"), EndTime: strPtr("13:00"), Reason: "Lunch"}, nil},
		{"partial without window", model.CreateFreezeRequest{Date: "2025-06-10", Reason: "Lunch"}, apperrors.ErrKindValidation},
		{"inverted window", model.CreateFreezeRequest{Date: "2025-06-10", StartTime: strPtr("13:00"), EndTime: strPtr("12:00"), Reason: "Lunch"}, apperrors.ErrKindValidation},
		{"empty window", model.CreateFreezeRequest{Date: "2025-06-10", StartTime: strPtr("12:00"), EndTime: strPtr("12:00"), Reason: "Lunch"}, apperrors.ErrKindValidation},
		{"bad time", model.CreateFreezeRequest{Date: "2025-06-10", StartTime: strPtr("noon"), EndTime: strPtr("13:00"), Reason: "Lunch"}, apperrors.ErrKindValidation},
		{"impossible date", model.CreateFreezeRequest{Date: "2025-02-30", IsFullDay: true, Reason: "x"}, apperrors.ErrKindValidation},
		{"missing reason", model.CreateFreezeRequest{Date: "2025-06-10", IsFullDay: true}, apperrors.ErrKindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, locationID := newTestService()
			req := tt.req

			f, err := svc.Create(context.Background(), locationID, &req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.items)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, locationID, f.LocationID)
			assert.Len(t, repo.items, 1)
		})
	}
}

func TestCreate_FullDayDropsWindow(t *testing.T) {
	svc, _, locationID := newTestService()
	f, err := svc.Create(context.Background(), locationID, &model.CreateFreezeRequest{
		Date: "2025-06-10", IsFullDay: true, StartTime: strPtr("12:00"), EndTime: strPtr("13:00"), Reason: "Closed",
	})
	require.NoError(t, err)
	assert.Nil(t, f.StartTime)
	assert.Nil(t, f.EndTime)
}

func TestCreate_UnknownLocation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), uuid.New(), &model.CreateFreezeRequest{Date: "2025-06-10", IsFullDay: true, Reason: "x"})
	assert.ErrorIs(t, err, apperrors.ErrKindNotFound)
}

func TestListDefaultsToToday(t *testing.T) {
	svc, repo, locationID := newTestService()

	_, err := svc.List(context.Background(), locationID, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", repo.lastFrom)

	_, err = svc.List(context.Background(), locationID, "June")
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)
}

func TestDelete(t *testing.T) {
	svc, repo, locationID := newTestService()
	f, err := svc.Create(context.Background(), locationID, &model.CreateFreezeRequest{Date: "2025-06-10", IsFullDay: true, Reason: "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(context.Background(), uuid.New(), f.ID), apperrors.ErrKindNotFound)
	require.NoError(t, svc.Delete(context.Background(), locationID, f.ID))
	assert.Empty(t, repo.items)
}
