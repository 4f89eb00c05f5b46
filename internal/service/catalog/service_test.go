package catalog

import (
	"context"
	"errors"
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

type memServices struct {
	items     map[uuid.UUID]*model.Service
	listCalls int
	err       error
}

func (m *memServices) Create(_ context.Context, s *model.Service) error {
	for _, existing := range m.items {
		if existing.Slug == s.Slug {
			return repository.ErrDuplicate
		}
	}
	m.items[s.ID] = s
	return nil
}

func (m *memServices) Update(_ context.Context, s *model.Service) error {
	if _, ok := m.items[s.ID]; !ok {
		return repository.ErrNotFound
	}
	m.items[s.ID] = s
	return nil
}

func (m *memServices) Get(_ context.Context, id uuid.UUID) (*model.Service, error) {
	if s, ok := m.items[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memServices) List(_ context.Context, activeOnly bool) ([]*model.Service, error) {
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Service
	for _, s := range m.items {
		if !activeOnly || s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

type memLocations struct {
	repository.LocationRepository
	items     []*model.Location
	listCalls int
}

func (m *memLocations) Create(_ context.Context, l *model.Location) error {
	m.items = append(m.items, l)
	return nil
}

func (m *memLocations) List(context.Context, bool) ([]*model.Location, error) {
	m.listCalls++
	return m.items, nil
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func newTestService() (*Service, *memServices, *memLocations) {
	services := &memServices{items: map[uuid.UUID]*model.Service{}}
	locations := &memLocations{}
	return NewService(services, locations, time.Minute, logger.Nop()), services, locations
}

func TestCreateService_SlugAndDefaults(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateService(context.Background(), &model.CreateServiceRequest{
		Title:           "HGV/LGV Medical",
		PricePence:      int64Ptr(5500),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "hgv-lgv-medical", created.Slug)
	assert.True(t, created.Active)

	_, err = svc.CreateService(context.Background(), &model.CreateServiceRequest{
		Title:           "HGV / LGV medical",
		PricePence:      int64Ptr(5500),
		DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, apperrors.ErrKindConflict)
}

func TestCreateService_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateService(context.Background(), &model.CreateServiceRequest{Title: "Taxi Medical", DurationMinutes: 30})
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)

	_, err = svc.CreateService(context.Background(), &model.CreateServiceRequest{Title: "Taxi Medical", PricePence: int64Ptr(-1), DurationMinutes: 30})
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)
}

func TestActiveServices_CachedUntilWrite(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateService(ctx, &model.CreateServiceRequest{Title: "D4 Medical", PricePence: int64Ptr(5500), DurationMinutes: 30})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := svc.ActiveServices(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.UpdateService(ctx, created.ID, &model.UpdateServiceRequest{Active: boolPtr(false)})
	require.NoError(t, err)

	got, err := svc.ActiveServices(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, repo.listCalls)
}

func TestUpdateService(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.CreateService(ctx, &model.CreateServiceRequest{Title: "D4 Medical", PricePence: int64Ptr(5500), DurationMinutes: 30})
	require.NoError(t, err)

	updated, err := svc.UpdateService(ctx, created.ID, &model.UpdateServiceRequest{
		Title:      strPtr("Taxi Medical"),
		PricePence: int64Ptr(6000),
	})
	require.NoError(t, err)
	assert.Equal(t, "taxi-medical", updated.Slug)
	assert.Equal(t, int64(6000), updated.PricePence)
	assert.Equal(t, 30, updated.DurationMinutes)

	_, err = svc.UpdateService(ctx, uuid.New(), &model.UpdateServiceRequest{Active: boolPtr(true)})
	assert.ErrorIs(t, err, apperrors.ErrKindNotFound)
}

func TestActiveServices_StorageDown(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.err = errors.New("connection refused")

	_, err := svc.ActiveServices(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrKindDataUnavailable)
}

func TestLocations(t *testing.T) {
	svc, _, repo := newTestService()
	ctx := context.Background()

	_, err := svc.ActiveLocations(ctx)
	require.NoError(t, err)

	lat, lng := 52.136, -0.467
	created, err := svc.CreateLocation(ctx, &model.CreateLocationRequest{
		Name:      "Bedford",
		Postcode:  "mk40 1uh",
		Latitude:  &lat,
		Longitude: &lng,
	})
	require.NoError(t, err)
	assert.Equal(t, "MK40 1UH", created.Postcode)
	assert.Equal(t, lat, created.Latitude)

	got, err := svc.ActiveLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, repo.listCalls)

	_, err = svc.CreateLocation(ctx, &model.CreateLocationRequest{Name: "Nowhere"})
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)
}
