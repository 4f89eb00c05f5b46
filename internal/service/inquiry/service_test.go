package inquiry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
)

type memInquiries struct {
	items    map[uuid.UUID]*model.BusinessInquiry
	lastPage model.Pagination
	err      error
}

func (m *memInquiries) Create(_ context.Context, i *model.BusinessInquiry) error {
	if m.err != nil {
		return m.err
	}
	m.items[i.ID] = i
	return nil
}

func (m *memInquiries) Get(_ context.Context, id uuid.UUID) (*model.BusinessInquiry, error) {
	if i, ok := m.items[id]; ok {
		return i, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memInquiries) List(_ context.Context, status model.InquiryStatus, page model.Pagination) ([]*model.BusinessInquiry, int, error) {
	m.lastPage = page
	var out []*model.BusinessInquiry
	for _, i := range m.items {
		if status == "" || i.Status == status {
			out = append(out, i)
		}
	}
	return out, len(out), nil
}

func (m *memInquiries) UpdateStatus(_ context.Context, id uuid.UUID, status model.InquiryStatus) error {
	i, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Status = status
	return nil
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) OnInquiry(context.Context, *model.BusinessInquiry) { c.calls++ }

func validInquiry() *model.CreateInquiryRequest {
	return &model.CreateInquiryRequest{
		FirstName:   "Jo",
		LastName:    "Fleet",
		Email:       "Jo@Fleet.example",
		Company:     "Fleet & Co",
		EnquiryType: "Fleet medicals",
		Message:     "We need 40 drivers assessed.",
	}
}

func TestCreate(t *testing.T) {
	repo := &memInquiries{items: map[uuid.UUID]*model.BusinessInquiry{}}
	notifier := &countingNotifier{}
	svc := NewService(repo, notifier, logger.Nop())

	inquiry, err := svc.Create(context.Background(), validInquiry())
	require.NoError(t, err)
	assert.Equal(t, model.InquiryStatusNew, inquiry.Status)
	assert.Equal(t, "jo@fleet.example", inquiry.Email)
	assert.Equal(t, 1, notifier.calls)

	bad := validInquiry()
	bad.Company = ""
	_, err = svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)

	repo.err = errors.New("insert failed")
	_, err = svc.Create(context.Background(), validInquiry())
	assert.ErrorIs(t, err, apperrors.ErrKindPersistence)
	assert.Equal(t, 1, notifier.calls)
}

func TestListAndUpdateStatus(t *testing.T) {
	repo := &memInquiries{items: map[uuid.UUID]*model.BusinessInquiry{}}
	svc := NewService(repo, &countingNotifier{}, logger.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx, validInquiry())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, created.ID, &model.UpdateInquiryStatusRequest{Status: model.InquiryStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, model.InquiryStatusClosed, updated.Status)

	_, err = svc.UpdateStatus(ctx, created.ID, &model.UpdateInquiryStatusRequest{Status: "archived"})
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)

	_, err = svc.UpdateStatus(ctx, uuid.New(), &model.UpdateInquiryStatusRequest{Status: model.InquiryStatusNew})
	assert.ErrorIs(t, err, apperrors.ErrKindNotFound)

	open, total, err := svc.List(ctx, model.InquiryStatusNew, model.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 0, total)
	assert.Equal(t, model.Pagination{Page: 1, PageSize: maxPageSize}, repo.lastPage)
}
