package freeze

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
)

type stubFreezes struct {
	location uuid.UUID
	from     string
	created  *model.CreateFreezeRequest
	deleted  uuid.UUID
	err      error
}

func (s *stubFreezes) List(_ context.Context, locationID uuid.UUID, from string) ([]*model.Freeze, error) {
	s.location = locationID
	s.from = from
	return []*model.Freeze{{LocationID: locationID, Date: "2099-01-01", IsFullDay: true, Reason: "Bank holiday"}}, s.err
}

func (s *stubFreezes) Create(_ context.Context, locationID uuid.UUID, req *model.CreateFreezeRequest) (*model.Freeze, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Freeze{ID: uuid.New(), LocationID: locationID, Date: req.Date, Reason: req.Reason}, nil
}

func (s *stubFreezes) Delete(_ context.Context, _, id uuid.UUID) error {
	s.deleted = id
	return s.err
}

func setup(stub *stubFreezes) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(stub).RegisterAdminRoutes(r.Group("/api/v1/admin"))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestFreezeRoutes(t *testing.T) {
	stub := &stubFreezes{}
	r := setup(stub)
	location := uuid.New()
	base := "/api/v1/admin/locations/" + location.String() + "/freezes"

	w := do(r, http.MethodGet, base+"?from=2099-01-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, location, stub.location)
	assert.Equal(t, "2099-01-01", stub.from)
	assert.Contains(t, w.Body.String(), "Bank holiday")

	w = do(r, http.MethodPost, base, `{"date":"2099-01-02","start_time":"12:00","end_time":"13:00","reason":"Staff training"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "12:00", *stub.created.StartTime)

	id := uuid.New()
	w = do(r, http.MethodDelete, base+"/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, stub.deleted)
}

func TestFreezeErrors(t *testing.T) {
	r := setup(&stubFreezes{err: apperrors.NewValidation("partial freeze needs start_time before end_time", nil)})
	base := "/api/v1/admin/locations/" + uuid.NewString() + "/freezes"

	w := do(r, http.MethodPost, base, `{"date":"2099-01-02","start_time":"14:00","end_time":"13:00","reason":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, base+"/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/admin/locations/xyz/freezes", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
