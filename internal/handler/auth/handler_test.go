package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
)

type stubAuth struct {
	req *model.LoginRequest
}

func (s *stubAuth) Login(_ context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	s.req = req
	if req.Password != "correct horse" {
		return nil, apperrors.Unauthorized(nil)
	}
	return &model.LoginResponse{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(time.Hour),
		Profile:     &model.Profile{Email: req.Email, Role: model.RoleAdmin, PasswordHash: "$2a$secret"},
	}, nil
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubAuth{}
	r := gin.New()
	NewHandler(stub).RegisterRoutes(r.Group("/api/v1"))

	login := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))
		return w
	}

	w := login(`{"email":"admin@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
	assert.NotContains(t, w.Body.String(), "$2a$secret")

	w = login(`{"email":"admin@example.com","password":"guess"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(`not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
