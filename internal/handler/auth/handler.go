package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

type Authenticator interface {
	Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error)
}

type Handler struct {
	svc Authenticator
}

func NewHandler(svc Authenticator) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, resp)
}
