package email

import (
	"context"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
	"github.com/jwalitptl/drivermed-api/pkg/validator"
)

// Sender delivers one transactional email synchronously.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Handler struct {
	sender    Sender
	validator validator.Validator
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender, validator: validator.New()}
}

// RegisterAdminRoutes mounts the transactional email endpoint. r must already be role gated.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/email", h.SendEmail)
}

type sendRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=20000"`
}

func (h *Handler) SendEmail(c *gin.Context) {
	var req sendRequest
	if !httputil.BindJSON(c, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation(err.Error(), err))
		return
	}

	if err := h.sender.Send(c.Request.Context(), req.To, req.Subject, req.Body); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"sent": true})
}
