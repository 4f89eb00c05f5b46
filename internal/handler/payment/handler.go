package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	bookinghandler "github.com/jwalitptl/drivermed-api/internal/handler/booking"
	"github.com/jwalitptl/drivermed-api/internal/model"
	paymentsvc "github.com/jwalitptl/drivermed-api/internal/service/payment"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

const signatureHeader = "Stripe-Signature"

// Payments is what the handler needs from the payment coordinator.
type Payments interface {
	Initiate(ctx context.Context, bookingID uuid.UUID, mode model.PaymentMode) (*model.PaymentInitiation, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*paymentsvc.ReconcileResult, error)
	HandleReturn(ctx context.Context, bookingID uuid.UUID, reference string) (*paymentsvc.ReconcileResult, error)
}

type Handler struct {
	payments Payments
}

func NewHandler(payments Payments) *Handler {
	return &Handler{payments: payments}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/bookings/:id/payment", h.InitiatePayment)

	payments := r.Group("/payments")
	{
		payments.GET("/return", h.PaymentReturn)
		payments.POST("/webhook", h.Webhook)
	}
}

type initiateRequest struct {
	Mode model.PaymentMode `json:"mode"`
}

func (h *Handler) InitiatePayment(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	var req initiateRequest
	if !httputil.BindJSON(c, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = model.PaymentModeCheckout
	}

	initiation, err := h.payments.Initiate(c.Request.Context(), id, req.Mode)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, initiation)
}

// ReturnResponse is what the confirmation page renders after the processor redirect.
type ReturnResponse struct {
	Outcome paymentsvc.Outcome            `json:"outcome"`
	Booking *bookinghandler.PublicBooking `json:"booking,omitempty"`
}

// PaymentReturn handles the browser coming back from the processor. Hosted checkout
// appends session_id; the embedded card form appends payment_intent.
func (h *Handler) PaymentReturn(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Query("booking_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid booking_id", err))
		return
	}

	reference := c.Query("session_id")
	if reference == "" {
		reference = c.Query("payment_intent")
	}
	if reference == "" {
		httputil.RespondWithError(c, apperrors.NewBadRequest("session_id or payment_intent is required", nil))
		return
	}

	result, err := h.payments.HandleReturn(c.Request.Context(), bookingID, reference)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	resp := ReturnResponse{Outcome: result.Outcome}
	if result.Booking != nil {
		resp.Booking = bookinghandler.NewPublicBooking(result.Booking)
	}
	httputil.RespondWithSuccess(c, resp)
}

// Webhook answers 200 for everything that was processed or deliberately ignored,
// 400 when the delivery cannot be trusted or parsed, and 503 otherwise so the
// processor retries.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("unreadable payload", err))
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		httputil.RespondWithError(c, webhookError(err))
		return
	}

	c.JSON(http.StatusOK, httputil.Response{Success: true, Data: result})
}

func webhookError(err error) error {
	if appErr, ok := apperrors.As(err); ok && appErr.HTTPStatus() == http.StatusBadRequest {
		return err
	}
	if errors.Is(err, apperrors.ErrKindUpstreamTimeout) || errors.Is(err, apperrors.ErrKindDataUnavailable) {
		return err
	}
	return apperrors.NewDataUnavailable(err)
}
