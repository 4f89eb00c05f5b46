package availability

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/service/discount"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

// Slots computes the free slots of a location on a day.
type Slots interface {
	AvailableSlots(ctx context.Context, locationID uuid.UUID, date time.Time) (*model.Availability, error)
}

// Discounts resolves and lists voucher codes.
type Discounts interface {
	Resolve(code string) (discount.Resolution, error)
	Advertised() []discount.Code
}

// Handler serves the public booking wizard lookups: free slots and voucher checks.
type Handler struct {
	slots     Slots
	discounts Discounts
	now       func() time.Time
}

func NewHandler(slots Slots, discounts Discounts) *Handler {
	return &Handler{slots: slots, discounts: discounts, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/locations/:id/availability", h.GetAvailability)

	discounts := r.Group("/discounts")
	{
		discounts.GET("", h.ListDiscounts)
		discounts.POST("/validate", h.ValidateDiscount)
	}
}

func (h *Handler) GetAvailability(c *gin.Context) {
	locationID, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	raw := c.Query("date")
	date, err := model.ParseDate(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("date must be YYYY-MM-DD", err))
		return
	}
	if raw < h.now().UTC().Format(model.DateLayout) {
		httputil.RespondWithError(c, apperrors.NewValidation("date is in the past", nil))
		return
	}

	availability, err := h.slots.AvailableSlots(c.Request.Context(), locationID, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, availability)
}

func (h *Handler) ListDiscounts(c *gin.Context) {
	codes := h.discounts.Advertised()
	if codes == nil {
		codes = []discount.Code{}
	}
	httputil.RespondWithSuccess(c, codes)
}

type validateRequest struct {
	Code string `json:"code"`
}

func (h *Handler) ValidateDiscount(c *gin.Context) {
	var req validateRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	resolution, err := h.discounts.Resolve(req.Code)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resolution)
}
