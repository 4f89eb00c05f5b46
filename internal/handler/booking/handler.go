package booking

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	bookingsvc "github.com/jwalitptl/drivermed-api/internal/service/booking"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

// Bookings is what the handler needs from the booking service.
type Bookings interface {
	Create(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, int, error)
	TransitionWithNote(ctx context.Context, id uuid.UUID, event bookingsvc.Event, note string) (*bookingsvc.TransitionResult, error)
}

type Handler struct {
	bookings Bookings
}

func NewHandler(bookings Bookings) *Handler {
	return &Handler{bookings: bookings}
}

// RegisterRoutes mounts the customer facing booking endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
	}
}

// RegisterAdminRoutes mounts the back office endpoints. r must already be role gated.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBookingAdmin)
		bookings.POST("/:id/confirm", h.transition(bookingsvc.EventAdminConfirm))
		bookings.POST("/:id/complete", h.transition(bookingsvc.EventAdminComplete))
		bookings.POST("/:id/cancel", h.transition(bookingsvc.EventAdminCancel))
	}
}

// PublicBooking is the subset of a booking shown on the confirmation page.
type PublicBooking struct {
	ID            uuid.UUID            `json:"id"`
	ServiceTitle  string               `json:"service_title"`
	LocationName  string               `json:"location_name"`
	Date          string               `json:"date"`
	Time          string               `json:"time"`
	FirstName     string               `json:"first_name"`
	AmountPence   int64                `json:"amount_pence"`
	DiscountPence int64                `json:"discount_pence"`
	Status        model.BookingStatus  `json:"status"`
	PaymentStatus *model.PaymentStatus `json:"payment_status"`
	PaymentMethod model.PaymentMethod  `json:"payment_method"`
}

func NewPublicBooking(b *model.Booking) *PublicBooking {
	return &PublicBooking{
		ID:            b.ID,
		ServiceTitle:  b.ServiceTitle,
		LocationName:  b.LocationName,
		Date:          b.Date,
		Time:          b.Time,
		FirstName:     b.FirstName,
		AmountPence:   b.AmountPence,
		DiscountPence: b.DiscountPence,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		PaymentMethod: b.PaymentMethod,
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, NewPublicBooking(booking))
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, NewPublicBooking(booking))
}

func (h *Handler) GetBookingAdmin(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) ListBookings(c *gin.Context) {
	filter := model.BookingFilter{
		Status:   model.BookingStatus(c.Query("status")),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Search:   c.Query("search"),
	}

	switch filter.Status {
	case "", model.BookingStatusPending, model.BookingStatusConfirmed,
		model.BookingStatusCancelled, model.BookingStatusCompleted:
	default:
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid status filter", nil))
		return
	}

	for _, d := range []string{filter.DateFrom, filter.DateTo} {
		if d == "" {
			continue
		}
		if _, err := model.ParseDate(d); err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("dates must be YYYY-MM-DD", err))
			return
		}
	}

	if raw := c.Query("location_id"); raw != "" {
		locationID, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid location_id", err))
			return
		}
		filter.LocationID = &locationID
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "25"))

	bookings, total, err := h.bookings.List(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, bookings, filter.Page, filter.PageSize, total)
}

type transitionRequest struct {
	Note string `json:"note"`
}

// TransitionResponse reports whether the action changed anything.
type TransitionResponse struct {
	Booking  *model.Booking `json:"booking"`
	Previous string         `json:"previous"`
	Changed  bool           `json:"changed"`
}

func (h *Handler) transition(event bookingsvc.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httputil.UUIDParam(c, "id")
		if !ok {
			return
		}

		var req transitionRequest
		if c.Request.ContentLength > 0 && !httputil.BindJSON(c, &req) {
			return
		}

		result, err := h.bookings.TransitionWithNote(c.Request.Context(), id, event, req.Note)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		httputil.RespondWithSuccess(c, TransitionResponse{
			Booking:  result.Booking,
			Previous: result.Previous,
			Changed:  result.Changed,
		})
	}
}
