package inquiry

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

type Inquiries interface {
	Create(ctx context.Context, req *model.CreateInquiryRequest) (*model.BusinessInquiry, error)
	List(ctx context.Context, status model.InquiryStatus, page model.Pagination) ([]*model.BusinessInquiry, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req *model.UpdateInquiryStatusRequest) (*model.BusinessInquiry, error)
}

type Handler struct {
	inquiries Inquiries
}

func NewHandler(inquiries Inquiries) *Handler {
	return &Handler{inquiries: inquiries}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/inquiries", h.CreateInquiry)
}

// RegisterAdminRoutes mounts inquiry triage. r must already be role gated.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	inquiries := r.Group("/inquiries")
	{
		inquiries.GET("", h.ListInquiries)
		inquiries.PATCH("/:id", h.UpdateStatus)
	}
}

func (h *Handler) CreateInquiry(c *gin.Context) {
	var req model.CreateInquiryRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	inquiry, err := h.inquiries.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, gin.H{"id": inquiry.ID, "status": inquiry.Status})
}

func (h *Handler) ListInquiries(c *gin.Context) {
	status := model.InquiryStatus(c.Query("status"))
	switch status {
	case "", model.InquiryStatusNew, model.InquiryStatusInProgress, model.InquiryStatusClosed:
	default:
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid status filter", nil))
		return
	}

	var page model.Pagination
	page.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	page.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "25"))
	page.Normalize(100)

	inquiries, total, err := h.inquiries.List(c.Request.Context(), status, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, inquiries, page.Page, page.PageSize, total)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateInquiryStatusRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	inquiry, err := h.inquiries.UpdateStatus(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, inquiry)
}
