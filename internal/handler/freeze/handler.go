package freeze

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

type Freezes interface {
	List(ctx context.Context, locationID uuid.UUID, from string) ([]*model.Freeze, error)
	Create(ctx context.Context, locationID uuid.UUID, req *model.CreateFreezeRequest) (*model.Freeze, error)
	Delete(ctx context.Context, locationID, id uuid.UUID) error
}

type Handler struct {
	freezes Freezes
}

func NewHandler(freezes Freezes) *Handler {
	return &Handler{freezes: freezes}
}

// RegisterAdminRoutes mounts freeze maintenance. r must already be role gated.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	freezes := r.Group("/locations/:id/freezes")
	{
		freezes.GET("", h.ListFreezes)
		freezes.POST("", h.CreateFreeze)
		freezes.DELETE("/:freezeId", h.DeleteFreeze)
	}
}

func (h *Handler) ListFreezes(c *gin.Context) {
	locationID, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	freezes, err := h.freezes.List(c.Request.Context(), locationID, c.Query("from"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, freezes)
}

func (h *Handler) CreateFreeze(c *gin.Context) {
	locationID, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.CreateFreezeRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	freeze, err := h.freezes.Create(c.Request.Context(), locationID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, freeze)
}

func (h *Handler) DeleteFreeze(c *gin.Context) {
	locationID, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}
	id, ok := httputil.UUIDParam(c, "freezeId")
	if !ok {
		return
	}

	if err := h.freezes.Delete(c.Request.Context(), locationID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": id})
}
