package catalog

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

// Catalog is what the handler needs from the catalog service.
type Catalog interface {
	ActiveServices(ctx context.Context) ([]*model.Service, error)
	AllServices(ctx context.Context) ([]*model.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	CreateService(ctx context.Context, req *model.CreateServiceRequest) (*model.Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, req *model.UpdateServiceRequest) (*model.Service, error)
	ActiveLocations(ctx context.Context) ([]*model.Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*model.Location, error)
	CreateLocation(ctx context.Context, req *model.CreateLocationRequest) (*model.Location, error)
}

// Locator ranks locations by distance from a postcode.
type Locator interface {
	Nearest(ctx context.Context, postcode string) ([]model.LocationDistance, error)
}

type Handler struct {
	catalog Catalog
	locator Locator
}

func NewHandler(catalog Catalog, locator Locator) *Handler {
	return &Handler{catalog: catalog, locator: locator}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	services := r.Group("/services")
	{
		services.GET("", h.ListServices)
		services.GET("/:id", h.GetService)
	}

	locations := r.Group("/locations")
	{
		locations.GET("", h.ListLocations)
		locations.GET("/nearest", h.NearestLocations)
		locations.GET("/:id", h.GetLocation)
	}
}

// RegisterAdminRoutes mounts catalog maintenance. r must already be role gated.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	services := r.Group("/services")
	{
		services.GET("", h.ListAllServices)
		services.POST("", h.CreateService)
		services.PATCH("/:id", h.UpdateService)
	}

	r.POST("/locations", h.CreateLocation)
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.catalog.ActiveServices(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) ListAllServices(c *gin.Context) {
	services, err := h.catalog.AllServices(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) GetService(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	service, err := h.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if !service.Active {
		httputil.RespondWithError(c, apperrors.NewNotFound("service", nil))
		return
	}
	httputil.RespondWithSuccess(c, service)
}

func (h *Handler) CreateService(c *gin.Context) {
	var req model.CreateServiceRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	service, err := h.catalog.CreateService(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, service)
}

func (h *Handler) UpdateService(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateServiceRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	service, err := h.catalog.UpdateService(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, service)
}

func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.catalog.ActiveLocations(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, locations)
}

func (h *Handler) GetLocation(c *gin.Context) {
	id, ok := httputil.UUIDParam(c, "id")
	if !ok {
		return
	}

	location, err := h.catalog.GetLocation(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, location)
}

func (h *Handler) NearestLocations(c *gin.Context) {
	postcode := c.Query("postcode")
	if postcode == "" {
		httputil.RespondWithError(c, apperrors.NewValidation("postcode is required", nil))
		return
	}

	ranked, err := h.locator.Nearest(c.Request.Context(), postcode)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, ranked)
}

func (h *Handler) CreateLocation(c *gin.Context) {
	var req model.CreateLocationRequest
	if !httputil.BindJSON(c, &req) {
		return
	}

	location, err := h.catalog.CreateLocation(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, location)
}
