package handler

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/response"
)

// FactoryHandler handles factory CRUD endpoints.
type FactoryHandler struct {
	db *gorm.DB
}

// NewFactoryHandler creates a new FactoryHandler.
func NewFactoryHandler(db *gorm.DB) *FactoryHandler {
	return &FactoryHandler{db: db}
}

// ─── Request Types ─────────────────────────────────────

type CreateFactoryRequest struct {
	OrganizationID string  `json:"organizationId" binding:"required"`
	Name           string  `json:"name" binding:"required,min=1,max=255"`
	Address        *string `json:"address" binding:"omitempty,max=500"`
	TimeZone       *string `json:"timeZone"`
}

type UpdateFactoryRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=255"`
	Address  *string `json:"address"`
	TimeZone *string `json:"timeZone"`
}

// ─── Handlers ──────────────────────────────────────────

// List handles GET /api/v1/factories?organization_id&limit&offset
func (h *FactoryHandler) List(c *gin.Context) {
	limit, offset := ParsePagination(c)

	query := h.db.Model(&model.Factory{})
	if orgID := c.Query("organization_id"); orgID != "" {
		query = query.Where("organization_id = ?", orgID)
	}

	var total int64
	query.Count(&total)

	var factories []model.Factory
	query.Preload("Organization").Order("created_at DESC").Offset(offset).Limit(limit).Find(&factories)

	items := make([]model.FactoryResponse, len(factories))
	for i, f := range factories {
		var count int64
		h.db.Model(&model.Gateway{}).Where("factory_id = ?", f.ID).Count(&count)
		items[i] = f.ToResponse(count)
	}
	response.List(c, items, limit, offset, total)
}

// Get handles GET /api/v1/factories/:id
func (h *FactoryHandler) Get(c *gin.Context) {
	id := c.Param("id")

	var factory model.Factory
	if err := h.db.Preload("Organization").First(&factory, "id = ?", id).Error; err != nil {
		response.NotFound(c, "FACTORY_NOT_FOUND", "factory not found")
		return
	}

	var count int64
	h.db.Model(&model.Gateway{}).Where("factory_id = ?", id).Count(&count)
	response.OK(c, factory.ToResponse(count))
}

// Create handles POST /api/v1/factories
func (h *FactoryHandler) Create(c *gin.Context) {
	var req CreateFactoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.db.First(&model.Organization{}, "id = ?", req.OrganizationID).Error; err != nil {
		response.BadRequest(c, "organization not found")
		return
	}

	tz := "UTC"
	if req.TimeZone != nil && *req.TimeZone != "" {
		tz = *req.TimeZone
	}

	factory := model.Factory{
		BaseModel:      newBaseModel(),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Address:        req.Address,
		TimeZone:       tz,
	}
	if err := h.db.Create(&factory).Error; err != nil {
		response.InternalError(c, "failed to create factory")
		return
	}

	h.db.Preload("Organization").First(&factory, "id = ?", factory.ID)
	response.Created(c, factory.ToResponse(0))
}

// Update handles PUT /api/v1/factories/:id
func (h *FactoryHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var factory model.Factory
	if err := h.db.First(&factory, "id = ?", id).Error; err != nil {
		response.NotFound(c, "FACTORY_NOT_FOUND", "factory not found")
		return
	}

	var req UpdateFactoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.TimeZone != nil {
		updates["time_zone"] = *req.TimeZone
	}
	if len(updates) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.Model(&factory).Updates(updates).Error; err != nil {
		response.InternalError(c, "failed to update factory")
		return
	}

	h.db.Preload("Organization").First(&factory, "id = ?", id)
	var count int64
	h.db.Model(&model.Gateway{}).Where("factory_id = ?", id).Count(&count)
	response.OK(c, factory.ToResponse(count))
}

// Delete handles DELETE /api/v1/factories/:id
func (h *FactoryHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	var factory model.Factory
	if err := h.db.First(&factory, "id = ?", id).Error; err != nil {
		response.NotFound(c, "FACTORY_NOT_FOUND", "factory not found")
		return
	}

	var count int64
	h.db.Model(&model.Gateway{}).Where("factory_id = ?", id).Count(&count)
	if count > 0 {
		response.BadRequest(c, "delete or move this factory's gateways first")
		return
	}

	if err := h.db.Delete(&factory).Error; err != nil {
		response.InternalError(c, "failed to delete factory")
		return
	}

	response.NoContent(c)
}

// RegisterRoutes registers factory routes on the given protected group.
func (h *FactoryHandler) RegisterRoutes(rg *gin.RouterGroup, enforcer *casbin.Enforcer) {
	factories := rg.Group("/factories")
	{
		factories.GET("", middleware.RequirePermission(enforcer, "factories", "list"), h.List)
		factories.GET("/:id", middleware.RequirePermission(enforcer, "factories", "view"), h.Get)
		factories.POST("", middleware.RequirePermission(enforcer, "factories", "create"), h.Create)
		factories.PUT("/:id", middleware.RequirePermission(enforcer, "factories", "update"), h.Update)
		factories.DELETE("/:id", middleware.RequirePermission(enforcer, "factories", "delete"), h.Delete)
	}
}
