package handler

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/response"
)

// OrganizationHandler handles organization CRUD endpoints.
type OrganizationHandler struct {
	db *gorm.DB
}

// NewOrganizationHandler creates a new OrganizationHandler.
func NewOrganizationHandler(db *gorm.DB) *OrganizationHandler {
	return &OrganizationHandler{db: db}
}

// ─── Request Types ─────────────────────────────────────

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
	Slug string `json:"slug" binding:"required,min=1,max=100"`
}

type UpdateOrganizationRequest struct {
	Name *string `json:"name" binding:"omitempty,min=1,max=255"`
	Slug *string `json:"slug" binding:"omitempty,min=1,max=100"`
}

// ─── Handlers ──────────────────────────────────────────

// List handles GET /api/v1/organizations
func (h *OrganizationHandler) List(c *gin.Context) {
	limit, offset := ParsePagination(c)

	var total int64
	h.db.Model(&model.Organization{}).Count(&total)

	var orgs []model.Organization
	h.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orgs)

	items := make([]model.OrganizationResponse, len(orgs))
	for i, o := range orgs {
		var count int64
		h.db.Model(&model.Factory{}).Where("organization_id = ?", o.ID).Count(&count)
		items[i] = o.ToResponse(count)
	}
	response.List(c, items, limit, offset, total)
}

// Get handles GET /api/v1/organizations/:id
func (h *OrganizationHandler) Get(c *gin.Context) {
	id := c.Param("id")

	var org model.Organization
	if err := h.db.First(&org, "id = ?", id).Error; err != nil {
		response.NotFound(c, "ORGANIZATION_NOT_FOUND", "organization not found")
		return
	}

	var count int64
	h.db.Model(&model.Factory{}).Where("organization_id = ?", id).Count(&count)
	response.OK(c, org.ToResponse(count))
}

// Create handles POST /api/v1/organizations
func (h *OrganizationHandler) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var count int64
	h.db.Model(&model.Organization{}).Where("slug = ?", req.Slug).Count(&count)
	if count > 0 {
		response.Conflict(c, "organization slug already exists")
		return
	}

	org := model.Organization{
		BaseModel: newBaseModel(),
		Name:      req.Name,
		Slug:      req.Slug,
	}
	if err := h.db.Create(&org).Error; err != nil {
		response.InternalError(c, "failed to create organization")
		return
	}

	response.Created(c, org.ToResponse(0))
}

// Update handles PUT /api/v1/organizations/:id
func (h *OrganizationHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var org model.Organization
	if err := h.db.First(&org, "id = ?", id).Error; err != nil {
		response.NotFound(c, "ORGANIZATION_NOT_FOUND", "organization not found")
		return
	}

	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Slug != nil {
		var count int64
		h.db.Model(&model.Organization{}).Where("slug = ? AND id != ?", *req.Slug, id).Count(&count)
		if count > 0 {
			response.Conflict(c, "organization slug already exists")
			return
		}
		updates["slug"] = *req.Slug
	}
	if len(updates) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.Model(&org).Updates(updates).Error; err != nil {
		response.InternalError(c, "failed to update organization")
		return
	}

	h.db.First(&org, "id = ?", id)
	var count int64
	h.db.Model(&model.Factory{}).Where("organization_id = ?", id).Count(&count)
	response.OK(c, org.ToResponse(count))
}

// Delete handles DELETE /api/v1/organizations/:id
func (h *OrganizationHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	var org model.Organization
	if err := h.db.First(&org, "id = ?", id).Error; err != nil {
		response.NotFound(c, "ORGANIZATION_NOT_FOUND", "organization not found")
		return
	}

	var count int64
	h.db.Model(&model.Factory{}).Where("organization_id = ?", id).Count(&count)
	if count > 0 {
		response.BadRequest(c, "delete or reassign this organization's factories first")
		return
	}

	if err := h.db.Delete(&org).Error; err != nil {
		response.InternalError(c, "failed to delete organization")
		return
	}

	response.NoContent(c)
}

// RegisterRoutes registers organization routes on the given protected group.
// VIEWER may list/view; only ADMIN may create/update/delete (RequirePermission
// lets ADMIN through unconditionally and checks the policy file otherwise).
func (h *OrganizationHandler) RegisterRoutes(rg *gin.RouterGroup, enforcer *casbin.Enforcer) {
	orgs := rg.Group("/organizations")
	{
		orgs.GET("", middleware.RequirePermission(enforcer, "organizations", "list"), h.List)
		orgs.GET("/:id", middleware.RequirePermission(enforcer, "organizations", "view"), h.Get)
		orgs.POST("", middleware.RequirePermission(enforcer, "organizations", "create"), h.Create)
		orgs.PUT("/:id", middleware.RequirePermission(enforcer, "organizations", "update"), h.Update)
		orgs.DELETE("/:id", middleware.RequirePermission(enforcer, "organizations", "delete"), h.Delete)
	}
}
