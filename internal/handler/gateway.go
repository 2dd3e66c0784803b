package handler

import (
	"context"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/gatewayworker"
	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/crypto"
	"github.com/vibrowatch/control-plane/internal/pkg/response"
	"github.com/vibrowatch/control-plane/internal/session"
)

// GatewayHandler handles gateway CRUD and live connection management.
type GatewayHandler struct {
	db       *gorm.DB
	enc      *crypto.Encryptor
	registry *gatewayworker.Registry
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(db *gorm.DB, enc *crypto.Encryptor, registry *gatewayworker.Registry) *GatewayHandler {
	return &GatewayHandler{db: db, enc: enc, registry: registry}
}

// ─── Request Types ─────────────────────────────────────

type CreateGatewayRequest struct {
	FactoryID       string  `json:"factoryId" binding:"required"`
	GatewayID       *string `json:"gatewayId"`
	Name            string  `json:"name" binding:"required,min=1,max=255"`
	URL             string  `json:"url" binding:"required"`
	Email           string  `json:"email" binding:"required,email"`
	Password        string  `json:"password" binding:"required"`
	Model           *string `json:"model"`
	FirmwareVersion *string `json:"firmwareVersion"`
	PreferredSerial *string `json:"preferredSerial"`
	Enabled         *bool   `json:"enabled"`
}

type UpdateGatewayRequest struct {
	Name            *string `json:"name" binding:"omitempty,min=1,max=255"`
	URL             *string `json:"url"`
	Email           *string `json:"email" binding:"omitempty,email"`
	Password        *string `json:"password"`
	Model           *string `json:"model"`
	FirmwareVersion *string `json:"firmwareVersion"`
	PreferredSerial *string `json:"preferredSerial"`
	Enabled         *bool   `json:"enabled"`
}

// ─── CRUD ───────────────────────────────────────────────

// List handles GET /api/v1/gateways?factory_id&limit&offset
func (h *GatewayHandler) List(c *gin.Context) {
	limit, offset := ParsePagination(c)

	query := h.db.Model(&model.Gateway{})
	if factoryID := c.Query("factory_id"); factoryID != "" {
		query = query.Where("factory_id = ?", factoryID)
	}

	var total int64
	query.Count(&total)

	var gateways []model.Gateway
	query.Preload("Factory").Order("created_at DESC").Offset(offset).Limit(limit).Find(&gateways)

	items := make([]model.GatewayResponse, len(gateways))
	for i, g := range gateways {
		items[i] = g.ToResponse()
	}
	response.List(c, items, limit, offset, total)
}

// Get handles GET /api/v1/gateways/:id
func (h *GatewayHandler) Get(c *gin.Context) {
	var gw model.Gateway
	if err := h.db.Preload("Factory").First(&gw, "id = ?", c.Param("id")).Error; err != nil {
		response.NotFound(c, "GATEWAY_NOT_FOUND", "gateway not found")
		return
	}
	response.OK(c, gw.ToResponse())
}

// Create handles POST /api/v1/gateways. Encrypts the plaintext password via
// C12 before it ever reaches the database.
func (h *GatewayHandler) Create(c *gin.Context) {
	var req CreateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.db.First(&model.Factory{}, "id = ?", req.FactoryID).Error; err != nil {
		response.BadRequest(c, "factory not found")
		return
	}

	encrypted, err := h.enc.Encrypt(req.Password)
	if err != nil {
		response.InternalError(c, "failed to encrypt gateway password")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	gatewayID := ""
	if req.GatewayID != nil {
		gatewayID = *req.GatewayID
	}

	gw := model.Gateway{
		BaseModel:           newBaseModel(),
		FactoryID:           req.FactoryID,
		GatewayID:           gatewayID,
		Name:                req.Name,
		URL:                 req.URL,
		Email:               req.Email,
		EncryptedCredential: encrypted,
		Model:               req.Model,
		FirmwareVersion:     req.FirmwareVersion,
		PreferredSerial:     req.PreferredSerial,
		Enabled:             enabled,
		CreatedByID:         middleware.GetUserID(c),
	}
	if err := h.db.Create(&gw).Error; err != nil {
		response.InternalError(c, "failed to create gateway")
		return
	}

	h.db.Preload("Factory").First(&gw, "id = ?", gw.ID)
	response.Created(c, gw.ToResponse())

	if gw.Enabled {
		go h.connectWorker(gw, req.Password)
	}
}

// Update handles PUT /api/v1/gateways/:id. Re-encrypts the credential only
// if a new password is present in the request.
func (h *GatewayHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var gw model.Gateway
	if err := h.db.First(&gw, "id = ?", id).Error; err != nil {
		response.NotFound(c, "GATEWAY_NOT_FOUND", "gateway not found")
		return
	}

	var req UpdateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Password != nil && *req.Password != "" {
		encrypted, err := h.enc.Encrypt(*req.Password)
		if err != nil {
			response.InternalError(c, "failed to encrypt gateway password")
			return
		}
		updates["encrypted_credential"] = encrypted
	}
	if req.Model != nil {
		updates["model"] = *req.Model
	}
	if req.FirmwareVersion != nil {
		updates["firmware_version"] = *req.FirmwareVersion
	}
	if req.PreferredSerial != nil {
		updates["preferred_serial"] = *req.PreferredSerial
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.Model(&gw).Updates(updates).Error; err != nil {
		response.InternalError(c, "failed to update gateway")
		return
	}

	h.db.Preload("Factory").First(&gw, "id = ?", id)
	response.OK(c, gw.ToResponse())

	// A URL, credential, or enabled-state change invalidates the running
	// worker; restart it so the new values take effect.
	restartRelevant := req.URL != nil || req.Email != nil || (req.Password != nil && *req.Password != "") || req.Enabled != nil
	if restartRelevant {
		h.registry.Disconnect(gw.ID)
		if gw.Enabled {
			plaintext, err := h.enc.Decrypt(gw.EncryptedCredential)
			if err == nil {
				go h.connectWorker(gw, plaintext)
			}
		}
	}
}

// Delete handles DELETE /api/v1/gateways/:id
func (h *GatewayHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	var gw model.Gateway
	if err := h.db.First(&gw, "id = ?", id).Error; err != nil {
		response.NotFound(c, "GATEWAY_NOT_FOUND", "gateway not found")
		return
	}

	if err := h.db.Delete(&gw).Error; err != nil {
		response.InternalError(c, "failed to delete gateway")
		return
	}

	h.registry.Disconnect(id)
	response.NoContent(c)
}

// ─── Live connection management ────────────────────────

// Status handles GET /api/v1/gateways/:id/status — the live C3 connection
// state plus a summary of the last completed acquisition, both read from
// the worker registry rather than a persisted column.
func (h *GatewayHandler) Status(c *gin.Context) {
	id := c.Param("id")

	if err := h.db.First(&model.Gateway{}, "id = ?", id).Error; err != nil {
		response.NotFound(c, "GATEWAY_NOT_FOUND", "gateway not found")
		return
	}

	state := session.StateDisconnected
	var lastReading *gatewayworker.ReadingSummary
	if w := h.registry.Get(id); w != nil {
		state = w.State()
		lastReading = w.LastReading()
	}

	response.OK(c, gin.H{
		"gatewayId":   id,
		"state":       string(state),
		"lastReading": lastReading,
	})
}

// Connect handles POST /api/v1/gateways/:id/connect — asks the registry to
// (re)start the worker for this gateway.
func (h *GatewayHandler) Connect(c *gin.Context) {
	var gw model.Gateway
	if err := h.db.First(&gw, "id = ?", c.Param("id")).Error; err != nil {
		response.NotFound(c, "GATEWAY_NOT_FOUND", "gateway not found")
		return
	}

	plaintext, err := h.enc.Decrypt(gw.EncryptedCredential)
	if err != nil {
		response.InternalError(c, "failed to decrypt gateway credential")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.registry.Connect(ctx, gatewayRecord(gw, plaintext)); err != nil {
		response.ServiceUnavailable(c, "failed to connect: "+err.Error())
		return
	}

	response.OK(c, gin.H{"gatewayId": gw.ID, "state": string(session.StateConnected)})
}

// Disconnect handles DELETE /api/v1/gateways/:id/connect — asks the
// registry to stop the worker.
func (h *GatewayHandler) Disconnect(c *gin.Context) {
	id := c.Param("id")
	h.registry.Disconnect(id)
	response.OK(c, gin.H{"gatewayId": id, "state": string(session.StateClosed)})
}

// ─── helpers ────────────────────────────────────────────

func (h *GatewayHandler) connectWorker(gw model.Gateway, plaintextPassword string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = h.registry.Connect(ctx, gatewayRecord(gw, plaintextPassword))
}

func gatewayRecord(gw model.Gateway, plaintextPassword string) gatewayworker.GatewayRecord {
	preferred := ""
	if gw.PreferredSerial != nil {
		preferred = *gw.PreferredSerial
	}
	return gatewayworker.GatewayRecord{
		GatewayID:       gw.ID,
		URL:             gw.URL,
		LoginEmail:      gw.Email,
		LoginPassword:   plaintextPassword,
		PreferredSerial: preferred,
	}
}

// RegisterRoutes registers gateway routes on the given protected group.
// VIEWER may read status and trigger connect/disconnect; only ADMIN may
// change gateway inventory.
func (h *GatewayHandler) RegisterRoutes(rg *gin.RouterGroup, enforcer *casbin.Enforcer) {
	gateways := rg.Group("/gateways")
	{
		gateways.GET("", middleware.RequirePermission(enforcer, "gateways", "list"), h.List)
		gateways.GET("/:id", middleware.RequirePermission(enforcer, "gateways", "view"), h.Get)
		gateways.POST("", middleware.RequirePermission(enforcer, "gateways", "create"), h.Create)
		gateways.PUT("/:id", middleware.RequirePermission(enforcer, "gateways", "update"), h.Update)
		gateways.DELETE("/:id", middleware.RequirePermission(enforcer, "gateways", "delete"), h.Delete)
		gateways.GET("/:id/status", middleware.RequirePermission(enforcer, "gateways", "status"), h.Status)
		gateways.POST("/:id/connect", middleware.RequirePermission(enforcer, "gateways", "connect"), h.Connect)
		gateways.DELETE("/:id/connect", middleware.RequirePermission(enforcer, "gateways", "connect"), h.Disconnect)
	}
}
