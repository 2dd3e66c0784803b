package model

import (
	"time"

	"gorm.io/gorm"
)

// ─── Enums ─────────────────────────────────────────────

// OperatorRole is the two-value RBAC role for the REST management API.
// ADMIN can manage organizations, factories, and gateways; VIEWER can read gateway status and trigger readings but cannot
// mutate inventory.
type OperatorRole string

const (
	RoleAdmin  OperatorRole = "ADMIN"
	RoleViewer OperatorRole = "VIEWER"
)

// ─── Base Model ────────────────────────────────────────

// BaseModel provides common fields with CUID-style IDs.
type BaseModel struct {
	ID        string         `gorm:"primaryKey;size:30" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ─── Organization ──────────────────────────────────────

// Organization is the top-level tenant: a customer operating one or more
// factories full of vibration-monitored machinery.
type Organization struct {
	BaseModel
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	Factories []Factory `gorm:"foreignKey:OrganizationID" json:"factories,omitempty"`
}

func (Organization) TableName() string { return "organizations" }

// OrganizationResponse is the API representation of an Organization.
type OrganizationResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	FactoryCount int64     `json:"factoryCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ToResponse converts Organization to OrganizationResponse.
func (o *Organization) ToResponse(factoryCount int64) OrganizationResponse {
	return OrganizationResponse{
		ID:           o.ID,
		Name:         o.Name,
		Slug:         o.Slug,
		FactoryCount: factoryCount,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// ─── Factory ───────────────────────────────────────────

// Factory is a physical site within an Organization that hosts one or more
// Gateways.
type Factory struct {
	BaseModel
	OrganizationID string       `gorm:"index;size:30;not null" json:"organizationId"`
	Organization   Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"organization,omitempty"`
	Name           string       `gorm:"size:255;not null" json:"name"`
	Address        *string      `gorm:"size:500" json:"address"`
	TimeZone       string       `gorm:"size:64;default:UTC;not null" json:"timeZone"`
	Gateways       []Gateway    `gorm:"foreignKey:FactoryID" json:"gateways,omitempty"`
}

func (Factory) TableName() string { return "factories" }

// FactoryResponse is the API representation of a Factory.
type FactoryResponse struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organizationId"`
	OrganizationName string    `json:"organizationName"`
	Name             string    `json:"name"`
	Address          *string   `json:"address"`
	TimeZone         string    `json:"timeZone"`
	GatewayCount     int64     `json:"gatewayCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ToResponse converts Factory to FactoryResponse. Preload("Organization") before calling.
func (f *Factory) ToResponse(gatewayCount int64) FactoryResponse {
	resp := FactoryResponse{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Address:        f.Address,
		TimeZone:       f.TimeZone,
		GatewayCount:   gatewayCount,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
	if f.Organization.ID != "" {
		resp.OrganizationName = f.Organization.Name
	}
	return resp
}

// ─── Gateway ───────────────────────────────────────────

// Gateway is one TeamClaw vibration-sensor gateway: a WebSocket endpoint the
// control plane logs into and maintains a persistent Worker connection for.
// EncryptedCredential holds the gateway's login password sealed by
// pkg/crypto.Encryptor — it is decrypted only on the boot/connect path that
// hands a plaintext password to gatewayworker.Registry, never logged or
// returned from the API. Connection status is not persisted here: it is
// live state owned by the worker registry (C19) and read through it, not
// through this row.
type Gateway struct {
	BaseModel
	FactoryID           string    `gorm:"index;size:30;not null" json:"factoryId"`
	Factory             Factory   `gorm:"foreignKey:FactoryID;constraint:OnDelete:CASCADE" json:"factory,omitempty"`
	GatewayID           string    `gorm:"size:64" json:"gatewayId"` // vendor device id, if known
	Name                string    `gorm:"size:255;not null" json:"name"`
	URL                 string    `gorm:"size:500;not null" json:"url"`
	Email               string    `gorm:"size:255;not null" json:"email"`
	EncryptedCredential string    `gorm:"type:text;not null" json:"-"`
	Model               *string   `gorm:"size:100" json:"model"`
	FirmwareVersion     *string   `gorm:"size:50" json:"firmwareVersion"`
	Metadata            *string   `gorm:"type:jsonb" json:"metadata"`
	// PreferredSerial is the sensor serial the acquisition flow should pick
	// out of GET_DYN_CONNECTED's live set when present; otherwise the first
	// live sensor by response order is used.
	PreferredSerial     *string         `gorm:"size:64" json:"preferredSerial"`
	Enabled             bool            `gorm:"default:true;not null" json:"enabled"`
	LastSeenAt          *time.Time      `json:"lastSeenAt"`
	CreatedByID         string          `gorm:"index;size:30;not null" json:"createdById"`
	CreatedBy           OperatorAccount `gorm:"foreignKey:CreatedByID" json:"createdBy,omitempty"`
}

func (Gateway) TableName() string { return "gateways" }

// GatewayResponse never carries EncryptedCredential — passwords are never
// returned in responses or logs.
type GatewayResponse struct {
	ID              string     `json:"id"`
	FactoryID       string     `json:"factoryId"`
	FactoryName     string     `json:"factoryName"`
	GatewayID       string     `json:"gatewayId"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Email           string     `json:"email"`
	Model           *string    `json:"model"`
	FirmwareVersion *string    `json:"firmwareVersion"`
	Metadata        *string    `json:"metadata"`
	PreferredSerial *string    `json:"preferredSerial"`
	Enabled         bool       `json:"enabled"`
	LastSeenAt      *time.Time `json:"lastSeenAt"`
	CreatedByID     string     `json:"createdById"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ToResponse converts Gateway to GatewayResponse. Preload("Factory") before calling.
func (g *Gateway) ToResponse() GatewayResponse {
	resp := GatewayResponse{
		ID:              g.ID,
		FactoryID:       g.FactoryID,
		GatewayID:       g.GatewayID,
		Name:            g.Name,
		URL:             g.URL,
		Email:           g.Email,
		Model:           g.Model,
		FirmwareVersion: g.FirmwareVersion,
		Metadata:        g.Metadata,
		PreferredSerial: g.PreferredSerial,
		Enabled:         g.Enabled,
		LastSeenAt:      g.LastSeenAt,
		CreatedByID:     g.CreatedByID,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
	if g.Factory.ID != "" {
		resp.FactoryName = g.Factory.Name
	}
	return resp
}

// ─── OperatorAccount ───────────────────────────────────

// OperatorAccount is a human user of the REST management API.
type OperatorAccount struct {
	BaseModel
	Email        string       `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string       `gorm:"size:100;not null" json:"name"`
	PasswordHash string       `gorm:"size:255;not null" json:"-"`
	Role         OperatorRole `gorm:"size:20;default:VIEWER;not null" json:"role"`
	LastLoginAt  *time.Time   `json:"lastLoginAt"`
}

func (OperatorAccount) TableName() string { return "operator_accounts" }

// OperatorAccountResponse is the safe representation of an operator (no password hash).
type OperatorAccountResponse struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Role        OperatorRole `json:"role"`
	LastLoginAt *time.Time   `json:"lastLoginAt"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ToResponse converts OperatorAccount to OperatorAccountResponse.
func (o *OperatorAccount) ToResponse() OperatorAccountResponse {
	return OperatorAccountResponse{
		ID:          o.ID,
		Email:       o.Email,
		Name:        o.Name,
		Role:        o.Role,
		LastLoginAt: o.LastLoginAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// ─── RefreshToken ──────────────────────────────────────

type RefreshToken struct {
	BaseModel
	OperatorID        string          `gorm:"index;size:30;not null" json:"operatorId"`
	Operator          OperatorAccount `gorm:"foreignKey:OperatorID" json:"-"`
	TokenHash         string          `gorm:"uniqueIndex;size:255;not null" json:"-"`
	DeviceFingerprint *string         `gorm:"size:255" json:"-"`
	ExpiresAt         time.Time       `json:"expiresAt"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// ─── AuditLog ──────────────────────────────────────────

// AuditLog is slimmed to what the middleware actually records on mutating
// routes — method, path, status, and the acting operator — rather than the
// teacher's full action/resource/before-after capture, since the control
// plane's mutations are narrow CRUD on inventory rather than arbitrary
// resource edits or chat activity.
type AuditLog struct {
	ID         string    `gorm:"primaryKey;size:30" json:"id"`
	OperatorID string    `gorm:"index;size:30" json:"operatorId"`
	Method     string    `gorm:"size:16;not null" json:"method"`
	Path       string    `gorm:"size:500;not null" json:"path"`
	StatusCode int       `gorm:"not null" json:"statusCode"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// ─── AllModels returns all models for auto-migration ───

func AllModels() []interface{} {
	return []interface{}{
		&Organization{},
		&Factory{},
		&Gateway{},
		&OperatorAccount{},
		&RefreshToken{},
		&AuditLog{},
	}
}
