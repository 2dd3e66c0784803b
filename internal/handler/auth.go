package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/response"
)

// hashRefreshToken returns a SHA-256 hex digest of the given JWT string.
// bcrypt truncates input at 72 bytes and would corrupt long JWTs.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// computeFingerprint derives a stable per-device identifier from the
// request's User-Agent and client IP, binding a refresh token to the
// device it was issued to without storing either value in the clear.
func computeFingerprint(c *gin.Context) string {
	sum := sha256.Sum256([]byte(c.Request.UserAgent() + "|" + c.ClientIP()))
	return hex.EncodeToString(sum[:])
}

// AuthHandler handles operator authentication endpoints. Operator accounts
// are provisioned out of band (migration seed or direct DB insert) — there
// is no self-registration endpoint, matching the documented REST surface.
type AuthHandler struct {
	db  *gorm.DB
	jwt *middleware.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, jwt *middleware.JWTService) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt}
}

// ─── Request / Response Types ──────────────────────────

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type TokenResponse struct {
	AccessToken  string                        `json:"accessToken"`
	RefreshToken string                        `json:"refreshToken"`
	Operator     model.OperatorAccountResponse `json:"operator"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ─── Handlers ──────────────────────────────────────────

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var operator model.OperatorAccount
	if err := h.db.Where("email = ?", req.Email).First(&operator).Error; err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(req.Password)); err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	accessToken, err := h.jwt.SignAccessToken(operator.ID, string(operator.Role))
	if err != nil {
		response.InternalError(c, "failed to generate access token")
		return
	}
	fingerprint := computeFingerprint(c)
	refreshToken, err := h.jwt.SignRefreshToken(operator.ID, fingerprint)
	if err != nil {
		response.InternalError(c, "failed to generate refresh token")
		return
	}

	rt := model.RefreshToken{
		BaseModel:         newBaseModel(),
		OperatorID:        operator.ID,
		TokenHash:         hashRefreshToken(refreshToken),
		DeviceFingerprint: &fingerprint,
		ExpiresAt:         time.Now().Add(7 * 24 * time.Hour),
	}
	h.db.Create(&rt)

	now := time.Now()
	h.db.Model(&operator).Update("last_login_at", now)

	response.OK(c, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Operator:     operator.ToResponse(),
	})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		response.Unauthorized(c, "invalid refresh token")
		return
	}

	tokenHash := hashRefreshToken(req.RefreshToken)
	var rt model.RefreshToken
	if err := h.db.Where("operator_id = ? AND token_hash = ? AND expires_at > ?",
		claims.OperatorID, tokenHash, time.Now()).First(&rt).Error; err != nil {
		response.Unauthorized(c, "refresh token not found or expired")
		return
	}
	h.db.Delete(&rt)

	// A fingerprint mismatch means this refresh token is being replayed from
	// a different device than the one it was issued to; refuse the rotation
	// even though the token itself is still cryptographically valid.
	if rt.DeviceFingerprint != nil && *rt.DeviceFingerprint != "" && *rt.DeviceFingerprint != computeFingerprint(c) {
		response.Unauthorized(c, "refresh token device mismatch")
		return
	}

	var operator model.OperatorAccount
	if err := h.db.First(&operator, "id = ?", claims.OperatorID).Error; err != nil {
		response.Unauthorized(c, "operator not found")
		return
	}

	fingerprint := computeFingerprint(c)
	accessToken, _ := h.jwt.SignAccessToken(operator.ID, string(operator.Role))
	newRefreshToken, _ := h.jwt.SignRefreshToken(operator.ID, fingerprint)

	newRt := model.RefreshToken{
		BaseModel:         newBaseModel(),
		OperatorID:        operator.ID,
		TokenHash:         hashRefreshToken(newRefreshToken),
		DeviceFingerprint: &fingerprint,
		ExpiresAt:         time.Now().Add(7 * 24 * time.Hour),
	}
	h.db.Create(&newRt)

	response.OK(c, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		Operator:     operator.ToResponse(),
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	operatorID := middleware.GetUserID(c)
	h.db.Where("operator_id = ?", operatorID).Delete(&model.RefreshToken{})
	response.OK(c, nil)
}

// GetMe handles GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	operatorID := middleware.GetUserID(c)

	var operator model.OperatorAccount
	if err := h.db.First(&operator, "id = ?", operatorID).Error; err != nil {
		response.NotFound(c, "OPERATOR_NOT_FOUND", "operator not found")
		return
	}

	response.OK(c, operator.ToResponse())
}

// RegisterRoutes registers all auth routes on the given router group.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	auth := public.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}

	authProtected := protected.Group("/auth")
	{
		authProtected.POST("/logout", h.Logout)
		authProtected.GET("/me", h.GetMe)
	}
}
