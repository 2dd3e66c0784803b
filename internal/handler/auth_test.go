package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *middleware.JWTService) {
	t.Helper()
	db := testDB(t)
	jwtService, err := middleware.NewJWTService(testJWTConfig(t))
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}
	h := NewAuthHandler(db, jwtService)

	r := newTestRouter()
	public := r.Group("/api/v1")
	protected := r.Group("/api/v1")
	protected.Use(func(c *gin.Context) {
		// Stand in for JWTAuth: tests that need an authenticated identity
		// set it via withOperator before registering routes separately.
		c.Next()
	})
	h.RegisterRoutes(public, protected)
	return r, db, jwtService
}

func seedOperator(t *testing.T, db *gorm.DB, email, password, role string) model.OperatorAccount {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	op := model.OperatorAccount{
		BaseModel:    newBaseModel(),
		Email:        email,
		Name:         "Test Operator",
		PasswordHash: hash,
		Role:         model.OperatorRole(role),
	}
	if err := db.Create(&op).Error; err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	return op
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	r, db, _ := newAuthTestRouter(t)
	seedOperator(t, db, "admin@example.com", "correct-horse", string(model.RoleAdmin))

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "admin@example.com",
		Password: "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body TokenResponse
	decodeBody(t, w, &body)
	if body.AccessToken == "" || body.RefreshToken == "" {
		t.Fatal("expected non-empty tokens")
	}
	if body.Operator.Email != "admin@example.com" {
		t.Fatalf("expected operator email echoed back, got %s", body.Operator.Email)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	r, db, _ := newAuthTestRouter(t)
	seedOperator(t, db, "admin@example.com", "correct-horse", string(model.RoleAdmin))

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "admin@example.com",
		Password: "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	r, _, _ := newAuthTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever1",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	r, db, _ := newAuthTestRouter(t)
	seedOperator(t, db, "admin@example.com", "correct-horse", string(model.RoleAdmin))

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "admin@example.com", Password: "correct-horse"})
	var tokens TokenResponse
	decodeBody(t, w, &tokens)

	w = doJSON(r, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var refreshed TokenResponse
	decodeBody(t, w, &refreshed)
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}

	// The old refresh token must no longer be usable.
	w = doJSON(r, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 reusing a rotated refresh token, got %d", w.Code)
	}
}
