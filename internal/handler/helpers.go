package handler

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vibrowatch/control-plane/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// newBaseModel creates a BaseModel with a generated ID and timestamps.
func newBaseModel() model.BaseModel {
	now := time.Now()
	return model.BaseModel{
		ID:        model.GenerateID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HashPassword hashes a password using bcrypt with cost 12.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword compares a password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RawJSON converts a json.RawMessage to a *string for JSONB storage.
// Returns nil when the message is empty or JSON null.
func RawJSON(msg json.RawMessage) *string {
	if len(msg) == 0 || string(msg) == "null" {
		return nil
	}
	s := string(msg)
	return &s
}

// ParsePagination extracts and clamps limit/offset from query params:
// limit 1-100 (default 20), offset >= 0 (default 0).
func ParsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
