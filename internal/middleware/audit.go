package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/model"
)

// AuditLog returns a middleware that records mutating API calls. Only
// POST/PUT/PATCH/DELETE requests are recorded; reads are not audited.
func AuditLog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			c.Next()
			return
		}

		c.Next()

		operatorID := GetUserID(c)
		if operatorID == "" {
			return
		}

		entry := model.AuditLog{
			ID:         model.GenerateID(),
			OperatorID: operatorID,
			Method:     method,
			Path:       c.FullPath(),
			StatusCode: c.Writer.Status(),
			CreatedAt:  time.Now(),
		}

		go func() {
			_ = db.Create(&entry).Error
		}()
	}
}
