package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vibrowatch/control-plane/internal/config"
)

// CORS returns a Gin middleware configured for cross-origin requests. In
// production it enforces cfg.CORS.AllowOrigins as a strict allow-list; in
// development/test it reflects the request's Origin header back so local
// tooling on arbitrary ports works without config changes.
func CORS(cfg *config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if cfg.IsProduction() {
		corsCfg.AllowOrigins = cfg.CORS.AllowOrigins
	} else {
		corsCfg.AllowOriginFunc = func(origin string) bool { return true }
	}

	return cors.New(corsCfg)
}
