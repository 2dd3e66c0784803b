package middleware

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/response"
)

// RBAC maps a request to the Casbin model as:
//
//	sub = operator role ("ADMIN" or "VIEWER")
//	dom = "*" (global; the control plane has no department-scoped domains)
//	obj = resource (e.g., "gateways")
//	act = action (e.g., "create")
//
// RequirePermission returns a per-route guard checking that mapping. ADMIN
// bypasses the policy check entirely; VIEWER is authorized only for the
// read-only actions the policy file grants it.
func RequirePermission(enforcer *casbin.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetUserRole(c)
		if role == "" {
			response.Unauthorized(c, "missing user role")
			c.Abort()
			return
		}

		if role == string(model.RoleAdmin) {
			c.Next()
			return
		}

		ok, err := enforcer.Enforce(role, "*", obj, act)
		if err != nil {
			response.InternalError(c, "permission check failed")
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}
