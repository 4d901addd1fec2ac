package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

// RequireFeature 当前套餐未开通该功能时拒绝
func RequireFeature(catalog *plan.Catalog, feature plan.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		if !catalog.HasFeature(user.Plan, feature) {
			response.PermissionError(c, "your plan does not include "+string(feature))
			c.Abort()
			return
		}

		c.Next()
	}
}
