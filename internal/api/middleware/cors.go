package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/config"
)

var defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

var defaultCORSHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}

// CORS 未配置来源时不输出任何跨域头
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	cc := cors.Config{
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(cc.AllowMethods) == 0 {
		cc.AllowMethods = defaultCORSMethods
	}
	if len(cc.AllowHeaders) == 0 {
		cc.AllowHeaders = defaultCORSHeaders
	}

	if containsWildcard(cfg.AllowedOrigins) {
		// 通配来源不能携带凭证
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
		cc.AllowCredentials = true
	}

	return cors.New(cc)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
