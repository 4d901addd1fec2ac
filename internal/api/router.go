package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/api/handler"
	"github.com/qs3c/tos_scan_server/internal/api/middleware"
	"github.com/qs3c/tos_scan_server/internal/pkg/ratelimit"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

type Router struct {
	userHandler      *handler.UserHandler
	analysisHandler  *handler.AnalysisHandler
	modelsHandler    *handler.ModelsHandler
	billingHandler   *handler.BillingHandler
	websocketHandler *handler.WebSocketHandler
	auth             *middleware.Authenticator
	limiter          *ratelimit.Manager
	catalog          *plan.Catalog
	cfg              *config.Config
}

func NewRouter(
	userHandler *handler.UserHandler,
	analysisHandler *handler.AnalysisHandler,
	modelsHandler *handler.ModelsHandler,
	billingHandler *handler.BillingHandler,
	websocketHandler *handler.WebSocketHandler,
	auth *middleware.Authenticator,
	limiter *ratelimit.Manager,
	catalog *plan.Catalog,
	cfg *config.Config,
) *Router {
	return &Router{
		userHandler:      userHandler,
		analysisHandler:  analysisHandler,
		modelsHandler:    modelsHandler,
		billingHandler:   billingHandler,
		websocketHandler: websocketHandler,
		auth:             auth,
		limiter:          limiter,
		catalog:          catalog,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID(), middleware.AccessLog())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api/v1")
	{
		// 公开接口
		api.GET("/models", r.modelsHandler.List)
		api.GET("/plans", r.auth.Optional(), r.billingHandler.Plans)
		api.POST("/billing/webhook", r.billingHandler.Webhook)

		// WebSocket 通过 query 传令牌
		api.GET("/ws", middleware.QueryToken(), r.auth.Required(), r.websocketHandler.Handle)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(r.auth.Required())
		{
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
				user.PUT("/ai-settings", r.userHandler.UpdateAISettings)
				user.GET("/quota", r.userHandler.GetQuota)
			}

			analyses := authenticated.Group("/analyses")
			{
				rateLimit := middleware.RateLimit(r.rateLimiter(), r.catalog, r.cfg.RateLimit.RequestsPerMinute)
				analyses.POST("", rateLimit, r.analysisHandler.Create)
				analyses.GET("", middleware.RequireFeature(r.catalog, plan.FeatureHistory), r.analysisHandler.List)
				analyses.GET("/:id", r.analysisHandler.Get)
				analyses.DELETE("/:id", r.analysisHandler.Delete)
			}

			authenticated.POST("/billing/checkout", r.billingHandler.Checkout)
			authenticated.GET("/billing/subscriptions", r.billingHandler.Subscriptions)
		}
	}

	return engine
}

// rateLimiter 关闭限流时返回 nil，Manager 对 nil 一律放行
func (r *Router) rateLimiter() *ratelimit.Manager {
	if !r.cfg.RateLimit.Enabled {
		return nil
	}
	return r.limiter
}
