package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/api"
	"github.com/qs3c/tos_scan_server/internal/api/handler"
	"github.com/qs3c/tos_scan_server/internal/api/middleware"
	"github.com/qs3c/tos_scan_server/internal/database"
	"github.com/qs3c/tos_scan_server/internal/pkg/cron"
	"github.com/qs3c/tos_scan_server/internal/pkg/jwt"
	"github.com/qs3c/tos_scan_server/internal/pkg/llm"
	"github.com/qs3c/tos_scan_server/internal/pkg/logger"
	"github.com/qs3c/tos_scan_server/internal/pkg/oss"
	"github.com/qs3c/tos_scan_server/internal/pkg/pubsub"
	"github.com/qs3c/tos_scan_server/internal/pkg/ratelimit"
	"github.com/qs3c/tos_scan_server/internal/pkg/ws"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log)

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.WithField("driver", cfg.Database.Driver).Info("database connected")

	// Redis 不可用时限流退回内存，进度只推送给本进程
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, running without it")
			rdb = nil
		} else {
			log.Info("redis connected")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// WebSocket Hub
	wsHub := ws.NewHub()
	var publisher service.ProgressPublisher = wsHub
	if rdb != nil {
		publisher = pubsub.NewPublisher(rdb)
		go func() {
			if err := wsHub.Forward(ctx, pubsub.NewSubscriber(rdb)); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("progress forwarding stopped")
			}
		}()
	}

	// 套餐与定价
	catalog := plan.NewCatalog(cfg.Plans)
	pricing := service.NewModelPricing(cfg.AI)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// 初始化 Service
	budgetService := service.NewBudgetService(userRepo, catalog)
	quotaService := service.NewQuotaService(userRepo, catalog, budgetService)
	selector := service.NewModelSelector(budgetService, catalog, pricing)
	aiService := service.NewAIService(selector, llm.NewInvokerFromConfig(cfg.AI), pricing, catalog, budgetService)
	analysisService := service.NewAnalysisService(analysisRepo, userRepo, quotaService, aiService, catalog, cfg)
	analysisService.SetPublisher(publisher)
	if oss.Enabled(&cfg.OSS) {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.WithError(err).Warn("oss client init failed, reports will not be archived")
		} else {
			analysisService.SetStorage(ossClient)
		}
	}
	authService := service.NewAuthService(userRepo, budgetService, cfg)
	userService := service.NewUserService(userRepo, quotaService, catalog)

	var stripeAPI service.StripeAPI
	if cfg.Stripe.SecretKey != "" {
		stripeAPI = service.NewStripeAPI(cfg.Stripe.SecretKey)
	}
	billingService := service.NewBillingService(userRepo, subscriptionRepo, budgetService, catalog, stripeAPI, cfg.Stripe)

	// 身份提供方
	var verifier *jwt.Verifier
	if cfg.Auth0.Issuer != "" {
		verifier, err = jwt.NewVerifier(cfg.Auth0.Issuer, cfg.Auth0.Audience, cfg.Auth0.JWKSURL)
		if err != nil {
			log.WithError(err).Warn("identity provider verifier disabled")
			verifier = nil
		}
	}
	if verifier == nil && cfg.JWT.Secret == "" {
		log.Warn("no authentication configured, every authenticated request will be rejected")
	}

	// 定时任务
	cronService := cron.NewService(quotaService, budgetService, analysisRepo, 0)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler 与 Router
	router := api.NewRouter(
		handler.NewUserHandler(userService),
		handler.NewAnalysisHandler(analysisService),
		handler.NewModelsHandler(cfg.AI, pricing),
		handler.NewBillingHandler(billingService),
		handler.NewWebSocketHandler(wsHub, cfg.CORS.AllowedOrigins),
		middleware.NewAuthenticator(cfg.JWT.Secret, verifier, authService),
		ratelimit.NewManager(rdb, cfg.RateLimit.RedisPrefix, nil),
		catalog,
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
