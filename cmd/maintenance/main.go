// maintenance 运维命令：按套餐同步 AI 预算、手动执行月度结转
package main

import (
	"context"
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/database"
	"github.com/qs3c/tos_scan_server/internal/pkg/cron"
	"github.com/qs3c/tos_scan_server/internal/pkg/logger"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/service"
)

var (
	configPath = flag.String("config", "", "path to config file (default $CONFIG_PATH or config.yaml)")
	syncPlans  = flag.Bool("sync-plans", false, "align every user's AI budget with their current plan")
	rollover   = flag.Bool("rollover", false, "reset monthly analysis counters and roll over AI budgets now")
	dryRun     = flag.Bool("dry-run", false, "report what would change without writing")
)

func main() {
	flag.Parse()

	if !*syncPlans && !*rollover {
		flag.Usage()
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log)

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	catalog := plan.NewCatalog(cfg.Plans)
	userRepo := repository.NewUserRepository(db)
	budgetService := service.NewBudgetService(userRepo, catalog)
	quotaService := service.NewQuotaService(userRepo, catalog, budgetService)

	if *syncPlans {
		changed, err := budgetService.SyncAll(ctx, *dryRun)
		if err != nil {
			log.Fatalf("Plan sync failed: %v", err)
		}
		log.WithFields(log.Fields{
			"changed": changed,
			"dry_run": *dryRun,
		}).Info("plan sync finished")
	}

	if *rollover {
		if *dryRun {
			log.Info("dry run: skipping monthly rollover")
			return
		}
		jobs := cron.NewService(quotaService, budgetService, repository.NewAnalysisRepository(db), 0)
		if err := jobs.RunNow(ctx); err != nil {
			log.Fatalf("Rollover failed: %v", err)
		}
	}
}
