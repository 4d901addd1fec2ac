package cron

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/service"
)

const (
	defaultStaleAfter = 30 * time.Minute
	cleanupInterval   = 10 * time.Minute
	jobTimeout        = 5 * time.Minute

	staleMessage = "analysis interrupted, please try again"
)

type Service struct {
	quotaService  *service.QuotaService
	budgetService *service.BudgetService
	analysisRepo  *repository.AnalysisRepository
	staleAfter    time.Duration
	nowFn         func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService staleAfter 为 0 时使用默认值
func NewService(
	quotaService *service.QuotaService,
	budgetService *service.BudgetService,
	analysisRepo *repository.AnalysisRepository,
	staleAfter time.Duration,
) *Service {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Service{
		quotaService:  quotaService,
		budgetService: budgetService,
		analysisRepo:  analysisRepo,
		staleAfter:    staleAfter,
		nowFn:         func() time.Time { return time.Now().UTC() },
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(2)
	go s.runMonthlyReset()
	go s.runCleanup()
	log.Info("cron service started (monthly reset + stale analysis cleanup)")
}

// Stop 停止定时任务并等待退出
func (s *Service) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("cron service stopped")
}

// nextMonthStart 下一个 UTC 自然月的零点
func nextMonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func (s *Service) runMonthlyReset() {
	defer s.wg.Done()

	now := s.nowFn()
	timer := time.NewTimer(nextMonthStart(now).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			if err := s.RunNow(ctx); err != nil {
				log.WithError(err).Error("monthly reset failed")
			}
			cancel()

			now = s.nowFn()
			timer.Reset(nextMonthStart(now).Sub(now))
		}
	}
}

// RunNow 重置月度分析次数并结转 AI 预算，月初自动执行，也可手动触发
func (s *Service) RunNow(ctx context.Context) error {
	quotas, err := s.quotaService.ResetAllQuotas(ctx)
	if err != nil {
		return err
	}

	budgets, err := s.budgetService.RolloverAll(ctx)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"quotas_reset":   quotas,
		"budgets_rolled":  budgets,
	}).Info("monthly reset completed")
	return nil
}

func (s *Service) runCleanup() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			s.cleanupStale(ctx)
			cancel()
		}
	}
}

// cleanupStale 进程重启等原因遗留的分析中记录标记为失败
func (s *Service) cleanupStale(ctx context.Context) int64 {
	n, err := s.analysisRepo.FailStale(ctx, s.nowFn().Add(-s.staleAfter), staleMessage)
	if err != nil {
		log.WithError(err).Error("stale analysis cleanup failed")
		return 0
	}
	if n > 0 {
		log.WithField("count", n).Warn("marked stale analyses as failed")
	}
	return n
}
