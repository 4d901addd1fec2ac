package service

import (
	"context"
	"errors"
	"time"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("monthly analysis quota exceeded")

// QuotaService 每月分析次数，按 UTC 自然月重置
type QuotaService struct {
	userRepo *repository.UserRepository
	catalog  *plan.Catalog
	budget   *BudgetService
	nowFn    func() time.Time
}

func NewQuotaService(userRepo *repository.UserRepository, catalog *plan.Catalog, budget *BudgetService) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		catalog:  catalog,
		budget:   budget,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func nextMonthStart(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0)
}

// CheckQuota 检查本月是否还能分析，必要时先重置计数
func (s *QuotaService) CheckQuota(ctx context.Context, user *model.User) error {
	if err := s.resetIfDue(ctx, user); err != nil {
		return err
	}

	limit := s.catalog.Get(user.Plan).MonthlyAnalysisLimit
	if limit >= 0 && user.MonthlyAnalysisUsed >= limit {
		return ErrQuotaExceeded
	}
	return nil
}

// UseQuota 分析成功后调用
func (s *QuotaService) UseQuota(ctx context.Context, user *model.User) error {
	if err := s.userRepo.IncrementAnalysisUsed(ctx, user.ID); err != nil {
		return err
	}
	user.MonthlyAnalysisUsed++
	return nil
}

func (s *QuotaService) resetIfDue(ctx context.Context, user *model.User) error {
	now := s.nowFn()
	if user.AnalysisQuotaResetAt != nil && now.Before(*user.AnalysisQuotaResetAt) {
		return nil
	}

	next := nextMonthStart(now)
	if err := s.userRepo.ResetAnalysisQuota(ctx, user.ID, next); err != nil {
		return err
	}
	user.MonthlyAnalysisUsed = 0
	user.AnalysisQuotaResetAt = &next
	return nil
}

// ResetAllQuotas 月初定时任务调用
func (s *QuotaService) ResetAllQuotas(ctx context.Context) (int64, error) {
	return s.userRepo.ResetAllAnalysisQuotas(ctx, nextMonthStart(s.nowFn()))
}

// GetQuotaInfo 获取用户配额信息，预算余额截断到 0
func (s *QuotaService) GetQuotaInfo(ctx context.Context, user *model.User) (*dto.QuotaInfo, error) {
	if err := s.resetIfDue(ctx, user); err != nil {
		return nil, err
	}
	if err := s.budget.Prepare(ctx, user); err != nil {
		return nil, err
	}

	p := s.catalog.Get(user.Plan)
	remaining := -1
	if !p.Unlimited() {
		remaining = p.MonthlyAnalysisLimit - user.MonthlyAnalysisUsed
		if remaining < 0 {
			remaining = 0
		}
	}

	info := &dto.QuotaInfo{
		Plan:              string(p.Tier),
		MonthlyLimit:      p.MonthlyAnalysisLimit,
		MonthlyUsed:       user.MonthlyAnalysisUsed,
		MonthlyRemaining:  remaining,
		AIBudgetAllocated: user.AIBudget.Allocated.StringFixed(2),
		AIBudgetUsed:      user.AIBudget.Used.StringFixed(2),
		AIBudgetRemaining: s.budget.DisplayRemaining(user).StringFixed(2),
	}
	if user.AnalysisQuotaResetAt != nil {
		info.ResetAt = user.AnalysisQuotaResetAt.Format(time.RFC3339)
	}
	if user.AIBudget.LastReset != nil {
		info.AIBudgetResetAt = nextMonthStart(*user.AIBudget.LastReset).Format(time.RFC3339)
	}
	return info, nil
}
