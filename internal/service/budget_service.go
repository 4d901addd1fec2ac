package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

// BudgetService 维护用户每月 AI 预算，所有时间按 UTC 计算
type BudgetService struct {
	userRepo *repository.UserRepository
	catalog  *plan.Catalog
	nowFn    func() time.Time
}

func NewBudgetService(userRepo *repository.UserRepository, catalog *plan.Catalog) *BudgetService {
	return &BudgetService{
		userRepo: userRepo,
		catalog:  catalog,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// SyncBudgetWithPlan 保证 Allocated 与当前套餐一致，返回是否有修改
func (s *BudgetService) SyncBudgetWithPlan(ctx context.Context, user *model.User) (bool, error) {
	now := s.nowFn()
	expected := s.catalog.AIBudget(user.Plan)

	if !user.AISettings.Initialized {
		if err := s.userRepo.InitAIBudget(ctx, user.ID, expected, now); err != nil {
			return false, fmt.Errorf("init ai budget: %w", err)
		}
		user.AISettings.Initialized = true
		if user.AISettings.PreferredModel == "" {
			user.AISettings.PreferredModel = model.PreferAuto
		}
		user.AIBudget = model.AIBudget{Allocated: expected, Used: decimal.Zero, LastReset: &now}
		return true, nil
	}

	if user.AIBudget.Allocated.Equal(expected) {
		return false, nil
	}

	// 降级后额度低于已用金额时清零，避免余额长期为负
	resetUsed := expected.LessThan(user.AIBudget.Used)
	if err := s.userRepo.SetBudgetAllocation(ctx, user.ID, expected, resetUsed, now); err != nil {
		return false, fmt.Errorf("sync ai budget: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":    user.ID,
		"plan":       user.Plan,
		"from":       user.AIBudget.Allocated.String(),
		"to":         expected.String(),
		"reset_used": resetUsed,
	}).Info("ai budget synced with plan")

	user.AIBudget.Allocated = expected
	if resetUsed {
		user.AIBudget.Used = decimal.Zero
		user.AIBudget.LastReset = &now
	}
	return true, nil
}

// CheckMonthRollover 跨月时清零 Used，同一个月内重复调用不生效
func (s *BudgetService) CheckMonthRollover(ctx context.Context, user *model.User) (bool, error) {
	now := s.nowFn()
	if user.AIBudget.LastReset != nil && sameMonth(*user.AIBudget.LastReset, now) {
		return false, nil
	}

	rolled, err := s.userRepo.RolloverBudget(ctx, user.ID, now, monthStart(now))
	if err != nil {
		return false, fmt.Errorf("rollover ai budget: %w", err)
	}
	if !rolled {
		// 其他请求已经完成本月重置，以数据库为准
		fresh, err := s.userRepo.GetByID(ctx, user.ID)
		if err != nil {
			return false, fmt.Errorf("reload user: %w", err)
		}
		user.AIBudget = fresh.AIBudget
		return false, nil
	}

	user.AIBudget.Used = decimal.Zero
	user.AIBudget.LastReset = &now
	return true, nil
}

// Prepare 读取预算前调用：先处理跨月，再与套餐同步
func (s *BudgetService) Prepare(ctx context.Context, user *model.User) error {
	if _, err := s.CheckMonthRollover(ctx, user); err != nil {
		return err
	}
	if _, err := s.SyncBudgetWithPlan(ctx, user); err != nil {
		return err
	}
	return nil
}

// RecordUsage 记录一次成功分析：使用统计加一，付费模型同时扣减预算，允许超支
func (s *BudgetService) RecordUsage(ctx context.Context, user *model.User, served model.AIModel, cost decimal.Decimal) error {
	now := s.nowFn()
	if err := s.userRepo.RecordAnalysisUsage(ctx, user.ID, served, cost, now); err != nil {
		return fmt.Errorf("record ai usage: %w", err)
	}

	user.AIUsage.TotalAnalyses++
	if served.IsGPT() {
		user.AIUsage.GPTAnalyses++
	} else {
		user.AIUsage.GeminiAnalyses++
	}
	user.AIUsage.TotalAICost = user.AIUsage.TotalAICost.Add(cost)
	user.AIUsage.LastUpdated = &now
	if !served.IsFree() {
		user.AIBudget.Used = user.AIBudget.Used.Add(cost)
	}
	return nil
}

// Remaining 可能为负，仅用于决策和记账
func (s *BudgetService) Remaining(user *model.User) decimal.Decimal {
	return user.AIBudget.Remaining()
}

// DisplayRemaining 展示给用户时截断到 0
func (s *BudgetService) DisplayRemaining(user *model.User) decimal.Decimal {
	r := user.AIBudget.Remaining()
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// RolloverAll 定时任务使用，返回重置的用户数
func (s *BudgetService) RolloverAll(ctx context.Context) (int64, error) {
	now := s.nowFn()
	return s.userRepo.RolloverAllBudgets(ctx, now, monthStart(now))
}

// SyncAll 逐个用户与套餐同步，dryRun 时只统计不写入
func (s *BudgetService) SyncAll(ctx context.Context, dryRun bool) (int, error) {
	changed := 0
	err := s.userRepo.FindInBatches(ctx, 200, func(users []*model.User) error {
		for _, u := range users {
			if dryRun {
				if !u.AISettings.Initialized || !u.AIBudget.Allocated.Equal(s.catalog.AIBudget(u.Plan)) {
					changed++
				}
				continue
			}
			ok, err := s.SyncBudgetWithPlan(ctx, u)
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		return nil
	})
	return changed, err
}
