package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByExternalID 按身份提供方的 sub 查询
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *UserRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// FindInBatches 按 ID 顺序分批遍历所有用户
func (r *UserRepository) FindInBatches(ctx context.Context, batchSize int, fn func([]*model.User) error) error {
	var users []*model.User
	return r.db.WithContext(ctx).Order("id").FindInBatches(&users, batchSize, func(tx *gorm.DB, batch int) error {
		return fn(users)
	}).Error
}

// --- 每月分析次数 ---

func (r *UserRepository) IncrementAnalysisUsed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("monthly_analysis_used", gorm.Expr("monthly_analysis_used + 1")).Error
}

func (r *UserRepository) ResetAnalysisQuota(ctx context.Context, id int64, nextResetAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"monthly_analysis_used":   0,
		"analysis_quota_reset_at": nextResetAt,
	}).Error
}

func (r *UserRepository) ResetAllAnalysisQuotas(ctx context.Context, nextResetAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("1 = 1").Updates(map[string]interface{}{
		"monthly_analysis_used":   0,
		"analysis_quota_reset_at": nextResetAt,
	})
	return res.RowsAffected, res.Error
}

// --- AI 预算 ---

// InitAIBudget 首次初始化 AI 设置，Used 清零
func (r *UserRepository) InitAIBudget(ctx context.Context, id int64, allocated decimal.Decimal, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ai_initialized":       true,
		"ai_budget_allocated":  allocated,
		"ai_budget_used":       decimal.Zero,
		"ai_budget_last_reset": now,
	}).Error
}

// SetBudgetAllocation resetUsed 为 true 时同时清零 Used 并记录重置时间
func (r *UserRepository) SetBudgetAllocation(ctx context.Context, id int64, allocated decimal.Decimal, resetUsed bool, now time.Time) error {
	fields := map[string]interface{}{
		"ai_budget_allocated": allocated,
	}
	if resetUsed {
		fields["ai_budget_used"] = decimal.Zero
		fields["ai_budget_last_reset"] = now
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// RolloverBudget 条件更新，同一个月内只有一个请求能成功重置
func (r *UserRepository) RolloverBudget(ctx context.Context, id int64, now, monthStart time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Where("ai_budget_last_reset IS NULL OR ai_budget_last_reset < ?", monthStart).
		Updates(map[string]interface{}{
			"ai_budget_used":       decimal.Zero,
			"ai_budget_last_reset": now,
		})
	return res.RowsAffected > 0, res.Error
}

// RolloverAllBudgets 月初批量重置
func (r *UserRepository) RolloverAllBudgets(ctx context.Context, now, monthStart time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("ai_budget_last_reset IS NULL OR ai_budget_last_reset < ?", monthStart).
		Updates(map[string]interface{}{
			"ai_budget_used":       decimal.Zero,
			"ai_budget_last_reset": now,
		})
	return res.RowsAffected, res.Error
}

// RecordAnalysisUsage 一次 UPDATE 完成使用统计与预算扣减
func (r *UserRepository) RecordAnalysisUsage(ctx context.Context, id int64, served model.AIModel, cost decimal.Decimal, now time.Time) error {
	fields := map[string]interface{}{
		"total_analyses":      gorm.Expr("total_analyses + 1"),
		"total_ai_cost":       gorm.Expr("total_ai_cost + ?", cost),
		"ai_usage_updated_at": now,
	}
	if served.IsGPT() {
		fields["gpt_analyses"] = gorm.Expr("gpt_analyses + 1")
	} else {
		fields["gemini_analyses"] = gorm.Expr("gemini_analyses + 1")
	}
	if !served.IsFree() {
		fields["ai_budget_used"] = gorm.Expr("ai_budget_used + ?", cost)
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// --- 套餐 ---

// ChangePlan 更新套餐并写入订阅记录，在同一事务内完成
func (r *UserRepository) ChangePlan(ctx context.Context, id int64, plan string, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", id).Update("plan", plan).Error; err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		// 旧的有效订阅标记为取消
		if err := tx.Model(&model.Subscription{}).
			Where("user_id = ? AND status = ?", id, model.SubscriptionStatusActive).
			Update("status", model.SubscriptionStatusCancelled).Error; err != nil {
			return err
		}
		sub.UserID = id
		return tx.Create(sub).Error
	})
}
