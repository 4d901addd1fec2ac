package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	ExternalID            *string    `gorm:"column:external_id;size:128;uniqueIndex" json:"-"` // 身份提供方的 sub
	Username              string     `gorm:"size:50;not null" json:"username"`
	Email                 *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	AvatarURL             string     `gorm:"size:500" json:"avatar_url"`
	Plan                  string     `gorm:"size:20;default:free" json:"plan"`
	StripeCustomerID      *string    `gorm:"column:stripe_customer_id;size:64;uniqueIndex" json:"-"`
	MonthlyAnalysisUsed   int        `gorm:"default:0" json:"monthly_analysis_used"`
	AnalysisQuotaResetAt  *time.Time `json:"analysis_quota_reset_at,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`

	AISettings AISettings   `gorm:"embedded" json:"ai_settings"`
	AIBudget   AIBudget     `gorm:"embedded;embeddedPrefix:ai_budget_" json:"ai_budget"`
	AIUsage    AIUsageStats `gorm:"embedded" json:"ai_usage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type AISettings struct {
	Initialized    bool           `gorm:"column:ai_initialized" json:"-"`
	PreferredModel PreferredModel `gorm:"column:preferred_model;size:20" json:"preferred_model"`
	AllowPremiumAI bool           `gorm:"column:allow_premium_ai" json:"allow_premium_ai"`
}

// AIBudget 每月 AI 费用额度，Used 允许超过 Allocated
type AIBudget struct {
	Allocated decimal.Decimal `gorm:"type:decimal(12,6);default:0" json:"allocated"`
	Used      decimal.Decimal `gorm:"type:decimal(12,6);default:0" json:"used"`
	LastReset *time.Time      `json:"last_reset,omitempty"`
}

// Remaining 可能为负
func (b AIBudget) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Used)
}

type AIUsageStats struct {
	TotalAnalyses  int             `gorm:"column:total_analyses;default:0" json:"total_analyses"`
	GPTAnalyses    int             `gorm:"column:gpt_analyses;default:0" json:"gpt_analyses"`
	GeminiAnalyses int             `gorm:"column:gemini_analyses;default:0" json:"gemini_analyses"`
	TotalAICost    decimal.Decimal `gorm:"column:total_ai_cost;type:decimal(12,6);default:0" json:"total_ai_cost"`
	LastUpdated    *time.Time      `gorm:"column:ai_usage_updated_at" json:"last_updated,omitempty"`
}
