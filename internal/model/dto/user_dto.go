package dto

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID         int64       `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email,omitempty"`
	AvatarURL  string      `json:"avatar_url"`
	Plan       string      `json:"plan"`
	Features   []string    `json:"features"`
	AISettings *AISettings `json:"ai_settings"`
	QuotaInfo  *QuotaInfo  `json:"quota_info,omitempty"`
	CreatedAt  string      `json:"created_at,omitempty"`
}

// AISettings 用户可见的 AI 设置
type AISettings struct {
	PreferredModel string `json:"preferred_model"`
	AllowPremiumAI bool   `json:"allow_premium_ai"`
}

// QuotaInfo 配额信息，预算余额已截断到 0
type QuotaInfo struct {
	Plan              string `json:"plan"`
	MonthlyLimit      int    `json:"monthly_limit"` // -1 表示不限
	MonthlyUsed       int    `json:"monthly_used"`
	MonthlyRemaining  int    `json:"monthly_remaining"` // -1 表示不限
	ResetAt           string `json:"reset_at,omitempty"`
	AIBudgetAllocated string `json:"ai_budget_allocated"`
	AIBudgetUsed      string `json:"ai_budget_used"`
	AIBudgetRemaining string `json:"ai_budget_remaining"`
	AIBudgetResetAt   string `json:"ai_budget_reset_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty" binding:"omitempty,min=3,max=50"`
	AvatarURL *string `json:"avatar_url,omitempty" binding:"omitempty,url,max=500"`
}

// UpdateAISettingsRequest 更新 AI 设置
type UpdateAISettingsRequest struct {
	PreferredModel *string `json:"preferred_model,omitempty"`
	AllowPremiumAI *bool   `json:"allow_premium_ai,omitempty"`
}
