package dto

// CheckoutRequest 创建 Stripe Checkout 会话
type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required,oneof=standard premium enterprise"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PlanInfo 套餐信息
type PlanInfo struct {
	Tier                 string   `json:"tier"`
	DisplayName          string   `json:"display_name"`
	MonthlyAnalysisLimit int      `json:"monthly_analysis_limit"`
	MonthlyAIBudget      string   `json:"monthly_ai_budget"`
	Price                string   `json:"price"`
	Features             []string `json:"features"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	CostPer1K   string `json:"cost_per_1k"`
	Free        bool   `json:"free"`
	Available   bool   `json:"available"`
}

// SubscriptionInfo 订阅记录
type SubscriptionInfo struct {
	ID            int64  `json:"id"`
	Plan          string `json:"plan"`
	PreviousPlan  string `json:"previous_plan,omitempty"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	StartedAt     string `json:"started_at"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

type SubscriptionHistory struct {
	Active  *SubscriptionInfo   `json:"active"`
	History []*SubscriptionInfo `json:"history"`
}
