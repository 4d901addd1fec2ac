package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/model"
)

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户，默认免费套餐且预算已初始化
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := next()
	email := fmt.Sprintf("test_%d@example.com", n)
	sub := fmt.Sprintf("auth0|test_%d", n)
	now := time.Now().UTC()
	user := &model.User{
		ExternalID: &sub,
		Username:   fmt.Sprintf("testuser_%d", n),
		Email:      &email,
		Plan:       "free",
		AISettings: model.AISettings{
			Initialized:    true,
			PreferredModel: model.PreferAuto,
			AllowPremiumAI: true,
		},
		AIBudget: model.AIBudget{
			Allocated: decimal.Zero,
			Used:      decimal.Zero,
			LastReset: &now,
		},
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithPlan 设置套餐，同时按给定额度设置预算
func WithPlan(plan string, allocated string) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
		u.AIBudget.Allocated = decimal.RequireFromString(allocated)
	}
}

// WithBudgetUsed 设置本月已用预算
func WithBudgetUsed(used string) func(*model.User) {
	return func(u *model.User) {
		u.AIBudget.Used = decimal.RequireFromString(used)
	}
}

// WithLastReset 设置上次预算重置时间，nil 表示从未重置
func WithLastReset(at *time.Time) func(*model.User) {
	return func(u *model.User) {
		u.AIBudget.LastReset = at
	}
}

// WithUninitializedAI 模拟尚未初始化 AI 设置的老用户
func WithUninitializedAI() func(*model.User) {
	return func(u *model.User) {
		u.AISettings.Initialized = false
		u.AIBudget = model.AIBudget{}
	}
}

// WithPreferredModel 设置模型偏好
func WithPreferredModel(p model.PreferredModel) func(*model.User) {
	return func(u *model.User) {
		u.AISettings.PreferredModel = p
	}
}

// WithPremiumAI 设置是否允许付费模型
func WithPremiumAI(allow bool) func(*model.User) {
	return func(u *model.User) {
		u.AISettings.AllowPremiumAI = allow
	}
}

// WithAnalysisUsed 设置本月已用分析次数
func WithAnalysisUsed(used int) func(*model.User) {
	return func(u *model.User) {
		u.MonthlyAnalysisUsed = used
	}
}

// WithQuotaResetAt 设置下次分析次数重置时间
func WithQuotaResetAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.AnalysisQuotaResetAt = &at
	}
}

// TestAnalysis 创建测试分析
func TestAnalysis(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Analysis)) *model.Analysis {
	t.Helper()

	score := 72
	analysis := &model.Analysis{
		UserID:       userID,
		Title:        fmt.Sprintf("Test Analysis %d", next()),
		DocumentType: "terms_of_service",
		Status:       model.AnalysisStatusCompleted,
		Score:        &score,
		Grade:        "C",
		Summary:      "Standard terms with a few concerns.",
		Result:       datatypes.JSON(`{"score":72,"grade":"C"}`),
		ModelUsed:    string(model.ModelGemini),
	}

	for _, opt := range opts {
		opt(analysis)
	}

	if err := db.Create(analysis).Error; err != nil {
		t.Fatalf("Failed to create test analysis: %v", err)
	}

	return analysis
}

// WithTitle 设置分析标题
func WithTitle(title string) func(*model.Analysis) {
	return func(a *model.Analysis) {
		a.Title = title
	}
}

// WithStatus 设置状态
func WithStatus(status string) func(*model.Analysis) {
	return func(a *model.Analysis) {
		a.Status = status
	}
}

// WithDocumentType 设置文档类型
func WithDocumentType(docType string) func(*model.Analysis) {
	return func(a *model.Analysis) {
		a.DocumentType = docType
	}
}

// LegalDocument 生成法律条款密集、复杂度接近 1 的长文本
func LegalDocument(minChars int) string {
	const clause = `Section 1. "Services" means the platform. Subject to Article 2, the Company hereby disclaims liability, ` +
		`warranties and damages; indemnification and arbitration apply if breach occurs, unless waiver is granted pursuant to governing law. `
	return strings.Repeat(clause, minChars/len(clause)+1)
}

// MediumDocument 只有长度和法律术语两项得分，复杂度约 0.6
func MediumDocument(minChars int) string {
	if minChars < 10000 {
		minChars = 10000
	}
	const clause = "The provider disclaims liability and damages for any loss. "
	return strings.Repeat(clause, minChars/len(clause)+1)
}

// PlainDocument 生成复杂度很低的文本
func PlainDocument(chars int) string {
	return strings.Repeat("hello ", chars/6+1)[:chars]
}
