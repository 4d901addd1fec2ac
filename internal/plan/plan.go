// Package plan 定义订阅套餐目录：每月分析次数、AI 预算与功能开关。
package plan

import (
	"github.com/shopspring/decimal"

	"github.com/qs3c/tos_scan_server/config"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Unlimited 表示每月分析次数不限
const Unlimited = -1

type Feature string

const (
	FeaturePDFExport        Feature = "pdfExport"
	FeatureHistory          Feature = "history"
	FeaturePrioritySupport  Feature = "prioritySupport"
	FeatureAdvancedAnalysis Feature = "advancedAnalysis"
	FeatureTeamFeatures     Feature = "teamFeatures"
	FeatureAPIAccess        Feature = "apiAccess"
	FeaturePremiumAI        Feature = "premiumAI"
	FeatureOCRProcessing    Feature = "ocrProcessing"
)

var allFeatures = []Feature{
	FeaturePDFExport,
	FeatureHistory,
	FeaturePrioritySupport,
	FeatureAdvancedAnalysis,
	FeatureTeamFeatures,
	FeatureAPIAccess,
	FeaturePremiumAI,
	FeatureOCRProcessing,
}

var tierOrder = []Tier{TierFree, TierStandard, TierPremium, TierEnterprise}

// FeatureSet 未出现的功能视为关闭
type FeatureSet map[Feature]bool

func (s FeatureSet) Has(f Feature) bool {
	return s[f]
}

// List 按固定顺序返回已开启的功能
func (s FeatureSet) List() []string {
	out := make([]string, 0, len(s))
	for _, f := range allFeatures {
		if s[f] {
			out = append(out, string(f))
		}
	}
	return out
}

func newFeatureSet(features ...Feature) FeatureSet {
	s := make(FeatureSet, len(features))
	for _, f := range features {
		s[f] = true
	}
	return s
}

type Plan struct {
	Tier                 Tier
	DisplayName          string
	MonthlyAnalysisLimit int
	MonthlyAIBudget      decimal.Decimal
	Price                decimal.Decimal
	Features             FeatureSet
	RateLimitPerMinute   int
}

func (p Plan) Unlimited() bool {
	return p.MonthlyAnalysisLimit == Unlimited
}

func (p Plan) HasFeature(f Feature) bool {
	return p.Features.Has(f)
}

// IsFree 免费套餐没有付费 AI 预算
func (p Plan) IsFree() bool {
	return p.Tier == TierFree
}

func defaults() map[Tier]Plan {
	return map[Tier]Plan{
		TierFree: {
			Tier:                 TierFree,
			DisplayName:          "Free",
			MonthlyAnalysisLimit: 3,
			MonthlyAIBudget:      decimal.Zero,
			Price:                decimal.Zero,
			Features:             newFeatureSet(FeatureHistory),
			RateLimitPerMinute:   5,
		},
		TierStandard: {
			Tier:                 TierStandard,
			DisplayName:          "Standard",
			MonthlyAnalysisLimit: 50,
			MonthlyAIBudget:      decimal.RequireFromString("5.00"),
			Price:                decimal.RequireFromString("9.99"),
			Features:             newFeatureSet(FeaturePDFExport, FeatureHistory, FeatureAdvancedAnalysis),
			RateLimitPerMinute:   20,
		},
		TierPremium: {
			Tier:                 TierPremium,
			DisplayName:          "Premium",
			MonthlyAnalysisLimit: 200,
			MonthlyAIBudget:      decimal.RequireFromString("20.00"),
			Price:                decimal.RequireFromString("29.99"),
			Features: newFeatureSet(FeaturePDFExport, FeatureHistory, FeaturePrioritySupport,
				FeatureAdvancedAnalysis, FeaturePremiumAI, FeatureOCRProcessing),
			RateLimitPerMinute: 60,
		},
		TierEnterprise: {
			Tier:                 TierEnterprise,
			DisplayName:          "Enterprise",
			MonthlyAnalysisLimit: Unlimited,
			MonthlyAIBudget:      decimal.RequireFromString("100.00"),
			Price:                decimal.RequireFromString("99.99"),
			Features:             newFeatureSet(allFeatures...),
			RateLimitPerMinute:   120,
		},
	}
}

// Catalog 启动时构建，运行期只读
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog 以内置套餐为基础，叠加配置中的覆盖项
func NewCatalog(overrides map[string]config.PlanConfig) *Catalog {
	plans := defaults()
	for name, o := range overrides {
		tier := Tier(name)
		p, ok := plans[tier]
		if !ok {
			continue
		}
		if o.DisplayName != "" {
			p.DisplayName = o.DisplayName
		}
		if o.MonthlyAnalysisLimit != nil {
			p.MonthlyAnalysisLimit = *o.MonthlyAnalysisLimit
		}
		if o.MonthlyAIBudget != nil {
			p.MonthlyAIBudget = decimal.NewFromFloat(*o.MonthlyAIBudget)
		}
		if o.Price != nil {
			p.Price = decimal.NewFromFloat(*o.Price)
		}
		if o.RateLimitPerMinute > 0 {
			p.RateLimitPerMinute = o.RateLimitPerMinute
		}
		if o.Features != nil {
			fs := make(FeatureSet, len(o.Features))
			for _, f := range o.Features {
				fs[Feature(f)] = true
			}
			p.Features = fs
		}
		plans[tier] = p
	}
	return &Catalog{plans: plans}
}

// Get 未知或空标识返回免费套餐
func (c *Catalog) Get(name string) Plan {
	if p, ok := c.plans[Tier(name)]; ok {
		return p
	}
	return c.plans[TierFree]
}

// Lookup 与 Get 不同，未知标识返回 false
func (c *Catalog) Lookup(name string) (Plan, bool) {
	p, ok := c.plans[Tier(name)]
	return p, ok
}

func (c *Catalog) AIBudget(name string) decimal.Decimal {
	p, ok := c.plans[Tier(name)]
	if !ok {
		return decimal.Zero
	}
	return p.MonthlyAIBudget
}

func (c *Catalog) HasFeature(name string, f Feature) bool {
	return c.Get(name).HasFeature(f)
}

func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(tierOrder))
	for _, t := range tierOrder {
		out = append(out, c.plans[t])
	}
	return out
}

func IsValidTier(name string) bool {
	for _, t := range tierOrder {
		if string(t) == name {
			return true
		}
	}
	return false
}
