package service

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/llm"
)

const charsPerToken = 3

var (
	defaultUnitCosts = map[model.AIModel]decimal.Decimal{
		model.ModelGemini:    decimal.Zero,
		model.ModelGPT35:     decimal.RequireFromString("0.002"),
		model.ModelGPT4Turbo: decimal.RequireFromString("0.03"),
	}
	defaultBudgetThreshold = decimal.RequireFromString("0.01")
	thousand               = decimal.NewFromInt(1000)
)

// ModelPricing 每千 token 单价与预算耗尽阈值
type ModelPricing struct {
	unitCosts map[model.AIModel]decimal.Decimal
	threshold decimal.Decimal
}

func NewModelPricing(cfg config.AIConfig) *ModelPricing {
	costs := make(map[model.AIModel]decimal.Decimal, len(defaultUnitCosts))
	for m, c := range defaultUnitCosts {
		costs[m] = c
	}
	for name, mc := range cfg.Models {
		m := model.AIModel(name)
		if !m.Valid() || m.IsFree() {
			continue
		}
		costs[m] = decimal.NewFromFloat(mc.CostPer1K)
	}

	threshold := defaultBudgetThreshold
	if cfg.MinBudgetThreshold > 0 {
		threshold = decimal.NewFromFloat(cfg.MinBudgetThreshold)
	}
	return &ModelPricing{unitCosts: costs, threshold: threshold}
}

func (p *ModelPricing) UnitCost(m model.AIModel) decimal.Decimal {
	return p.unitCosts[m]
}

// Threshold 剩余预算不高于该值视为耗尽
func (p *ModelPricing) Threshold() decimal.Decimal {
	return p.threshold
}

// EstimateTokens 按 3 个字符一个 token 估算，向上取整
func EstimateTokens(text string) int64 {
	n := int64(utf8.RuneCountInString(text))
	return (n + charsPerToken - 1) / charsPerToken
}

func (p *ModelPricing) EstimateCost(m model.AIModel, text string) decimal.Decimal {
	return decimal.NewFromInt(EstimateTokens(text)).Div(thousand).Mul(p.UnitCost(m))
}

// CostForUsage 按实际 token 用量计费
func (p *ModelPricing) CostForUsage(m model.AIModel, usage *llm.Usage) decimal.Decimal {
	return decimal.NewFromInt(int64(usage.Total())).Div(thousand).Mul(p.UnitCost(m))
}
