package service

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/complexity"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

const (
	ReasonFreePlan         = "plan has no paid AI budget"
	ReasonUserPreference   = "user preference"
	ReasonHighComplexity   = "high complexity + premium plan"
	ReasonMediumComplexity = "medium complexity + budget available"
	ReasonBudgetExhausted  = "budget exhausted - using free model"
	ReasonLowComplexity    = "low complexity - free model sufficient"
)

const (
	highComplexity   = 0.7
	mediumComplexity = 0.4
)

// ModelSelection 一次选择的结果
type ModelSelection struct {
	Model           model.AIModel   `json:"model"`
	Reason          string          `json:"reason"`
	Complexity      float64         `json:"complexity"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
}

type ModelSelector struct {
	budget  *BudgetService
	catalog *plan.Catalog
	pricing *ModelPricing
}

func NewModelSelector(budget *BudgetService, catalog *plan.Catalog, pricing *ModelPricing) *ModelSelector {
	return &ModelSelector{budget: budget, catalog: catalog, pricing: pricing}
}

// Select 不会失败，预算读取出错时使用内存中的状态
func (s *ModelSelector) Select(ctx context.Context, user *model.User, text string) ModelSelection {
	if err := s.budget.Prepare(ctx, user); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("prepare ai budget failed")
	}

	sel := s.decide(user, text)
	metrics.ModelSelectionsTotal.WithLabelValues(string(sel.Model), sel.Reason).Inc()
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{
			"user_id":     user.ID,
			"model":       sel.Model,
			"reason":      sel.Reason,
			"complexity":  sel.Complexity,
			"legal_terms": complexity.LegalTermCount(text),
		}).Debug("ai model selected")
	}
	return sel
}

func (s *ModelSelector) decide(user *model.User, text string) ModelSelection {
	c := complexity.Estimate(text)
	remaining := s.budget.Remaining(user)
	p := s.catalog.Get(user.Plan)

	pick := func(m model.AIModel, reason string) ModelSelection {
		return ModelSelection{
			Model:           m,
			Reason:          reason,
			Complexity:      c,
			RemainingBudget: remaining,
			EstimatedCost:   s.pricing.EstimateCost(m, text),
		}
	}

	if p.IsFree() {
		return pick(model.ModelGemini, ReasonFreePlan)
	}

	if pref := user.AISettings.PreferredModel; !pref.IsAuto() && pref.Model().Valid() {
		m := pref.Model()
		if m.IsFree() || s.pricing.EstimateCost(m, text).LessThanOrEqual(remaining) {
			return pick(m, ReasonUserPreference)
		}
	}

	hasBudget := remaining.GreaterThan(s.pricing.Threshold())
	allowPaid := user.AISettings.AllowPremiumAI

	if c > highComplexity && p.HasFeature(plan.FeaturePremiumAI) && hasBudget && allowPaid &&
		s.pricing.EstimateCost(model.ModelGPT4Turbo, text).LessThanOrEqual(remaining) {
		return pick(model.ModelGPT4Turbo, ReasonHighComplexity)
	}

	if c > mediumComplexity && hasBudget && allowPaid &&
		s.pricing.EstimateCost(model.ModelGPT35, text).LessThanOrEqual(remaining) {
		return pick(model.ModelGPT35, ReasonMediumComplexity)
	}

	if c > mediumComplexity {
		return pick(model.ModelGemini, ReasonBudgetExhausted)
	}
	return pick(model.ModelGemini, ReasonLowComplexity)
}
