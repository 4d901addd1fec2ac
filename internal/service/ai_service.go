package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/llm"
	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

var ErrAllModelsFailed = errors.New("All AI models failed. Please try again later.")

// 全部失败时的归类
const (
	FailureBudgetExhausted    = "budget_exhausted"
	FailureNotConfigured      = "not_configured"
	FailureBackendUnavailable = "backend_unavailable"
)

// ModelInvoker 由 llm.Invoker 实现，测试中可替换
type ModelInvoker interface {
	Invoke(ctx context.Context, m model.AIModel, prompt string) llm.Result
}

// FallbackAttempt 调用链中的一次尝试
type FallbackAttempt struct {
	Model   model.AIModel `json:"model"`
	Success bool          `json:"success"`

	Error         string `json:"-"`
	NotConfigured bool   `json:"-"`
}

// AIResult 成功分析的输出
type AIResult struct {
	Model         model.AIModel     `json:"model"`
	Response      string            `json:"response"`
	Usage         *llm.Usage        `json:"usage,omitempty"`
	ActualCost    decimal.Decimal   `json:"actual_cost"`
	Selection     ModelSelection    `json:"selection"`
	FallbackChain []FallbackAttempt `json:"fallback_chain"`
}

// ExhaustedError 所有候选模型都失败，errors.Is(err, ErrAllModelsFailed) 为 true
type ExhaustedError struct {
	Classification string
	Selection      ModelSelection
	Attempts       []FallbackAttempt
}

func (e *ExhaustedError) Error() string {
	return ErrAllModelsFailed.Error()
}

func (e *ExhaustedError) Unwrap() error {
	return ErrAllModelsFailed
}

type analysisOptions struct {
	onRetry func(attempt int)
}

type AnalysisOption func(*analysisOptions)

// WithRetryHook 每次切换到下一个模型前调用，attempt 从 2 开始
func WithRetryHook(fn func(attempt int)) AnalysisOption {
	return func(o *analysisOptions) {
		o.onRetry = fn
	}
}

type AIService struct {
	selector *ModelSelector
	invoker  ModelInvoker
	pricing  *ModelPricing
	catalog  *plan.Catalog
	budget   *BudgetService
}

func NewAIService(
	selector *ModelSelector,
	invoker ModelInvoker,
	pricing *ModelPricing,
	catalog *plan.Catalog,
	budget *BudgetService,
) *AIService {
	return &AIService{
		selector: selector,
		invoker:  invoker,
		pricing:  pricing,
		catalog:  catalog,
		budget:   budget,
	}
}

type candidate struct {
	model    model.AIModel
	eligible func(user *model.User, tried map[model.AIModel]bool) bool
}

// candidates 主选模型之后依次尝试 gpt-3.5-turbo 与 gemini
func (s *AIService) candidates(primary model.AIModel) []candidate {
	return []candidate{
		{
			model:    primary,
			eligible: func(*model.User, map[model.AIModel]bool) bool { return true },
		},
		{
			model: model.ModelGPT35,
			eligible: func(user *model.User, tried map[model.AIModel]bool) bool {
				return !tried[model.ModelGPT35] &&
					!s.catalog.Get(user.Plan).IsFree() &&
					user.AISettings.AllowPremiumAI &&
					user.AIBudget.Remaining().GreaterThan(s.pricing.Threshold())
			},
		},
		{
			model: model.ModelGemini,
			eligible: func(_ *model.User, tried map[model.AIModel]bool) bool {
				return !tried[model.ModelGemini]
			},
		},
	}
}

// PerformAnalysis 选择模型并按顺序回退，成功后一次性记录用量
func (s *AIService) PerformAnalysis(ctx context.Context, user *model.User, text, prompt string, opts ...AnalysisOption) (*AIResult, error) {
	var o analysisOptions
	for _, opt := range opts {
		opt(&o)
	}

	selection := s.selector.Select(ctx, user, text)
	logger := log.WithFields(log.Fields{
		"user_id": user.ID,
		"plan":    user.Plan,
	})

	tried := make(map[model.AIModel]bool)
	var attempts []FallbackAttempt
	var served *llm.Result

	for _, c := range s.candidates(selection.Model) {
		if !c.eligible(user, tried) {
			continue
		}
		if len(attempts) > 0 {
			prev := attempts[len(attempts)-1].Model
			metrics.FallbackTotal.WithLabelValues(string(prev), string(c.model)).Inc()
			if o.onRetry != nil {
				o.onRetry(len(attempts) + 1)
			}
		}

		tried[c.model] = true
		res := s.invoker.Invoke(ctx, c.model, prompt)
		attempts = append(attempts, FallbackAttempt{
			Model:         c.model,
			Success:       res.Success,
			Error:         res.Error,
			NotConfigured: res.NotConfigured,
		})

		if res.Success {
			served = &res
			break
		}
		logger.WithFields(log.Fields{
			"model": c.model,
			"error": res.Error,
		}).Warn("ai model attempt failed")
	}

	if served == nil {
		exhausted := &ExhaustedError{
			Classification: classifyFailure(selection, attempts),
			Selection:      selection,
			Attempts:       attempts,
		}
		metrics.AllModelsFailedTotal.WithLabelValues(exhausted.Classification).Inc()
		logger.WithFields(log.Fields{
			"classification": exhausted.Classification,
			"attempts":       len(attempts),
			"selection":      selection.Reason,
		}).Error("all ai models failed")
		return nil, exhausted
	}

	cost := s.actualCost(served, text)
	if err := s.budget.RecordUsage(ctx, user, served.Model, cost); err != nil {
		// 调用已经成功，记账失败不影响返回结果
		logger.WithError(err).WithField("model", served.Model).Error("record ai usage failed")
	}
	metrics.CostUSD.WithLabelValues(string(served.Model)).Add(cost.InexactFloat64())

	logger.WithFields(log.Fields{
		"model":       served.Model,
		"reason":      selection.Reason,
		"attempts":    len(attempts),
		"actual_cost": cost.String(),
	}).Info("ai analysis completed")

	return &AIResult{
		Model:         served.Model,
		Response:      served.Response,
		Usage:         served.Usage,
		ActualCost:    cost,
		Selection:     selection,
		FallbackChain: attempts,
	}, nil
}

// actualCost 有用量时按 token 计费，否则按服务模型估算
func (s *AIService) actualCost(res *llm.Result, text string) decimal.Decimal {
	if res.Usage != nil && res.Usage.Total() > 0 {
		return s.pricing.CostForUsage(res.Model, res.Usage)
	}
	return s.pricing.EstimateCost(res.Model, text)
}

func classifyFailure(selection ModelSelection, attempts []FallbackAttempt) string {
	allNotConfigured := len(attempts) > 0
	for _, a := range attempts {
		if !a.NotConfigured {
			allNotConfigured = false
			break
		}
	}
	switch {
	case allNotConfigured:
		return FailureNotConfigured
	case selection.Reason == ReasonBudgetExhausted:
		return FailureBudgetExhausted
	default:
		return FailureBackendUnavailable
	}
}
