package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
)

// Result 调用结果，失败时 Success 为 false 并带有 Error
type Result struct {
	Success  bool          `json:"success"`
	Response string        `json:"response,omitempty"`
	Usage    *Usage        `json:"usage,omitempty"`
	Model    model.AIModel `json:"model"`
	Error    string        `json:"error,omitempty"`

	// NotConfigured 未配置凭证，没有发起网络请求
	NotConfigured bool `json:"-"`
}

// Invoker 按模型分发请求，从不返回 error
type Invoker struct {
	clients map[model.AIModel]Client
}

func NewInvoker(clients map[model.AIModel]Client) *Invoker {
	if clients == nil {
		clients = make(map[model.AIModel]Client)
	}
	return &Invoker{clients: clients}
}

// NewInvokerFromConfig 缺少凭证的后端仍然注册，调用时返回 not configured
func NewInvokerFromConfig(cfg config.AIConfig) *Invoker {
	geminiTimeout := time.Duration(cfg.GeminiTimeoutSeconds) * time.Second
	openAITimeout := time.Duration(cfg.OpenAITimeoutSeconds) * time.Second

	return NewInvoker(map[model.AIModel]Client{
		model.ModelGemini:    NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, geminiTimeout),
		model.ModelGPT35:     NewOpenAIClient(cfg.OpenAIAPIKey, string(model.ModelGPT35), cfg.OpenAIBaseURL, openAITimeout),
		model.ModelGPT4Turbo: NewOpenAIClient(cfg.OpenAIAPIKey, string(model.ModelGPT4Turbo), cfg.OpenAIBaseURL, openAITimeout),
	})
}

func (i *Invoker) Invoke(ctx context.Context, m model.AIModel, prompt string) (result Result) {
	result.Model = m

	defer func() {
		if r := recover(); r != nil {
			result = Result{Model: m, Error: fmt.Sprintf("panic: %v", r)}
		}
		status := "success"
		switch {
		case result.NotConfigured:
			status = "not_configured"
		case !result.Success:
			status = "error"
		}
		metrics.ModelRequestsTotal.WithLabelValues(string(m), status).Inc()
	}()

	client, ok := i.clients[m]
	if !ok || client == nil {
		result.Error = ErrNotConfigured.Error()
		result.NotConfigured = true
		return result
	}

	start := time.Now()
	completion, err := client.Complete(ctx, prompt)
	if !errors.Is(err, ErrNotConfigured) {
		metrics.ModelRequestDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		result.Error = err.Error()
		result.NotConfigured = errors.Is(err, ErrNotConfigured)
		return result
	}
	if completion == nil {
		result.Error = "empty completion"
		return result
	}

	result.Success = true
	result.Response = completion.Text
	result.Usage = completion.Usage
	return result
}
