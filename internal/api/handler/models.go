package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/service"
)

var defaultModelNames = map[model.AIModel]string{
	model.ModelGemini:    "Gemini Flash",
	model.ModelGPT35:     "GPT-3.5 Turbo",
	model.ModelGPT4Turbo: "GPT-4 Turbo",
}

type ModelsHandler struct {
	cfg     config.AIConfig
	pricing *service.ModelPricing
}

func NewModelsHandler(cfg config.AIConfig, pricing *service.ModelPricing) *ModelsHandler {
	return &ModelsHandler{cfg: cfg, pricing: pricing}
}

// List 获取模型列表，未配置密钥的模型标记为不可用
// GET /api/v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	models := make([]*dto.ModelInfo, 0, len(model.AllModels))

	for _, m := range model.AllModels {
		info := &dto.ModelInfo{
			Name:        string(m),
			DisplayName: defaultModelNames[m],
			CostPer1K:   h.pricing.UnitCost(m).String(),
			Free:        m.IsFree(),
			Available:   h.available(m),
		}
		if mc, ok := h.cfg.Models[string(m)]; ok {
			if mc.DisplayName != "" {
				info.DisplayName = mc.DisplayName
			}
			info.Description = mc.Description
		}
		models = append(models, info)
	}

	response.Success(c, gin.H{
		"models": models,
	})
}

func (h *ModelsHandler) available(m model.AIModel) bool {
	if m.IsGPT() {
		return h.cfg.OpenAIAPIKey != ""
	}
	return h.cfg.GeminiAPIKey != ""
}
