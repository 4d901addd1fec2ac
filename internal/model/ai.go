package model

import (
	"database/sql/driver"
	"fmt"
)

// AIModel 可用于文档分析的后端模型
type AIModel string

const (
	ModelGemini    AIModel = "gemini"
	ModelGPT35     AIModel = "gpt-3.5-turbo"
	ModelGPT4Turbo AIModel = "gpt-4-turbo"
)

// AllModels 按付费等级从低到高排列
var AllModels = []AIModel{ModelGemini, ModelGPT35, ModelGPT4Turbo}

// IsFree gemini 不计入 AI 预算
func (m AIModel) IsFree() bool {
	return m == ModelGemini
}

// IsGPT 用于区分使用统计里的 gpt/gemini 计数
func (m AIModel) IsGPT() bool {
	return m == ModelGPT35 || m == ModelGPT4Turbo
}

func (m AIModel) Valid() bool {
	for _, v := range AllModels {
		if v == m {
			return true
		}
	}
	return false
}

// PreferredModel 用户的模型偏好，auto 表示由系统选择
type PreferredModel string

const (
	PreferAuto      PreferredModel = "auto"
	PreferGemini    PreferredModel = PreferredModel(ModelGemini)
	PreferGPT35     PreferredModel = PreferredModel(ModelGPT35)
	PreferGPT4Turbo PreferredModel = PreferredModel(ModelGPT4Turbo)
)

// ParsePreferredModel 用于 API 输入，未知值返回错误
func ParsePreferredModel(s string) (PreferredModel, error) {
	switch p := PreferredModel(s); p {
	case PreferAuto, PreferGemini, PreferGPT35, PreferGPT4Turbo:
		return p, nil
	}
	return PreferAuto, fmt.Errorf("unknown preferred model %q", s)
}

func (p PreferredModel) IsAuto() bool {
	return p == PreferAuto || p == ""
}

// Model 仅在非 auto 时有意义
func (p PreferredModel) Model() AIModel {
	return AIModel(p)
}

func (p PreferredModel) Value() (driver.Value, error) {
	if p == "" {
		return string(PreferAuto), nil
	}
	return string(p), nil
}

// Scan 数据库中的未知值按 auto 处理
func (p *PreferredModel) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		s = ""
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported preferred model type %T", value)
	}

	parsed, err := ParsePreferredModel(s)
	if err != nil {
		*p = PreferAuto
		return nil
	}
	*p = parsed
	return nil
}
