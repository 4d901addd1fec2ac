package dto

import "encoding/json"

// CreateAnalysisRequest 提交文档分析
type CreateAnalysisRequest struct {
	Title        string `json:"title" binding:"required,max=200"`
	Text         string `json:"text" binding:"required"`
	DocumentType string `json:"document_type,omitempty" binding:"omitempty,oneof=terms_of_service privacy_policy contract other"`
	SourceURL    string `json:"source_url,omitempty" binding:"omitempty,url,max=500"`
}

// AnalysisListItem 分析列表项
type AnalysisListItem struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	Status       string `json:"status"`
	Score        *int   `json:"score,omitempty"`
	Grade        string `json:"grade,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// AnalysisDetail 分析详情，不包含具体模型信息以外的内部细节
type AnalysisDetail struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	DocumentType string          `json:"document_type"`
	SourceURL    string          `json:"source_url,omitempty"`
	Status       string          `json:"status"`
	Score        *int            `json:"score,omitempty"`
	Grade        string          `json:"grade,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ModelUsed    string          `json:"model_used,omitempty"`
	ActualCost   string          `json:"actual_cost"`
	Complexity   float64         `json:"complexity"`
	CharCount    int             `json:"char_count"`
	ReportURL    string          `json:"report_url,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    string          `json:"started_at,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
}
