package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	AnalysisStatusAnalyzing = "analyzing"
	AnalysisStatusCompleted = "completed"
	AnalysisStatusFailed    = "failed"
)

type Analysis struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	Title           string          `gorm:"size:200;not null" json:"title"`
	DocumentType    string          `gorm:"size:30" json:"document_type"` // terms_of_service, privacy_policy, contract, other
	SourceURL       string          `gorm:"size:500" json:"source_url,omitempty"`
	CharCount       int             `json:"char_count"`
	Complexity      float64         `json:"complexity"`
	Status          string          `gorm:"size:20;default:analyzing;index" json:"status"` // analyzing, completed, failed
	Score           *int            `json:"score,omitempty"`
	Grade           string          `gorm:"size:2" json:"grade,omitempty"`
	Summary         string          `gorm:"type:text" json:"summary,omitempty"`
	Result          datatypes.JSON  `json:"result,omitempty"`
	ModelUsed       string          `gorm:"size:30" json:"model_used,omitempty"`
	SelectionReason string          `gorm:"size:100" json:"-"`
	ActualCost      decimal.Decimal `gorm:"type:decimal(12,6);default:0" json:"actual_cost"`
	FallbackChain   datatypes.JSON  `json:"-"`
	ReportOSSURL    string          `gorm:"size:500" json:"report_url,omitempty"`
	ErrorMessage    string          `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Analysis) TableName() string {
	return "analyses"
}
