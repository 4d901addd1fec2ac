package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription 套餐变更记录，每次变更写入一行
type Subscription struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	UserID        int64           `gorm:"not null;index" json:"user_id"`
	Plan          string          `gorm:"size:20;not null" json:"plan"` // free, standard, premium, enterprise
	PreviousPlan  string          `gorm:"size:20" json:"previous_plan,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"amount"`
	StartedAt     time.Time       `gorm:"not null" json:"started_at"`
	ExpiresAt     *time.Time      `gorm:"index" json:"expires_at,omitempty"`
	Status        string          `gorm:"size:20;default:active;index" json:"status"` // active, cancelled
	PaymentMethod string          `gorm:"size:20" json:"payment_method,omitempty"`    // stripe, admin
	TransactionID string          `gorm:"size:100" json:"transaction_id,omitempty"`
	EventID       *string         `gorm:"size:100;uniqueIndex" json:"-"` // Stripe 事件 ID，用于去重
	CreatedAt     time.Time       `json:"created_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
