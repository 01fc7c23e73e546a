package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositLineMatch is an allocation edge between one deposit line item and
// one revenue schedule. A line may hold several matches (partial allocation
// across schedules) but at most one primaryRevenueScheduleId pointer.
type DepositLineMatch struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"index;not null" json:"business_id"`
	DepositLineItemId int             `gorm:"index;not null" json:"deposit_line_item_id"`
	RevenueScheduleId int             `gorm:"index;not null" json:"revenue_schedule_id"`
	UsageAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"usage_amount"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission_amount"`
	Status            MatchStatus     `gorm:"size:20;not null;default:Suggested;index" json:"status"`
	Source            MatchSource     `gorm:"size:20;not null;default:Manual" json:"source"`
	ConfidenceScore   decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"confidence_score"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *DepositLineMatch) GetId() int {
	return m.ID
}
