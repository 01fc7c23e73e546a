package models

import (
	"time"
)

// FlexReviewItem is a human-review task for a variance the engine could not
// resolve automatically.
type FlexReviewItem struct {
	ID                 int                `gorm:"primary_key" json:"id"`
	BusinessId         string             `gorm:"index;not null" json:"business_id"`
	DepositId          int                `gorm:"index" json:"deposit_id"`
	DepositLineItemId  int                `gorm:"index" json:"deposit_line_item_id"`
	RevenueScheduleId  int                `gorm:"index;not null" json:"revenue_schedule_id"`
	FlexClassification FlexClassification `gorm:"size:20;not null" json:"flex_classification"`
	FlexReasonCode     string             `gorm:"size:100" json:"flex_reason_code"`
	Status             ReviewStatus       `gorm:"size:20;not null;default:Open;index" json:"status"`
	AssignedToUserId   *int               `gorm:"index" json:"assigned_to_user_id"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *FlexReviewItem) GetId() int {
	return i.ID
}
