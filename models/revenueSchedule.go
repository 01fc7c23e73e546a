package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RevenueSchedule is one expected future usage/commission entry for an
// opportunity/product.
//
// BillingStatus only becomes Reconciled via deposit finalize, and InDispute
// only via the flex resolution/approval paths.
type RevenueSchedule struct {
	ID                      int                `gorm:"primary_key" json:"id"`
	BusinessId              string             `gorm:"index;not null" json:"business_id"`
	OpportunityId           int                `gorm:"index" json:"opportunity_id"`
	ProductId               int                `gorm:"index" json:"product_id"`
	AccountId               int                `gorm:"index;not null" json:"account_id"`
	ScheduleDate            time.Time          `gorm:"not null;index" json:"schedule_date"`
	ExpectedUsage           decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"expected_usage"`
	ExpectedCommission      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"expected_commission"`
	CommissionRate          decimal.Decimal    `gorm:"type:decimal(10,4);default:0" json:"commission_rate"`
	Status                  ScheduleStatus     `gorm:"size:30;not null;default:Open" json:"status"`
	BillingStatus           BillingStatus      `gorm:"size:20;not null;default:Open;index" json:"billing_status"`
	FlexClassification      FlexClassification `gorm:"size:20;not null;default:None" json:"flex_classification"`
	FlexReasonCode          string             `gorm:"size:100" json:"flex_reason_code"`
	ParentRevenueScheduleId *int               `gorm:"index" json:"parent_revenue_schedule_id"`
	Executed                bool               `gorm:"default:false" json:"executed"`
	DeletedAt               *time.Time         `gorm:"index" json:"deleted_at"`
	CreatedAt               time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *RevenueSchedule) GetId() int {
	return s.ID
}

func GetRevenueSchedule(ctx context.Context, businessId string, id int) (*RevenueSchedule, error) {
	schedule, err := utils.FetchModel[RevenueSchedule](ctx, businessId, id)
	if err != nil {
		return nil, NewNotFoundError("revenue schedule not found")
	}
	if schedule.DeletedAt != nil {
		return nil, NewNotFoundError("revenue schedule not found")
	}
	return schedule, nil
}

func getRevenueScheduleTx(ctx context.Context, tx *gorm.DB, businessId string, id int) (*RevenueSchedule, error) {
	var schedule RevenueSchedule
	err := tx.WithContext(ctx).
		Where("business_id = ? AND deleted_at IS NULL", businessId).
		First(&schedule, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, NewNotFoundError("revenue schedule not found")
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// appliedMatchCount counts Applied matches targeting the given schedules.
func appliedMatchCount(ctx context.Context, tx *gorm.DB, businessId string, scheduleIds []int) (int64, error) {
	if len(scheduleIds) == 0 {
		return 0, nil
	}
	var count int64
	err := tx.WithContext(ctx).Model(&DepositLineMatch{}).
		Where("business_id = ? AND revenue_schedule_id IN ? AND status = ?", businessId, scheduleIds, MatchStatusApplied).
		Count(&count).Error
	return count, err
}

// futureSchedulesForProduct returns schedules of the same opportunity/product
// dated strictly after the given date, oldest first.
func futureSchedulesForProduct(ctx context.Context, tx *gorm.DB, businessId string, opportunityId int, productId int, after time.Time) ([]*RevenueSchedule, error) {
	var schedules []*RevenueSchedule
	err := tx.WithContext(ctx).
		Where("business_id = ? AND opportunity_id = ? AND product_id = ? AND deleted_at IS NULL", businessId, opportunityId, productId).
		Where("schedule_date > ?", after).
		Order("schedule_date ASC, id ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}
