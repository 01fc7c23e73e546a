package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
)

// Deposit is one payer remittance batch. Never hard-deleted.
//
// Status=Completed is the canonical "finalized" signal even when the
// reconciled flag disagrees (see FinalizeDeposit).
type Deposit struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"index;not null;index:uniq_deposit_import,unique" json:"business_id"`
	AccountId     int               `gorm:"index" json:"account_id"`
	DistributorId int               `gorm:"index" json:"distributor_id"`
	VendorId      int               `gorm:"index" json:"vendor_id"`
	Month         time.Time         `gorm:"not null;index" json:"month"`
	PaymentDate   time.Time         `gorm:"not null" json:"payment_date"`
	DepositName   string            `gorm:"size:255;not null" json:"deposit_name"`
	PaymentType   string            `gorm:"size:100" json:"payment_type"`
	ImportKey     *string           `gorm:"size:255;index:uniq_deposit_import,unique" json:"import_key"`
	Status        DepositStatus     `gorm:"size:20;not null;default:Pending;index" json:"status"`
	Reconciled    bool              `gorm:"default:false" json:"reconciled"`
	ReconciledAt  *time.Time        `json:"reconciled_at"`
	CreatedBy     int               `json:"created_by"`
	LineItems     []DepositLineItem `gorm:"foreignKey:DepositId" json:"line_items,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Deposit) GetId() int {
	return d.ID
}

func GetDeposit(ctx context.Context, businessId string, id int, associations ...string) (*Deposit, error) {
	deposit, err := utils.FetchModel[Deposit](ctx, businessId, id, associations...)
	if err != nil {
		return nil, NewNotFoundError("deposit not found")
	}
	return deposit, nil
}

type DepositFilter struct {
	Status *DepositStatus
	Month  *time.Time
	Limit  int
	After  int // cursor: last seen deposit id, 0 for first page
}

// ListDeposits returns deposits newest-first with id-cursor pagination.
func ListDeposits(ctx context.Context, businessId string, filter DepositFilter) ([]*Deposit, error) {
	db := config.GetDB()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.Month != nil {
		monthStart, monthEnd := utils.GetMonthRange(*filter.Month)
		dbCtx = dbCtx.Where("month >= ? AND month < ?", monthStart, monthEnd)
	}
	if filter.After > 0 {
		dbCtx = dbCtx.Where("id < ?", filter.After)
	}

	var deposits []*Deposit
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&deposits).Error; err != nil {
		return nil, err
	}
	return deposits, nil
}

// ListDepositLineItems returns all lines of a deposit in import order.
func ListDepositLineItems(ctx context.Context, businessId string, depositId int) ([]*DepositLineItem, error) {
	if err := utils.ValidateResourceId[Deposit](ctx, businessId, depositId); err != nil {
		return nil, NewNotFoundError("deposit not found")
	}

	db := config.GetDB()
	var lines []*DepositLineItem
	err := db.WithContext(ctx).
		Where("business_id = ? AND deposit_id = ?", businessId, depositId).
		Order("row_index ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
