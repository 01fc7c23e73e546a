package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
)

// DepositLineItem is one row of a deposit.
//
// Allocation bookkeeping invariant, maintained by every mutation:
//
//	usageAllocated + usageUnallocated == usage
//	commissionAllocated + commissionUnallocated == commission
type DepositLineItem struct {
	ID                       int             `gorm:"primary_key" json:"id"`
	BusinessId               string          `gorm:"index;not null" json:"business_id"`
	DepositId                int             `gorm:"index;not null" json:"deposit_id"`
	RowIndex                 int             `gorm:"not null" json:"row_index"`
	AccountNameRaw           string          `gorm:"size:255" json:"account_name_raw"`
	VendorNameRaw            string          `gorm:"size:255" json:"vendor_name_raw"`
	DistributorNameRaw       string          `gorm:"size:255" json:"distributor_name_raw"`
	ProductNameRaw           string          `gorm:"size:255" json:"product_name_raw"`
	Usage                    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"usage"`
	UsageAllocated           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"usage_allocated"`
	UsageUnallocated         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"usage_unallocated"`
	Commission               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission"`
	CommissionAllocated      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission_allocated"`
	CommissionUnallocated    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission_unallocated"`
	CommissionRate           decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"commission_rate"`
	Status                   LineItemStatus  `gorm:"size:20;not null;default:Unmatched;index" json:"status"`
	PrimaryRevenueScheduleId *int            `gorm:"index" json:"primary_revenue_schedule_id"`
	Reconciled               bool            `gorm:"default:false" json:"reconciled"`
	ReconciledAt             *time.Time      `json:"reconciled_at"`
	CreatedAt                time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *DepositLineItem) GetId() int {
	return l.ID
}

// addAllocation moves the given amounts from unallocated to allocated and
// recomputes the line status. Amounts may be negative (unwinding).
func (l *DepositLineItem) addAllocation(usageAmount decimal.Decimal, commissionAmount decimal.Decimal) {
	l.UsageAllocated = l.UsageAllocated.Add(usageAmount)
	l.UsageUnallocated = l.Usage.Sub(l.UsageAllocated)
	l.CommissionAllocated = l.CommissionAllocated.Add(commissionAmount)
	l.CommissionUnallocated = l.Commission.Sub(l.CommissionAllocated)
	l.recomputeStatus()
}

// resetAllocation restores the line to its pre-match state.
func (l *DepositLineItem) resetAllocation() {
	l.UsageAllocated = decimal.Zero
	l.UsageUnallocated = l.Usage
	l.CommissionAllocated = decimal.Zero
	l.CommissionUnallocated = l.Commission
	l.Status = LineItemStatusUnmatched
	l.PrimaryRevenueScheduleId = nil
}

func (l *DepositLineItem) recomputeStatus() {
	switch {
	case l.UsageAllocated.IsZero() && l.CommissionAllocated.IsZero():
		l.Status = LineItemStatusUnmatched
	case l.UsageUnallocated.IsZero() && l.CommissionUnallocated.IsZero():
		l.Status = LineItemStatusMatched
	default:
		l.Status = LineItemStatusPartiallyMatched
	}
}

// markSuggested downgrades an allocation-derived status when every match on
// the line is still Suggested (nothing applied yet).
func (l *DepositLineItem) markSuggested() {
	if l.Status == LineItemStatusPartiallyMatched || l.Status == LineItemStatusMatched {
		l.Status = LineItemStatusSuggested
	}
}

// allocationColumns is the update set persisted after allocation mutations.
func (l *DepositLineItem) allocationColumns() map[string]interface{} {
	return map[string]interface{}{
		"usage_allocated":             l.UsageAllocated,
		"usage_unallocated":           l.UsageUnallocated,
		"commission_allocated":        l.CommissionAllocated,
		"commission_unallocated":      l.CommissionUnallocated,
		"status":                      l.Status,
		"primary_revenue_schedule_id": l.PrimaryRevenueScheduleId,
	}
}

func GetDepositLineItem(ctx context.Context, businessId string, id int) (*DepositLineItem, error) {
	line, err := utils.FetchModel[DepositLineItem](ctx, businessId, id)
	if err != nil {
		return nil, NewNotFoundError("deposit line item not found")
	}
	return line, nil
}
