package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BundleOperation is the audit/idempotency record of one rip-and-replace
// action. Exactly one row exists per distinct
// (deposit, sorted lineIds, baseScheduleId, mode) request; identical retries
// replay this row instead of re-executing.
type BundleOperation struct {
	ID                        int        `gorm:"primary_key" json:"id"`
	BusinessId                string     `gorm:"index;not null;index:uniq_bundle_op,unique" json:"business_id"`
	OperationKey              string     `gorm:"size:128;not null;index:uniq_bundle_op,unique" json:"operation_key"`
	DepositId                 int        `gorm:"index;not null" json:"deposit_id"`
	BaseRevenueScheduleId     int        `gorm:"index;not null" json:"base_revenue_schedule_id"`
	Mode                      BundleMode `gorm:"size:30;not null" json:"mode"`
	Reason                    string     `gorm:"type:text" json:"reason"`
	LineIds                   []byte     `gorm:"type:json" json:"line_ids"`
	CreatedProductId          int        `json:"created_product_id"`
	CreatedRevenueScheduleIds []byte     `gorm:"type:json" json:"created_revenue_schedule_ids"`
	ReplacedScheduleIds       []byte     `gorm:"type:json" json:"replaced_schedule_ids"`
	LineToScheduleMap         []byte     `gorm:"type:json" json:"line_to_schedule_map"`
	UndoneAt                  *time.Time `json:"undone_at"`
	CreatedBy                 int        `json:"created_by"`
	CreatedAt                 time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *BundleOperation) GetId() int {
	return b.ID
}

// bundleOperationKey derives the idempotency key for a bundle-apply request.
// Line ids are sorted so ordering differences in the request do not break
// replay detection.
func bundleOperationKey(depositId int, lineIds []int, baseScheduleId int, mode BundleMode) string {
	sorted := append([]int(nil), lineIds...)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, fmt.Sprint(id))
	}
	raw := fmt.Sprintf("%d|%s|%d|%s", depositId, strings.Join(parts, ","), baseScheduleId, mode)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
