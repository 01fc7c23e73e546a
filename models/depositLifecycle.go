package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"gorm.io/gorm"
)

// matchedScheduleIds returns the schedules referenced by Applied matches on
// the deposit's lines.
func matchedScheduleIds(ctx context.Context, tx *gorm.DB, businessId string, depositId int) ([]int, error) {
	var scheduleIds []int
	err := tx.WithContext(ctx).Model(&DepositLineMatch{}).
		Joins("JOIN deposit_line_items ON deposit_line_items.id = deposit_line_matches.deposit_line_item_id").
		Where("deposit_line_matches.business_id = ? AND deposit_line_items.deposit_id = ? AND deposit_line_matches.status = ?",
			businessId, depositId, MatchStatusApplied).
		Distinct().
		Pluck("deposit_line_matches.revenue_schedule_id", &scheduleIds).Error
	if err != nil {
		return nil, err
	}
	return scheduleIds, nil
}

// FinalizeDeposit locks a deposit's reconciliation as complete: the deposit
// and all its lines are marked reconciled, and every matched schedule's
// billing status advances to Reconciled.
//
// Status=Completed alone is treated as "already finalized" even when the
// reconciled flag is false. The two fields can disagree on historical rows;
// status is the one trusted here.
func FinalizeDeposit(ctx context.Context, depositId int) (*Deposit, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var deposit Deposit
	if err := tx.Where("business_id = ?", businessId).First(&deposit, depositId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("deposit not found")
	}
	if deposit.Status == DepositStatusCompleted {
		tx.Rollback()
		return nil, NewStateConflictError("deposit is already finalized")
	}

	now := time.Now().UTC()
	err := tx.Model(&Deposit{}).Where("id = ?", deposit.ID).Updates(map[string]interface{}{
		"status":        DepositStatusCompleted,
		"reconciled":    true,
		"reconciled_at": now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.Model(&DepositLineItem{}).
		Where("business_id = ? AND deposit_id = ?", businessId, deposit.ID).
		Updates(map[string]interface{}{
			"reconciled":    true,
			"reconciled_at": now,
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	scheduleIds, err := matchedScheduleIds(ctx, tx, businessId, deposit.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(scheduleIds) > 0 {
		err = tx.Model(&RevenueSchedule{}).
			Where("business_id = ? AND id IN ?", businessId, scheduleIds).
			Update("billing_status", BillingStatusReconciled).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	deposit.Status = DepositStatusCompleted
	deposit.Reconciled = true
	deposit.ReconciledAt = &now
	return &deposit, nil
}

// UnfinalizeDeposit is the exact inverse of finalize: the deposit returns to
// InReview, reconciled flags and timestamps are cleared on the deposit and
// its lines, and Reconciled billing statuses on matched schedules reopen.
func UnfinalizeDeposit(ctx context.Context, depositId int) (*Deposit, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var deposit Deposit
	if err := tx.Where("business_id = ?", businessId).First(&deposit, depositId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("deposit not found")
	}
	if deposit.Status != DepositStatusCompleted {
		tx.Rollback()
		return nil, NewStateConflictError("deposit is not finalized")
	}

	err := tx.Model(&Deposit{}).Where("id = ?", deposit.ID).Updates(map[string]interface{}{
		"status":        DepositStatusInReview,
		"reconciled":    false,
		"reconciled_at": nil,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.Model(&DepositLineItem{}).
		Where("business_id = ? AND deposit_id = ?", businessId, deposit.ID).
		Updates(map[string]interface{}{
			"reconciled":    false,
			"reconciled_at": nil,
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	scheduleIds, err := matchedScheduleIds(ctx, tx, businessId, deposit.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(scheduleIds) > 0 {
		err = tx.Model(&RevenueSchedule{}).
			Where("business_id = ? AND id IN ? AND billing_status = ?", businessId, scheduleIds, BillingStatusReconciled).
			Update("billing_status", BillingStatusOpen).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	deposit.Status = DepositStatusInReview
	deposit.Reconciled = false
	deposit.ReconciledAt = nil
	return &deposit, nil
}
