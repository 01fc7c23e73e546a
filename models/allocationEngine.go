package models

import (
	"context"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ApplyMatchInput struct {
	RevenueScheduleId int             `json:"revenueScheduleId" binding:"required"`
	UsageAmount       decimal.Decimal `json:"usageAmount"`
	CommissionAmount  decimal.Decimal `json:"commissionAmount"`
	ConfidenceScore   decimal.Decimal `json:"confidenceScore"`
}

type ApplyMatchResult struct {
	Match        *DepositLineMatch `json:"match"`
	FlexDecision *FlexDecision     `json:"flexDecision"`
	Line         *DepositLineItem  `json:"line"`
}

// guardDepositMutable rejects allocation mutations against finalized deposits.
func guardDepositMutable(ctx context.Context, tx *gorm.DB, businessId string, depositId int) error {
	var status DepositStatus
	err := tx.WithContext(ctx).Model(&Deposit{}).
		Where("business_id = ? AND id = ?", businessId, depositId).
		Select("status").Scan(&status).Error
	if err != nil {
		return err
	}
	if status == "" {
		return NewNotFoundError("deposit not found")
	}
	if status == DepositStatusCompleted {
		return NewStateConflictError("deposit is already finalized")
	}
	return nil
}

// applyMatchTx performs one allocation inside the caller's transaction:
// variance resolution first, then allocation bookkeeping and the match row.
// Chargebacks produce no match and leave the line untouched.
func applyMatchTx(ctx context.Context, tx *gorm.DB, line *DepositLineItem, schedule *RevenueSchedule, usageAmount, commissionAmount, confidenceScore decimal.Decimal, source MatchSource, tolerance decimal.Decimal) (*DepositLineMatch, *FlexDecision, error) {

	decision, err := resolveVariance(ctx, tx, line, schedule, usageAmount, commissionAmount, tolerance)
	if err != nil {
		return nil, nil, err
	}

	if decision.Action == FlexActionChargeback {
		return nil, decision, nil
	}

	line.addAllocation(usageAmount, commissionAmount)
	if line.PrimaryRevenueScheduleId == nil {
		line.PrimaryRevenueScheduleId = &schedule.ID
	}

	matchStatus := MatchStatusApplied
	if decision.Action == FlexActionPrompt {
		matchStatus = MatchStatusSuggested
		var appliedOnLine int64
		err := tx.Model(&DepositLineMatch{}).
			Where("business_id = ? AND deposit_line_item_id = ? AND status = ?", line.BusinessId, line.ID, MatchStatusApplied).
			Count(&appliedOnLine).Error
		if err != nil {
			return nil, nil, err
		}
		if appliedOnLine == 0 {
			line.markSuggested()
		}
	}
	if err := tx.Model(&DepositLineItem{}).Where("id = ?", line.ID).Updates(line.allocationColumns()).Error; err != nil {
		return nil, nil, err
	}
	match := DepositLineMatch{
		BusinessId:        line.BusinessId,
		DepositLineItemId: line.ID,
		RevenueScheduleId: schedule.ID,
		UsageAmount:       usageAmount,
		CommissionAmount:  commissionAmount,
		Status:            matchStatus,
		Source:            source,
		ConfidenceScore:   confidenceScore,
	}
	if err := tx.Create(&match).Error; err != nil {
		return nil, nil, err
	}

	scheduleStatus := ScheduleStatusPartiallyReconciled
	if usageAmount.GreaterThanOrEqual(schedule.ExpectedUsage) {
		scheduleStatus = ScheduleStatusFullyReconciled
	}
	if err := tx.Model(&RevenueSchedule{}).Where("id = ?", schedule.ID).Update("status", scheduleStatus).Error; err != nil {
		return nil, nil, err
	}

	return &match, decision, nil
}

// ApplyMatch allocates (part of) a deposit line against a revenue schedule,
// invoking the variance resolver on the actual-vs-expected amounts. Returns
// a nil match when the resolver routed the line to chargeback.
func ApplyMatch(ctx context.Context, settings SettingsProvider, lineId int, input *ApplyMatchInput) (*ApplyMatchResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	matchSettings, err := settings.MatchSettings(ctx, businessId, userId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var line DepositLineItem
	if err := tx.Where("business_id = ?", businessId).First(&line, lineId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("deposit line item not found")
	}
	if err := guardDepositMutable(ctx, tx, businessId, line.DepositId); err != nil {
		tx.Rollback()
		return nil, err
	}
	schedule, err := getRevenueScheduleTx(ctx, tx, businessId, input.RevenueScheduleId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	match, decision, err := applyMatchTx(ctx, tx, &line, schedule,
		input.UsageAmount, input.CommissionAmount, input.ConfidenceScore,
		MatchSourceManual, matchSettings.VarianceTolerance)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &ApplyMatchResult{Match: match, FlexDecision: decision, Line: &line}, nil
}

// UnmatchLine deletes every match on the line and restores its pre-match
// allocation state exactly. This is the inverse of a full apply-match.
func UnmatchLine(ctx context.Context, lineId int) (*DepositLineItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var line DepositLineItem
	if err := tx.Where("business_id = ?", businessId).First(&line, lineId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("deposit line item not found")
	}
	if err := guardDepositMutable(ctx, tx, businessId, line.DepositId); err != nil {
		tx.Rollback()
		return nil, err
	}

	var matches []DepositLineMatch
	if err := tx.Where("business_id = ? AND deposit_line_item_id = ?", businessId, line.ID).Find(&matches).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("business_id = ? AND deposit_line_item_id = ?", businessId, line.ID).Delete(&DepositLineMatch{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// schedules with no remaining matches revert to Open
	for _, match := range matches {
		var remaining int64
		err := tx.Model(&DepositLineMatch{}).
			Where("business_id = ? AND revenue_schedule_id = ?", businessId, match.RevenueScheduleId).
			Count(&remaining).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if remaining == 0 {
			if err := tx.Model(&RevenueSchedule{}).Where("id = ?", match.RevenueScheduleId).Update("status", ScheduleStatusOpen).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	line.resetAllocation()
	if err := tx.Model(&DepositLineItem{}).Where("id = ?", line.ID).Updates(line.allocationColumns()).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &line, nil
}

type AutoMatchLineResult struct {
	LineId     int               `json:"lineId"`
	Candidates []*MatchCandidate `json:"candidates"`
}

// AutoMatchPreview runs the candidate pipeline over every unmatched line of a
// deposit using the auto-match confidence threshold, without mutating state.
func AutoMatchPreview(ctx context.Context, settings SettingsProvider, depositId int, includeFuture bool) ([]*AutoMatchLineResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	matchSettings, err := settings.MatchSettings(ctx, businessId, userId)
	if err != nil {
		return nil, err
	}
	deposit, err := GetDeposit(ctx, businessId, depositId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var lines []*DepositLineItem
	err = db.WithContext(ctx).
		Where("business_id = ? AND deposit_id = ? AND status = ?", businessId, depositId, LineItemStatusUnmatched).
		Order("row_index ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	results := make([]*AutoMatchLineResult, 0, len(lines))
	for _, line := range lines {
		candidates, err := candidatesForLine(ctx, db, businessId, line, deposit,
			matchSettings.EngineMode, includeFuture, matchSettings.AutoMatchMinConfidence)
		if err != nil {
			return nil, err
		}
		results = append(results, &AutoMatchLineResult{LineId: line.ID, Candidates: candidates})
	}
	return results, nil
}

type AutoMatchApplyResult struct {
	AppliedCount int                 `json:"appliedCount"`
	SkippedCount int                 `json:"skippedCount"`
	Results      []*ApplyMatchResult `json:"results"`
}

// AutoMatchApply re-runs candidate selection across the deposit and persists
// the top pairing per line as an Applied match with source=Auto, all in one
// transaction.
func AutoMatchApply(ctx context.Context, settings SettingsProvider, depositId int, includeFuture bool) (*AutoMatchApplyResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	matchSettings, err := settings.MatchSettings(ctx, businessId, userId)
	if err != nil {
		return nil, err
	}

	// serialize concurrent batch runs per business; held until the batch commits
	lock, err := utils.BusinessLock(ctx, businessId, "automatch", "allocationEngine.go", "AutoMatchApply")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

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

	var lines []*DepositLineItem
	err = tx.Where("business_id = ? AND deposit_id = ? AND status = ?", businessId, depositId, LineItemStatusUnmatched).
		Order("row_index ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := &AutoMatchApplyResult{}
	for _, line := range lines {
		candidates, err := candidatesForLine(ctx, tx, businessId, line, &deposit,
			matchSettings.EngineMode, includeFuture, matchSettings.AutoMatchMinConfidence)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if len(candidates) == 0 {
			result.SkippedCount++
			continue
		}

		top := candidates[0]
		match, decision, err := applyMatchTx(ctx, tx, line, top.Schedule,
			line.UsageUnallocated, line.CommissionUnallocated, top.ConfidenceScore,
			MatchSourceAuto, matchSettings.VarianceTolerance)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		result.AppliedCount++
		result.Results = append(result.Results, &ApplyMatchResult{Match: match, FlexDecision: decision, Line: line})
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}
