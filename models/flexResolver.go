package models

import (
	"context"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlexDecision is the variance resolver's verdict for one allocation.
type FlexDecision struct {
	Action             FlexAction         `json:"action"`
	Classification     FlexClassification `json:"classification"`
	ExpectedAmount     decimal.Decimal    `json:"expectedAmount"`
	ActualAmount       decimal.Decimal    `json:"actualAmount"`
	Overage            decimal.Decimal    `json:"overage"`
	Tolerance          decimal.Decimal    `json:"tolerance"`
	Executed           bool               `json:"executed"`
	CreatedScheduleIds []int              `json:"createdScheduleIds"`
	FlexReviewItemId   *int               `json:"flexReviewItemId"`
}

// classifyVariance is the pure decision function.
//
//   - actualAmount < 0 is a chargeback signal.
//   - |overage| within expectedAmount*tolerance (inclusive) auto-adjusts.
//   - anything beyond tolerance prompts a human decision.
func classifyVariance(actualAmount, expectedAmount, tolerance decimal.Decimal) (FlexAction, FlexClassification, decimal.Decimal) {
	if actualAmount.IsNegative() {
		return FlexActionChargeback, FlexClassificationChargeback, actualAmount.Sub(expectedAmount)
	}

	overage := actualAmount.Sub(expectedAmount)
	allowed := expectedAmount.Mul(tolerance).Abs()

	if overage.Abs().LessThanOrEqual(allowed) {
		classification := FlexClassificationNone
		if overage.IsPositive() {
			classification = FlexClassificationOverage
		} else if overage.IsNegative() {
			classification = FlexClassificationShortfall
		}
		return FlexActionAutoAdjust, classification, overage
	}

	if overage.IsNegative() {
		return FlexActionPrompt, FlexClassificationShortfall, overage
	}
	return FlexActionPrompt, FlexClassificationOverage, overage
}

// resolveVariance executes the decision inside the caller's transaction:
// chargebacks create an executed flex adjustment plus an Open review item,
// in-tolerance deltas create an executed adjustment child, and over-tolerance
// deltas are returned unexecuted for resolve-flex.
func resolveVariance(ctx context.Context, tx *gorm.DB, line *DepositLineItem, schedule *RevenueSchedule, usageAmount decimal.Decimal, commissionAmount decimal.Decimal, tolerance decimal.Decimal) (*FlexDecision, error) {

	action, classification, overage := classifyVariance(usageAmount, schedule.ExpectedUsage, tolerance)
	decision := &FlexDecision{
		Action:         action,
		Classification: classification,
		ExpectedAmount: schedule.ExpectedUsage,
		ActualAmount:   usageAmount,
		Overage:        overage,
		Tolerance:      tolerance,
	}

	switch action {
	case FlexActionChargeback:
		adjustment := RevenueSchedule{
			BusinessId:              schedule.BusinessId,
			OpportunityId:           schedule.OpportunityId,
			ProductId:               schedule.ProductId,
			AccountId:               schedule.AccountId,
			ScheduleDate:            schedule.ScheduleDate,
			ExpectedUsage:           usageAmount,
			ExpectedCommission:      commissionAmount,
			CommissionRate:          schedule.CommissionRate,
			Status:                  ScheduleStatusOpen,
			BillingStatus:           BillingStatusOpen,
			FlexClassification:      FlexClassificationChargeback,
			FlexReasonCode:          "chargeback",
			ParentRevenueScheduleId: &schedule.ID,
			Executed:                true,
		}
		if err := tx.Create(&adjustment).Error; err != nil {
			return nil, err
		}
		decision.CreatedScheduleIds = append(decision.CreatedScheduleIds, adjustment.ID)
		decision.Executed = true

		reviewItem := FlexReviewItem{
			BusinessId:         schedule.BusinessId,
			DepositId:          line.DepositId,
			DepositLineItemId:  line.ID,
			RevenueScheduleId:  schedule.ID,
			FlexClassification: FlexClassificationChargeback,
			FlexReasonCode:     "chargeback",
			Status:             ReviewStatusOpen,
		}
		if err := tx.Create(&reviewItem).Error; err != nil {
			return nil, err
		}
		decision.FlexReviewItemId = &reviewItem.ID

	case FlexActionAutoAdjust:
		if !overage.IsZero() {
			commissionDelta := commissionAmount.Sub(schedule.ExpectedCommission)
			adjustment := RevenueSchedule{
				BusinessId:              schedule.BusinessId,
				OpportunityId:           schedule.OpportunityId,
				ProductId:               schedule.ProductId,
				AccountId:               schedule.AccountId,
				ScheduleDate:            schedule.ScheduleDate,
				ExpectedUsage:           overage,
				ExpectedCommission:      commissionDelta,
				CommissionRate:          schedule.CommissionRate,
				Status:                  ScheduleStatusOpen,
				BillingStatus:           BillingStatusOpen,
				FlexClassification:      FlexClassificationAdjustment,
				FlexReasonCode:          "auto_adjust",
				ParentRevenueScheduleId: &schedule.ID,
				Executed:                true,
			}
			if err := tx.Create(&adjustment).Error; err != nil {
				return nil, err
			}
			decision.CreatedScheduleIds = append(decision.CreatedScheduleIds, adjustment.ID)
		}
		decision.Executed = true

	case FlexActionPrompt:
		// no execution: financial dispute resolution is deferred to resolve-flex
	}

	return decision, nil
}

type ResolveFlexInput struct {
	Action        FlexResolution   `json:"action" binding:"required"`
	CorrectedRate *decimal.Decimal `json:"correctedRate"`
	ApplyToFuture bool             `json:"applyToFuture"`
	Reason        string           `json:"reason"`
}

type ResolveFlexResult struct {
	RevenueScheduleId  int           `json:"revenueScheduleId"`
	Action             FlexResolution `json:"action"`
	BillingStatus      BillingStatus `json:"billingStatus"`
	CreatedScheduleIds []int         `json:"createdScheduleIds"`
	UpdatedScheduleIds []int         `json:"updatedScheduleIds"`
}

// ResolveFlex applies the operator-chosen resolution for a prompted variance.
//
//   - Adjust applies the rate correction, records an executed adjustment
//     child, and clears the base schedule back to a resolved Open state.
//   - FlexProduct creates a flex-child schedule and marks both base and child
//     InDispute.
//   - ChargebackApprove marks the base schedule InDispute and approves its
//     open chargeback review items.
//
// When applyToFuture is set, the corrected rate propagates to every future
// schedule of the same product within the opportunity.
func ResolveFlex(ctx context.Context, scheduleId int, input *ResolveFlexInput) (*ResolveFlexResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	schedule, err := getRevenueScheduleTx(ctx, tx, businessId, scheduleId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := &ResolveFlexResult{
		RevenueScheduleId: schedule.ID,
		Action:            input.Action,
	}

	correctedRate := schedule.CommissionRate
	if input.CorrectedRate != nil {
		correctedRate = *input.CorrectedRate
	}

	switch input.Action {
	case FlexResolutionAdjust:
		correctedCommission := schedule.ExpectedUsage.Mul(correctedRate).Round(4)
		adjustment := RevenueSchedule{
			BusinessId:              schedule.BusinessId,
			OpportunityId:           schedule.OpportunityId,
			ProductId:               schedule.ProductId,
			AccountId:               schedule.AccountId,
			ScheduleDate:            schedule.ScheduleDate,
			ExpectedUsage:           schedule.ExpectedUsage,
			ExpectedCommission:      correctedCommission.Sub(schedule.ExpectedCommission),
			CommissionRate:          correctedRate,
			Status:                  ScheduleStatusOpen,
			BillingStatus:           BillingStatusOpen,
			FlexClassification:      FlexClassificationAdjustment,
			FlexReasonCode:          "manual_adjust",
			ParentRevenueScheduleId: &schedule.ID,
			Executed:                true,
		}
		if err := tx.Create(&adjustment).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		result.CreatedScheduleIds = append(result.CreatedScheduleIds, adjustment.ID)

		updates := map[string]interface{}{
			"commission_rate":     correctedRate,
			"expected_commission": correctedCommission,
			"billing_status":      BillingStatusOpen,
			"flex_classification": FlexClassificationAdjustment,
		}
		if err := tx.Model(&RevenueSchedule{}).Where("id = ?", schedule.ID).Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		result.BillingStatus = BillingStatusOpen

	case FlexResolutionFlexProduct:
		flexChild := RevenueSchedule{
			BusinessId:              schedule.BusinessId,
			OpportunityId:           schedule.OpportunityId,
			ProductId:               schedule.ProductId,
			AccountId:               schedule.AccountId,
			ScheduleDate:            schedule.ScheduleDate,
			ExpectedUsage:           schedule.ExpectedUsage,
			ExpectedCommission:      schedule.ExpectedCommission,
			CommissionRate:          correctedRate,
			Status:                  ScheduleStatusOpen,
			BillingStatus:           BillingStatusInDispute,
			FlexClassification:      FlexClassificationProduct,
			FlexReasonCode:          "flex_product",
			ParentRevenueScheduleId: &schedule.ID,
		}
		if err := tx.Create(&flexChild).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		result.CreatedScheduleIds = append(result.CreatedScheduleIds, flexChild.ID)

		err = tx.Model(&RevenueSchedule{}).Where("id = ?", schedule.ID).Updates(map[string]interface{}{
			"billing_status":      BillingStatusInDispute,
			"flex_classification": FlexClassificationProduct,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		result.BillingStatus = BillingStatusInDispute

	case FlexResolutionChargebackApprove:
		err = tx.Model(&RevenueSchedule{}).Where("id = ?", schedule.ID).Updates(map[string]interface{}{
			"billing_status":      BillingStatusInDispute,
			"flex_classification": FlexClassificationChargeback,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		err = tx.Model(&FlexReviewItem{}).
			Where("business_id = ? AND revenue_schedule_id = ? AND status = ?", businessId, schedule.ID, ReviewStatusOpen).
			Update("status", ReviewStatusApproved).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		result.BillingStatus = BillingStatusInDispute

	default:
		tx.Rollback()
		return nil, NewValidationError("invalid flex resolution action")
	}

	if input.ApplyToFuture {
		futures, err := futureSchedulesForProduct(ctx, tx, businessId, schedule.OpportunityId, schedule.ProductId, schedule.ScheduleDate)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		for _, future := range futures {
			err = tx.Model(&RevenueSchedule{}).Where("id = ?", future.ID).Updates(map[string]interface{}{
				"commission_rate":     correctedRate,
				"expected_commission": future.ExpectedUsage.Mul(correctedRate).Round(4),
			}).Error
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			result.UpdatedScheduleIds = append(result.UpdatedScheduleIds, future.ID)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}
