package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
)

const bundleProductCodePrefix = "BNDL-"

type ApplyBundleInput struct {
	LineIds               []int      `json:"lineIds" binding:"required"`
	BaseRevenueScheduleId int        `json:"baseRevenueScheduleId" binding:"required"`
	Mode                  BundleMode `json:"mode" binding:"required"`
	Reason                string     `json:"reason"`
}

type ApplyBundleResult struct {
	BundleAuditLogId          int         `json:"bundleAuditLogId"`
	CreatedProductId          int         `json:"createdProductId"`
	CreatedRevenueScheduleIds []int       `json:"createdRevenueScheduleIds"`
	LineToScheduleMap         map[int]int `json:"lineToScheduleMap"`
	Idempotent                bool        `json:"idempotent"`
}

// ApplyBundle splits one base product/schedule into per-line sibling
// product schedules ("rip and replace"), recording an auditable, idempotent
// BundleOperation. An identical retry replays the recorded result without
// creating new products or schedules.
func ApplyBundle(ctx context.Context, input *ApplyBundleInput) (*ApplyBundleResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if len(input.LineIds) == 0 {
		return nil, NewValidationError("at least one line id is required")
	}
	if input.Mode != BundleModeKeepOld && input.Mode != BundleModeSoftDeleteOld {
		return nil, NewValidationError("invalid bundle mode")
	}
	if err := utils.ValidateResourcesId[DepositLineItem](ctx, businessId, input.LineIds); err != nil {
		return nil, NewNotFoundError("one or more deposit line items not found")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	lineIds := utils.UniqueSlice(input.LineIds)
	var lines []*DepositLineItem
	if err := tx.Where("business_id = ? AND id IN ?", businessId, lineIds).Find(&lines).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(lines) != len(lineIds) {
		tx.Rollback()
		return nil, NewNotFoundError("one or more deposit line items not found")
	}
	depositId := lines[0].DepositId
	for _, line := range lines {
		if line.DepositId != depositId {
			tx.Rollback()
			return nil, NewValidationError("all lines must belong to the same deposit")
		}
	}

	// precondition: none of the selected lines may already carry an Applied match
	var allocatedCount int64
	err := tx.Model(&DepositLineMatch{}).
		Where("business_id = ? AND deposit_line_item_id IN ? AND status = ?", businessId, lineIds, MatchStatusApplied).
		Count(&allocatedCount).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if allocatedCount > 0 {
		tx.Rollback()
		return nil, NewStateConflictError("selected lines already have applied allocations")
	}

	baseSchedule, err := getRevenueScheduleTx(ctx, tx, businessId, input.BaseRevenueScheduleId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// sibling-schedule window: every live schedule of the base product within
	// the opportunity
	var windowSchedules []*RevenueSchedule
	err = tx.Where("business_id = ? AND opportunity_id = ? AND product_id = ? AND deleted_at IS NULL",
		businessId, baseSchedule.OpportunityId, baseSchedule.ProductId).
		Order("schedule_date ASC, id ASC").
		Find(&windowSchedules).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(windowSchedules) == 0 {
		windowSchedules = []*RevenueSchedule{baseSchedule}
	}

	replacedIds := make([]int, 0, len(windowSchedules))
	for _, s := range windowSchedules {
		replacedIds = append(replacedIds, s.ID)
	}

	if input.Mode == BundleModeSoftDeleteOld {
		appliedCount, err := appliedMatchCount(ctx, tx, businessId, replacedIds)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if appliedCount > 0 {
			tx.Rollback()
			return nil, NewStateConflictError("existing schedules cannot be safely replaced: applied allocations present")
		}
	}

	// claim the idempotency key before any side effects; a duplicate means an
	// identical request already ran, so replay its recorded result
	operation := BundleOperation{
		BusinessId:            businessId,
		OperationKey:          bundleOperationKey(depositId, lineIds, input.BaseRevenueScheduleId, input.Mode),
		DepositId:             depositId,
		BaseRevenueScheduleId: input.BaseRevenueScheduleId,
		Mode:                  input.Mode,
		Reason:                input.Reason,
		CreatedBy:             userId,
	}
	operation.LineIds, _ = json.Marshal(lineIds)
	if err := tx.Create(&operation).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyError(err) {
			return replayBundle(ctx, businessId, operation.OperationKey)
		}
		return nil, err
	}

	baseProduct, err := GetProductById(ctx, tx, businessId, baseSchedule.ProductId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	bundleProduct := Product{
		BusinessId:      businessId,
		ProductFamilyId: baseProduct.ProductFamilyId,
		Code:            bundleProductCodePrefix + baseProduct.Code,
		Name:            baseProduct.Name + " Bundle",
		IsBundleChild:   true,
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "code", bundleProduct.Code, 0); err != nil {
		tx.Rollback()
		return nil, NewStateConflictError("bundle product code %q already exists", bundleProduct.Code)
	}
	if err := tx.Create(&bundleProduct).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	createdIds := make([]int, 0, len(lines)*len(windowSchedules))
	lineToSchedule := make(map[int]int, len(lines))
	for _, line := range lines {
		for _, window := range windowSchedules {
			child := RevenueSchedule{
				BusinessId:              businessId,
				OpportunityId:           baseSchedule.OpportunityId,
				ProductId:               bundleProduct.ID,
				AccountId:               baseSchedule.AccountId,
				ScheduleDate:            window.ScheduleDate,
				ExpectedUsage:           line.Usage,
				ExpectedCommission:      line.Commission,
				CommissionRate:          line.CommissionRate,
				Status:                  ScheduleStatusOpen,
				BillingStatus:           BillingStatusOpen,
				FlexClassification:      FlexClassificationNone,
				ParentRevenueScheduleId: &baseSchedule.ID,
			}
			if err := tx.Create(&child).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			createdIds = append(createdIds, child.ID)
			if _, seen := lineToSchedule[line.ID]; !seen {
				lineToSchedule[line.ID] = child.ID
			}
		}
	}

	if input.Mode == BundleModeSoftDeleteOld {
		now := time.Now().UTC()
		err = tx.Model(&RevenueSchedule{}).
			Where("business_id = ? AND id IN ?", businessId, replacedIds).
			Update("deleted_at", now).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updates := map[string]interface{}{
		"created_product_id": bundleProduct.ID,
	}
	updates["created_revenue_schedule_ids"], _ = json.Marshal(createdIds)
	updates["replaced_schedule_ids"], _ = json.Marshal(replacedIds)
	updates["line_to_schedule_map"], _ = json.Marshal(lineToSchedule)
	if err := tx.Model(&BundleOperation{}).Where("id = ?", operation.ID).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &ApplyBundleResult{
		BundleAuditLogId:          operation.ID,
		CreatedProductId:          bundleProduct.ID,
		CreatedRevenueScheduleIds: createdIds,
		LineToScheduleMap:         lineToSchedule,
	}, nil
}

// replayBundle returns the recorded result of the prior identical request.
func replayBundle(ctx context.Context, businessId string, operationKey string) (*ApplyBundleResult, error) {
	db := config.GetDB()
	var operation BundleOperation
	err := db.WithContext(ctx).
		Where("business_id = ? AND operation_key = ?", businessId, operationKey).
		First(&operation).Error
	if err != nil {
		return nil, err
	}

	result := &ApplyBundleResult{
		BundleAuditLogId: operation.ID,
		CreatedProductId: operation.CreatedProductId,
		Idempotent:       true,
	}
	if len(operation.CreatedRevenueScheduleIds) > 0 {
		if err := json.Unmarshal(operation.CreatedRevenueScheduleIds, &result.CreatedRevenueScheduleIds); err != nil {
			return nil, err
		}
	}
	if len(operation.LineToScheduleMap) > 0 {
		if err := json.Unmarshal(operation.LineToScheduleMap, &result.LineToScheduleMap); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type UndoBundleResult struct {
	BundleAuditLogId    int   `json:"bundleAuditLogId"`
	RemovedScheduleIds  []int `json:"removedScheduleIds"`
	RestoredScheduleIds []int `json:"restoredScheduleIds"`
}

// UndoBundle reverses a bundle operation: removes its created schedules and
// product, and restores any schedules the operation soft-deleted. Refuses to
// run when a created schedule has since accumulated an Applied match.
func UndoBundle(ctx context.Context, auditLogId int, reason string) (*UndoBundleResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var operation BundleOperation
	if err := tx.Where("business_id = ?", businessId).First(&operation, auditLogId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("bundle operation not found")
	}
	if operation.UndoneAt != nil {
		tx.Rollback()
		return nil, NewStateConflictError("bundle operation already undone")
	}

	var createdIds []int
	if len(operation.CreatedRevenueScheduleIds) > 0 {
		if err := json.Unmarshal(operation.CreatedRevenueScheduleIds, &createdIds); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	var replacedIds []int
	if len(operation.ReplacedScheduleIds) > 0 {
		if err := json.Unmarshal(operation.ReplacedScheduleIds, &replacedIds); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	appliedCount, err := appliedMatchCount(ctx, tx, businessId, createdIds)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if appliedCount > 0 {
		tx.Rollback()
		return nil, NewStateConflictError("bundle operation cannot be undone safely: created schedules have applied allocations")
	}

	now := time.Now().UTC()
	if len(createdIds) > 0 {
		err = tx.Model(&RevenueSchedule{}).
			Where("business_id = ? AND id IN ?", businessId, createdIds).
			Update("deleted_at", now).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if operation.CreatedProductId > 0 {
		err = tx.Model(&Product{}).
			Where("business_id = ? AND id = ?", businessId, operation.CreatedProductId).
			Update("deleted_at", now).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	restoredIds := make([]int, 0)
	if operation.Mode == BundleModeSoftDeleteOld && len(replacedIds) > 0 {
		err = tx.Model(&RevenueSchedule{}).
			Where("business_id = ? AND id IN ?", businessId, replacedIds).
			Update("deleted_at", nil).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		restoredIds = replacedIds
	}

	err = tx.Model(&BundleOperation{}).Where("id = ?", operation.ID).Updates(map[string]interface{}{
		"undone_at": now,
		"reason":    operation.Reason + " | undo: " + reason,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &UndoBundleResult{
		BundleAuditLogId:    operation.ID,
		RemovedScheduleIds:  createdIds,
		RestoredScheduleIds: restoredIds,
	}, nil
}
