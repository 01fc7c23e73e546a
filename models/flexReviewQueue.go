package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"gorm.io/gorm"
)

// FlexReviewListItem is the stable listing shape: createdAt is
// string-serialized so grid consumers never depend on timestamp encoding.
type FlexReviewListItem struct {
	ID                 int                `json:"id"`
	RevenueScheduleId  int                `json:"revenueScheduleId"`
	FlexClassification FlexClassification `json:"flexClassification"`
	Status             ReviewStatus       `json:"status"`
	AssignedToUserId   *int               `json:"assignedToUserId"`
	CreatedAt          string             `json:"createdAt"`
}

type FlexReviewFilter struct {
	Status           *ReviewStatus
	AssignedToUserId *int
	Limit            int
	After            int
}

func ListFlexReviewItems(ctx context.Context, filter FlexReviewFilter) ([]*FlexReviewListItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.AssignedToUserId != nil {
		dbCtx = dbCtx.Where("assigned_to_user_id = ?", *filter.AssignedToUserId)
	}
	if filter.After > 0 {
		dbCtx = dbCtx.Where("id < ?", filter.After)
	}

	var items []*FlexReviewItem
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}

	out := make([]*FlexReviewListItem, 0, len(items))
	for _, item := range items {
		out = append(out, &FlexReviewListItem{
			ID:                 item.ID,
			RevenueScheduleId:  item.RevenueScheduleId,
			FlexClassification: item.FlexClassification,
			Status:             item.Status,
			AssignedToUserId:   item.AssignedToUserId,
			CreatedAt:          item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

type AssignFlexReviewInput struct {
	AssignToMe bool `json:"assignToMe"`
	UserId     int  `json:"userId"`
}

// AssignFlexReviewItem persists the assignee and creates exactly one
// notification record (plus its outbox row) for that user, atomically.
func AssignFlexReviewItem(ctx context.Context, itemId int, input *AssignFlexReviewInput) (*FlexReviewItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	assigneeId := input.UserId
	if input.AssignToMe {
		callerId, ok := utils.GetUserIdFromContext(ctx)
		if !ok || callerId == 0 {
			return nil, NewValidationError("caller user id is required for assignToMe")
		}
		assigneeId = callerId
	}
	if assigneeId == 0 {
		return nil, NewValidationError("assignee user id is required")
	}
	if err := utils.ValidateResourceId[User](ctx, businessId, assigneeId); err != nil {
		return nil, NewNotFoundError("assignee user not found")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var item FlexReviewItem
	if err := tx.Where("business_id = ?", businessId).First(&item, itemId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("flex review item not found")
	}

	item.AssignedToUserId = &assigneeId
	if err := tx.Model(&FlexReviewItem{}).Where("id = ?", item.ID).Update("assigned_to_user_id", assigneeId).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	payload := map[string]interface{}{
		"type":               "flex_review_assigned",
		"flexReviewItemId":   item.ID,
		"revenueScheduleId":  item.RevenueScheduleId,
		"flexClassification": item.FlexClassification,
	}
	if _, err := createNotification(ctx, tx, businessId, assigneeId, "Flex review assigned", payload); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ApproveAndApplyFlexReview upgrades the review item's Suggested source
// match to Applied and marks the item Approved, atomically.
func ApproveAndApplyFlexReview(ctx context.Context, itemId int) (*FlexReviewItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var item FlexReviewItem
	if err := tx.Where("business_id = ?", businessId).First(&item, itemId).Error; err != nil {
		tx.Rollback()
		return nil, NewNotFoundError("flex review item not found")
	}
	if item.Status != ReviewStatusOpen {
		tx.Rollback()
		return nil, NewStateConflictError("flex review item is not open")
	}

	var match DepositLineMatch
	err := tx.Where("business_id = ? AND deposit_line_item_id = ? AND revenue_schedule_id = ? AND status = ?",
		businessId, item.DepositLineItemId, item.RevenueScheduleId, MatchStatusSuggested).
		First(&match).Error
	if err == gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, NewStateConflictError("no suggested match to approve for this review item")
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&DepositLineMatch{}).Where("id = ?", match.ID).Update("status", MatchStatusApplied).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// the line leaves Suggested once an applied match exists
	var line DepositLineItem
	if err := tx.Where("business_id = ?", businessId).First(&line, item.DepositLineItemId).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	line.recomputeStatus()
	if err := tx.Model(&DepositLineItem{}).Where("id = ?", line.ID).Update("status", line.Status).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	item.Status = ReviewStatusApproved
	if err := tx.Model(&FlexReviewItem{}).Where("id = ?", item.ID).Update("status", ReviewStatusApproved).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &item, nil
}
