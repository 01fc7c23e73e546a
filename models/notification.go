package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending   OutboxPublishStatus = "PENDING"
	OutboxPublishStatusPublished OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed    OutboxPublishStatus = "FAILED"
)

// Notification is the durable in-app notification record. Exactly one row is
// created per flex-review assignment call.
type Notification struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	UserId     int       `gorm:"index;not null" json:"user_id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Payload    []byte    `gorm:"type:json" json:"payload"`
	IsRead     bool      `gorm:"default:false" json:"is_read"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NotificationOutbox implements the transactional outbox for notification
// delivery: the row is written inside the caller's DB transaction and
// published asynchronously by the dispatcher after commit.
type NotificationOutbox struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"index;not null" json:"business_id"`
	UserId         int                 `gorm:"not null" json:"user_id"`
	NotificationId int                 `gorm:"index;not null" json:"notification_id"`
	Payload        []byte              `gorm:"type:json" json:"payload"`
	PublishStatus  OutboxPublishStatus `gorm:"size:20;not null;default:PENDING;index" json:"publish_status"`
	AttemptCount   int                 `gorm:"default:0" json:"attempt_count"`
	LastError      *string             `gorm:"type:text" json:"last_error"`
	LockedAt       *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy       *string             `gorm:"size:64" json:"locked_by"`
	ProcessedAt    *time.Time          `json:"processed_at"`
	CorrelationId  string              `gorm:"size:64" json:"correlation_id"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// createNotification persists the notification plus its outbox row inside the
// caller's transaction.
func createNotification(ctx context.Context, tx *gorm.DB, businessId string, userId int, title string, payload interface{}) (*Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	notification := Notification{
		BusinessId: businessId,
		UserId:     userId,
		Title:      title,
		Payload:    raw,
	}
	if err := tx.Create(&notification).Error; err != nil {
		return nil, err
	}

	outbox := NotificationOutbox{
		BusinessId:     businessId,
		UserId:         userId,
		NotificationId: notification.ID,
		Payload:        raw,
		PublishStatus:  OutboxPublishStatusPending,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return nil, err
	}

	return &notification, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
