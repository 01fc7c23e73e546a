package main

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotifyDispatcher publishes committed notification outbox rows to Pub/Sub.
// Rows are written inside the mutation's transaction; delivery happens here,
// after commit, so a crashed publish never loses a notification.
type NotifyDispatcher struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewNotifyDispatcher(db *gorm.DB, logger *logrus.Logger) *NotifyDispatcher {
	return &NotifyDispatcher{
		DB:        db,
		Logger:    logger,
		WorkerID:  "notify-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func (d *NotifyDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// the dispatcher drains outbox rows across every tenant
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *NotifyDispatcher) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTTL)

	var claimed []models.NotificationOutbox
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status = ?", models.OutboxPublishStatusPending).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.NotificationOutbox{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": now,
					"locked_by": d.WorkerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		d.dispatch(ctx, rec)
	}
}

func (d *NotifyDispatcher) dispatch(ctx context.Context, rec models.NotificationOutbox) {
	_, err := config.PublishNotification(ctx, config.NotificationMessage{
		ID:            rec.ID,
		BusinessId:    rec.BusinessId,
		UserId:        rec.UserId,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	})

	if err != nil && config.NotifyDirectProcessing() {
		// no broker in local/dev: the durable Notification row is the delivery
		err = nil
	}

	now := time.Now().UTC()
	if err != nil {
		errMsg := err.Error()
		_ = d.DB.WithContext(ctx).Model(&models.NotificationOutbox{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status": models.OutboxPublishStatusFailed,
				"attempt_count":  gorm.Expr("attempt_count + 1"),
				"last_error":     &errMsg,
				"locked_at":      nil,
				"locked_by":      nil,
			}).Error
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":       "NotifyDispatcher",
				"business_id": rec.BusinessId,
				"user_id":     rec.UserId,
				"record_id":   rec.ID,
			}).Error("notification publish failed: " + errMsg)
		}
		return
	}

	_ = d.DB.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status": models.OutboxPublishStatusPublished,
			"attempt_count":  gorm.Expr("attempt_count + 1"),
			"processed_at":   now,
			"locked_at":      nil,
			"locked_by":      nil,
		}).Error
}
