package main

import (
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/middlewares"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/gin-gonic/gin"
)

// isAdminRequest accepts either an admin redis session or an admin-role JWT
// bearer token.
func isAdminRequest(c *gin.Context) bool {
	if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); ok && isAdmin {
		return true
	}
	if claim := middlewares.CtxValue(c.Request.Context()); claim != nil && claim.Role == "admin" {
		return true
	}
	return false
}

type outboxReplayRequest struct {
	BusinessId string `json:"business_id"`
	RecordId   int    `json:"record_id"`
}

// outboxReplayHandler requeues a FAILED notification outbox row so the
// dispatcher picks it up again.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdminRequest(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.BusinessId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		if err := db.WithContext(c.Request.Context()).
			Model(&models.NotificationOutbox{}).
			Where("id = ? AND business_id = ? AND publish_status = ?",
				req.RecordId, req.BusinessId, models.OutboxPublishStatusFailed).
			Updates(map[string]interface{}{
				"publish_status": models.OutboxPublishStatusPending,
				"locked_at":      nil,
				"locked_by":      nil,
				"last_error":     nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"business_id":    req.BusinessId,
			"record_id":      req.RecordId,
			"publish_status": models.OutboxPublishStatusPending,
			"requeued_at":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
