package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"github.com/gin-gonic/gin"
)

func applyBundleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input models.ApplyBundleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		result, err := models.ApplyBundle(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

type undoBundleRequest struct {
	Reason string `json:"reason"`
}

func undoBundleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		auditLogId, err := pathId(c, "auditLogId")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bundle audit log id"})
			return
		}
		var req undoBundleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		result, err := models.UndoBundle(c.Request.Context(), auditLogId, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}
