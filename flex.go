package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"github.com/gin-gonic/gin"
)

// getRevenueScheduleHandler returns one schedule plus its account, the detail
// read backing the flex resolution screen.
func getRevenueScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		scheduleId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
			return
		}
		businessId := mustBusinessId(c)

		schedule, err := models.GetRevenueSchedule(c.Request.Context(), businessId, scheduleId)
		if err != nil {
			respondError(c, err)
			return
		}
		account, err := models.GetAccount(c.Request.Context(), businessId, schedule.AccountId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"schedule": schedule, "account": account}})
	}
}

func resolveFlexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		scheduleId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
			return
		}
		var input models.ResolveFlexInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		result, err := models.ResolveFlex(c.Request.Context(), scheduleId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func listFlexReviewsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}

		filter := models.FlexReviewFilter{}
		if v := c.Query("status"); v != "" {
			status := models.ReviewStatus(v)
			filter.Status = &status
		}
		if v := c.Query("assignedToUserId"); v != "" {
			if userId, err := strconv.Atoi(v); err == nil {
				filter.AssignedToUserId = &userId
			}
		}
		if v := c.Query("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := c.Query("after"); v != "" {
			filter.After, _ = strconv.Atoi(v)
		}

		items, err := models.ListFlexReviewItems(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
	}
}

func assignFlexReviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		itemId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review item id"})
			return
		}
		var input models.AssignFlexReviewInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		item, err := models.AssignFlexReviewItem(c.Request.Context(), itemId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func approveApplyFlexReviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		itemId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review item id"})
			return
		}

		item, err := models.ApproveAndApplyFlexReview(c.Request.Context(), itemId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}
