package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"github.com/gin-gonic/gin"
)

// settingsProvider is the shared settings source for all matching endpoints.
var settingsProvider models.SettingsProvider = models.NewDBSettingsProvider()

func suggestMatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		lineId, err := pathId(c, "lineId")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
			return
		}
		includeFuture := c.Query("includeFutureSchedules") == "true"

		candidates, err := models.SuggestMatches(c.Request.Context(), settingsProvider, lineId, includeFuture)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": candidates})
	}
}

func applyMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		lineId, err := pathId(c, "lineId")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
			return
		}
		var input models.ApplyMatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		result, err := models.ApplyMatch(c.Request.Context(), settingsProvider, lineId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func unmatchLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		lineId, err := pathId(c, "lineId")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
			return
		}

		line, err := models.UnmatchLine(c.Request.Context(), lineId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": line})
	}
}

func autoMatchPreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		depositId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}
		includeFuture := c.Query("includeFutureSchedules") == "true"

		results, err := models.AutoMatchPreview(c.Request.Context(), settingsProvider, depositId, includeFuture)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": results})
	}
}

func autoMatchApplyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		depositId, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}
		includeFuture := c.Query("includeFutureSchedules") == "true"

		result, err := models.AutoMatchApply(c.Request.Context(), settingsProvider, depositId, includeFuture)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}
