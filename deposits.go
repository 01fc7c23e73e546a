package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("commissions-backend")

// importDepositHandler accepts multipart form uploads: the tabular file under
// "file" plus a JSON metadata part under "input".
func importDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}

		inputJSON := c.PostForm("input")
		if inputJSON == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "input metadata is required"})
			return
		}
		var input models.ImportDepositInput
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input metadata: " + err.Error()})
			return
		}
		if input.DepositName == "" || input.PaymentDate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depositName and paymentDate are required"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer file.Close()
		fileBytes, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "deposit.import")
		defer span.End()

		result, err := models.ImportDeposit(ctx, &input, fileBytes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func listDepositsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		businessId := mustBusinessId(c)

		filter := models.DepositFilter{}
		if v := c.Query("status"); v != "" {
			status := models.DepositStatus(v)
			filter.Status = &status
		}
		if v := c.Query("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := c.Query("after"); v != "" {
			filter.After, _ = strconv.Atoi(v)
		}

		deposits, err := models.ListDeposits(c.Request.Context(), businessId, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": deposits})
	}
}

func getDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}

		deposit, err := models.GetDeposit(c.Request.Context(), mustBusinessId(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": deposit})
	}
}

func listDepositLinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}

		lines, err := models.ListDepositLineItems(c.Request.Context(), mustBusinessId(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": lines})
	}
}

func finalizeDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}

		deposit, err := models.FinalizeDeposit(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": deposit})
	}
}

func unfinalizeDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		id, err := pathId(c, "id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
			return
		}

		deposit, err := models.UnfinalizeDeposit(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": deposit})
	}
}
