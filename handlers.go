package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError maps the engine error taxonomy onto HTTP status codes:
// ValidationError 400, StateConflictError 409, NotFoundError 404.
func respondError(c *gin.Context, err error) {
	switch {
	case models.IsStateConflictError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case models.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case models.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respondBindError renders field-level detail for validator failures.
func respondBindError(c *gin.Context, err error) {
	if _, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func requireSession(c *gin.Context) bool {
	if _, ok := utils.GetBusinessIdFromContext(c.Request.Context()); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

// mustBusinessId is only safe after requireSession.
func mustBusinessId(c *gin.Context) string {
	businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	return businessId
}

func pathId(c *gin.Context, name string) (int, error) {
	return strconv.Atoi(c.Param(name))
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := models.Login(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.Logout(c.Request.Context(), token); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": "logged out"})
	}
}
