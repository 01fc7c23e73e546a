package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/gin-gonic/gin"
)

// Session is the payload cached in redis under "Token:<token>" at login.
type Session struct {
	Username   string `json:"username"`
	UserId     int    `json:"userId"`
	UserName   string `json:"userName"`
	BusinessId string `json:"businessId"`
	IsAdmin    bool   `json:"isAdmin"`
}

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		var session Session
		exists, err := config.GetRedisObject("Token:"+token, &session)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, session.Username)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUserNameInContext(ctx, session.UserName)
		ctx = utils.SetBusinessIdInContext(ctx, session.BusinessId)
		if session.IsAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
