package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/google/uuid"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Username   string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Name       string    `gorm:"size:255" json:"name"`
	Email      string    `gorm:"size:255" json:"email"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Role       string    `gorm:"size:50;default:user" json:"role"`
	IsActive   *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token      string `json:"token"`
	ApiToken   string `json:"apiToken,omitempty"`
	UserId     int    `json:"userId"`
	Name       string `json:"name"`
	BusinessId string `json:"businessId"`
}

// session payload cached under "Token:<token>", consumed by the session middleware
type sessionPayload struct {
	Username   string `json:"username"`
	UserId     int    `json:"userId"`
	UserName   string `json:"userName"`
	BusinessId string `json:"businessId"`
	IsAdmin    bool   `json:"isAdmin"`
}

const sessionLifetime = 24 * time.Hour

// Login verifies credentials and opens a redis-backed session.
func Login(ctx context.Context, input *LoginInput) (*LoginResult, error) {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).Where("username = ?", input.Username).First(&user).Error; err != nil {
		return nil, NewValidationError("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, NewValidationError("user is deactivated")
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return nil, NewValidationError("invalid username or password")
	}

	token := uuid.NewString()
	session := sessionPayload{
		Username:   user.Username,
		UserId:     user.ID,
		UserName:   user.Name,
		BusinessId: user.BusinessId,
		IsAdmin:    user.Role == "admin",
	}
	if err := config.SetRedisObject("Token:"+token, &session, sessionLifetime); err != nil {
		return nil, err
	}

	// best-effort; the session token works even if signing fails
	apiToken, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		apiToken = ""
	}

	return &LoginResult{
		Token:      token,
		ApiToken:   apiToken,
		UserId:     user.ID,
		Name:       user.Name,
		BusinessId: user.BusinessId,
	}, nil
}

// Logout drops the redis session for the given token.
func Logout(ctx context.Context, token string) error {
	return config.RemoveRedisKey("Token:" + token)
}
