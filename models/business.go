package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
)

type Business struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Timezone  string    `gorm:"size:100" json:"timezone"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetBusinessById reads the business record, redis first then db.
func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	var business Business
	redisKey := "Business:" + businessId
	exists, err := config.GetRedisObject(redisKey, &business)
	if err != nil {
		return nil, err
	}
	if exists {
		return &business, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).First(&business, "id = ?", businessId).Error; err != nil {
		return nil, NewNotFoundError("business not found")
	}
	if err := config.SetRedisObject(redisKey, &business, 0); err != nil {
		return nil, err
	}
	return &business, nil
}
