package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"gorm.io/gorm"
)

// Account is a customer account. LegalName is the canonical name deposit
// line account strings are resolved against; Name is display-only.
type Account struct {
	ID          int        `gorm:"primary_key" json:"id"`
	BusinessId  string     `gorm:"index;not null" json:"business_id"`
	Name        string     `gorm:"size:255;not null" json:"name"`
	LegalName   string     `gorm:"size:255;not null;index" json:"legal_name"`
	AccountType string     `gorm:"size:100" json:"account_type"`
	IsActive    *bool      `gorm:"default:true" json:"is_active"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolveAccountByLegalName looks up accounts whose legal name equals the raw
// imported account string (case/whitespace-insensitive). Display names are
// deliberately not consulted.
func ResolveAccountByLegalName(ctx context.Context, tx *gorm.DB, businessId string, rawName string) (*Account, error) {
	normalized := strings.TrimSpace(rawName)
	if normalized == "" {
		return nil, nil
	}

	var account Account
	err := tx.WithContext(ctx).
		Where("business_id = ? AND deleted_at IS NULL", businessId).
		Where("LOWER(TRIM(legal_name)) = LOWER(?)", normalized).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccount(ctx context.Context, businessId string, id int) (*Account, error) {
	db := config.GetDB()
	var account Account
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&account, id).Error; err != nil {
		return nil, NewNotFoundError("account not found")
	}
	return &account, nil
}
