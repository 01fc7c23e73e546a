package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ProductFamily struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Product struct {
	ID              int        `gorm:"primary_key" json:"id"`
	BusinessId      string     `gorm:"index;not null" json:"business_id"`
	ProductFamilyId int        `gorm:"index" json:"product_family_id"`
	Code            string     `gorm:"size:100;not null;index" json:"code"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Description     string     `gorm:"type:text" json:"description"`
	IsBundleChild   bool       `gorm:"default:false" json:"is_bundle_child"`
	DeletedAt       *time.Time `gorm:"index" json:"deleted_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProductById(ctx context.Context, tx *gorm.DB, businessId string, id int) (*Product, error) {
	var product Product
	err := tx.WithContext(ctx).
		Where("business_id = ? AND deleted_at IS NULL", businessId).
		First(&product, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, NewNotFoundError("product not found")
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}
