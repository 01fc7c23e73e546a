package models

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ImportTemplate stores a reusable column->field mapping for a payer's files.
type ImportTemplate struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Config     []byte    `gorm:"type:json" json:"config"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// persistTemplateMapping writes the column mapping into the template's config
// inside the caller's transaction.
func persistTemplateMapping(ctx context.Context, tx *gorm.DB, businessId string, templateId int, mapping map[string]string) error {
	var template ImportTemplate
	err := tx.WithContext(ctx).
		Where("business_id = ?", businessId).
		First(&template, templateId).Error
	if err == gorm.ErrRecordNotFound {
		return NewNotFoundError("import template not found")
	}
	if err != nil {
		return err
	}

	cfg := make(map[string]interface{})
	if len(template.Config) > 0 {
		if err := json.Unmarshal(template.Config, &cfg); err != nil {
			cfg = make(map[string]interface{})
		}
	}
	cfg["columnMapping"] = mapping
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	return tx.WithContext(ctx).Model(&ImportTemplate{}).
		Where("id = ?", template.ID).
		Update("config", raw).Error
}
