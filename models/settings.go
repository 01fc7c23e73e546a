package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TenantSettings holds per-business reconciliation knobs.
type TenantSettings struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"size:64;not null;uniqueIndex" json:"business_id"`
	VarianceTolerance decimal.Decimal `gorm:"type:decimal(10,4);default:0.1" json:"variance_tolerance"`
	EngineMode        MatchingMode    `gorm:"size:20;default:legacy" json:"engine_mode"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserMatchSettings holds per-user confidence thresholds.
type UserMatchSettings struct {
	ID                            int             `gorm:"primary_key" json:"id"`
	BusinessId                    string          `gorm:"size:64;not null;index:uniq_user_match,unique" json:"business_id"`
	UserId                        int             `gorm:"not null;index:uniq_user_match,unique" json:"user_id"`
	SuggestedMatchesMinConfidence decimal.Decimal `gorm:"type:decimal(10,4);default:0.5" json:"suggested_matches_min_confidence"`
	AutoMatchMinConfidence        decimal.Decimal `gorm:"type:decimal(10,4);default:0.8" json:"auto_match_min_confidence"`
	CreatedAt                     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchSettings is the resolved view the matcher and allocation engine consume.
type MatchSettings struct {
	VarianceTolerance             decimal.Decimal
	SuggestedMatchesMinConfidence decimal.Decimal
	AutoMatchMinConfidence        decimal.Decimal
	EngineMode                    MatchingMode
}

// SettingsProvider supplies the per-call settings so decision logic stays
// testable with fixed inputs.
type SettingsProvider interface {
	MatchSettings(ctx context.Context, businessId string, userId int) (*MatchSettings, error)
}

func defaultMatchSettings() *MatchSettings {
	return &MatchSettings{
		VarianceTolerance:             decimal.NewFromFloat(0.1),
		SuggestedMatchesMinConfidence: decimal.NewFromFloat(0.5),
		AutoMatchMinConfidence:        decimal.NewFromFloat(0.8),
		EngineMode:                    MatchingMode(config.DefaultMatchingMode()),
	}
}

// DBSettingsProvider reads tenant and user settings from the ledger store,
// falling back to defaults when rows are absent.
type DBSettingsProvider struct{}

func NewDBSettingsProvider() *DBSettingsProvider { return &DBSettingsProvider{} }

func (p *DBSettingsProvider) MatchSettings(ctx context.Context, businessId string, userId int) (*MatchSettings, error) {
	db := config.GetDB()
	settings := defaultMatchSettings()

	var tenant TenantSettings
	err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&tenant).Error
	if err == nil {
		settings.VarianceTolerance = tenant.VarianceTolerance
		if tenant.EngineMode != "" {
			settings.EngineMode = tenant.EngineMode
		}
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if userId > 0 {
		var user UserMatchSettings
		err = db.WithContext(ctx).Where("business_id = ? AND user_id = ?", businessId, userId).First(&user).Error
		if err == nil {
			settings.SuggestedMatchesMinConfidence = user.SuggestedMatchesMinConfidence
			settings.AutoMatchMinConfidence = user.AutoMatchMinConfidence
		} else if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	return settings, nil
}

// StaticSettingsProvider returns the same settings on every call.
type StaticSettingsProvider struct {
	Settings MatchSettings
}

func (p *StaticSettingsProvider) MatchSettings(ctx context.Context, businessId string, userId int) (*MatchSettings, error) {
	s := p.Settings
	return &s, nil
}
