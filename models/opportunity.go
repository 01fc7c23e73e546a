package models

import "time"

// Opportunity ties revenue schedules to a sold deal on an account.
type Opportunity struct {
	ID            int        `gorm:"primary_key" json:"id"`
	BusinessId    string     `gorm:"index;not null" json:"business_id"`
	AccountId     int        `gorm:"index;not null" json:"account_id"`
	Name          string     `gorm:"size:255;not null" json:"name"`
	DistributorId int        `gorm:"index" json:"distributor_id"`
	VendorId      int        `gorm:"index" json:"vendor_id"`
	CloseDate     *time.Time `json:"close_date"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
