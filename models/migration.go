package models

import (
	"log"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&TenantSettings{}, &UserMatchSettings{},
		&Account{}, &ProductFamily{}, &Product{}, &Opportunity{},
		&ImportTemplate{},
		&Deposit{}, &DepositLineItem{}, &RevenueSchedule{}, &DepositLineMatch{},
		&FlexReviewItem{}, &BundleOperation{},
		&Notification{}, &NotificationOutbox{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
