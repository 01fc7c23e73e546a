// seed-dev creates a development tenant with a login user, customer accounts,
// products, an opportunity, and a few revenue schedules so deposit imports have
// something to match against.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	devBusinessId = "dev-business"
	devUsername   = "devUser"
	devPassword   = "devPassword123"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetBusinessIdInContext(ctx, devBusinessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	var business models.Business
	err := db.WithContext(ctx).Where("id = ?", devBusinessId).First(&business).Error
	if err == gorm.ErrRecordNotFound {
		business = models.Business{
			ID:       devBusinessId,
			Name:     "Dev Commissions",
			Email:    "dev@example.com",
			Timezone: "UTC",
			IsActive: utils.NewTrue(),
		}
		if err = db.WithContext(ctx).Create(&business).Error; err == nil {
			fmt.Printf("Created business %q\n", devBusinessId)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed business: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(devPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	var user models.User
	err = db.WithContext(ctx).Where("username = ?", devUsername).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = models.User{
			BusinessId: devBusinessId,
			Username:   devUsername,
			Name:       "Dev User",
			Email:      "dev@example.com",
			Password:   string(hashed),
			Role:       "admin",
			IsActive:   utils.NewTrue(),
		}
		if err = db.WithContext(ctx).Create(&user).Error; err == nil {
			fmt.Printf("Created user %q (password %q)\n", devUsername, devPassword)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed user: %v\n", err)
		os.Exit(1)
	}

	accounts := []models.Account{
		{BusinessId: devBusinessId, Name: "Acme (display)", LegalName: "Acme Corporation", AccountType: "Customer", IsActive: utils.NewTrue()},
		{BusinessId: devBusinessId, Name: "Globex (display)", LegalName: "Globex LLC", AccountType: "Customer", IsActive: utils.NewTrue()},
	}
	for i := range accounts {
		var existing models.Account
		err = db.WithContext(ctx).
			Where("business_id = ? AND legal_name = ?", devBusinessId, accounts[i].LegalName).
			First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err = db.WithContext(ctx).Create(&accounts[i]).Error; err == nil {
				fmt.Printf("Created account %q\n", accounts[i].LegalName)
				continue
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed account %q: %v\n", accounts[i].LegalName, err)
			os.Exit(1)
		}
		accounts[i] = existing
	}

	family := models.ProductFamily{BusinessId: devBusinessId, Name: "Cloud Services"}
	err = db.WithContext(ctx).
		Where("business_id = ? AND name = ?", devBusinessId, family.Name).
		FirstOrCreate(&family).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed product family: %v\n", err)
		os.Exit(1)
	}

	products := []models.Product{
		{BusinessId: devBusinessId, ProductFamilyId: family.ID, Code: "CLD-COMPUTE", Name: "Cloud Compute"},
		{BusinessId: devBusinessId, ProductFamilyId: family.ID, Code: "CLD-STORAGE", Name: "Cloud Storage"},
	}
	for i := range products {
		var existing models.Product
		err = db.WithContext(ctx).
			Where("business_id = ? AND code = ?", devBusinessId, products[i].Code).
			First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err = db.WithContext(ctx).Create(&products[i]).Error; err == nil {
				fmt.Printf("Created product %q\n", products[i].Code)
				continue
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed product %q: %v\n", products[i].Code, err)
			os.Exit(1)
		}
		products[i] = existing
	}

	opportunity := models.Opportunity{
		BusinessId: devBusinessId,
		AccountId:  accounts[0].ID,
		Name:       "Acme Cloud Renewal",
	}
	err = db.WithContext(ctx).
		Where("business_id = ? AND name = ?", devBusinessId, opportunity.Name).
		FirstOrCreate(&opportunity).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed opportunity: %v\n", err)
		os.Exit(1)
	}

	// Three months of schedules starting with the current month.
	monthStart := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	var scheduleCount int64
	db.WithContext(ctx).Model(&models.RevenueSchedule{}).
		Where("business_id = ? AND opportunity_id = ?", devBusinessId, opportunity.ID).
		Count(&scheduleCount)
	if scheduleCount == 0 {
		for month := 0; month < 3; month++ {
			for _, product := range products {
				schedule := models.RevenueSchedule{
					BusinessId:         devBusinessId,
					OpportunityId:      opportunity.ID,
					ProductId:          product.ID,
					AccountId:          accounts[0].ID,
					ScheduleDate:       monthStart.AddDate(0, month, 0),
					ExpectedUsage:      decimal.NewFromInt(1000),
					ExpectedCommission: decimal.NewFromInt(100),
					CommissionRate:     decimal.NewFromFloat(0.1),
				}
				if err = db.WithContext(ctx).Create(&schedule).Error; err != nil {
					fmt.Fprintf(os.Stderr, "failed to seed revenue schedule: %v\n", err)
					os.Exit(1)
				}
			}
		}
		fmt.Println("Created revenue schedules for 3 months")
	}

	tenant := models.TenantSettings{
		BusinessId:        devBusinessId,
		VarianceTolerance: decimal.NewFromFloat(0.1),
		EngineMode:        models.MatchingModeLegacy,
	}
	err = db.WithContext(ctx).
		Where("business_id = ?", devBusinessId).
		FirstOrCreate(&tenant).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed tenant settings: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Dev seed complete")
}
