package models

import (
	"context"
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MatchCandidate is the uniform candidate shape returned by every matching
// strategy. Legacy candidates are always tagged "legacy"; hierarchical
// candidates never use that tag.
type MatchCandidate struct {
	RevenueScheduleId int              `json:"revenueScheduleId"`
	Schedule          *RevenueSchedule `json:"schedule"`
	MatchType         string           `json:"matchType"`
	ConfidenceScore   decimal.Decimal  `json:"confidenceScore"`
}

// matchStrategy ranks one line against one eligible schedule.
type matchStrategy interface {
	mode() MatchingMode
	score(line *DepositLineItem, schedule *RevenueSchedule, productName string) (matchType string, confidence decimal.Decimal)
}

func strategyForMode(mode MatchingMode) matchStrategy {
	if mode == MatchingModeHierarchical {
		return hierarchicalStrategy{}
	}
	return legacyStrategy{}
}

// normalizeName collapses whitespace and lowercases for name comparison.
func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// legacyStrategy is the original flat scorer: every candidate is tagged
// "legacy" and scored on product-name similarity alone.
type legacyStrategy struct{}

func (legacyStrategy) mode() MatchingMode { return MatchingModeLegacy }

func (legacyStrategy) score(line *DepositLineItem, schedule *RevenueSchedule, productName string) (string, decimal.Decimal) {
	lineName := normalizeName(line.ProductNameRaw)
	scheduleName := normalizeName(productName)

	switch {
	case lineName != "" && lineName == scheduleName:
		return "legacy", decimal.NewFromFloat(0.95)
	case lineName != "" && scheduleName != "" &&
		(strings.Contains(scheduleName, lineName) || strings.Contains(lineName, scheduleName)):
		return "legacy", decimal.NewFromFloat(0.75)
	default:
		return "legacy", decimal.NewFromFloat(0.5)
	}
}

// hierarchicalStrategy scores in tiers: exact product-name match, partial
// product-name match on the account, then account-only fallback.
type hierarchicalStrategy struct{}

func (hierarchicalStrategy) mode() MatchingMode { return MatchingModeHierarchical }

func (hierarchicalStrategy) score(line *DepositLineItem, schedule *RevenueSchedule, productName string) (string, decimal.Decimal) {
	lineName := normalizeName(line.ProductNameRaw)
	scheduleName := normalizeName(productName)

	switch {
	case lineName != "" && lineName == scheduleName:
		return "exact", decimal.NewFromFloat(0.95)
	case lineName != "" && scheduleName != "" &&
		(strings.Contains(scheduleName, lineName) || strings.Contains(lineName, scheduleName)):
		return "account_product", decimal.NewFromFloat(0.8)
	default:
		return "account", decimal.NewFromFloat(0.6)
	}
}

// eligibleSchedules loads schedules for the line's account within the
// deposit's month window. includeFuture additionally admits schedules after
// the window, so the result is always a superset of the windowed set.
func eligibleSchedules(ctx context.Context, tx *gorm.DB, businessId string, accountId int, deposit *Deposit, includeFuture bool) ([]*RevenueSchedule, error) {
	monthStart, monthEnd := utils.GetMonthRange(deposit.Month)

	dbCtx := tx.WithContext(ctx).
		Where("business_id = ? AND account_id = ? AND deleted_at IS NULL", businessId, accountId).
		Where("billing_status <> ?", BillingStatusReconciled).
		Where("schedule_date >= ?", monthStart)
	if !includeFuture {
		dbCtx = dbCtx.Where("schedule_date < ?", monthEnd)
	}

	var schedules []*RevenueSchedule
	if err := dbCtx.Order("schedule_date ASC, id ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func productNamesByIds(ctx context.Context, tx *gorm.DB, businessId string, schedules []*RevenueSchedule) (map[int]string, error) {
	ids := make([]int, 0, len(schedules))
	for _, s := range schedules {
		if s.ProductId > 0 {
			ids = append(ids, s.ProductId)
		}
	}
	names := make(map[int]string)
	if len(ids) == 0 {
		return names, nil
	}

	var products []Product
	err := tx.WithContext(ctx).
		Where("business_id = ? AND id IN ?", businessId, utils.UniqueSlice(ids)).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names, nil
}

// candidatesForLine runs the full candidate pipeline: account resolution via
// legal name, month-window schedule lookup, strategy scoring, confidence
// filtering, ranking.
func candidatesForLine(ctx context.Context, tx *gorm.DB, businessId string, line *DepositLineItem, deposit *Deposit, mode MatchingMode, includeFuture bool, minConfidence decimal.Decimal) ([]*MatchCandidate, error) {

	account, err := ResolveAccountByLegalName(ctx, tx, businessId, line.AccountNameRaw)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return []*MatchCandidate{}, nil
	}

	schedules, err := eligibleSchedules(ctx, tx, businessId, account.ID, deposit, includeFuture)
	if err != nil {
		return nil, err
	}
	productNames, err := productNamesByIds(ctx, tx, businessId, schedules)
	if err != nil {
		return nil, err
	}

	strategy := strategyForMode(mode)
	candidates := make([]*MatchCandidate, 0, len(schedules))
	for _, schedule := range schedules {
		matchType, confidence := strategy.score(line, schedule, productNames[schedule.ProductId])
		if confidence.LessThan(minConfidence) {
			continue
		}
		candidates = append(candidates, &MatchCandidate{
			RevenueScheduleId: schedule.ID,
			Schedule:          schedule,
			MatchType:         matchType,
			ConfidenceScore:   confidence,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].ConfidenceScore.Equal(candidates[j].ConfidenceScore) {
			return candidates[i].ConfidenceScore.GreaterThan(candidates[j].ConfidenceScore)
		}
		if !candidates[i].Schedule.ScheduleDate.Equal(candidates[j].Schedule.ScheduleDate) {
			return candidates[i].Schedule.ScheduleDate.Before(candidates[j].Schedule.ScheduleDate)
		}
		return candidates[i].RevenueScheduleId < candidates[j].RevenueScheduleId
	})

	return candidates, nil
}

// SuggestMatches returns ranked candidate schedules for one deposit line,
// filtered by the caller's suggested-matches confidence threshold.
func SuggestMatches(ctx context.Context, settings SettingsProvider, lineId int, includeFuture bool) ([]*MatchCandidate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	matchSettings, err := settings.MatchSettings(ctx, businessId, userId)
	if err != nil {
		return nil, err
	}

	line, err := GetDepositLineItem(ctx, businessId, lineId)
	if err != nil {
		return nil, err
	}
	deposit, err := GetDeposit(ctx, businessId, line.DepositId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	return candidatesForLine(ctx, db, businessId, line, deposit,
		matchSettings.EngineMode, includeFuture, matchSettings.SuggestedMatchesMinConfidence)
}
