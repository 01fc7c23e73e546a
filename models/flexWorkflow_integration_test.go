package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
)

// In-tolerance overage: the allocation executes immediately with one
// adjustment child carrying the delta, and no review item is opened.
func TestApplyMatchAutoAdjustsOverageWithinTolerance(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "100", "10")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,105,10.5\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}

	result, err := models.ApplyMatch(ctx, testMatchSettings(), lines[0].ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       mustDecimal(t, "105"),
		CommissionAmount:  mustDecimal(t, "10.5"),
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	decision := result.FlexDecision
	if decision.Action != models.FlexActionAutoAdjust {
		t.Fatalf("action = %q, want auto_adjust", decision.Action)
	}
	if decision.Classification != models.FlexClassificationOverage {
		t.Fatalf("classification = %q, want Overage", decision.Classification)
	}
	if !decision.Executed {
		t.Fatal("in-tolerance overage must execute")
	}
	if len(decision.CreatedScheduleIds) != 1 {
		t.Fatalf("created schedules = %d, want 1", len(decision.CreatedScheduleIds))
	}
	if decision.FlexReviewItemId != nil {
		t.Fatal("auto-adjust must not open a review item")
	}
	if result.Match == nil || result.Match.Status != models.MatchStatusApplied {
		t.Fatalf("match = %+v, want Applied match", result.Match)
	}

	var child models.RevenueSchedule
	if err := db.WithContext(ctx).First(&child, decision.CreatedScheduleIds[0]).Error; err != nil {
		t.Fatalf("reload adjustment child: %v", err)
	}
	if child.ParentRevenueScheduleId == nil || *child.ParentRevenueScheduleId != fixture.Schedule.ID {
		t.Fatalf("adjustment parent = %v, want %d", child.ParentRevenueScheduleId, fixture.Schedule.ID)
	}
	if !child.ExpectedUsage.Equal(mustDecimal(t, "5")) {
		t.Fatalf("adjustment usage = %s, want 5", child.ExpectedUsage)
	}
	if !child.ExpectedCommission.Equal(mustDecimal(t, "0.5")) {
		t.Fatalf("adjustment commission = %s, want 0.5", child.ExpectedCommission)
	}
	if child.FlexClassification != models.FlexClassificationAdjustment || !child.Executed {
		t.Fatalf("adjustment = (%q, executed=%v), want (Adjustment, true)", child.FlexClassification, child.Executed)
	}

	var reviewCount int64
	if err := db.WithContext(ctx).Model(&models.FlexReviewItem{}).
		Where("business_id = ?", testBusinessId).
		Count(&reviewCount).Error; err != nil {
		t.Fatalf("count review items: %v", err)
	}
	if reviewCount != 0 {
		t.Fatalf("review item count = %d, want 0", reviewCount)
	}
}

// Negative actuals bypass matching entirely: an executed chargeback child is
// recorded, a review item opens, and the line keeps its allocation state.
func TestApplyMatchChargebackOpensReviewItem(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "50", "5")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,-50,-5\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}

	result, err := models.ApplyMatch(ctx, testMatchSettings(), lines[0].ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       mustDecimal(t, "-50"),
		CommissionAmount:  mustDecimal(t, "-5"),
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	if result.Match != nil {
		t.Fatalf("match = %+v, want nil on chargeback", result.Match)
	}
	decision := result.FlexDecision
	if decision.Action != models.FlexActionChargeback {
		t.Fatalf("action = %q, want chargeback", decision.Action)
	}
	if !decision.Executed || len(decision.CreatedScheduleIds) != 1 {
		t.Fatalf("decision = (executed=%v, created=%d), want (true, 1)", decision.Executed, len(decision.CreatedScheduleIds))
	}
	if decision.FlexReviewItemId == nil {
		t.Fatal("chargeback must open a review item")
	}

	var child models.RevenueSchedule
	if err := db.WithContext(ctx).First(&child, decision.CreatedScheduleIds[0]).Error; err != nil {
		t.Fatalf("reload chargeback child: %v", err)
	}
	if !child.ExpectedUsage.Equal(mustDecimal(t, "-50")) {
		t.Fatalf("chargeback usage = %s, want -50", child.ExpectedUsage)
	}
	if child.FlexClassification != models.FlexClassificationChargeback || !child.Executed {
		t.Fatalf("chargeback child = (%q, executed=%v), want (Chargeback, true)", child.FlexClassification, child.Executed)
	}
	if child.ParentRevenueScheduleId == nil || *child.ParentRevenueScheduleId != fixture.Schedule.ID {
		t.Fatalf("chargeback parent = %v, want %d", child.ParentRevenueScheduleId, fixture.Schedule.ID)
	}

	var item models.FlexReviewItem
	if err := db.WithContext(ctx).First(&item, *decision.FlexReviewItemId).Error; err != nil {
		t.Fatalf("reload review item: %v", err)
	}
	if item.Status != models.ReviewStatusOpen {
		t.Fatalf("review item status = %q, want Open", item.Status)
	}
	if item.FlexClassification != models.FlexClassificationChargeback {
		t.Fatalf("review item classification = %q, want Chargeback", item.FlexClassification)
	}
	if item.DepositLineItemId != lines[0].ID || item.RevenueScheduleId != fixture.Schedule.ID {
		t.Fatalf("review item targets = (line %d, schedule %d), want (%d, %d)",
			item.DepositLineItemId, item.RevenueScheduleId, lines[0].ID, fixture.Schedule.ID)
	}

	var line models.DepositLineItem
	if err := db.WithContext(ctx).First(&line, lines[0].ID).Error; err != nil {
		t.Fatalf("reload line: %v", err)
	}
	if line.Status != models.LineItemStatusUnmatched || !line.UsageAllocated.IsZero() {
		t.Fatalf("line = (%q, allocated=%s), want (Unmatched, 0)", line.Status, line.UsageAllocated)
	}
}

// Beyond-tolerance variance executes nothing: the match lands Suggested, the
// line shows Suggested, and the queue workflow (assign, approve-apply)
// upgrades it to Applied.
func TestPromptVarianceReviewWorkflow(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	tightSettings := &models.StaticSettingsProvider{Settings: models.MatchSettings{
		VarianceTolerance:             decimal.NewFromFloat(0.01),
		SuggestedMatchesMinConfidence: decimal.NewFromFloat(0.5),
		AutoMatchMinConfidence:        decimal.NewFromFloat(0.8),
		EngineMode:                    models.MatchingModeLegacy,
	}}

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "100", "10")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,130,13\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}

	result, err := models.ApplyMatch(ctx, tightSettings, lines[0].ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       mustDecimal(t, "130"),
		CommissionAmount:  mustDecimal(t, "13"),
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	decision := result.FlexDecision
	if decision.Action != models.FlexActionPrompt {
		t.Fatalf("action = %q, want prompt", decision.Action)
	}
	if decision.Executed || len(decision.CreatedScheduleIds) != 0 {
		t.Fatalf("prompt executed something: executed=%v created=%d", decision.Executed, len(decision.CreatedScheduleIds))
	}
	if result.Match == nil || result.Match.Status != models.MatchStatusSuggested {
		t.Fatalf("match = %+v, want Suggested match", result.Match)
	}

	var childCount int64
	if err := db.WithContext(ctx).Model(&models.RevenueSchedule{}).
		Where("business_id = ? AND parent_revenue_schedule_id = ?", testBusinessId, fixture.Schedule.ID).
		Count(&childCount).Error; err != nil {
		t.Fatalf("count children: %v", err)
	}
	if childCount != 0 {
		t.Fatalf("child schedules = %d, want 0 for prompt", childCount)
	}

	var line models.DepositLineItem
	if err := db.WithContext(ctx).First(&line, lines[0].ID).Error; err != nil {
		t.Fatalf("reload line: %v", err)
	}
	if line.Status != models.LineItemStatusSuggested {
		t.Fatalf("line status = %q, want Suggested while no match is applied", line.Status)
	}

	// queue the variance for a human decision
	item := models.FlexReviewItem{
		BusinessId:         testBusinessId,
		DepositId:          imported.DepositId,
		DepositLineItemId:  lines[0].ID,
		RevenueScheduleId:  fixture.Schedule.ID,
		FlexClassification: models.FlexClassificationOverage,
		FlexReasonCode:     "prompt",
		Status:             models.ReviewStatusOpen,
	}
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		t.Fatalf("seed review item: %v", err)
	}

	reviewer := models.User{
		BusinessId: testBusinessId,
		Username:   "reviewer@local",
		Name:       "Reviewer",
		Password:   "x",
		Role:       "user",
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&reviewer).Error; err != nil {
		t.Fatalf("seed reviewer: %v", err)
	}
	reviewerCtx := utils.SetUserIdInContext(ctx, reviewer.ID)

	assigned, err := models.AssignFlexReviewItem(reviewerCtx, item.ID, &models.AssignFlexReviewInput{AssignToMe: true})
	if err != nil {
		t.Fatalf("AssignFlexReviewItem: %v", err)
	}
	if assigned.AssignedToUserId == nil || *assigned.AssignedToUserId != reviewer.ID {
		t.Fatalf("assignee = %v, want %d", assigned.AssignedToUserId, reviewer.ID)
	}

	var notificationCount, outboxCount int64
	if err := db.WithContext(ctx).Model(&models.Notification{}).
		Where("business_id = ? AND user_id = ?", testBusinessId, reviewer.ID).
		Count(&notificationCount).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notificationCount != 1 {
		t.Fatalf("notification count = %d, want exactly 1 per assignment", notificationCount)
	}
	if err := db.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("business_id = ? AND user_id = ? AND publish_status = ?",
			testBusinessId, reviewer.ID, models.OutboxPublishStatusPending).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("outbox count = %d, want 1 pending row", outboxCount)
	}

	approved, err := models.ApproveAndApplyFlexReview(ctx, item.ID)
	if err != nil {
		t.Fatalf("ApproveAndApplyFlexReview: %v", err)
	}
	if approved.Status != models.ReviewStatusApproved {
		t.Fatalf("review status = %q, want Approved", approved.Status)
	}

	var match models.DepositLineMatch
	if err := db.WithContext(ctx).First(&match, result.Match.ID).Error; err != nil {
		t.Fatalf("reload match: %v", err)
	}
	if match.Status != models.MatchStatusApplied {
		t.Fatalf("match status = %q, want Applied after approval", match.Status)
	}

	if err := db.WithContext(ctx).First(&line, lines[0].ID).Error; err != nil {
		t.Fatalf("reload line: %v", err)
	}
	if line.Status != models.LineItemStatusMatched {
		t.Fatalf("line status = %q, want Matched after approval", line.Status)
	}

	_, err = models.ApproveAndApplyFlexReview(ctx, item.ID)
	if err == nil {
		t.Fatal("second approval should fail")
	}
	if !models.IsStateConflictError(err) {
		t.Fatalf("second approval err = %v, want state conflict", err)
	}
}

func TestResolveFlexAdjustPropagatesRateToFutureSchedules(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "100", "10")

	future := models.RevenueSchedule{
		BusinessId:         testBusinessId,
		OpportunityId:      fixture.Opportunity.ID,
		ProductId:          fixture.Product.ID,
		AccountId:          fixture.Account.ID,
		ScheduleDate:       time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		ExpectedUsage:      mustDecimal(t, "200"),
		ExpectedCommission: mustDecimal(t, "20"),
		CommissionRate:     decimal.NewFromFloat(0.1),
		Status:             models.ScheduleStatusOpen,
		BillingStatus:      models.BillingStatusOpen,
		FlexClassification: models.FlexClassificationNone,
	}
	if err := db.WithContext(ctx).Create(&future).Error; err != nil {
		t.Fatalf("seed future schedule: %v", err)
	}

	correctedRate := mustDecimal(t, "0.13")
	result, err := models.ResolveFlex(ctx, fixture.Schedule.ID, &models.ResolveFlexInput{
		Action:        models.FlexResolutionAdjust,
		CorrectedRate: &correctedRate,
		ApplyToFuture: true,
		Reason:        "renegotiated rate",
	})
	if err != nil {
		t.Fatalf("ResolveFlex: %v", err)
	}
	if len(result.CreatedScheduleIds) != 1 {
		t.Fatalf("created schedules = %d, want 1 adjustment child", len(result.CreatedScheduleIds))
	}
	if len(result.UpdatedScheduleIds) != 1 || result.UpdatedScheduleIds[0] != future.ID {
		t.Fatalf("updated schedules = %v, want [%d]", result.UpdatedScheduleIds, future.ID)
	}
	if result.BillingStatus != models.BillingStatusOpen {
		t.Fatalf("billing status = %q, want Open after Adjust", result.BillingStatus)
	}

	var base models.RevenueSchedule
	if err := db.WithContext(ctx).First(&base, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload base: %v", err)
	}
	if !base.CommissionRate.Equal(correctedRate) {
		t.Fatalf("base rate = %s, want 0.13", base.CommissionRate)
	}
	if !base.ExpectedCommission.Equal(mustDecimal(t, "13")) {
		t.Fatalf("base commission = %s, want 13", base.ExpectedCommission)
	}
	if base.FlexClassification != models.FlexClassificationAdjustment {
		t.Fatalf("base classification = %q, want Adjustment", base.FlexClassification)
	}

	var reloadedFuture models.RevenueSchedule
	if err := db.WithContext(ctx).First(&reloadedFuture, future.ID).Error; err != nil {
		t.Fatalf("reload future: %v", err)
	}
	if !reloadedFuture.CommissionRate.Equal(correctedRate) {
		t.Fatalf("future rate = %s, want 0.13", reloadedFuture.CommissionRate)
	}
	if !reloadedFuture.ExpectedCommission.Equal(mustDecimal(t, "26")) {
		t.Fatalf("future commission = %s, want 26", reloadedFuture.ExpectedCommission)
	}
}

// The per-business lock stays held by its acquirer until released, so a
// second batch run cannot start mid-flight.
func TestBusinessLockSerializesBatchAcquirers(t *testing.T) {
	ctx := setupReconciliationEnv(t)

	lock, err := utils.BusinessLock(ctx, testBusinessId, "automatch", "flexWorkflow_integration_test.go", "TestBusinessLockSerializesBatchAcquirers")
	if err != nil {
		t.Fatalf("first acquisition: %v", err)
	}
	if _, err := utils.BusinessLock(ctx, testBusinessId, "automatch", "flexWorkflow_integration_test.go", "TestBusinessLockSerializesBatchAcquirers"); err == nil {
		t.Fatal("second acquisition succeeded while the lock is held")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	relock, err := utils.BusinessLock(ctx, testBusinessId, "automatch", "flexWorkflow_integration_test.go", "TestBusinessLockSerializesBatchAcquirers")
	if err != nil {
		t.Fatalf("re-acquisition after release: %v", err)
	}
	_ = relock.Release(ctx)
}
