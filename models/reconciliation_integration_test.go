package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
)

const testBusinessId = "test-business"

func testMatchSettings() *models.StaticSettingsProvider {
	return &models.StaticSettingsProvider{Settings: models.MatchSettings{
		VarianceTolerance:             decimal.NewFromFloat(0.1),
		SuggestedMatchesMinConfidence: decimal.NewFromFloat(0.5),
		AutoMatchMinConfidence:        decimal.NewFromFloat(0.8),
		EngineMode:                    models.MatchingModeLegacy,
	}}
}

// setupReconciliationEnv boots MySQL + Redis in docker, connects the config
// singletons, migrates, and seeds the test business. Returns a context carrying
// the business/user identity the mutations expect.
func setupReconciliationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "commissions_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, testBusinessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	business := models.Business{
		ID:       testBusinessId,
		Name:     "Test Business",
		Timezone: "UTC",
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}

	return ctx
}

type matchFixture struct {
	Account     models.Account
	Product     models.Product
	Opportunity models.Opportunity
	Schedule    models.RevenueSchedule
}

// seedMatchFixture creates one account/product/opportunity with a single
// revenue schedule dated at the given month start.
func seedMatchFixture(t *testing.T, ctx context.Context, legalName, productName string, scheduleDate time.Time, expectedUsage, expectedCommission string) matchFixture {
	t.Helper()
	db := config.GetDB()

	fixture := matchFixture{
		Account: models.Account{
			BusinessId: testBusinessId,
			Name:       legalName + " (display)",
			LegalName:  legalName,
			IsActive:   utils.NewTrue(),
		},
	}
	if err := db.WithContext(ctx).Create(&fixture.Account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	family := models.ProductFamily{BusinessId: testBusinessId, Name: productName + " Family"}
	if err := db.WithContext(ctx).Create(&family).Error; err != nil {
		t.Fatalf("seed product family: %v", err)
	}
	fixture.Product = models.Product{
		BusinessId:      testBusinessId,
		ProductFamilyId: family.ID,
		Code:            strings.ToUpper(strings.ReplaceAll(productName, " ", "-")),
		Name:            productName,
	}
	if err := db.WithContext(ctx).Create(&fixture.Product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	fixture.Opportunity = models.Opportunity{
		BusinessId: testBusinessId,
		AccountId:  fixture.Account.ID,
		Name:       legalName + " Deal",
	}
	if err := db.WithContext(ctx).Create(&fixture.Opportunity).Error; err != nil {
		t.Fatalf("seed opportunity: %v", err)
	}

	fixture.Schedule = models.RevenueSchedule{
		BusinessId:         testBusinessId,
		OpportunityId:      fixture.Opportunity.ID,
		ProductId:          fixture.Product.ID,
		AccountId:          fixture.Account.ID,
		ScheduleDate:       scheduleDate,
		ExpectedUsage:      mustDecimal(t, expectedUsage),
		ExpectedCommission: mustDecimal(t, expectedCommission),
		CommissionRate:     decimal.NewFromFloat(0.1),
		Status:             models.ScheduleStatusOpen,
		BillingStatus:      models.BillingStatusOpen,
		FlexClassification: models.FlexClassificationNone,
	}
	if err := db.WithContext(ctx).Create(&fixture.Schedule).Error; err != nil {
		t.Fatalf("seed revenue schedule: %v", err)
	}

	return fixture
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func importTestDeposit(t *testing.T, ctx context.Context, idempotencyKey string, csvRows string) *models.ImportDepositResult {
	t.Helper()
	input := &models.ImportDepositInput{
		DepositName: "March Remittance",
		PaymentDate: "2026-03-05",
		Mapping: models.ImportColumnMapping{
			AccountName: "Account",
			ProductName: "Product",
			Usage:       "Usage",
			Commission:  "Commission",
		},
	}
	if idempotencyKey != "" {
		input.IdempotencyKey = &idempotencyKey
	}
	result, err := models.ImportDeposit(ctx, input, []byte(csvRows))
	if err != nil {
		t.Fatalf("ImportDeposit: %v", err)
	}
	return result
}

func TestImportDepositIdempotencyReplaysSameDeposit(t *testing.T) {
	ctx := setupReconciliationEnv(t)

	csvRows := "Account,Product,Usage,Commission\n" +
		"Acme Corporation,Cloud Compute,1000,100\n" +
		"Globex LLC,Cloud Storage,500,50\n" +
		"Total,,1500,150\n"

	first := importTestDeposit(t, ctx, "import-key-1", csvRows)
	if first.Idempotent {
		t.Fatal("first import flagged idempotent")
	}
	if first.LineCount != 2 {
		t.Fatalf("line count = %d, want 2 (summary row must be skipped)", first.LineCount)
	}
	if first.SkippedRows != 1 {
		t.Fatalf("skipped rows = %d, want 1", first.SkippedRows)
	}

	second := importTestDeposit(t, ctx, "import-key-1", csvRows)
	if !second.Idempotent {
		t.Fatal("second import with the same key not flagged idempotent")
	}
	if second.DepositId != first.DepositId {
		t.Fatalf("replay deposit id = %d, want %d", second.DepositId, first.DepositId)
	}
	if second.LineCount != 2 {
		t.Fatalf("replay line count = %d, want 2", second.LineCount)
	}

	var depositCount int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Deposit{}).
		Where("business_id = ?", testBusinessId).
		Count(&depositCount).Error; err != nil {
		t.Fatalf("count deposits: %v", err)
	}
	if depositCount != 1 {
		t.Fatalf("deposit count = %d, want 1", depositCount)
	}
}

func TestApplyMatchThenUnmatchRestoresAllocationState(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "1000", "100")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,1000,100\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	line := lines[0]

	result, err := models.ApplyMatch(ctx, testMatchSettings(), line.ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       line.UsageUnallocated,
		CommissionAmount:  line.CommissionUnallocated,
		ConfidenceScore:   decimal.NewFromFloat(0.95),
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}
	if result.Match == nil {
		t.Fatal("expected a match to be created")
	}
	if result.Match.Status != models.MatchStatusApplied {
		t.Fatalf("match status = %q, want Applied", result.Match.Status)
	}

	var matched models.DepositLineItem
	if err := db.WithContext(ctx).First(&matched, line.ID).Error; err != nil {
		t.Fatalf("reload line: %v", err)
	}
	if !matched.UsageAllocated.Add(matched.UsageUnallocated).Equal(matched.Usage) {
		t.Fatalf("usage allocation invariant broken: %s + %s != %s",
			matched.UsageAllocated, matched.UsageUnallocated, matched.Usage)
	}
	if !matched.CommissionAllocated.Add(matched.CommissionUnallocated).Equal(matched.Commission) {
		t.Fatalf("commission allocation invariant broken: %s + %s != %s",
			matched.CommissionAllocated, matched.CommissionUnallocated, matched.Commission)
	}
	if matched.Status != models.LineItemStatusMatched {
		t.Fatalf("line status = %q, want Matched", matched.Status)
	}

	var schedule models.RevenueSchedule
	if err := db.WithContext(ctx).First(&schedule, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if schedule.Status != models.ScheduleStatusFullyReconciled {
		t.Fatalf("schedule status = %q, want FullyReconciled", schedule.Status)
	}

	restored, err := models.UnmatchLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("UnmatchLine: %v", err)
	}
	if !restored.UsageAllocated.IsZero() || !restored.UsageUnallocated.Equal(line.Usage) {
		t.Fatalf("usage not restored: allocated=%s unallocated=%s",
			restored.UsageAllocated, restored.UsageUnallocated)
	}
	if !restored.CommissionAllocated.IsZero() || !restored.CommissionUnallocated.Equal(line.Commission) {
		t.Fatalf("commission not restored: allocated=%s unallocated=%s",
			restored.CommissionAllocated, restored.CommissionUnallocated)
	}
	if restored.Status != models.LineItemStatusUnmatched {
		t.Fatalf("line status after unmatch = %q, want Unmatched", restored.Status)
	}
	if restored.PrimaryRevenueScheduleId != nil {
		t.Fatal("primary schedule pointer not cleared")
	}

	if err := db.WithContext(ctx).First(&schedule, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if schedule.Status != models.ScheduleStatusOpen {
		t.Fatalf("schedule status after unmatch = %q, want Open", schedule.Status)
	}

	var matchCount int64
	if err := db.WithContext(ctx).Model(&models.DepositLineMatch{}).
		Where("business_id = ? AND deposit_line_item_id = ?", testBusinessId, line.ID).
		Count(&matchCount).Error; err != nil {
		t.Fatalf("count matches: %v", err)
	}
	if matchCount != 0 {
		t.Fatalf("match count after unmatch = %d, want 0", matchCount)
	}
}

func TestApplyBundleIdempotentReplayAndUndo(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Suite",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "1000", "100")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,400,40\n"+
		"Acme Corporation,Cloud Storage,600,60\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}
	lineIds := []int{lines[0].ID, lines[1].ID}

	input := &models.ApplyBundleInput{
		LineIds:               lineIds,
		BaseRevenueScheduleId: fixture.Schedule.ID,
		Mode:                  models.BundleModeSoftDeleteOld,
		Reason:                "split bundle remittance",
	}

	first, err := models.ApplyBundle(ctx, input)
	if err != nil {
		t.Fatalf("ApplyBundle: %v", err)
	}
	if first.Idempotent {
		t.Fatal("first apply flagged idempotent")
	}
	if len(first.CreatedRevenueScheduleIds) != 2 {
		t.Fatalf("created schedules = %d, want 2 (2 lines x 1 window schedule)", len(first.CreatedRevenueScheduleIds))
	}
	if len(first.LineToScheduleMap) != 2 {
		t.Fatalf("line-to-schedule map size = %d, want 2", len(first.LineToScheduleMap))
	}

	// the replaced base schedule is soft-deleted
	var base models.RevenueSchedule
	if err := db.WithContext(ctx).First(&base, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload base schedule: %v", err)
	}
	if base.DeletedAt == nil {
		t.Fatal("base schedule not soft-deleted in soft_delete_old mode")
	}

	// identical retry replays the recorded result
	second, err := models.ApplyBundle(ctx, input)
	if err != nil {
		t.Fatalf("ApplyBundle retry: %v", err)
	}
	if !second.Idempotent {
		t.Fatal("retry not flagged idempotent")
	}
	if second.BundleAuditLogId != first.BundleAuditLogId {
		t.Fatalf("retry audit log id = %d, want %d", second.BundleAuditLogId, first.BundleAuditLogId)
	}
	if len(second.CreatedRevenueScheduleIds) != len(first.CreatedRevenueScheduleIds) {
		t.Fatalf("retry created schedules = %d, want %d",
			len(second.CreatedRevenueScheduleIds), len(first.CreatedRevenueScheduleIds))
	}

	var operationCount int64
	if err := db.WithContext(ctx).Model(&models.BundleOperation{}).
		Where("business_id = ?", testBusinessId).
		Count(&operationCount).Error; err != nil {
		t.Fatalf("count bundle operations: %v", err)
	}
	if operationCount != 1 {
		t.Fatalf("bundle operation count = %d, want 1", operationCount)
	}

	undone, err := models.UndoBundle(ctx, first.BundleAuditLogId, "wrong base schedule")
	if err != nil {
		t.Fatalf("UndoBundle: %v", err)
	}
	if len(undone.RemovedScheduleIds) != 2 {
		t.Fatalf("removed schedules = %d, want 2", len(undone.RemovedScheduleIds))
	}
	if len(undone.RestoredScheduleIds) != 1 {
		t.Fatalf("restored schedules = %d, want 1", len(undone.RestoredScheduleIds))
	}

	if err := db.WithContext(ctx).First(&base, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload base schedule: %v", err)
	}
	if base.DeletedAt != nil {
		t.Fatal("base schedule not restored by undo")
	}

	_, err = models.UndoBundle(ctx, first.BundleAuditLogId, "again")
	if err == nil {
		t.Fatal("second undo should fail")
	}
	if !models.IsStateConflictError(err) {
		t.Fatalf("second undo err = %v, want state conflict", err)
	}
}

func TestApplyBundleRejectsLinesWithAppliedAllocations(t *testing.T) {
	ctx := setupReconciliationEnv(t)

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "400", "40")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,400,40\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}

	_, err = models.ApplyMatch(ctx, testMatchSettings(), lines[0].ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       lines[0].Usage,
		CommissionAmount:  lines[0].Commission,
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	_, err = models.ApplyBundle(ctx, &models.ApplyBundleInput{
		LineIds:               []int{lines[0].ID},
		BaseRevenueScheduleId: fixture.Schedule.ID,
		Mode:                  models.BundleModeKeepOld,
	})
	if err == nil {
		t.Fatal("expected bundle apply to fail on allocated lines")
	}
	if !models.IsStateConflictError(err) {
		t.Fatalf("err = %v, want state conflict", err)
	}
	if !strings.Contains(err.Error(), "already have applied allocations") {
		t.Fatalf("err = %v, want applied-allocations message", err)
	}
}

func TestFinalizeDepositLifecycle(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	fixture := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "1000", "100")

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,1000,100\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}
	_, err = models.ApplyMatch(ctx, testMatchSettings(), lines[0].ID, &models.ApplyMatchInput{
		RevenueScheduleId: fixture.Schedule.ID,
		UsageAmount:       lines[0].Usage,
		CommissionAmount:  lines[0].Commission,
	})
	if err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	finalized, err := models.FinalizeDeposit(ctx, imported.DepositId)
	if err != nil {
		t.Fatalf("FinalizeDeposit: %v", err)
	}
	if finalized.Status != models.DepositStatusCompleted || !finalized.Reconciled {
		t.Fatalf("deposit = (%q, reconciled=%v), want (Completed, true)", finalized.Status, finalized.Reconciled)
	}

	var schedule models.RevenueSchedule
	if err := db.WithContext(ctx).First(&schedule, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if schedule.BillingStatus != models.BillingStatusReconciled {
		t.Fatalf("billing status = %q, want Reconciled", schedule.BillingStatus)
	}

	_, err = models.FinalizeDeposit(ctx, imported.DepositId)
	if err == nil {
		t.Fatal("double finalize should fail")
	}
	if !models.IsStateConflictError(err) || !strings.Contains(err.Error(), "already finalized") {
		t.Fatalf("double finalize err = %v, want already-finalized conflict", err)
	}

	unfinalized, err := models.UnfinalizeDeposit(ctx, imported.DepositId)
	if err != nil {
		t.Fatalf("UnfinalizeDeposit: %v", err)
	}
	if unfinalized.Status != models.DepositStatusInReview || unfinalized.Reconciled {
		t.Fatalf("deposit = (%q, reconciled=%v), want (InReview, false)", unfinalized.Status, unfinalized.Reconciled)
	}
	if err := db.WithContext(ctx).First(&schedule, fixture.Schedule.ID).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if schedule.BillingStatus != models.BillingStatusOpen {
		t.Fatalf("billing status after unfinalize = %q, want Open", schedule.BillingStatus)
	}
}

// Status=Completed alone means finalized, even when the reconciled flag
// disagrees on a historical row.
func TestFinalizeDepositTrustsStatusOverReconciledFlag(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,1000,100\n")

	err := db.WithContext(ctx).Model(&models.Deposit{}).
		Where("business_id = ? AND id = ?", testBusinessId, imported.DepositId).
		Updates(map[string]interface{}{
			"status":     models.DepositStatusCompleted,
			"reconciled": false,
		}).Error
	if err != nil {
		t.Fatalf("force status: %v", err)
	}

	_, err = models.FinalizeDeposit(ctx, imported.DepositId)
	if err == nil {
		t.Fatal("finalize should fail on Completed deposit regardless of reconciled flag")
	}
	if !models.IsStateConflictError(err) || !strings.Contains(err.Error(), "already finalized") {
		t.Fatalf("err = %v, want already-finalized conflict", err)
	}
}

// Account resolution goes through legal names only: decoy accounts with
// near-identical display names must never contribute candidates.
func TestSuggestMatchesResolvesAccountsByLegalNameOnly(t *testing.T) {
	ctx := setupReconciliationEnv(t)
	db := config.GetDB()

	monthStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	target := seedMatchFixture(t, ctx, "Acme Corporation", "Cloud Compute", monthStart, "1000", "100")

	// decoys: display names identical to the raw string, legal names distinct
	for i := 0; i < 35; i++ {
		decoy := seedMatchFixture(t, ctx,
			fmt.Sprintf("Acme Corporation Subsidiary %d", i), "Cloud Compute", monthStart, "1000", "100")
		err := db.WithContext(ctx).Model(&models.Account{}).
			Where("id = ?", decoy.Account.ID).
			Update("name", "Acme Corporation").Error
		if err != nil {
			t.Fatalf("rename decoy account: %v", err)
		}
	}

	imported := importTestDeposit(t, ctx, "", "Account,Product,Usage,Commission\n"+
		"Acme Corporation,Cloud Compute,1000,100\n")
	lines, err := models.ListDepositLineItems(ctx, testBusinessId, imported.DepositId)
	if err != nil {
		t.Fatalf("ListDepositLineItems: %v", err)
	}

	candidates, err := models.SuggestMatches(ctx, testMatchSettings(), lines[0].ID, false)
	if err != nil {
		t.Fatalf("SuggestMatches: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidate count = %d, want 1 (decoy accounts leaked in)", len(candidates))
	}
	if candidates[0].RevenueScheduleId != target.Schedule.ID {
		t.Fatalf("candidate schedule = %d, want %d", candidates[0].RevenueScheduleId, target.Schedule.ID)
	}
	if candidates[0].MatchType != "legacy" {
		t.Fatalf("match type = %q, want legacy", candidates[0].MatchType)
	}
	if !candidates[0].ConfidenceScore.Equal(decimal.NewFromFloat(0.95)) {
		t.Fatalf("confidence = %s, want 0.95", candidates[0].ConfidenceScore)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("commissions-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("commissions-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=commissions_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
