package models

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Account Name":     "account name",
		"  account NAME  ": "account name",
		"Account\tName":    "account name",
		"USAGE":            "usage",
	}
	for in, want := range cases {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveColumnsMatchesCaseInsensitively(t *testing.T) {
	header := []string{"Account Name", "Product", "Usage", "Commission"}
	columns, err := resolveColumns(header, map[string]string{
		"accountName": "ACCOUNT  NAME",
		"usage":       "usage",
	})
	if err != nil {
		t.Fatalf("resolveColumns: %v", err)
	}
	if columns["accountName"] != 0 {
		t.Errorf("accountName column = %d, want 0", columns["accountName"])
	}
	if columns["usage"] != 2 {
		t.Errorf("usage column = %d, want 2", columns["usage"])
	}
}

func TestResolveColumnsAmbiguousHeaderIsConflict(t *testing.T) {
	header := []string{"Amount", "amount", "Product"}
	_, err := resolveColumns(header, map[string]string{"usage": "Amount"})
	if err == nil {
		t.Fatal("expected error for ambiguous header")
	}
	if !IsStateConflictError(err) {
		t.Fatalf("err = %v, want state conflict", err)
	}
}

func TestResolveColumnsMissingHeaderIsNotFound(t *testing.T) {
	header := []string{"Account Name", "Product"}
	_, err := resolveColumns(header, map[string]string{"usage": "Usage"})
	if err == nil {
		t.Fatal("expected error for missing header")
	}
	if !IsNotFoundError(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestIsSummaryRow(t *testing.T) {
	summary := [][]string{
		{"Total", "", "500"},
		{"", "Subtotal:", "120"},
		{"GRAND TOTAL", "900"},
		{"grand total:", ""},
	}
	for _, row := range summary {
		if !isSummaryRow(row) {
			t.Errorf("isSummaryRow(%v) = false, want true", row)
		}
	}

	regular := [][]string{
		{"Acme Corporation", "Cloud Compute", "100"},
		{"Total Networks Inc", "Firewall", "30"},
		{"", "", ""},
	}
	for _, row := range regular {
		if isSummaryRow(row) {
			t.Errorf("isSummaryRow(%v) = true, want false", row)
		}
	}
}

func TestParseImportDateISO(t *testing.T) {
	got, err := parseImportDate("2026-03-15")
	if err != nil {
		t.Fatalf("parseImportDate: %v", err)
	}
	want := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	got, err = parseImportDate("2026-03-15T10:30:00Z")
	if err != nil {
		t.Fatalf("parseImportDate rfc3339: %v", err)
	}
	want = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestParseImportDateExcelSerial(t *testing.T) {
	// Serial 1 is 1899-12-31 (epoch day zero is 1899-12-30).
	got, err := parseImportDate("1")
	if err != nil {
		t.Fatalf("parseImportDate: %v", err)
	}
	want := time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("serial 1: got %s, want %s", got, want)
	}

	// The fractional part is an intraday offset.
	got, err = parseImportDate("45000.5")
	if err != nil {
		t.Fatalf("parseImportDate: %v", err)
	}
	want = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 45000).Add(12 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("serial 45000.5: got %s, want %s", got, want)
	}
}

func TestParseImportDateRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "not-a-date", "15/03/2026"} {
		if _, err := parseImportDate(v); err == nil {
			t.Errorf("parseImportDate(%q): expected error", v)
		}
	}
}

func TestBuildLineItemsDerivesRateFromUsageAndCommission(t *testing.T) {
	columns := map[string]int{"accountName": 0, "productName": 1, "usage": 2, "commission": 3}
	rows := [][]string{
		{"Acme Corporation", "Cloud Compute", "1000", "125"},
	}

	lines, skipped, err := buildLineItems("biz", 1, rows, columns, ImportColumnMapping{})
	if err != nil {
		t.Fatalf("buildLineItems: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if !lines[0].CommissionRate.Equal(dec("0.125")) {
		t.Fatalf("rate = %s, want 0.125", lines[0].CommissionRate)
	}
	if !lines[0].UsageUnallocated.Equal(dec("1000")) {
		t.Fatalf("usage unallocated = %s, want 1000", lines[0].UsageUnallocated)
	}
	if lines[0].Status != LineItemStatusUnmatched {
		t.Fatalf("status = %q, want %q", lines[0].Status, LineItemStatusUnmatched)
	}
}

func TestBuildLineItemsCommissionOnlyFile(t *testing.T) {
	// When only commission is mapped, the payout doubles as the usage figure
	// at rate 1.
	columns := map[string]int{"accountName": 0, "commission": 1}
	rows := [][]string{
		{"Acme Corporation", "42.5"},
	}

	lines, _, err := buildLineItems("biz", 1, rows, columns, ImportColumnMapping{})
	if err != nil {
		t.Fatalf("buildLineItems: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if !lines[0].Usage.Equal(dec("42.5")) {
		t.Fatalf("usage = %s, want 42.5", lines[0].Usage)
	}
	if !lines[0].CommissionRate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("rate = %s, want 1", lines[0].CommissionRate)
	}
}

func TestBuildLineItemsSkipsEmptyAndSummaryRows(t *testing.T) {
	columns := map[string]int{"accountName": 0, "usage": 1, "commission": 2}
	rows := [][]string{
		{"Acme Corporation", "100", "10"},
		{"", "", ""},
		{"Subtotal", "100", "10"},
		{"Globex LLC", "200", "20"},
		{"Grand Total:", "300", "30"},
	}

	lines, skipped, err := buildLineItems("biz", 1, rows, columns, ImportColumnMapping{})
	if err != nil {
		t.Fatalf("buildLineItems: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if skipped != 3 {
		t.Fatalf("skipped = %d, want 3", skipped)
	}
	// RowIndex preserves the original file position, skips included.
	if lines[1].RowIndex != 4 {
		t.Fatalf("second line row index = %d, want 4", lines[1].RowIndex)
	}
}

func TestBuildLineItemsRejectsInvalidDecimal(t *testing.T) {
	columns := map[string]int{"usage": 0, "commission": 1}
	rows := [][]string{
		{"abc", "10"},
	}

	_, _, err := buildLineItems("biz", 1, rows, columns, ImportColumnMapping{})
	if err == nil {
		t.Fatal("expected error for invalid usage value")
	}
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("err = %v, want file row number in message", err)
	}
}

func TestParseTabularFileCSV(t *testing.T) {
	csvBytes := []byte("Account,Usage\nAcme Corporation,100\nGlobex LLC,200,extra\n")
	rows, err := parseTabularFile(csvBytes)
	if err != nil {
		t.Fatalf("parseTabularFile: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	// ragged rows are tolerated
	if len(rows[2]) != 3 {
		t.Fatalf("len(rows[2]) = %d, want 3", len(rows[2]))
	}
}
