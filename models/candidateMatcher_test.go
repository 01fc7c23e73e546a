package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLegacyStrategyAlwaysTagsLegacy(t *testing.T) {
	strategy := legacyStrategy{}
	line := &DepositLineItem{ProductNameRaw: "Cloud Compute"}

	matchType, confidence := strategy.score(line, &RevenueSchedule{}, "Cloud Compute")
	if matchType != "legacy" {
		t.Fatalf("exact: matchType = %q, want legacy", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.95)) {
		t.Fatalf("exact: confidence = %s, want 0.95", confidence)
	}

	matchType, confidence = strategy.score(line, &RevenueSchedule{}, "Cloud Compute Plus")
	if matchType != "legacy" {
		t.Fatalf("partial: matchType = %q, want legacy", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.75)) {
		t.Fatalf("partial: confidence = %s, want 0.75", confidence)
	}

	matchType, confidence = strategy.score(line, &RevenueSchedule{}, "Firewall")
	if matchType != "legacy" {
		t.Fatalf("fallback: matchType = %q, want legacy", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("fallback: confidence = %s, want 0.5", confidence)
	}
}

func TestHierarchicalStrategyTiers(t *testing.T) {
	strategy := hierarchicalStrategy{}
	line := &DepositLineItem{ProductNameRaw: "cloud   COMPUTE"}

	matchType, confidence := strategy.score(line, &RevenueSchedule{}, "Cloud Compute")
	if matchType != "exact" {
		t.Fatalf("exact: matchType = %q", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.95)) {
		t.Fatalf("exact: confidence = %s, want 0.95", confidence)
	}

	matchType, confidence = strategy.score(line, &RevenueSchedule{}, "Cloud Compute Plus")
	if matchType != "account_product" {
		t.Fatalf("partial: matchType = %q", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.8)) {
		t.Fatalf("partial: confidence = %s, want 0.8", confidence)
	}

	matchType, confidence = strategy.score(line, &RevenueSchedule{}, "Firewall")
	if matchType != "account" {
		t.Fatalf("fallback: matchType = %q", matchType)
	}
	if !confidence.Equal(decimal.NewFromFloat(0.6)) {
		t.Fatalf("fallback: confidence = %s, want 0.6", confidence)
	}
}

func TestHierarchicalStrategyNeverUsesLegacyTag(t *testing.T) {
	strategy := hierarchicalStrategy{}
	for _, productName := range []string{"Cloud Compute", "Cloud Compute Plus", "Firewall", ""} {
		line := &DepositLineItem{ProductNameRaw: "Cloud Compute"}
		matchType, _ := strategy.score(line, &RevenueSchedule{}, productName)
		if matchType == "legacy" {
			t.Fatalf("hierarchical strategy returned legacy tag for product %q", productName)
		}
	}
}

func TestStrategyForMode(t *testing.T) {
	if strategyForMode(MatchingModeHierarchical).mode() != MatchingModeHierarchical {
		t.Fatal("hierarchical mode did not select hierarchical strategy")
	}
	if strategyForMode(MatchingModeLegacy).mode() != MatchingModeLegacy {
		t.Fatal("legacy mode did not select legacy strategy")
	}
	// Unknown modes fall back to legacy.
	if strategyForMode(MatchingMode("")).mode() != MatchingModeLegacy {
		t.Fatal("empty mode did not fall back to legacy strategy")
	}
}

func TestNormalizeName(t *testing.T) {
	if normalizeName("  Acme   Corporation ") != "acme corporation" {
		t.Fatal("normalizeName did not collapse whitespace and lowercase")
	}
	if normalizeName("") != "" {
		t.Fatal("normalizeName of empty string should be empty")
	}
}
