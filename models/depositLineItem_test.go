package models

import (
	"testing"
)

func testLine(usage, commission string) *DepositLineItem {
	l := &DepositLineItem{
		Usage:      dec(usage),
		Commission: dec(commission),
		Status:     LineItemStatusUnmatched,
	}
	l.resetAllocation()
	return l
}

func TestAddAllocationStatusTransitions(t *testing.T) {
	l := testLine("100", "10")

	l.addAllocation(dec("40"), dec("4"))
	if l.Status != LineItemStatusPartiallyMatched {
		t.Fatalf("status after partial allocation = %q, want PartiallyMatched", l.Status)
	}
	if !l.UsageUnallocated.Equal(dec("60")) {
		t.Fatalf("usage unallocated = %s, want 60", l.UsageUnallocated)
	}

	l.addAllocation(dec("60"), dec("6"))
	if l.Status != LineItemStatusMatched {
		t.Fatalf("status after full allocation = %q, want Matched", l.Status)
	}

	l.resetAllocation()
	if l.Status != LineItemStatusUnmatched {
		t.Fatalf("status after reset = %q, want Unmatched", l.Status)
	}
	if !l.UsageAllocated.IsZero() || !l.UsageUnallocated.Equal(l.Usage) {
		t.Fatalf("allocation not restored: allocated=%s unallocated=%s", l.UsageAllocated, l.UsageUnallocated)
	}
}

func TestMarkSuggestedDowngradesOnlyAllocatedStates(t *testing.T) {
	l := testLine("130", "13")
	l.markSuggested()
	if l.Status != LineItemStatusUnmatched {
		t.Fatalf("unallocated line status = %q, want Unmatched", l.Status)
	}

	l.addAllocation(dec("130"), dec("13"))
	if l.Status != LineItemStatusMatched {
		t.Fatalf("status = %q, want Matched before downgrade", l.Status)
	}
	l.markSuggested()
	if l.Status != LineItemStatusSuggested {
		t.Fatalf("status = %q, want Suggested when only suggested matches exist", l.Status)
	}

	// an applied match re-derives the allocation status
	l.recomputeStatus()
	if l.Status != LineItemStatusMatched {
		t.Fatalf("status after recompute = %q, want Matched", l.Status)
	}
}

func TestMarkSuggestedFromPartialAllocation(t *testing.T) {
	l := testLine("100", "10")
	l.addAllocation(dec("30"), dec("3"))
	l.markSuggested()
	if l.Status != LineItemStatusSuggested {
		t.Fatalf("status = %q, want Suggested", l.Status)
	}
}
