package cache

import (
	"context"
	"testing"
	"time"
)

func TestReportKeyChangesWithState(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	settingsAt := from.Add(time.Hour)

	base := ReportKey(from, to, 3, settingsAt)
	if base != ReportKey(from, to, 3, settingsAt) {
		t.Fatalf("key must be stable")
	}
	if base == ReportKey(from, to, 4, settingsAt) {
		t.Fatalf("key must change with sales version")
	}
	if base == ReportKey(from, to, 3, settingsAt.Add(time.Second)) {
		t.Fatalf("key must change with settings")
	}
	if base == ReportKey(from, to.AddDate(0, 0, 1), 3, settingsAt) {
		t.Fatalf("key must change with period")
	}
}

func TestNoopSummaryCacheAlwaysMisses(t *testing.T) {
	var c SummaryCache = NoopSummaryCache{}
	if err := c.Set(context.Background(), "k", nil, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(context.Background(), "k")
	if err != nil || ok || got != nil {
		t.Fatalf("expected miss, got %v %v %v", got, ok, err)
	}
}
