package cache

import (
	"context"
	"fmt"
	"time"

	"racikpos/backend/internal/domain"
)

// SummaryCache holds computed finance reports.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.FinanceReport, bool, error)
	Set(ctx context.Context, key string, value *domain.FinanceReport, ttl time.Duration) error
}

// ReportKey identifies a report by its period and the state it was computed
// from, so a new sale or a settings change never serves a stale report.
func ReportKey(from time.Time, to time.Time, salesVersion int64, settingsAt time.Time) string {
	return fmt.Sprintf("racikpos:finance:%d:%d:v%d:s%d", from.Unix(), to.Unix(), salesVersion, settingsAt.UnixNano())
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.FinanceReport, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.FinanceReport, _ time.Duration) error {
	return nil
}
