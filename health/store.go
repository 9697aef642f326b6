package health

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/nodecache/cache"
)

// StoreCheckerConfig sets the occupancy budgets of a cache store.
type StoreCheckerConfig struct {
	// MaxEntries is the entry budget. Zero disables the entry check.
	MaxEntries int

	// MaxBytes is the encoded payload budget. Zero disables the byte check.
	MaxBytes int64

	// WarningThreshold is the budget fraction that reports degraded. Default: 0.8.
	WarningThreshold float64

	// CriticalThreshold is the budget fraction that reports unhealthy. Default: 0.95.
	CriticalThreshold float64
}

// StoreChecker reports how full a cache store is against its budgets.
type StoreChecker struct {
	store  cache.Sizer
	config StoreCheckerConfig
}

// NewStoreChecker creates a checker for store.
func NewStoreChecker(store cache.Sizer, config StoreCheckerConfig) *StoreChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &StoreChecker{store: store, config: config}
}

// Name returns "store".
func (c *StoreChecker) Name() string {
	return "store"
}

// Check compares current occupancy with the configured budgets.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}
	if c.store == nil {
		return Unhealthy("store not configured", ErrNoSizer)
	}

	entries := c.store.Len()
	bytes := c.store.EstimatedBytes()
	details := map[string]any{
		"entries":        entries,
		"bytes":          bytes,
		"bytes_readable": humanize.Bytes(uint64(max(bytes, 0))),
	}

	usage := 0.0
	if c.config.MaxEntries > 0 {
		r := float64(entries) / float64(c.config.MaxEntries)
		details["max_entries"] = c.config.MaxEntries
		details["entries_percent"] = r * 100
		usage = max(usage, r)
	}
	if c.config.MaxBytes > 0 {
		r := float64(bytes) / float64(c.config.MaxBytes)
		details["max_bytes"] = c.config.MaxBytes
		details["bytes_percent"] = r * 100
		usage = max(usage, r)
	}

	summary := fmt.Sprintf("%s entries, %s", humanize.Comma(int64(entries)), details["bytes_readable"])
	switch {
	case usage >= c.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("store usage critical: %.1f%% (%s)", usage*100, summary), ErrCheckFailed).
			WithDetails(details)
	case usage >= c.config.WarningThreshold:
		return Degraded(fmt.Sprintf("store usage high: %.1f%% (%s)", usage*100, summary)).
			WithDetails(details)
	default:
		return Healthy("store usage normal: " + summary).WithDetails(details)
	}
}

var _ Checker = (*StoreChecker)(nil)
