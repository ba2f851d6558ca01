// ABOUTME: Store interfaces and data types for agentmcp billing persistence
// ABOUTME: Defines UsageRecord, Subscription and the interfaces the payment strategies depend on

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidTier is returned when a subscription names an unknown tier
var ErrInvalidTier = errors.New("invalid subscription tier")

// Subscription tiers
const (
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// ValidTier reports whether tier is a known subscription tier.
func ValidTier(tier string) bool {
	switch tier {
	case TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// UsageRecord is an append-only record of one chargeable operation.
type UsageRecord struct {
	ID        string
	UserID    string
	Action    string
	Cost      float64 // USD
	Tokens    int
	CreatedAt time.Time
}

// Subscription assigns a user to a tier. Users without one are treated as basic.
type Subscription struct {
	UserID    string
	Tier      string
	UpdatedAt time.Time
}

// UsageFilter narrows usage queries. Nil fields are ignored.
type UsageFilter struct {
	UserID *string
	Action *string
	Since  *time.Time
	Until  *time.Time
}

// UsageStats aggregates usage records.
type UsageStats struct {
	RequestCount int64            `json:"request_count"`
	TotalCost    float64          `json:"total_cost"`
	TotalTokens  int64            `json:"total_tokens"`
	ByAction     map[string]int64 `json:"by_action"`
}

// UsageStore persists usage records. Records are never updated or deleted.
type UsageStore interface {
	SaveUsage(ctx context.Context, record *UsageRecord) error
	CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error)
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
}

// SubscriptionStore persists subscription tiers.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	SetSubscription(ctx context.Context, sub *Subscription) error
}

// Store is everything agentmcp persists locally.
type Store interface {
	UsageStore
	SubscriptionStore

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
