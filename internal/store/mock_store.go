// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	usage         []*UsageRecord           // append order
	subscriptions map[string]*Subscription // keyed by user ID

	// Injected failures. A non-nil error is returned by every matching call.
	SaveUsageErr       error
	CountUsageErr      error
	GetSubscriptionErr error
	PingErr            error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		subscriptions: make(map[string]*Subscription),
	}
}

// SaveUsage appends a usage record.
func (m *MockStore) SaveUsage(ctx context.Context, record *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveUsageErr != nil {
		return m.SaveUsageErr
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	// Make a copy to avoid external modification
	r := *record
	m.usage = append(m.usage, &r)
	return nil
}

// CountUsageSince counts a user's records created at or after since.
func (m *MockStore) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.CountUsageErr != nil {
		return 0, m.CountUsageErr
	}

	count := 0
	for _, r := range m.usage {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListUsage returns a user's most recent records, newest first.
func (m *MockStore) ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*UsageRecord
	for i := len(m.usage) - 1; i >= 0; i-- {
		if m.usage[i].UserID == userID {
			c := *m.usage[i]
			result = append(result, &c)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UsageStats{ByAction: make(map[string]int64)}

	for _, u := range m.usage {
		if filter.UserID != nil && u.UserID != *filter.UserID {
			continue
		}
		if filter.Action != nil && u.Action != *filter.Action {
			continue
		}
		if filter.Since != nil && u.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !u.CreatedAt.Before(*filter.Until) {
			continue
		}

		stats.RequestCount++
		stats.TotalCost += u.Cost
		stats.TotalTokens += int64(u.Tokens)
		stats.ByAction[u.Action]++
	}

	return stats, nil
}

// GetSubscription returns a user's subscription or ErrNotFound.
func (m *MockStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}
	sub, ok := m.subscriptions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *sub
	return &c, nil
}

// SetSubscription stores a subscription.
func (m *MockStore) SetSubscription(ctx context.Context, sub *Subscription) error {
	if !ValidTier(sub.Tier) {
		return fmt.Errorf("%w: %q", ErrInvalidTier, sub.Tier)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *sub
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	m.subscriptions[c.UserID] = &c
	return nil
}

// Records returns a copy of every stored usage record in append order.
func (m *MockStore) Records() []UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UsageRecord, len(m.usage))
	for i, r := range m.usage {
		out[i] = *r
	}
	return out
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// Verify MockStore implements Store interface at compile time.
var _ Store = (*MockStore)(nil)
