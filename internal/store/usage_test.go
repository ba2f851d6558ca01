// ABOUTME: Tests for usage record tracking functionality
// ABOUTME: Covers SaveUsage, CountUsageSince, ListUsage and GetUsageStats on SQLite and the mock

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// usageBackends runs the same assertions against SQLite and MockStore.
func usageBackends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestStore_SaveUsage(t *testing.T) {
	for name, store := range usageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			record := &UsageRecord{
				UserID:    "user-001",
				Action:    "prompt_agent",
				Cost:      0.02,
				Tokens:    512,
				CreatedAt: time.Now().UTC().Truncate(time.Second),
			}
			require.NoError(t, store.SaveUsage(ctx, record))
			assert.NotEmpty(t, record.ID, "SaveUsage should assign an ID")

			records, err := store.ListUsage(ctx, "user-001", 10)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "prompt_agent", records[0].Action)
			assert.InDelta(t, 0.02, records[0].Cost, 1e-9)
			assert.Equal(t, 512, records[0].Tokens)
			assert.True(t, record.CreatedAt.Equal(records[0].CreatedAt))
		})
	}
}

func TestStore_CountUsageSince(t *testing.T) {
	for name, store := range usageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
			monthStart := MonthStart(now)

			// Two records last month, three this month, one for another user
			for _, r := range []*UsageRecord{
				{UserID: "u1", Action: "get_agent", CreatedAt: monthStart.Add(-48 * time.Hour)},
				{UserID: "u1", Action: "get_agent", CreatedAt: monthStart.Add(-time.Second)},
				{UserID: "u1", Action: "get_agent", CreatedAt: monthStart},
				{UserID: "u1", Action: "list_agents", CreatedAt: monthStart.Add(time.Hour)},
				{UserID: "u1", Action: "create_agent", CreatedAt: now},
				{UserID: "u2", Action: "create_agent", CreatedAt: now},
			} {
				require.NoError(t, store.SaveUsage(ctx, r))
			}

			count, err := store.CountUsageSince(ctx, "u1", monthStart)
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			count, err = store.CountUsageSince(ctx, "u3", monthStart)
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
	}
}

func TestStore_ListUsage_NewestFirstWithLimit(t *testing.T) {
	for name, store := range usageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

			for i, action := range []string{"a1", "a2", "a3"} {
				require.NoError(t, store.SaveUsage(ctx, &UsageRecord{
					UserID:    "u1",
					Action:    action,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}

			records, err := store.ListUsage(ctx, "u1", 2)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "a3", records[0].Action)
			assert.Equal(t, "a2", records[1].Action)
		})
	}
}

func TestStore_GetUsageStats(t *testing.T) {
	for name, store := range usageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

			for _, r := range []*UsageRecord{
				{UserID: "u1", Action: "prompt_agent", Cost: 0.02, Tokens: 100, CreatedAt: base},
				{UserID: "u1", Action: "prompt_agent", Cost: 0.02, Tokens: 300, CreatedAt: base.Add(time.Hour)},
				{UserID: "u1", Action: "get_agent", Cost: 0.001, CreatedAt: base.Add(2 * time.Hour)},
				{UserID: "u2", Action: "get_agent", Cost: 0.001, CreatedAt: base},
			} {
				require.NoError(t, store.SaveUsage(ctx, r))
			}

			user := "u1"
			stats, err := store.GetUsageStats(ctx, UsageFilter{UserID: &user})
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.RequestCount)
			assert.InDelta(t, 0.041, stats.TotalCost, 1e-9)
			assert.Equal(t, int64(400), stats.TotalTokens)
			assert.Equal(t, map[string]int64{"prompt_agent": 2, "get_agent": 1}, stats.ByAction)

			since := base.Add(30 * time.Minute)
			until := base.Add(90 * time.Minute)
			stats, err = store.GetUsageStats(ctx, UsageFilter{Since: &since, Until: &until})
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.RequestCount)

			action := "get_agent"
			stats, err = store.GetUsageStats(ctx, UsageFilter{Action: &action})
			require.NoError(t, err)
			assert.Equal(t, int64(2), stats.RequestCount)
		})
	}
}

func TestStore_GetUsageStats_Empty(t *testing.T) {
	store := setupTestStore(t)

	stats, err := store.GetUsageStats(context.Background(), UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.RequestCount)
	assert.Equal(t, float64(0), stats.TotalCost)
	assert.Empty(t, stats.ByAction)
}
