// ABOUTME: Usage recording shared by every payment strategy
// ABOUTME: Persists usage records and swallows store failures after logging them

package payment

import (
	"context"
	"log/slog"

	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/store"
)

// recorder writes usage records. A nil store makes it a no-op.
type recorder struct {
	store  store.UsageStore
	logger *slog.Logger
}

func (r recorder) record(ctx context.Context, userID, action string, cost float64, tokens int) {
	if r.store == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			metrics.UsageRecordFailures.Inc()
			r.logger.Error("usage recording panicked", "panic", p, "user_id", userID, "action", action)
		}
	}()

	err := r.store.SaveUsage(ctx, &store.UsageRecord{
		UserID: userID,
		Action: action,
		Cost:   cost,
		Tokens: tokens,
	})
	if err != nil {
		metrics.UsageRecordFailures.Inc()
		r.logger.Error("failed to record usage",
			"error", err,
			"user_id", userID,
			"action", action,
			"cost", cost,
		)
	}
}
