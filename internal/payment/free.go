// ABOUTME: Free payment strategy
// ABOUTME: Allows every action at zero cost while still recording usage

package payment

import (
	"context"
	"log/slog"

	"github.com/2389/agentmcp/internal/store"
)

// Free allows every action and charges nothing.
type Free struct {
	rec recorder
}

// NewFree creates a free strategy. usage may be nil.
func NewFree(usage store.UsageStore, logger *slog.Logger) *Free {
	if logger == nil {
		logger = slog.Default()
	}
	return &Free{rec: recorder{store: usage, logger: logger}}
}

func (f *Free) Initialize(ctx context.Context) error { return nil }

func (f *Free) ValidatePayment(ctx context.Context, userID, action string) bool {
	return observeDecision(NameFree, true)
}

func (f *Free) RecordUsage(ctx context.Context, userID, action string, cost float64, tokens int) {
	f.rec.record(ctx, userID, action, cost, tokens)
}

func (f *Free) Cost(action string) float64 { return 0 }

func (f *Free) Name() string { return NameFree }
