// ABOUTME: Metered per-call payment strategy
// ABOUTME: Charges table prices and checks the caller's platform balance before each call

package payment

import (
	"context"
	"log/slog"

	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/store"
)

// BalanceSource reports a user's prepaid balance in USD.
// platform.Client satisfies it.
type BalanceSource interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
}

// PerCall charges the table price for every action.
type PerCall struct {
	destination string
	balances    BalanceSource
	failOpen    bool
	rec         recorder
	logger      *slog.Logger
}

// NewPerCall creates a metered strategy paying out to destination.
// When failOpen is set a failed balance lookup allows the call.
func NewPerCall(destination string, balances BalanceSource, usage store.UsageStore, failOpen bool, logger *slog.Logger) *PerCall {
	if logger == nil {
		logger = slog.Default()
	}
	return &PerCall{
		destination: destination,
		balances:    balances,
		failOpen:    failOpen,
		rec:         recorder{store: usage, logger: logger},
		logger:      logger,
	}
}

// Initialize fails with ErrNoDestination when no payment destination is set.
func (p *PerCall) Initialize(ctx context.Context) error {
	if p.destination == "" {
		return ErrNoDestination
	}
	p.logger.Info("per-call billing enabled", "destination", p.destination, "fail_open", p.failOpen)
	return nil
}

func (p *PerCall) ValidatePayment(ctx context.Context, userID, action string) bool {
	price := Price(action)

	if p.balances == nil {
		return p.lookupFailed(userID, action, nil)
	}
	balance, err := p.balances.GetBalance(ctx, userID)
	if err != nil {
		return p.lookupFailed(userID, action, err)
	}

	allowed := balance >= price
	if !allowed {
		p.logger.Info("insufficient balance",
			"user_id", userID,
			"action", action,
			"balance", balance,
			"price", price,
		)
	}
	return observeDecision(NamePerCall, allowed)
}

func (p *PerCall) lookupFailed(userID, action string, err error) bool {
	if p.failOpen {
		metrics.PaymentFailOpen.Inc()
		p.logger.Warn("balance lookup failed, allowing call", "error", err, "user_id", userID, "action", action)
		return observeDecision(NamePerCall, true)
	}
	p.logger.Warn("balance lookup failed, denying call", "error", err, "user_id", userID, "action", action)
	return observeDecision(NamePerCall, false)
}

func (p *PerCall) RecordUsage(ctx context.Context, userID, action string, cost float64, tokens int) {
	p.rec.record(ctx, userID, action, cost, tokens)
}

func (p *PerCall) Cost(action string) float64 { return Price(action) }

func (p *PerCall) Name() string { return NamePerCall }
