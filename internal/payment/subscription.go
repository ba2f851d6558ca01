// ABOUTME: Subscription payment strategy with tiered action allow-lists
// ABOUTME: Enforces monthly request quotas counted from persisted usage records

package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/agentmcp/internal/store"
)

// Tier describes what a subscription level may do each month.
type Tier struct {
	Name         string
	MonthlyQuota int
	Actions      map[string]bool
}

// Allows reports whether the tier includes action.
func (t Tier) Allows(action string) bool {
	return t.Actions[action]
}

var basicActions = []string{
	"list_agents",
	"get_agent",
	"create_agent",
	"prompt_agent",
	"get_usage_report",
	"get_pricing",
}

// Tiers maps tier names to their allow-lists and quotas.
var Tiers = map[string]Tier{
	store.TierBasic: {
		Name:         store.TierBasic,
		MonthlyQuota: 100,
		Actions:      actionSet(basicActions),
	},
	store.TierPro: {
		Name:         store.TierPro,
		MonthlyQuota: 1000,
		Actions:      actionSet(append([]string{"update_agent", "delete_agent"}, basicActions...)),
	},
	store.TierEnterprise: {
		Name:         store.TierEnterprise,
		MonthlyQuota: 10000,
		Actions:      actionSet(Actions()),
	},
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// Subscription allows actions by tier within a monthly quota. Calls are free.
type Subscription struct {
	destination string
	store       store.Store
	rec         recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewSubscription creates a subscription strategy backed by st.
func NewSubscription(destination string, st store.Store, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{
		destination: destination,
		store:       st,
		rec:         recorder{store: st, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

// Initialize fails with ErrNoDestination when no payment destination is set.
func (s *Subscription) Initialize(ctx context.Context) error {
	if s.destination == "" {
		return ErrNoDestination
	}
	if s.store == nil {
		return errors.New("subscription strategy requires a store")
	}
	s.logger.Info("subscription billing enabled", "destination", s.destination)
	return nil
}

// TierFor returns the user's tier. Missing or unrecognised tiers are basic.
func (s *Subscription) TierFor(ctx context.Context, userID string) (Tier, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Tiers[store.TierBasic], nil
	}
	if err != nil {
		return Tier{}, err
	}
	tier, ok := Tiers[sub.Tier]
	if !ok {
		s.logger.Warn("unknown subscription tier, using basic", "user_id", userID, "tier", sub.Tier)
		return Tiers[store.TierBasic], nil
	}
	return tier, nil
}

func (s *Subscription) ValidatePayment(ctx context.Context, userID, action string) bool {
	tier, err := s.TierFor(ctx, userID)
	if err != nil {
		s.logger.Error("subscription lookup failed, denying call", "error", err, "user_id", userID)
		return observeDecision(NameSubscription, false)
	}

	if !tier.Allows(action) {
		s.logger.Info("action not in tier", "user_id", userID, "tier", tier.Name, "action", action)
		return observeDecision(NameSubscription, false)
	}

	used, err := s.store.CountUsageSince(ctx, userID, store.MonthStart(s.now()))
	if err != nil {
		s.logger.Error("usage count failed, denying call", "error", err, "user_id", userID)
		return observeDecision(NameSubscription, false)
	}

	if used >= tier.MonthlyQuota {
		s.logger.Info("monthly quota exhausted", "user_id", userID, "tier", tier.Name, "used", used, "quota", tier.MonthlyQuota)
		return observeDecision(NameSubscription, false)
	}
	return observeDecision(NameSubscription, true)
}

func (s *Subscription) RecordUsage(ctx context.Context, userID, action string, cost float64, tokens int) {
	s.rec.record(ctx, userID, action, cost, tokens)
}

func (s *Subscription) Cost(action string) float64 { return 0 }

func (s *Subscription) Name() string { return NameSubscription }
