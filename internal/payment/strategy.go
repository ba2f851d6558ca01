// ABOUTME: Payment strategy contract, fixed price table and strategy construction
// ABOUTME: Selects free, per-call or subscription billing from configuration

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/store"
)

// Strategy names, also used as payment.mode values.
const (
	NameFree         = "free"
	NamePerCall      = "per_call"
	NameSubscription = "subscription"
)

// DefaultPrice is charged for actions missing from the price table.
const DefaultPrice = 0.01

// ErrNoDestination is returned by Initialize when a paid strategy has no
// payment destination configured.
var ErrNoDestination = errors.New("payment destination not configured")

// Strategy decides whether a user may perform an action and records what they did.
type Strategy interface {
	// Initialize performs one-time setup and must succeed before use.
	Initialize(ctx context.Context) error
	// ValidatePayment reports whether userID may perform action now.
	ValidatePayment(ctx context.Context, userID, action string) bool
	// RecordUsage appends a usage record. Failures are logged, never returned.
	RecordUsage(ctx context.Context, userID, action string, cost float64, tokens int)
	// Cost is the amount charged for action under this strategy.
	Cost(action string) float64
	Name() string
}

var prices = map[string]float64{
	"create_agent":           0.05,
	"list_agents":            0.001,
	"get_agent":              0.001,
	"update_agent":           0.01,
	"delete_agent":           0.005,
	"prompt_agent":           0.02,
	"add_user_to_agent":      0.005,
	"remove_user_from_agent": 0.005,
	"get_usage_report":       0.002,
	"get_pricing":            0.001,
}

// Price returns the table price for action, or DefaultPrice when unknown.
func Price(action string) float64 {
	if p, ok := prices[action]; ok {
		return p
	}
	return DefaultPrice
}

// Prices returns a copy of the price table.
func Prices() map[string]float64 {
	out := make(map[string]float64, len(prices))
	for k, v := range prices {
		out[k] = v
	}
	return out
}

// Actions returns every priced action in sorted order.
func Actions() []string {
	out := make([]string, 0, len(prices))
	for k := range prices {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Options configures New.
type Options struct {
	Mode        string
	Destination string
	// AllowFreeFallback selects the free strategy, with a warning, when a paid
	// strategy fails to initialize for lack of a destination.
	AllowFreeFallback bool
	// FailOpen allows per-call payments when the balance lookup fails.
	FailOpen bool

	Store    store.Store
	Balances BalanceSource
	Logger   *slog.Logger
}

// New builds and initializes the strategy named by opts.Mode.
func New(ctx context.Context, opts Options) (Strategy, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "payment")

	var s Strategy
	switch opts.Mode {
	case NameFree, "":
		s = NewFree(opts.Store, logger)
	case NamePerCall:
		s = NewPerCall(opts.Destination, opts.Balances, opts.Store, opts.FailOpen, logger)
	case NameSubscription:
		s = NewSubscription(opts.Destination, opts.Store, logger)
	default:
		return nil, fmt.Errorf("unknown payment mode %q", opts.Mode)
	}

	err := s.Initialize(ctx)
	if errors.Is(err, ErrNoDestination) && opts.AllowFreeFallback {
		logger.Warn("payment destination missing, falling back to free mode", "requested_mode", opts.Mode)
		s = NewFree(opts.Store, logger)
		err = s.Initialize(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s strategy: %w", s.Name(), err)
	}

	logger.Info("payment strategy ready", "strategy", s.Name())
	return s, nil
}

func observeDecision(strategy string, allowed bool) bool {
	metrics.PaymentDecisions.WithLabelValues(strategy, strconv.FormatBool(allowed)).Inc()
	return allowed
}
