// ABOUTME: Dispatcher shared by every transport: validates, authenticates, charges and calls the platform
// ABOUTME: Produces the uniform envelope and records usage after successful chargeable calls

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/payment"
	"github.com/2389/agentmcp/internal/platform"
	"github.com/2389/agentmcp/internal/store"
)

// Platform is the subset of the platform API the dispatcher calls.
// platform.Client satisfies it.
type Platform interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (*platform.User, error)
	CreateAgent(ctx context.Context, apiKey string, req platform.CreateAgentRequest) (json.RawMessage, error)
	ListAgents(ctx context.Context, apiKey string, opts platform.ListAgentsOptions) (json.RawMessage, error)
	GetAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error)
	UpdateAgent(ctx context.Context, apiKey, agentID string, req platform.UpdateAgentRequest) (json.RawMessage, error)
	DeleteAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error)
	PromptAgent(ctx context.Context, apiKey, agentID string, req platform.PromptRequest) (json.RawMessage, error)
	AddUserToAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error)
	RemoveUserFromAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error)
	GetUsageReport(ctx context.Context, apiKey, period string) (json.RawMessage, error)
}

type apiKeyContextKey struct{}

// WithAPIKey attaches the transport's caller key to ctx. An api_key argument
// still takes precedence.
func WithAPIKey(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, apiKey)
}

// APIKeyFromContext returns the key attached by WithAPIKey.
func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyContextKey{}).(string)
	return key
}

// call carries one validated invocation into a handler.
type call struct {
	apiKey string
	user   *platform.User
	args   map[string]any
}

// result is what a handler hands back to the dispatcher.
type result struct {
	payload any
	extra   map[string]any
	tokens  int
}

type handlerFunc func(ctx context.Context, c call) (result, error)

// Config configures a Dispatcher.
type Config struct {
	Registry *Registry
	Platform Platform
	Payment  payment.Strategy
	// Usage backs the billing summary in usage reports. Optional.
	Usage  store.UsageStore
	Logger *slog.Logger
}

// Dispatcher executes tool calls.
type Dispatcher struct {
	registry *Registry
	platform Platform
	payment  payment.Strategy
	usage    store.UsageStore
	logger   *slog.Logger
	handlers map[string]handlerFunc
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Platform == nil {
		return nil, errors.New("platform client is required")
	}
	if cfg.Payment == nil {
		return nil, errors.New("payment strategy is required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		registry: registry,
		platform: cfg.Platform,
		payment:  cfg.Payment,
		usage:    cfg.Usage,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
	d.handlers = map[string]handlerFunc{
		"create_agent":           d.createAgent,
		"list_agents":            d.listAgents,
		"get_agent":              d.getAgent,
		"update_agent":           d.updateAgent,
		"delete_agent":           d.deleteAgent,
		"prompt_agent":           d.promptAgent,
		"add_user_to_agent":      d.addUserToAgent,
		"remove_user_from_agent": d.removeUserFromAgent,
		"get_usage_report":       d.getUsageReport,
	}

	for _, t := range registry.All() {
		if _, ok := d.handlers[t.Name]; !ok && t.RequiresAuth {
			return nil, errors.New("no handler for tool " + t.Name)
		}
	}
	return d, nil
}

// Registry returns the tools this dispatcher serves.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Strategy returns the payment strategy in use.
func (d *Dispatcher) Strategy() payment.Strategy {
	return d.payment
}

// Call runs a tool with raw JSON arguments. Empty or null arguments are
// treated as an empty object.
func (d *Dispatcher) Call(ctx context.Context, name string, rawArgs json.RawMessage) Envelope {
	args := map[string]any{}
	trimmed := bytes.TrimSpace(rawArgs)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil || args == nil {
			if _, ok := d.registry.Get(name); !ok {
				return d.finish(name, "unknown", time.Now(), unknownTool(name))
			}
			return d.finish(name, "invalid", time.Now(), failure(name, "Invalid arguments: arguments must be a JSON object"))
		}
	}
	return d.CallArgs(ctx, name, args)
}

// CallArgs runs a tool with decoded arguments.
func (d *Dispatcher) CallArgs(ctx context.Context, name string, args map[string]any) Envelope {
	start := time.Now()

	tool, ok := d.registry.Get(name)
	if !ok {
		d.logger.Info("unknown tool requested", "tool", name)
		return d.finish(name, "unknown", start, unknownTool(name))
	}

	if name == "get_pricing" {
		return d.finish(name, "ok", start, success(name, tool.PayloadKey, PricingTable(), 0))
	}

	valid, err := tool.Validate(args)
	if err != nil {
		return d.finish(name, "invalid", start, failure(name, "Invalid arguments: "+err.Error()))
	}

	apiKey, _ := args["api_key"].(string)
	if apiKey == "" {
		apiKey = APIKeyFromContext(ctx)
	}
	if apiKey == "" {
		return d.finish(name, "invalid", start, failure(name, "Invalid arguments: api_key is required"))
	}

	user, err := d.platform.ValidateAPIKey(ctx, apiKey)
	if err != nil {
		level := slog.LevelWarn
		if platform.IsStatus(err, http.StatusUnauthorized) {
			level = slog.LevelInfo
		}
		d.logger.Log(ctx, level, "api key rejected", "tool", name, "key", platform.KeyFingerprint(apiKey), "error", err)
		return d.finish(name, "platform", start, failure(name, platform.UserMessage(err)))
	}

	if !d.payment.ValidatePayment(ctx, user.ID, name) {
		msg := "Payment required: " + d.paymentDenial(name)
		return d.finish(name, "payment", start, failure(name, msg))
	}

	res, err := d.handlers[name](ctx, call{apiKey: apiKey, user: user, args: valid})
	if err != nil {
		d.logger.Warn("platform call failed", "tool", name, "user_id", user.ID, "error", err)
		return d.finish(name, "platform", start, failure(name, platform.UserMessage(err)))
	}

	cost := d.payment.Cost(name)
	d.payment.RecordUsage(ctx, user.ID, name, cost, res.tokens)

	env := success(name, tool.PayloadKey, res.payload, cost)
	env.Extra = res.extra

	d.logger.Debug("tool call complete",
		"tool", name,
		"user_id", user.ID,
		"cost", cost,
		"tokens", res.tokens,
	)
	return d.finish(name, "ok", start, env)
}

func (d *Dispatcher) paymentDenial(action string) string {
	switch d.payment.Name() {
	case payment.NamePerCall:
		return "insufficient balance for " + action
	case payment.NameSubscription:
		return action + " is not available on your plan or the monthly quota is exhausted"
	}
	return action + " was not approved"
}

func (d *Dispatcher) finish(name, outcome string, start time.Time, env Envelope) Envelope {
	label := name
	if outcome == "unknown" {
		label = "unknown"
	}
	metrics.ToolCallsTotal.WithLabelValues(label, outcome).Inc()
	metrics.ToolCallDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return env
}

// PricingTable is the get_pricing payload. It does not depend on the strategy.
func PricingTable() map[string]any {
	return map[string]any{
		"currency":      "USD",
		"default_price": payment.DefaultPrice,
		"prices":        payment.Prices(),
	}
}
