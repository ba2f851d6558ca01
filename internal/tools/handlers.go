// ABOUTME: Per-tool handlers translating validated arguments into platform API calls
// ABOUTME: Unwraps platform response wrappers and extracts token counts for usage records

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/agentmcp/internal/platform"
	"github.com/2389/agentmcp/internal/store"
)

func (d *Dispatcher) createAgent(ctx context.Context, c call) (result, error) {
	req := platform.CreateAgentRequest{
		Name:         stringArg(c.args, "name"),
		Description:  stringArg(c.args, "description"),
		Instructions: stringArg(c.args, "instructions"),
		Type:         stringArg(c.args, "type"),
		IsPublic:     boolArg(c.args, "is_public"),
		IsShareable:  boolArg(c.args, "is_shareable"),
	}
	body, err := d.platform.CreateAgent(ctx, c.apiKey, req)
	if err != nil {
		return result{}, err
	}
	return result{payload: unwrap(body, "agent", "data")}, nil
}

func (d *Dispatcher) listAgents(ctx context.Context, c call) (result, error) {
	opts := platform.ListAgentsOptions{
		Type:          stringArg(c.args, "type"),
		IncludePublic: boolArg(c.args, "include_public"),
		Limit:         intArg(c.args, "limit"),
		Offset:        intArg(c.args, "offset"),
	}
	body, err := d.platform.ListAgents(ctx, c.apiKey, opts)
	if err != nil {
		return result{}, err
	}
	return result{payload: unwrap(body, "agents", "data")}, nil
}

func (d *Dispatcher) getAgent(ctx context.Context, c call) (result, error) {
	body, err := d.platform.GetAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"))
	if err != nil {
		return result{}, err
	}
	return result{payload: unwrap(body, "agent", "data")}, nil
}

func (d *Dispatcher) updateAgent(ctx context.Context, c call) (result, error) {
	req := platform.UpdateAgentRequest{
		Name:         optString(c.args, "name"),
		Description:  optString(c.args, "description"),
		Instructions: optString(c.args, "instructions"),
		Type:         optString(c.args, "type"),
		IsPublic:     optBool(c.args, "is_public"),
		IsShareable:  optBool(c.args, "is_shareable"),
	}
	body, err := d.platform.UpdateAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"), req)
	if err != nil {
		return result{}, err
	}
	return result{payload: unwrap(body, "agent", "data")}, nil
}

func (d *Dispatcher) deleteAgent(ctx context.Context, c call) (result, error) {
	body, err := d.platform.DeleteAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"))
	if err != nil {
		return result{}, err
	}
	return result{payload: body}, nil
}

func (d *Dispatcher) promptAgent(ctx context.Context, c call) (result, error) {
	req := platform.PromptRequest{
		Prompt:    stringArg(c.args, "prompt"),
		MaxTokens: intArg(c.args, "max_tokens"),
	}
	if v, ok := c.args["temperature"].(float64); ok {
		req.Temperature = &v
	}

	body, err := d.platform.PromptAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"), req)
	if err != nil {
		return result{}, err
	}
	return result{payload: body, tokens: tokensUsed(body)}, nil
}

func (d *Dispatcher) addUserToAgent(ctx context.Context, c call) (result, error) {
	body, err := d.platform.AddUserToAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"), stringArg(c.args, "user_email"))
	if err != nil {
		return result{}, err
	}
	return result{payload: body}, nil
}

func (d *Dispatcher) removeUserFromAgent(ctx context.Context, c call) (result, error) {
	body, err := d.platform.RemoveUserFromAgent(ctx, c.apiKey, stringArg(c.args, "agent_id"), stringArg(c.args, "user_email"))
	if err != nil {
		return result{}, err
	}
	return result{payload: body}, nil
}

func (d *Dispatcher) getUsageReport(ctx context.Context, c call) (result, error) {
	period := stringArg(c.args, "period")
	body, err := d.platform.GetUsageReport(ctx, c.apiKey, period)
	if err != nil {
		return result{}, err
	}

	res := result{payload: unwrap(body, "report", "usage")}
	if billing := d.billingSummary(ctx, c.user.ID, period); billing != nil {
		res.extra = map[string]any{"billing": billing}
	}
	return res, nil
}

// billingSummary aggregates locally recorded usage for the period. It returns
// nil when no usage store is configured or the query fails.
func (d *Dispatcher) billingSummary(ctx context.Context, userID, period string) map[string]any {
	if d.usage == nil {
		return nil
	}

	since := PeriodStart(d.now(), period)
	stats, err := d.usage.GetUsageStats(ctx, store.UsageFilter{UserID: &userID, Since: &since})
	if err != nil {
		d.logger.Warn("billing summary unavailable", "user_id", userID, "error", err)
		return nil
	}

	return map[string]any{
		"strategy":      d.payment.Name(),
		"period":        period,
		"since":         since.UTC().Format(time.RFC3339),
		"request_count": stats.RequestCount,
		"total_cost":    stats.TotalCost,
		"total_tokens":  stats.TotalTokens,
		"by_action":     stats.ByAction,
	}
}

// PeriodStart returns the start of the reporting window ending at now.
// Months are calendar months in UTC; days and weeks are rolling windows.
func PeriodStart(now time.Time, period string) time.Time {
	switch period {
	case "day":
		return now.Add(-24 * time.Hour)
	case "week":
		return now.Add(-7 * 24 * time.Hour)
	default:
		return store.MonthStart(now)
	}
}

// unwrap returns the first wrapper field present in body, or body itself.
func unwrap(body json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if r := gjson.GetBytes(body, key); r.Exists() && (r.IsObject() || r.IsArray()) {
			return json.RawMessage(r.Raw)
		}
	}
	return body
}

// tokensUsed reads the token count reported for a prompt.
func tokensUsed(body json.RawMessage) int {
	for _, path := range []string{"usage.total_tokens", "tokens_used", "tokens"} {
		if r := gjson.GetBytes(body, path); r.Exists() {
			return int(r.Int())
		}
	}
	return 0
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func intArg(args map[string]any, name string) int {
	f, _ := args[name].(float64)
	return int(f)
}

func optString(args map[string]any, name string) *string {
	if s, ok := args[name].(string); ok {
		return &s
	}
	return nil
}

func optBool(args map[string]any, name string) *bool {
	if b, ok := args[name].(bool); ok {
		return &b
	}
	return nil
}
