// ABOUTME: In-memory fake of the platform API used by dispatcher tests
// ABOUTME: Records calls and returns canned bodies or errors per operation

package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/2389/agentmcp/internal/platform"
)

type platformCall struct {
	op      string
	apiKey  string
	agentID string
	email   string
	body    any
}

type fakePlatform struct {
	mu     sync.Mutex
	calls  []platformCall
	keys   map[string]string // api key -> user id
	bodies map[string]json.RawMessage
	errs   map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		keys:   map[string]string{"good-key": "user-1"},
		bodies: map[string]json.RawMessage{},
		errs:   map[string]error{},
	}
}

func (f *fakePlatform) record(c platformCall) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if err := f.errs[c.op]; err != nil {
		return nil, err
	}
	if b, ok := f.bodies[c.op]; ok {
		return b, nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakePlatform) callsFor(op string) []platformCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platformCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakePlatform) ValidateAPIKey(ctx context.Context, apiKey string) (*platform.User, error) {
	if _, err := f.record(platformCall{op: "validate", apiKey: apiKey}); err != nil {
		return nil, err
	}
	id, ok := f.keys[apiKey]
	if !ok {
		return nil, &platform.Error{StatusCode: 401, Message: "invalid key"}
	}
	return &platform.User{ID: id}, nil
}

func (f *fakePlatform) CreateAgent(ctx context.Context, apiKey string, req platform.CreateAgentRequest) (json.RawMessage, error) {
	return f.record(platformCall{op: "create_agent", apiKey: apiKey, body: req})
}

func (f *fakePlatform) ListAgents(ctx context.Context, apiKey string, opts platform.ListAgentsOptions) (json.RawMessage, error) {
	return f.record(platformCall{op: "list_agents", apiKey: apiKey, body: opts})
}

func (f *fakePlatform) GetAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error) {
	return f.record(platformCall{op: "get_agent", apiKey: apiKey, agentID: agentID})
}

func (f *fakePlatform) UpdateAgent(ctx context.Context, apiKey, agentID string, req platform.UpdateAgentRequest) (json.RawMessage, error) {
	return f.record(platformCall{op: "update_agent", apiKey: apiKey, agentID: agentID, body: req})
}

func (f *fakePlatform) DeleteAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error) {
	return f.record(platformCall{op: "delete_agent", apiKey: apiKey, agentID: agentID})
}

func (f *fakePlatform) PromptAgent(ctx context.Context, apiKey, agentID string, req platform.PromptRequest) (json.RawMessage, error) {
	return f.record(platformCall{op: "prompt_agent", apiKey: apiKey, agentID: agentID, body: req})
}

func (f *fakePlatform) AddUserToAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error) {
	return f.record(platformCall{op: "add_user_to_agent", apiKey: apiKey, agentID: agentID, email: email})
}

func (f *fakePlatform) RemoveUserFromAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error) {
	return f.record(platformCall{op: "remove_user_from_agent", apiKey: apiKey, agentID: agentID, email: email})
}

func (f *fakePlatform) GetUsageReport(ctx context.Context, apiKey, period string) (json.RawMessage, error) {
	return f.record(platformCall{op: "get_usage_report", apiKey: apiKey, body: period})
}
