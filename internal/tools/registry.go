// ABOUTME: Tool registry describing every agentmcp tool, its parameters and payload key
// ABOUTME: Generates the JSON schema advertised over MCP from the same parameter lists used for validation

package tools

import (
	"github.com/2389/agentmcp/internal/payment"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	String  ParamType = "string"
	Number  ParamType = "number"
	Integer ParamType = "integer"
	Boolean ParamType = "boolean"
)

// FormatEmail marks a string parameter that must hold an email address.
const FormatEmail = "email"

// AgentTypes is the closed set of agent type tags.
var AgentTypes = []string{"assistant", "researcher", "coder", "analyst", "creative"}

// UsagePeriods are the reporting windows accepted by get_usage_report.
var UsagePeriods = []string{"day", "week", "month"}

// Param describes one tool argument.
type Param struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
	Enum        []string
	Format      string
	Default     any

	// String length bounds. MaxLength 0 means unbounded.
	MinLength int
	MaxLength int

	// Numeric bounds, inclusive.
	Min *float64
	Max *float64
}

// Tool describes one callable operation.
type Tool struct {
	Name        string
	Description string
	// PayloadKey names the envelope field that carries the result.
	PayloadKey string
	// RequiresAuth is false only for tools that answer without identity.
	RequiresAuth bool
	Params       []Param
	// AtLeastOneOf lists optional params of which one must be present.
	AtLeastOneOf []string
}

// Price is the table price of the tool in USD.
func (t *Tool) Price() float64 {
	return payment.Price(t.Name)
}

// InputSchema renders the tool's parameters as a JSON schema object.
func (t *Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := []string{}

	for _, p := range t.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Format != "" {
			prop["format"] = p.Format
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.MinLength > 0 {
			prop["minLength"] = p.MinLength
		}
		if p.MaxLength > 0 {
			prop["maxLength"] = p.MaxLength
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		props[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (t *Tool) param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Registry holds the tool definitions in declaration order.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry returns a registry with every agentmcp tool.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Tool)}
	for _, t := range definitions() {
		r.tools = append(r.tools, t)
		r.byName[t.Name] = t
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every tool in declaration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

func bound(v float64) *float64 { return &v }

var apiKeyParam = Param{
	Name:        "api_key",
	Description: "Platform API key. Defaults to the key supplied by the transport.",
	Type:        String,
}

var agentIDParam = Param{
	Name:        "agent_id",
	Description: "Agent identifier",
	Type:        String,
	Required:    true,
	MinLength:   1,
}

var userEmailParam = Param{
	Name:        "user_email",
	Description: "Email address of the user",
	Type:        String,
	Required:    true,
	Format:      FormatEmail,
}

func definitions() []*Tool {
	return []*Tool{
		{
			Name:         "create_agent",
			Description:  "Create a new AI agent",
			PayloadKey:   "agent",
			RequiresAuth: true,
			Params: []Param{
				apiKeyParam,
				{Name: "name", Description: "Agent name", Type: String, Required: true, MinLength: 1, MaxLength: 100},
				{Name: "instructions", Description: "System instructions for the agent", Type: String, Required: true, MinLength: 1, MaxLength: 10000},
				{Name: "description", Description: "Short description", Type: String, MaxLength: 500},
				{Name: "type", Description: "Agent type", Type: String, Enum: AgentTypes, Default: "assistant"},
				{Name: "is_public", Description: "Visible to every platform user", Type: Boolean, Default: false},
				{Name: "is_shareable", Description: "May be shared with other users", Type: Boolean, Default: false},
			},
		},
		{
			Name:         "list_agents",
			Description:  "List agents owned by or shared with the caller",
			PayloadKey:   "agents",
			RequiresAuth: true,
			Params: []Param{
				apiKeyParam,
				{Name: "type", Description: "Only agents of this type", Type: String, Enum: AgentTypes},
				{Name: "include_public", Description: "Include public agents", Type: Boolean},
				{Name: "limit", Description: "Maximum agents to return", Type: Integer, Min: bound(1), Max: bound(100)},
				{Name: "offset", Description: "Agents to skip", Type: Integer, Min: bound(0)},
			},
		},
		{
			Name:         "get_agent",
			Description:  "Get an agent by ID",
			PayloadKey:   "agent",
			RequiresAuth: true,
			Params:       []Param{apiKeyParam, agentIDParam},
		},
		{
			Name:         "update_agent",
			Description:  "Update fields of an agent",
			PayloadKey:   "agent",
			RequiresAuth: true,
			Params: []Param{
				apiKeyParam,
				agentIDParam,
				{Name: "name", Description: "Agent name", Type: String, MinLength: 1, MaxLength: 100},
				{Name: "description", Description: "Short description", Type: String, MaxLength: 500},
				{Name: "instructions", Description: "System instructions for the agent", Type: String, MinLength: 1, MaxLength: 10000},
				{Name: "type", Description: "Agent type", Type: String, Enum: AgentTypes},
				{Name: "is_public", Description: "Visible to every platform user", Type: Boolean},
				{Name: "is_shareable", Description: "May be shared with other users", Type: Boolean},
			},
			AtLeastOneOf: []string{"name", "description", "instructions", "type", "is_public", "is_shareable"},
		},
		{
			Name:         "delete_agent",
			Description:  "Delete an agent",
			PayloadKey:   "result",
			RequiresAuth: true,
			Params:       []Param{apiKeyParam, agentIDParam},
		},
		{
			Name:         "prompt_agent",
			Description:  "Send a prompt to an agent and return its response",
			PayloadKey:   "response",
			RequiresAuth: true,
			Params: []Param{
				apiKeyParam,
				agentIDParam,
				{Name: "prompt", Description: "Prompt text", Type: String, Required: true, MinLength: 1, MaxLength: 32000},
				{Name: "max_tokens", Description: "Maximum tokens to generate", Type: Integer, Min: bound(1), Max: bound(8192)},
				{Name: "temperature", Description: "Sampling temperature", Type: Number, Min: bound(0), Max: bound(2)},
			},
		},
		{
			Name:         "add_user_to_agent",
			Description:  "Grant a user access to an agent",
			PayloadKey:   "result",
			RequiresAuth: true,
			Params:       []Param{apiKeyParam, agentIDParam, userEmailParam},
		},
		{
			Name:         "remove_user_from_agent",
			Description:  "Revoke a user's access to an agent",
			PayloadKey:   "result",
			RequiresAuth: true,
			Params:       []Param{apiKeyParam, agentIDParam, userEmailParam},
		},
		{
			Name:         "get_usage_report",
			Description:  "Report platform and billing usage for a period",
			PayloadKey:   "report",
			RequiresAuth: true,
			Params: []Param{
				apiKeyParam,
				{Name: "period", Description: "Reporting window", Type: String, Enum: UsagePeriods, Default: "month"},
			},
		},
		{
			Name:         "get_pricing",
			Description:  "Get the price of every tool",
			PayloadKey:   "pricing",
			RequiresAuth: false,
		},
	}
}
