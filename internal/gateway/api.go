// ABOUTME: HTTP API handlers for the raw JSON tool-call envelope and the tool catalogue
// ABOUTME: Serves POST /mcp/call, GET /tools and GET /pricing

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/agentmcp/internal/atxp"
	"github.com/2389/agentmcp/internal/mcp"
	"github.com/2389/agentmcp/internal/tools"
)

// maxCallBodySize caps envelope request bodies.
const maxCallBodySize = 1 << 20

// CallRequest is the body of POST /mcp/call. Tool wins over Name when both
// are set.
type CallRequest struct {
	Tool      string          `json:"tool"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolName returns the requested tool.
func (c CallRequest) ToolName() string {
	if c.Tool != "" {
		return c.Tool
	}
	return c.Name
}

// ToolInfoResponse describes one tool in GET /tools.
type ToolInfoResponse struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	Price        float64        `json:"price"`
	RequiresAuth bool           `json:"requires_auth"`
}

// ListToolsResponse is the JSON response for GET /tools.
type ListToolsResponse struct {
	Tools    []ToolInfoResponse `json:"tools"`
	Strategy string             `json:"strategy"`
}

// handleCall handles POST /mcp/call and, behind the paywall, /atxp/mcp/call.
// Every well-formed body is answered with HTTP 200 and the tool envelope.
func (g *Gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBodySize)).Decode(&req); err != nil {
		g.sendEnvelopeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	ctx := r.Context()
	if key := mcp.BearerToken(r); key != "" {
		ctx = tools.WithAPIKey(ctx, key)
	}

	name := req.ToolName()
	env := g.core.Dispatcher.Call(ctx, name, req.Arguments)

	attrs := []any{"tool", name, "success", env.Success}
	if receipt, ok := atxp.ReceiptFromContext(ctx); ok {
		attrs = append(attrs, "receipt_id", receipt.ID)
	}
	g.logger.Debug("envelope call", attrs...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(env.JSON())
}

// handleListTools handles GET /tools requests.
func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	all := g.core.Dispatcher.Registry().All()
	response := ListToolsResponse{
		Tools:    make([]ToolInfoResponse, 0, len(all)),
		Strategy: g.core.Strategy.Name(),
	}
	for _, t := range all {
		response.Tools = append(response.Tools, ToolInfoResponse{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema(),
			Price:        t.Price(),
			RequiresAuth: t.RequiresAuth,
		})
	}

	g.sendJSON(w, http.StatusOK, response)
}

// handlePricing handles GET /pricing requests with the fixed price table.
func (g *Gateway) handlePricing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.sendJSON(w, http.StatusOK, tools.PricingTable())
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendEnvelopeError writes a failed envelope with no operation.
func (g *Gateway) sendEnvelopeError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]any{"success": false, "error": message})
}
