// Package gateway assembles the agentmcp HTTP server.
//
// # Overview
//
// NewCore builds the components every transport shares: the SQLite billing
// store, the platform client, the payment strategy and the tool dispatcher.
// The stdio command uses a Core directly. Gateway wraps a Core with the HTTP
// routes and owns their lifecycle.
//
// # HTTP API
//
//   - POST /mcp            - MCP Streamable HTTP (see package mcp)
//   - DELETE /mcp          - end an MCP session
//   - POST /mcp/call       - raw JSON envelope: {"tool"|"name": ..., "arguments": {...}}
//   - POST /atxp/mcp/call  - the same envelope behind the ATXP paywall (atxp.enabled)
//   - GET /tools           - tool catalogue with input schemas and prices
//   - GET /pricing         - fixed price table
//   - GET /health          - liveness check
//   - GET /health/ready    - readiness check (billing store reachable)
//   - GET /metrics         - Prometheus metrics (metrics.enabled)
//
// Envelope calls answer HTTP 200 whatever the tool outcome; only an
// undecodable body gets 400 {"success":false,"error":"Invalid JSON body"}.
// A bearer token is used as the caller's API key unless the arguments carry
// api_key.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run shuts down with a 5 second deadline once its context ends.
package gateway
