// Package mcp exposes the agentmcp tools over the Model Context Protocol.
//
// # Transports
//
// Two transports share one tools.Dispatcher:
//
//   - Server speaks MCP Streamable HTTP (JSON-RPC 2.0) on /mcp. Protocol
//     versions 2025-03-26 and 2025-11-25 are accepted.
//   - StdioServer uses the official Go SDK over stdin/stdout for local clients.
//
// # Sessions
//
// An initialize request creates a session and returns its ID in the
// Mcp-Session-Id header. Every later request must carry that header. The
// bearer key sent with initialize is bound to the session: it becomes the
// default API key for tool calls and only that key may DELETE the session.
//
// # Tool Results
//
// tools/call always answers with a single text content holding the JSON
// envelope produced by the dispatcher. isError is set when the envelope's
// success field is false, so every kind of failure reaches the client the
// same way.
//
// # Limits
//
// Request bodies are capped at 1 MiB. Notifications are accepted with 202 and
// no body. Server-initiated SSE streams are not supported.
package mcp
