// Package platform is the HTTP client for the external platform API.
//
// The platform is the source of truth for agents, access grants and
// balances. Every Client method issues a single bearer-authenticated
// request with the caller's API key; responses are returned as opaque JSON
// and never cached or retried. Failures come back as *Error (non-2xx) or
// wrap ErrConnectivity (transport), and UserMessage maps both to the fixed
// strings shown to tool callers.
package platform
