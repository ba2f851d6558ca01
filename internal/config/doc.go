// Package config handles configuration loading for agentmcp.
//
// # Overview
//
// Configuration is loaded from a YAML (or TOML, by file extension) file with
// environment variable expansion. Load applies defaults and validates the
// result before returning it.
//
// # Configuration File
//
// Locations (in order):
//
//  1. Path passed with --config
//  2. Path from AGENTMCP_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/agentmcp/config.yaml (or ~/.config/agentmcp/config.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	platform:
//	  api_key: "${AGENTMCP_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server and platform:
//
//	server:
//	  http_addr: ":8080"
//	platform:
//	  base_url: "https://platform.example.com/api"   # required
//	  api_key: "${AGENTMCP_API_KEY}"                 # default caller key (stdio)
//	  service_key: "${AGENTMCP_SERVICE_KEY}"         # billing lookups
//	  timeout: "30s"
//
// Payment:
//
//	payment:
//	  mode: "per_call"            # free, per_call, subscription
//	  destination: "0xabc..."     # required for paid modes
//	  allow_free_fallback: false  # paid mode without destination -> free (warns)
//	  per_call:
//	    fail_open: true           # allow calls when the balance lookup fails
//
// ATXP paywall:
//
//	atxp:
//	  enabled: true
//	  network: "base"
//	  receipt_secret: "${ATXP_RECEIPT_SECRET}"
//	  facilitator_url: "https://facilitator.example.com"
//	  settle_timeout: "5s"
//	  replay_window: "10m"
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Validate rejects a missing or non-HTTP platform.base_url, unknown payment
// modes, paid modes without a destination (unless allow_free_fallback is
// set) and an enabled ATXP paywall without a receipt secret or destination.
package config
