// ABOUTME: Prometheus collectors for tool calls, payments, platform requests and the ATXP paywall
// ABOUTME: Registered on the default registry and exposed through promhttp on the metrics path

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tool dispatch
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmcp_tool_calls_total",
			Help: "Total tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"}, // outcome: ok, invalid, payment, platform, unknown
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentmcp_tool_call_duration_seconds",
			Help:    "Tool call duration including platform round trips",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tool"},
	)

	// Payment strategy
	PaymentDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmcp_payment_decisions_total",
			Help: "Payment validation decisions by strategy",
		},
		[]string{"strategy", "allowed"},
	)

	PaymentFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmcp_payment_fail_open_total",
			Help: "Calls allowed because the balance lookup failed",
		},
	)

	UsageRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmcp_usage_record_failures_total",
			Help: "Usage records that could not be persisted",
		},
	)

	// Platform API
	PlatformRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmcp_platform_requests_total",
			Help: "Requests sent to the platform API by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ATXP paywall
	ATXPReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmcp_atxp_receipts_total",
			Help: "ATXP payment receipts by verification result",
		},
		[]string{"result"},
	)

	// MCP sessions
	MCPSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentmcp_mcp_sessions_active",
			Help: "Open MCP Streamable HTTP sessions",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
