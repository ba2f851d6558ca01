// ABOUTME: Tests for Gateway assembly, HTTP routes and lifecycle
// ABOUTME: Runs the real handler stack against a fake platform API served by httptest

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/agentmcp/internal/atxp"
	"github.com/2389/agentmcp/internal/config"
)

const testReceiptSecret = "atxp-test-secret"

// fakePlatform answers key validation and agent lookups.
func fakePlatform(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		w.Header().Set("Content-Type", "application/json")

		if key != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		switch {
		case r.URL.Path == "/auth/validate":
			_, _ = w.Write([]byte(`{"user":{"id":"user-1","email":"u@example.com"}}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/agents/"):
			id := strings.TrimPrefix(r.URL.Path, "/agents/")
			_, _ = fmt.Fprintf(w, `{"agent":{"id":%q,"name":"Helper"}}`, id)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testConfig parses a minimal free-mode configuration pointing at platformURL.
func testConfig(t *testing.T, platformURL string, atxpEnabled bool) *config.Config {
	t.Helper()

	yaml := fmt.Sprintf(`
server:
  http_addr: "127.0.0.1:0"
platform:
  base_url: %q
  timeout: "5s"
database:
  path: %q
payment:
  mode: free
atxp:
  enabled: %t
  destination: "0xWallet"
  receipt_secret: %q
metrics:
  enabled: true
`, platformURL, filepath.Join(t.TempDir(), "agentmcp.db"), atxpEnabled, testReceiptSecret)

	cfg, err := config.Parse([]byte(yaml), false)
	if err != nil {
		t.Fatalf("failed to parse test config: %v", err)
	}
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, atxpEnabled bool) *Gateway {
	t.Helper()

	platformSrv := fakePlatform(t)
	gw, err := New(context.Background(), testConfig(t, platformSrv.URL, atxpEnabled), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func doRequest(gw *Gateway, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestGatewayNew(t *testing.T) {
	gw := newTestGateway(t, false)

	if gw.Handler() == nil {
		t.Fatal("handler should not be nil")
	}
	if gw.Core().Strategy.Name() != "free" {
		t.Errorf("expected free strategy, got %s", gw.Core().Strategy.Name())
	}
	if gw.paywall != nil {
		t.Error("paywall should be nil when atxp is disabled")
	}

	rr := doRequest(gw, http.MethodPost, "/atxp/mcp/call", `{"tool":"get_pricing"}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for disabled paywall route, got %d", rr.Code)
	}
}

func TestGatewayNew_InvalidPlatformURL(t *testing.T) {
	cfg := testConfig(t, "http://localhost", false)
	cfg.Platform.BaseURL = ""

	if _, err := New(context.Background(), cfg, testLogger()); err == nil {
		t.Fatal("expected error for missing platform base URL")
	}
}

func TestHealthEndpoints(t *testing.T) {
	gw := newTestGateway(t, false)

	rr := doRequest(gw, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("health: got %d %q", rr.Code, rr.Body.String())
	}

	rr = doRequest(gw, http.MethodGet, "/health/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "ready (free") {
		t.Errorf("unexpected ready body: %q", rr.Body.String())
	}

	_ = gw.Core().Store.Close()
	rr = doRequest(gw, http.MethodGet, "/health/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with closed store: expected 503, got %d", rr.Code)
	}
}

func TestCall_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t, false)

	rr := doRequest(gw, http.MethodPost, "/mcp/call", `{not json`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	want := `{"error":"Invalid JSON body","success":false}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestCall_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, false)

	rr := doRequest(gw, http.MethodGet, "/mcp/call", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestCall_ToolAndNameKeysAreEquivalent(t *testing.T) {
	gw := newTestGateway(t, false)

	byTool := doRequest(gw, http.MethodPost, "/mcp/call", `{"tool":"nope","arguments":{}}`, nil)
	byName := doRequest(gw, http.MethodPost, "/mcp/call", `{"name":"nope","arguments":{}}`, nil)

	if byTool.Code != http.StatusOK || byName.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", byTool.Code, byName.Code)
	}
	if !bytes.Equal(byTool.Body.Bytes(), byName.Body.Bytes()) {
		t.Errorf("bodies differ:\n tool: %s\n name: %s", byTool.Body.String(), byName.Body.String())
	}
	if got := byTool.Body.String(); got != `{"error":"Unknown tool: nope","success":false}` {
		t.Errorf("unexpected unknown-tool body: %s", got)
	}

	// tool wins when both are present
	both := doRequest(gw, http.MethodPost, "/mcp/call", `{"tool":"nope","name":"get_pricing"}`, nil)
	if !bytes.Equal(both.Body.Bytes(), byTool.Body.Bytes()) {
		t.Errorf("expected tool to take precedence, got %s", both.Body.String())
	}
}

func TestCall_BearerKey(t *testing.T) {
	gw := newTestGateway(t, false)
	body := `{"tool":"get_agent","arguments":{"agent_id":"a1"}}`

	rr := doRequest(gw, http.MethodPost, "/mcp/call", body, map[string]string{"Authorization": "Bearer good-key"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	out := decodeBody(t, rr)
	if out["success"] != true {
		t.Fatalf("expected success, got %s", rr.Body.String())
	}
	agent, ok := out["agent"].(map[string]any)
	if !ok || agent["id"] != "a1" {
		t.Errorf("expected agent a1 in envelope, got %s", rr.Body.String())
	}

	rr = doRequest(gw, http.MethodPost, "/mcp/call", body, nil)
	out = decodeBody(t, rr)
	if out["success"] != false || out["error"] != "Invalid arguments: api_key is required" {
		t.Errorf("expected missing key failure, got %s", rr.Body.String())
	}

	rr = doRequest(gw, http.MethodPost, "/mcp/call", body, map[string]string{"Authorization": "Bearer bad-key"})
	out = decodeBody(t, rr)
	if out["error"] != "Invalid API key" {
		t.Errorf("expected Invalid API key, got %s", rr.Body.String())
	}
}

func TestListTools(t *testing.T) {
	gw := newTestGateway(t, false)

	rr := doRequest(gw, http.MethodGet, "/tools", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp ListToolsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Tools) != 10 {
		t.Errorf("expected 10 tools, got %d", len(resp.Tools))
	}
	if resp.Strategy != "free" {
		t.Errorf("expected free strategy, got %s", resp.Strategy)
	}

	for _, tool := range resp.Tools {
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s: schema type = %v", tool.Name, tool.InputSchema["type"])
		}
		if tool.Name == "create_agent" && tool.Price != 0.05 {
			t.Errorf("create_agent price = %v", tool.Price)
		}
	}

	rr = doRequest(gw, http.MethodPost, "/tools", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST /tools, got %d", rr.Code)
	}
}

func TestPricing(t *testing.T) {
	gw := newTestGateway(t, false)

	rr := doRequest(gw, http.MethodGet, "/pricing", "", nil)
	out := decodeBody(t, rr)
	if out["currency"] != "USD" || out["default_price"] != 0.01 {
		t.Errorf("unexpected pricing header fields: %s", rr.Body.String())
	}
	prices, ok := out["prices"].(map[string]any)
	if !ok || prices["prompt_agent"] != 0.02 {
		t.Errorf("unexpected prices: %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gw := newTestGateway(t, false)

	doRequest(gw, http.MethodPost, "/mcp/call", `{"tool":"get_pricing"}`, nil)

	rr := doRequest(gw, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "agentmcp_tool_calls_total") {
		t.Error("metrics output missing agentmcp_tool_calls_total")
	}
}

func TestATXPRoute(t *testing.T) {
	gw := newTestGateway(t, true)
	body := `{"tool":"get_agent","arguments":{"agent_id":"a1"}}`
	auth := map[string]string{"Authorization": "Bearer good-key"}

	rr := doRequest(gw, http.MethodPost, "/atxp/mcp/call", body, auth)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 without payment, got %d", rr.Code)
	}
	var pr atxp.PaymentRequired
	if err := json.Unmarshal(rr.Body.Bytes(), &pr); err != nil {
		t.Fatalf("failed to decode 402: %v", err)
	}
	if len(pr.Accepts) != 1 || pr.Accepts[0].Amount != "0.001" || pr.Accepts[0].Resource != "/atxp/mcp/call" {
		t.Errorf("unexpected accepts: %+v", pr.Accepts)
	}

	token, err := atxp.NewReceiptVerifier([]byte(testReceiptSecret)).Issue(atxp.Receipt{
		ID:          "receipt-1",
		Payer:       "payer",
		Destination: "0xWallet",
		Tool:        "get_agent",
		Amount:      0.001,
		ExpiresAt:   time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("failed to issue receipt: %v", err)
	}

	headers := map[string]string{"Authorization": "Bearer good-key", atxp.PaymentHeader: token}
	rr = doRequest(gw, http.MethodPost, "/atxp/mcp/call", body, headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with payment, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(atxp.ReceiptHeader) != "receipt-1" {
		t.Errorf("expected receipt header, got %q", rr.Header().Get(atxp.ReceiptHeader))
	}
	if out := decodeBody(t, rr); out["success"] != true {
		t.Errorf("expected success envelope, got %s", rr.Body.String())
	}

	count, err := gw.Core().Store.CountUsageSince(context.Background(), "user-1", time.Time{})
	if err != nil {
		t.Fatalf("CountUsageSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 usage record, got %d", count)
	}

	// Replay is refused
	rr = doRequest(gw, http.MethodPost, "/atxp/mcp/call", body, headers)
	if rr.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402 for replayed receipt, got %d", rr.Code)
	}
}

func TestATXPRoute_UnpaidTools(t *testing.T) {
	gw := newTestGateway(t, true)

	for _, body := range []string{
		`{"tool":"bogus","arguments":{}}`,
		`{"name":"bogus"}`,
	} {
		rr := doRequest(gw, http.MethodPost, "/atxp/mcp/call", body, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 for unknown tool, got %d: %s", body, rr.Code, rr.Body.String())
		}
		if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Unknown tool: bogus","success":false}` {
			t.Errorf("%s: unexpected envelope %s", body, got)
		}
	}

	rr := doRequest(gw, http.MethodPost, "/atxp/mcp/call", `{"tool":"get_pricing"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for get_pricing, got %d: %s", rr.Code, rr.Body.String())
	}
	if out := decodeBody(t, rr); out["success"] != true || out["pricing"] == nil {
		t.Errorf("expected pricing envelope, got %s", rr.Body.String())
	}
}

func TestGatewayRun_ShutsDownOnCancel(t *testing.T) {
	gw := newTestGateway(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
