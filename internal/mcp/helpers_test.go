// ABOUTME: Shared fixtures for MCP transport tests
// ABOUTME: Runs a fake platform API over httptest and builds a real dispatcher against it

package mcp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/2389/agentmcp/internal/payment"
	"github.com/2389/agentmcp/internal/platform"
	"github.com/2389/agentmcp/internal/store"
	"github.com/2389/agentmcp/internal/tools"
)

// fakePlatform answers the handful of endpoints the transport tests touch.
type fakePlatform struct {
	mu   sync.Mutex
	keys []string // bearer keys seen on agent requests
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/auth/validate" {
		if key != "good-key" && key != "other-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"user":{"id":"user-` + key + `"}}`))
		return
	}

	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/agents/"):
		id := strings.TrimPrefix(r.URL.Path, "/agents/")
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no such agent"}`))
			return
		}
		_, _ = w.Write([]byte(`{"agent":{"id":"` + id + `","name":"Helper"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePlatform) seenKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// setupTestDispatcher returns a free-mode dispatcher backed by a fake platform.
func setupTestDispatcher(t *testing.T) (*tools.Dispatcher, *fakePlatform) {
	t.Helper()

	fp := &fakePlatform{}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	client, err := platform.New(platform.Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("failed to create platform client: %v", err)
	}

	d, err := tools.NewDispatcher(tools.Config{
		Platform: client,
		Payment:  payment.NewFree(store.NewMockStore(), nil),
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	return d, fp
}
