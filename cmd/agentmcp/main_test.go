// ABOUTME: Tests for agentmcp command helpers
// ABOUTME: Covers config path resolution, logging handlers and report formatting

package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentmcp/internal/config"
	"github.com/2389/agentmcp/internal/store"
)

func init() {
	color.NoColor = true
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("AGENTMCP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	assert.Equal(t, "/flag.yaml", getConfigPath("/flag.yaml"))
	assert.Equal(t, filepath.Join("/xdg", "agentmcp", "config.yaml"), getConfigPath(""))

	t.Setenv("AGENTMCP_CONFIG", "/env.toml")
	assert.Equal(t, "/env.toml", getConfigPath(""))
	assert.Equal(t, "/flag.yaml", getConfigPath("/flag.yaml"), "flag beats environment")
}

func TestNewFlagSet_ConfigFlag(t *testing.T) {
	fs, configPath := newFlagSet("serve")
	ok, err := parseFlags(fs, []string{"-c", "/tmp/agentmcp.yaml"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/agentmcp.yaml", *configPath)

	fs, _ = newFlagSet("serve")
	_, err = parseFlags(fs, []string{"extra"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestSetupLogger_TextGoesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.With("component", "gateway").WithGroup("req").Info("hello", "tool", "get_agent")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INF hello")
	assert.Contains(t, out, "component=gateway")
	assert.Contains(t, out, "req.tool=get_agent")
	assert.NotContains(t, out, "hidden")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("started", "port", 8080)
	assert.Contains(t, buf.String(), `"msg":"started"`)
	assert.Contains(t, buf.String(), `"port":8080`)
}

func TestPrintPriceTable(t *testing.T) {
	var buf bytes.Buffer
	printPriceTable(&buf)

	out := buf.String()
	assert.Contains(t, out, "create_agent")
	assert.Contains(t, out, "0.050")
	assert.Contains(t, out, "(other)")
	assert.Contains(t, out, "0.010")
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	stats := &store.UsageStats{
		RequestCount: 3,
		TotalCost:    0.041,
		TotalTokens:  400,
		ByAction:     map[string]int64{"prompt_agent": 2, "get_agent": 1},
	}
	records := []*store.UsageRecord{
		{Action: "prompt_agent", Cost: 0.02, Tokens: 300, CreatedAt: since.Add(time.Hour)},
	}

	printUsage(&buf, "user-1", "month", since, stats, records)

	out := buf.String()
	assert.Contains(t, out, "Usage for user-1 (month since 2026-05-01T00:00:00Z)")
	assert.Contains(t, out, "Requests: 3")
	assert.Contains(t, out, "$0.041")
	assert.Less(t, strings.Index(out, "get_agent"), strings.Index(out, "prompt_agent"), "actions are sorted")
	assert.Contains(t, out, "2026-05-01 01:00:00")
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, validPeriod("day"))
	assert.True(t, validPeriod("month"))
	assert.False(t, validPeriod("year"))
}
