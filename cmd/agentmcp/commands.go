// ABOUTME: Subcommand implementations for the agentmcp binary
// ABOUTME: Server start-up, stdio MCP, pricing, subscription admin, usage and health checks

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/agentmcp/internal/config"
	"github.com/2389/agentmcp/internal/gateway"
	"github.com/2389/agentmcp/internal/mcp"
	"github.com/2389/agentmcp/internal/payment"
	"github.com/2389/agentmcp/internal/platform"
	"github.com/2389/agentmcp/internal/store"
	"github.com/2389/agentmcp/internal/tools"
)

// parseFlags parses args, treating --help as a clean exit.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if fs.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return true, nil
}

// loadConfig parses flags and loads the configuration they point at.
func loadConfig(fs *pflag.FlagSet, configFlag *string, args []string) (*config.Config, string, error) {
	ok, err := parseFlags(fs, args)
	if err != nil || !ok {
		return nil, "", err
	}

	path := getConfigPath(*configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("serve")
	cfg, configPath, err := loadConfig(fs, configFlag, args)
	if err != nil || cfg == nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Platform:  %s\n", cfg.Platform.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Payment:   ")
	cyan.Print(cfg.Payment.Mode)
	if cfg.IsPaidMode() && cfg.Payment.Destination == "" {
		yellow.Print(" [falls back to free]")
	}
	fmt.Println()
	if cfg.ATXP.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("ATXP:      ")
		cyan.Print(cfg.ATXP.Network)
		gray.Printf(" -> %s", cfg.ATXP.Destination)
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting agentmcp",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"payment_mode", cfg.Payment.Mode,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runStdio(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("stdio")
	cfg, configPath, err := loadConfig(fs, configFlag, args)
	if err != nil || cfg == nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	logger.Info("starting agentmcp stdio server",
		"version", version,
		"config", configPath,
		"default_key", platform.KeyFingerprint(cfg.Platform.APIKey),
	)

	core, err := gateway.NewCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	server, err := mcp.NewStdioServer(mcp.StdioConfig{
		Dispatcher:    core.Dispatcher,
		DefaultAPIKey: cfg.Platform.APIKey,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating stdio server: %w", err)
	}

	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving stdio: %w", err)
	}
	return nil
}

func runPricing(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("pricing")
	remote := fs.Bool("remote", false, "fetch the platform's published pricing instead of the local table")
	apiKey := fs.String("api-key", "", "API key for --remote (defaults to platform.api_key)")
	jsonOut := fs.Bool("json", false, "print the table as JSON")

	ok, err := parseFlags(fs, args)
	if err != nil || !ok {
		return err
	}

	if !*remote {
		if *jsonOut {
			return printJSON(os.Stdout, tools.PricingTable())
		}
		printPriceTable(os.Stdout)
		return nil
	}

	cfg, err := config.Load(getConfigPath(*configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	key := *apiKey
	if key == "" {
		key = cfg.Platform.APIKey
	}
	if key == "" {
		return errors.New("--api-key or platform.api_key is required for --remote")
	}

	client, err := platform.New(platform.Config{
		BaseURL: cfg.Platform.BaseURL,
		Timeout: cfg.Platform.Timeout,
		Logger:  setupLogger(cfg.Logging, os.Stderr),
	})
	if err != nil {
		return err
	}

	body, err := client.GetPricing(ctx, key)
	if err != nil {
		return errors.New(platform.UserMessage(err))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("formatting pricing: %w", err)
	}
	fmt.Println(out.String())
	return nil
}

// printPriceTable writes the local price table, one action per line.
func printPriceTable(w io.Writer) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintln(w, "  Tool prices (USD per call)")
	cyan.Fprintln(w, "  --------------------------")
	for _, action := range payment.Actions() {
		fmt.Fprintf(w, "  %-24s %.3f\n", action, payment.Price(action))
	}
	gray.Fprintf(w, "  %-24s %.3f\n", "(other)", payment.DefaultPrice)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSubscribe(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("subscribe")
	userID := fs.String("user", "", "platform user ID")
	tier := fs.String("tier", store.TierBasic, "subscription tier: basic, pro or enterprise")

	cfg, _, err := loadConfig(fs, configFlag, args)
	if err != nil || cfg == nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}
	if !store.ValidTier(*tier) {
		return fmt.Errorf("unknown tier %q (want basic, pro or enterprise)", *tier)
	}

	setupLogger(cfg.Logging, os.Stderr)
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	if err := s.SetSubscription(ctx, &store.Subscription{UserID: *userID, Tier: *tier}); err != nil {
		return fmt.Errorf("setting subscription: %w", err)
	}

	t := payment.Tiers[*tier]
	green := color.New(color.FgGreen)
	green.Printf("  ✓ %s is now on %s (%d calls/month)\n", *userID, t.Name, t.MonthlyQuota)
	if cfg.Payment.Mode != config.PaymentModeSubscription {
		color.New(color.FgYellow).Printf("  note: payment.mode is %q, tiers only apply in subscription mode\n", cfg.Payment.Mode)
	}
	return nil
}

func runUsage(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("usage")
	userID := fs.String("user", "", "platform user ID")
	period := fs.String("period", "month", "window: day, week or month")
	limit := fs.Int("limit", 10, "number of recent records to list")

	cfg, _, err := loadConfig(fs, configFlag, args)
	if err != nil || cfg == nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}
	if !validPeriod(*period) {
		return fmt.Errorf("unknown period %q (want %s)", *period, strings.Join(tools.UsagePeriods, ", "))
	}

	setupLogger(cfg.Logging, os.Stderr)
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	since := tools.PeriodStart(time.Now(), *period)
	stats, err := s.GetUsageStats(ctx, store.UsageFilter{UserID: userID, Since: &since})
	if err != nil {
		return fmt.Errorf("reading usage: %w", err)
	}
	records, err := s.ListUsage(ctx, *userID, *limit)
	if err != nil {
		return fmt.Errorf("listing usage: %w", err)
	}

	printUsage(os.Stdout, *userID, *period, since, stats, records)
	return nil
}

func validPeriod(period string) bool {
	for _, p := range tools.UsagePeriods {
		if p == period {
			return true
		}
	}
	return false
}

func printUsage(w io.Writer, userID, period string, since time.Time, stats *store.UsageStats, records []*store.UsageRecord) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "  Usage for %s (%s since %s)\n", userID, period, since.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Requests: %d\n", stats.RequestCount)
	fmt.Fprintf(w, "  Cost:     $%.3f\n", stats.TotalCost)
	fmt.Fprintf(w, "  Tokens:   %d\n", stats.TotalTokens)

	if len(stats.ByAction) > 0 {
		fmt.Fprintln(w)
		cyan.Fprintln(w, "  By tool")
		for _, action := range slices.Sorted(maps.Keys(stats.ByAction)) {
			fmt.Fprintf(w, "  %-24s %d\n", action, stats.ByAction[action])
		}
	}

	if len(records) > 0 {
		fmt.Fprintln(w)
		cyan.Fprintln(w, "  Recent")
		for _, r := range records {
			gray.Fprintf(w, "  %s ", r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "%-24s $%.3f %d tokens\n", r.Action, r.Cost, r.Tokens)
		}
	}
}

func runHealth(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("health")
	cfg, _, err := loadConfig(fs, configFlag, args)
	if err != nil || cfg == nil {
		return err
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health/ready", addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
