// ABOUTME: Gateway orchestrator that assembles the HTTP server for agentmcp
// ABOUTME: Owns the store, platform client, dispatcher, MCP server and ATXP paywall lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2389/agentmcp/internal/atxp"
	"github.com/2389/agentmcp/internal/config"
	"github.com/2389/agentmcp/internal/mcp"
	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/payment"
	"github.com/2389/agentmcp/internal/platform"
	"github.com/2389/agentmcp/internal/store"
	"github.com/2389/agentmcp/internal/tools"
)

// replayLedgerSize bounds the number of remembered ATXP receipts.
const replayLedgerSize = 100_000

// Core holds the components shared by every transport.
type Core struct {
	Store      store.Store
	Platform   *platform.Client
	Strategy   payment.Strategy
	Dispatcher *tools.Dispatcher
}

// NewCore opens the store and builds the platform client, payment strategy
// and dispatcher described by cfg.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	core, err := newCoreWithStore(ctx, cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return core, nil
}

func newCoreWithStore(ctx context.Context, cfg *config.Config, s store.Store, logger *slog.Logger) (*Core, error) {
	client, err := platform.New(platform.Config{
		BaseURL:    cfg.Platform.BaseURL,
		ServiceKey: cfg.Platform.ServiceKey,
		Timeout:    cfg.Platform.Timeout,
		Logger:     logger.With("component", "platform"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating platform client: %w", err)
	}

	strategy, err := payment.New(ctx, payment.Options{
		Mode:              cfg.Payment.Mode,
		Destination:       cfg.Payment.Destination,
		AllowFreeFallback: cfg.Payment.AllowFreeFallback,
		FailOpen:          cfg.Payment.PerCall.FailOpenEnabled(),
		Store:             s,
		Balances:          client,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := tools.NewDispatcher(tools.Config{
		Platform: client,
		Payment:  strategy,
		Usage:    s,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	return &Core{
		Store:      s,
		Platform:   client,
		Strategy:   strategy,
		Dispatcher: dispatcher,
	}, nil
}

// Close releases the store.
func (c *Core) Close() error {
	return c.Store.Close()
}

// Gateway serves the agentmcp HTTP surfaces.
type Gateway struct {
	config     *config.Config
	core       *Core
	mcpServer  *mcp.Server
	paywall    *atxp.Paywall
	ledger     *atxp.Ledger
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Gateway instance with the given configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gw, err := newWithCore(cfg, core, logger)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	return gw, nil
}

func newWithCore(cfg *config.Config, core *Core, logger *slog.Logger) (*Gateway, error) {
	gw := &Gateway{
		config: cfg,
		core:   core,
		logger: logger.With("component", "gateway"),
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Dispatcher: core.Dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer

	if cfg.ATXP.Enabled {
		if err := gw.initPaywall(logger); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Catalogue
	mux.HandleFunc("/tools", gw.handleListTools)
	mux.HandleFunc("/pricing", gw.handlePricing)

	// Tool calls
	gw.mcpServer.RegisterRoutes(mux)
	mux.HandleFunc("/mcp/call", gw.handleCall)
	if gw.paywall != nil {
		mux.Handle("/atxp/mcp/call", gw.paywall.Wrap(http.HandlerFunc(gw.handleCall)))
		logger.Info("ATXP paywall enabled at /atxp/mcp/call", "network", cfg.ATXP.Network)
	}

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	gw.handler = otelhttp.NewHandler(mux, "agentmcp")
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// initPaywall builds the ATXP paywall and its replay ledger.
func (g *Gateway) initPaywall(logger *slog.Logger) error {
	atxpCfg := g.config.ATXP
	if atxpCfg.ReceiptSecret == "" {
		return errors.New("atxp.receipt_secret is required when atxp is enabled")
	}

	var settler atxp.Settler
	if atxpCfg.FacilitatorURL != "" {
		settler = atxp.NewHTTPSettler(atxpCfg.FacilitatorURL, atxpCfg.SettleTimeout, nil)
	}

	// Unknown tools and get_pricing are answered without payment.
	registry := g.core.Dispatcher.Registry()
	chargeable := func(tool string) bool {
		t, ok := registry.Get(tool)
		return ok && t.RequiresAuth
	}

	ledger := atxp.NewLedger(atxpCfg.ReplayWindow, replayLedgerSize)
	paywall, err := atxp.New(atxp.Config{
		Destination: atxpCfg.Destination,
		Network:     atxpCfg.Network,
		Verifier:    atxp.NewReceiptVerifier([]byte(atxpCfg.ReceiptSecret)),
		Settler:     settler,
		Ledger:      ledger,
		Chargeable:  chargeable,
		Logger:      logger,
	})
	if err != nil {
		ledger.Close()
		return fmt.Errorf("creating ATXP paywall: %w", err)
	}

	g.paywall = paywall
	g.ledger = ledger
	return nil
}

// Handler returns the instrumented HTTP handler serving every route.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Core returns the shared components.
func (g *Gateway) Core() *Core {
	return g.core
}

// startServer serves HTTP on ln in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"payment_strategy", g.core.Strategy.Name(),
		"atxp", g.paywall != nil,
	)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.ledger != nil {
		g.ledger.Close()
	}
	errs = appendCloseError(errs, "store close", g.core.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the billing database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.core.Store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s, %d mcp sessions)", g.core.Strategy.Name(), g.mcpServer.SessionCount())
}
