// ABOUTME: Entry point for the agentmcp server and its operator commands
// ABOUTME: Dispatches serve, stdio, pricing, subscribe, usage and health subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/2389/agentmcp/internal/platform"
)

// Version is set at build time.
var version = "dev"

const banner = `
                         _
  __ _  __ _  ___ _ __ | |_   _ __ ___   ___ _ __
 / _' |/ _' |/ _ \ '_ \| __| | '_ ' _ \ / __| '_ \
| (_| | (_| |  __/ | | | |_  | | | | | | (__| |_) |
 \__,_|\__, |\___|_| |_|\__| |_| |_| |_|\___| .__/
       |___/                                 |_|
`

// getConfigPath returns the path to the config file.
// Priority: --config flag > AGENTMCP_CONFIG env var > XDG_CONFIG_HOME/agentmcp/config.yaml > ~/.config/agentmcp/config.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("AGENTMCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agentmcp", "config.yaml")
}

// newFlagSet creates a subcommand flag set with the shared --config flag.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to config file (YAML, or TOML with a .toml extension)")
	return fs, configPath
}

func usage() {
	fmt.Println("Usage: agentmcp <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the HTTP server (MCP, envelope and ATXP routes)")
	fmt.Println("  stdio                          Serve MCP over stdin/stdout")
	fmt.Println("  pricing [--remote]             Show the tool price table")
	fmt.Println("  subscribe --user ID --tier T   Assign a subscription tier (basic, pro, enterprise)")
	fmt.Println("  usage --user ID [--period P]   Show locally recorded usage for a user")
	fmt.Println("  health                         Check server readiness")
	fmt.Println("  version                        Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	platform.UserAgent = "agentmcp/" + version

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "stdio":
		err = runStdio(ctx, args)
	case "pricing":
		err = runPricing(ctx, args)
	case "subscribe":
		err = runSubscribe(ctx, args)
	case "usage":
		err = runUsage(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
