// Package main provides the patentfusion command: the MCP server entry
// point wiring configuration, the Redis-backed store, lane backends, and
// the orchestrator together behind the fusion engine's tool surface.
//
// Usage:
//
//	patentfusion serve
//	patentfusion version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/patentfusion/rrfusion/internal/backend"
	"github.com/patentfusion/rrfusion/internal/config"
	"github.com/patentfusion/rrfusion/internal/logging"
	"github.com/patentfusion/rrfusion/internal/mcptools"
	"github.com/patentfusion/rrfusion/internal/orchestrator"
	"github.com/patentfusion/rrfusion/internal/store"
	"github.com/patentfusion/rrfusion/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:     "patentfusion",
		Short:   "Patent search fusion engine MCP server",
		Long:    `Serves lane search, RRF fusion, and provenance tools to an LLM agent over MCP.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("patentfusion version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory to look for patentfusion.yaml in")

	cmd.AddCommand(newServeCmd(&configDir))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newServeCmd(configDir *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configDir, debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level logging")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}

func runServe(ctx context.Context, configDir string, debug bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := cfg.Server.LogLevel
	if debug {
		logLevel = "debug"
	}
	cleanup, err := logging.SetupMCPModeWithLevel(logLevel)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanup()

	rdb, err := newRedisClient(cfg.Store.URL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	st := store.New(rdb, cfg.Store.Snapshot, cfg.Store.DataTTLHours, cfg.Store.SnippetTTLHours)
	registry := buildRegistry(cfg)
	orch := orchestrator.New(st, registry, orchestratorConfig(cfg))

	srv, err := mcptools.NewServer(orch, []string{"JP"})
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Serve(ctx, cfg.Server.Transport)
}

func newRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url %q: %w", url, err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func buildRegistry(cfg *config.Config) *backend.Registry {
	byLane := map[string]backend.LaneBackend{}

	if cfg.Backends.Upstream.BaseURL != "" {
		byLane["fulltext"] = backend.NewHTTPBackend(backend.HTTPConfig{
			Name:              "upstream",
			BaseURL:           cfg.Backends.Upstream.BaseURL,
			SearchPath:        cfg.Backends.Upstream.SearchPath,
			SnippetsPath:      cfg.Backends.Upstream.SnippetsPath,
			NumbersSearchPath: cfg.Backends.Upstream.NumbersSearchPath,
			Token:             os.Getenv(cfg.Backends.Upstream.TokenEnv),
			Timeout:           cfg.Backends.Upstream.Timeout,
		})
	}

	if cfg.Backends.InternalDense.BaseURL != "" {
		byLane["semantic"] = backend.NewHTTPBackend(backend.HTTPConfig{
			Name:         "internal_dense",
			BaseURL:      cfg.Backends.InternalDense.BaseURL,
			SearchPath:   cfg.Backends.InternalDense.SearchPath,
			SnippetsPath: cfg.Backends.InternalDense.SnippetsPath,
			Token:        os.Getenv(cfg.Backends.InternalDense.TokenEnv),
			Timeout:      cfg.Backends.InternalDense.Timeout,
		})
	}

	return backend.NewRegistry(byLane)
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	if cfg.Fusion.RRFK > 0 {
		oc.RRFK = cfg.Fusion.RRFK
	}
	if cfg.Fusion.PeekBudgetBytes > 0 {
		oc.SnippetBudgetBytes = cfg.Fusion.PeekBudgetBytes
	}
	if cfg.Fusion.PeekMaxDocs > 0 {
		oc.PeekMaxDocs = cfg.Fusion.PeekMaxDocs
	}
	return oc
}
