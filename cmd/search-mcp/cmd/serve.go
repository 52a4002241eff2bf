package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/logging"
	"github.com/blakazulu/search-mcp/internal/mcp"
	"github.com/blakazulu/search-mcp/internal/strategy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tool protocol over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}

		// stdio is the protocol channel: logs go to file only.
		indexDir := index.DirFor(root)
		if err := logging.Init(indexDir, logLevel()); err != nil {
			return err
		}
		defer logging.Reset()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dual, err := index.OpenDual(ctx, root, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = dual.Close() }()

		server, err := mcp.NewServer(dual, cfg)
		if err != nil {
			return err
		}

		strat, err := strategy.New(cfg, dual, server.Integrity())
		if err != nil {
			return err
		}
		if err := strat.Initialize(ctx); err != nil {
			slog.Warn("strategy initialization failed, continuing without live updates",
				slog.String("error", err.Error()))
		} else if err := strat.Start(ctx); err != nil {
			slog.Warn("strategy start failed", slog.String("error", err.Error()))
		} else {
			server.SetStrategy(strat)
			defer func() { _ = strat.Stop() }()
		}

		if cfg.Indexing.PeriodicCheckHours > 0 {
			server.Integrity().StartPeriodic(ctx, time.Duration(cfg.Indexing.PeriodicCheckHours)*time.Hour)
			defer server.Integrity().StopPeriodic()
		}

		slog.Info("serving MCP over stdio",
			slog.String("strategy", cfg.Indexing.Strategy))
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
