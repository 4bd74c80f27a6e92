// ccg-mcp is the bridge server's entrypoint: it exposes the coder,
// reviewer, and generalist tools over MCP stdio, backed by the
// subprocess supervision engine in internal/engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/dispatch"
	"github.com/szstan/ccg-mcp/internal/logger"
	"github.com/szstan/ccg-mcp/internal/signals"
)

var (
	logDirFlag string
	version    = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error; logger may not be initialized yet
		// if the failure happened during config loading.
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ccg-mcp",
		Short:         "Expose coder/reviewer/generalist CLIs as MCP tools over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP stdio server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&logDirFlag, "log-dir", defaultLogDir(), "directory for the rotating log file")

	cmd.AddCommand(serveCmd)
	return cmd
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ccg-mcp/logs"
	}
	return home + "/.ccg-mcp/logs"
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccg-mcp: %v\n", err)
		return err
	}

	if err := logger.NewLogger(&logger.Options{
		LogsDir:    logDirFlag,
		FileConfig: (*logger.LoggingConfig)(&cfg.Logging),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "ccg-mcp: logger init failed: %v\n", err)
		logger.Init()
	}
	defer logger.Close()

	logger.Info().Str("version", version).Msg("ccg-mcp starting")

	ctx, cancel := signals.SetupSignalContext(cmd.Context())
	defer cancel()

	mcpServer := dispatch.NewServer(cfg)

	err = dispatch.Serve(ctx, mcpServer)
	logger.Info().Msg("ccg-mcp shutting down")
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("mcp server exited with error")
		return err
	}
	return nil
}
