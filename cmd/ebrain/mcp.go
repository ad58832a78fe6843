package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebrain-io/ebrain/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operations over MCP on stdio",
		Long: `mcp exposes the Redmine and ServiceNow operations as MCP tools on stdin and
stdout. Logs go to stderr. No LLM provider is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, _ := newLogger(cfg.Log, os.Stderr, "text")
			ops := operations(cfg)
			s, err := mcpserver.New(ops, logger.With("component", "mcp"))
			if err != nil {
				return err
			}
			logger.Info("mcp tools registered", "count", len(ops))
			return mcpserver.Serve(ctx, s, os.Stdin, os.Stdout, logger)
		},
	}
}
