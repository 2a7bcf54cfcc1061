package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/itrack/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Configure it in an MCP client with:

  {
    "mcpServers": {
      "itrack": { "command": "itrack", "args": ["mcp"] }
    }
  }

Available tools: issue_list, issue_create, issue_update, issue_delete,
issue_reports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return mcpRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs must go to stderr or a file.
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	s, err := getStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return mcp.NewServer(s, logger, buildVersion).ServeStdio(ctx)
}
