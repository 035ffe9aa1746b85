package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mcpserver "github.com/ziadkadry99/lanne/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing the assistant (ask), the knowledge base (search_knowledge) and the planner (plan_query) as tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Stdout carries the protocol; logging goes to stderr.
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		a, err := buildApp(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		user, _ := cmd.Flags().GetString("user")

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		chunks := 0
		if a.knowledge != nil {
			chunks = a.knowledge.Count()
		}
		logger.Info("lanne MCP server started on stdio", zap.Int("knowledge_chunks", chunks), zap.String("user", user))

		srv := mcpserver.NewServer(a.orchestrator, a.knowledge, mcpserver.Options{UserID: user, Logger: logger})
		return srv.Serve()
	},
}

func init() {
	serveCmd.Flags().String("user", "mcp", "user id owning MCP conversations")
	rootCmd.AddCommand(serveCmd)
}
