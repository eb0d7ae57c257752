package cli

import (
	"github.com/spf13/cobra"

	"github.com/corpusloom/corpusloom/internal/logger"
	"github.com/corpusloom/corpusloom/internal/mcp"
)

// ServeCmd builds the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return err
			}

			logger.Info("MCP server listening on stdio", "name", mcp.ServerName, "db", cfg.DBPath)
			return server.Serve(cmd.Context())
		},
	}
}
