package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StatusCmd builds the status command
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report corpus statistics and the configured models",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().Bool("check", false, "Probe the embedding model with a test call")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	stats, err := app.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "database:      %s (%.2f MB)\n", app.cfg.DBPath, stats.SizeMB)
	fmt.Fprintf(out, "documents:     %d\n", stats.Documents)
	fmt.Fprintf(out, "chunks:        %d\n", stats.Chunks)
	fmt.Fprintf(out, "embeddings:    %d\n", stats.Embeddings)
	fmt.Fprintf(out, "conversations: %d\n", stats.Conversations)
	fmt.Fprintf(out, "templates:     %d\n", stats.Templates)
	fmt.Fprintf(out, "host:          %s\n", app.cfg.Host)
	fmt.Fprintf(out, "model:         %s\n", app.cfg.Model)
	fmt.Fprintf(out, "embed model:   %s\n", app.cfg.EmbedModel)

	if check, _ := cmd.Flags().GetBool("check"); check {
		vector, err := app.client.EmbedText(cmd.Context(), "connectivity check")
		if err != nil {
			return fmt.Errorf("embedding check: %w", err)
		}
		fmt.Fprintf(out, "embedding:     ok (%d dimensions)\n", len(vector))
	}
	return nil
}
