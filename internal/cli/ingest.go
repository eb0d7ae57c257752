package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusloom/corpusloom/internal/ingest"
	"github.com/corpusloom/corpusloom/internal/logger"
)

// IngestCmd builds the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <paths...>",
		Short: "Chunk, embed, and store files in the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	cmd.Flags().String("strategy", "auto", "Re-ingest policy: auto, replace, or skip")
	cmd.Flags().Bool("no-cache", false, "Bypass the embedding cache")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	strategyFlag, _ := cmd.Flags().GetString("strategy")
	strategy, err := ingest.ParseStrategy(strategyFlag)
	if err != nil {
		return err
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	logger.Info("ingesting", "files", len(args), "strategy", strategy)

	results, err := app.ingestor(noCache).AddFiles(cmd.Context(), args, ingest.FileOptions{Strategy: strategy})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d chunks (doc %s)\n", r.Path, len(r.ChunkIDs), r.DocID)
	}
	fmt.Fprintf(out, "ingested %d of %d files\n", len(results), len(args))
	return nil
}
