package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusloom/corpusloom/internal/logger"
	"github.com/corpusloom/corpusloom/internal/retriever"
)

// SearchCmd builds the search command
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	cmd.Flags().Int("top-k", retriever.DefaultTopK, "Maximum number of results")
	cmd.Flags().String("mode", "hybrid", "Search mode: hybrid, vector, or text")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := retriever.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	res, err := app.searcher().Search(cmd.Context(), retriever.Request{
		Query: strings.Join(args, " "),
		TopK:  topK,
		Mode:  mode,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}

	for _, r := range res.Results {
		source := r.Source
		if source == "" {
			source = r.DocumentID
		}
		fmt.Fprintf(out, "%2d. [%.3f] %s\n    %s\n", r.Rank, r.Score, source, truncate(r.Content, 120))
	}
	logger.Debug("search complete", "mode", res.Mode, "duration", res.Duration,
		"vector_hits", res.VectorHits, "text_hits", res.TextHits)
	return nil
}

// ContextCmd builds the context command
func ContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <query...>",
		Short: "Stitch the best-matching chunks into a prompt-ready context block",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runContext,
	}
	cmd.Flags().Int("top-k", retriever.DefaultTopK, "Maximum number of chunks to stitch")
	return cmd
}

func runContext(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	text, err := app.searcher().BuildContext(cmd.Context(), strings.Join(args, " "), topK)
	if err != nil {
		return err
	}
	if text == "" {
		logger.Warn("no matching context")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
