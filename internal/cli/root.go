// Package cli implements the cloom command tree. Human-readable output goes
// to stdout; logs go to stderr so serve can keep stdout for the MCP protocol.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusloom/corpusloom/internal/chunker"
	"github.com/corpusloom/corpusloom/internal/config"
	"github.com/corpusloom/corpusloom/internal/ingest"
	"github.com/corpusloom/corpusloom/internal/logger"
	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/internal/retriever"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/internal/template"
)

// RootCmd builds the cloom command tree
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cloom",
		Short: "Chunk, embed, and retrieve text over a local Ollama server",
		Long: "cloom ingests documents into a local corpus (chunked, embedded, and\n" +
			"indexed in SQLite), retrieves them with hybrid vector + keyword search,\n" +
			"and drives generation and chat against an Ollama server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger.Setup(cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().String("db", "", "Database path (env: CLOOM_DB)")
	root.PersistentFlags().String("host", "", "Ollama server URL (env: CLOOM_HOST)")
	root.PersistentFlags().String("model", "", "Generation model (env: CLOOM_MODEL)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, or error (env: CLOOM_LOG_LEVEL)")

	root.AddCommand(
		IngestCmd(),
		SearchCmd(),
		ContextCmd(),
		GenerateCmd(),
		ChatCmd(),
		TemplateCmd(),
		ServeCmd(),
		StatusCmd(),
	)

	return root
}

// resolveConfig loads the environment configuration and applies flag
// overrides
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// app bundles the collaborators a command needs
type app struct {
	cfg    *config.Config
	store  storage.Storage
	client *ollama.Client
}

// openApp opens storage and builds the model client from the resolved
// configuration. Callers must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client := ollama.New(ollama.Config{
		Host:           cfg.Host,
		Model:          cfg.Model,
		EmbedModel:     cfg.EmbedModel,
		KeepAlive:      cfg.KeepAlive,
		CallsPerMinute: cfg.CallsPerMinute,
	}, store)

	return &app{cfg: cfg, store: store, client: client}, nil
}

func (a *app) Close() error {
	_ = a.client.Close()
	return a.store.Close()
}

func (a *app) ingestor(noCache bool) *ingest.Ingestor {
	return ingest.New(a.store, a.client, ingest.Config{
		Chunker: chunker.Config{
			MaxTokens:     a.cfg.MaxTokens,
			OverlapTokens: a.cfg.OverlapTokens,
		},
		NoCache: noCache,
	})
}

func (a *app) searcher() *retriever.Searcher {
	return retriever.NewSearcher(a.store, a.client)
}

func (a *app) templates() *template.Registry {
	return template.NewRegistry(a.store)
}

// truncate collapses whitespace and caps s at n runes for one-line previews
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
