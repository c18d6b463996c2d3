package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/config"
	"github.com/gitunderstand/gitunderstand-go/internal/storage"
	"github.com/gitunderstand/gitunderstand-go/internal/storage/memory"
	"github.com/gitunderstand/gitunderstand-go/internal/storage/sqlite"
	"github.com/gitunderstand/gitunderstand-go/internal/telemetry"
)

var (
	cfgFile      string
	serverURL    string
	noColor      bool
	verbose      bool
	traceEnabled bool

	cfg            *config.Config
	logger         *slog.Logger
	tracerShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "gitunderstand",
	Short: "Turn a Git repository into digests, summaries, chat and diagrams",
	Long: `gitunderstand is a terminal client for a GitUnderstand backend.

It ingests repositories into prompt-friendly digests, generates AI
summaries, holds digest-grounded chat conversations and renders Mermaid
architecture diagrams.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Command output goes to stdout; diagnostics stay on stderr.
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.Backend.BaseURL = serverURL
		}

		tracerShutdown, err = telemetry.Init(traceEnabled, "gitunderstand", logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if tracerShutdown == nil {
			return nil
		}
		return tracerShutdown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default gitunderstand.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "emit OpenTelemetry spans to stderr")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(digestsCmd)
}

// newBackendClient builds the API client from the loaded configuration.
func newBackendClient() *client.Client {
	return client.New(
		client.WithBaseURL(cfg.Backend.BaseURL),
		client.WithLogger(logger),
	)
}

// openStore opens the persistence backend named in the configuration.
func openStore() (storage.Store, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return sqlite.New(cfg.Storage.SQLite.Path)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// resolveDigestID returns the explicit ID when given, otherwise the most
// recently ingested digest on record.
func resolveDigestID(ctx context.Context, store storage.DigestStore, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	recs, err := store.ListDigests(ctx, 1)
	if err != nil {
		return "", fmt.Errorf("failed to list digests: %w", err)
	}
	if len(recs) == 0 {
		return "", fmt.Errorf("no digests recorded yet; run ingest first or pass --digest")
	}
	return recs[0].ID, nil
}
