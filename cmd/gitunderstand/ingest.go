package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/ingest"
	"github.com/gitunderstand/gitunderstand-go/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <repo-url>",
	Short: "Ingest a repository into a digest",
	Long: `Ingest a repository into a prompt-friendly digest.

The backend clones the repository, filters files and produces a digest.
Progress events stream back while the pipeline runs; the finished digest
is recorded locally for later summary and chat commands.

Examples:
  gitunderstand ingest https://github.com/golang/go
  gitunderstand ingest golang/go --exclude "*.md,docs/"
  gitunderstand ingest myorg/private-repo --token ${GITHUB_TOKEN}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxFileSize, _ := cmd.Flags().GetInt("max-file-size")
		include, _ := cmd.Flags().GetString("include")
		exclude, _ := cmd.Flags().GetString("exclude")
		token, _ := cmd.Flags().GetString("token")
		noStream, _ := cmd.Flags().GetBool("no-stream")

		if include != "" && exclude != "" {
			return fmt.Errorf("--include and --exclude are mutually exclusive")
		}

		req := client.NewIngestRequest(args[0])
		if maxFileSize > 0 {
			req.MaxFileSize = maxFileSize
		}
		if include != "" {
			req.PatternType = client.PatternInclude
			req.Pattern = include
		}
		if exclude != "" {
			req.Pattern = exclude
		}
		if token == "" {
			token = cfg.Backend.Token
		}
		req.Token = token

		api := newBackendClient()
		ctx := cmd.Context()

		var result *client.IngestResult
		if noStream {
			var err error
			result, err = api.Ingest(ctx, req)
			if err != nil {
				return err
			}
		} else {
			ch, err := api.StreamIngest(ctx, req)
			if err != nil {
				return err
			}

			tracker := ingest.NewTracker(logger)
			lastStage := ingest.Stage("")
			for res := range ch {
				if res.Err != nil {
					tracker.Fail(res.Err)
					continue
				}
				tracker.Apply(*res.Event)
				if p := tracker.Progress(); p.Loading && p.Stage != lastStage {
					printStep("%s (%d%%)", p.Label, p.Percent)
					lastStage = p.Stage
				}
			}

			if msg := tracker.ErrMessage(); msg != "" {
				return fmt.Errorf("ingestion failed: %s", msg)
			}
			var ok bool
			result, ok = tracker.Result()
			if !ok {
				return fmt.Errorf("stream ended without a completion event")
			}
		}

		printSuccess("Ingested %s", result.ShortRepoURL)
		if id := result.DigestID(); id != "" {
			printStatus("Digest", "%s", id)
		}
		if result.Summary != "" {
			fmt.Println(result.Summary)
		}

		saveDigestRecord(cmd, result)
		return nil
	},
}

// saveDigestRecord records the completed ingestion locally. Persistence is
// best effort; the digest itself lives on the backend.
func saveDigestRecord(cmd *cobra.Command, result *client.IngestResult) {
	id := result.DigestID()
	if id == "" {
		return
	}

	store, err := openStore()
	if err != nil {
		printWarning("Digest not recorded locally: %v", err)
		return
	}
	defer store.Close()

	rec := &storage.DigestRecord{
		ID:           id,
		RepoURL:      result.RepoURL,
		ShortRepoURL: result.ShortRepoURL,
		Summary:      result.Summary,
		DigestURL:    result.DigestURL,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.SaveDigest(cmd.Context(), rec); err != nil {
		printWarning("Digest not recorded locally: %v", err)
	}
}

func init() {
	ingestCmd.Flags().Int("max-file-size", 0, "maximum file size in KB (0 uses the backend default)")
	ingestCmd.Flags().String("include", "", "comma-separated include patterns")
	ingestCmd.Flags().String("exclude", "", "comma-separated exclude patterns")
	ingestCmd.Flags().String("token", "", "GitHub token for private repositories")
	ingestCmd.Flags().Bool("no-stream", false, "use the one-shot endpoint instead of streaming progress")
}
