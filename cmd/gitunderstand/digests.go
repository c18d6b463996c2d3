package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/tokens"
)

var digestsCmd = &cobra.Command{
	Use:   "digests",
	Short: "Manage locally recorded digests",
}

var digestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded digests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.ListDigests(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No digests recorded yet.")
			return nil
		}

		for _, rec := range recs {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, shortID(rec.ID)),
				rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.ShortRepoURL,
			)
		}
		return nil
	},
}

var digestsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Digest(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printStatus("ID", "%s", rec.ID)
		printStatus("Repository", "%s", rec.RepoURL)
		printStatus("Ingested", "%s", rec.CreatedAt.Format(time.RFC3339))
		if rec.Summary != "" {
			fmt.Println()
			fmt.Println(rec.Summary)
		}
		return nil
	},
}

var digestsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded digest and its chat history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteDigest(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Deleted digest %s", shortID(args[0]))
		return nil
	},
}

var digestsDownloadCmd = &cobra.Command{
	Use:   "download [id]",
	Short: "Download the full digest text from the backend",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		ctx := cmd.Context()
		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err = resolveDigestID(ctx, store, "")
			if err != nil {
				return err
			}
		}

		api := newBackendClient()
		content, err := api.DownloadDigest(ctx, id)
		if err != nil {
			return err
		}

		counter := tokens.NewCounter()
		if n, err := counter.Count(content); err == nil {
			label := "Tokens"
			if counter.Estimated() {
				label = "Tokens (estimated)"
			}
			printStatus(label, "%s", tokens.FormatCount(n))
		}

		if output == "" {
			fmt.Print(content)
			return nil
		}
		if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write digest: %w", err)
		}
		printSuccess("Digest written to %s", output)
		return nil
	},
}

func init() {
	digestsListCmd.Flags().Int("limit", 20, "maximum number of digests to list")
	digestsDownloadCmd.Flags().String("output", "", "output file path (default: stdout)")
	digestsCmd.AddCommand(digestsListCmd)
	digestsCmd.AddCommand(digestsShowCmd)
	digestsCmd.AddCommand(digestsDeleteCmd)
	digestsCmd.AddCommand(digestsDownloadCmd)
}
