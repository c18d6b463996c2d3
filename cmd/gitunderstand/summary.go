package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/mermaid"
	"github.com/gitunderstand/gitunderstand-go/internal/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <type>",
	Short: "Generate an AI summary for an ingested digest",
	Long: `Generate an AI summary for an ingested digest.

Types: architecture, code_review, onboarding, security.

Without --digest the most recently ingested repository is summarized.
Repeated requests for the same digest and type are served from the
backend cache and do not consume quota. Architecture summaries embed a
mermaid diagram; --svg renders it to a file.

Examples:
  gitunderstand summary architecture
  gitunderstand summary security --digest 4f2a91c8
  gitunderstand summary architecture --svg architecture.svg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := summary.Type(args[0])
		if !typ.Valid() {
			names := make([]string, 0, len(summary.Types()))
			for _, t := range summary.Types() {
				names = append(names, string(t))
			}
			return fmt.Errorf("unknown summary type %q (valid: %s)", args[0], strings.Join(names, ", "))
		}

		digestFlag, _ := cmd.Flags().GetString("digest")
		ctx := cmd.Context()

		digestID := digestFlag
		if digestID == "" {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			digestID, err = resolveDigestID(ctx, store, "")
			if err != nil {
				return err
			}
		}

		api := newBackendClient()
		available, err := api.SummaryAvailable(ctx)
		if err != nil {
			printWarning("Could not check summary availability: %v", err)
		} else if !available {
			return fmt.Errorf("the backend has no summary provider configured")
		}

		ch, err := api.StreamSummary(ctx, &client.SummaryRequest{
			DigestID:    digestID,
			SummaryType: string(typ),
		})
		if err != nil {
			return err
		}

		tracker := summary.NewTracker(typ)
		lastCaption := ""
		for res := range ch {
			if res.Err != nil {
				tracker.Fail(res.Err)
				continue
			}
			tracker.Apply(*res.Event)
			if st := tracker.State(); st.Loading && st.Caption != "" && st.Caption != lastCaption {
				printStep("%s", st.Caption)
				lastCaption = st.Caption
			}
		}

		st := tracker.State()
		if st.Err != "" {
			return fmt.Errorf("summary generation failed: %s", st.Err)
		}

		if st.Cached {
			printStep("Served from cache")
		}
		if st.Quota != nil {
			printStatus("Quota", "%d of %d generations left", st.Quota.Remaining, st.Quota.Limit)
		}

		fmt.Printf("# %s\n\n%s\n", st.Label, st.Content)

		if svgPath, _ := cmd.Flags().GetString("svg"); svgPath != "" {
			renderSummaryDiagram(cmd, st.Content, svgPath)
		}
		return nil
	},
}

// renderSummaryDiagram renders the summary's embedded mermaid block to an
// SVG file. A missing or broken diagram does not fail the summary itself.
func renderSummaryDiagram(cmd *cobra.Command, content, svgPath string) {
	blocks := mermaid.ExtractBlocks(content)
	if len(blocks) == 0 {
		printWarning("Summary contains no mermaid diagram")
		return
	}

	engine := newRenderEngine(false)
	engine.SetSource(cmd.Context(), blocks[0])
	if err := writeSnapshot(engine.Snapshot(), svgPath); err != nil {
		printError("%v", err)
	}
}

func init() {
	summaryCmd.Flags().String("digest", "", "digest ID (default: most recent ingest)")
	summaryCmd.Flags().String("svg", "", "render the summary's mermaid diagram to this SVG file")
}
