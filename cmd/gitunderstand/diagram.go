package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/mermaid"
	"github.com/gitunderstand/gitunderstand-go/internal/preview"
	"github.com/gitunderstand/gitunderstand-go/internal/render"
	"github.com/gitunderstand/gitunderstand-go/internal/render/kroki"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram [file]",
	Short: "Render a Mermaid diagram to SVG",
	Long: `Render a Mermaid diagram to SVG.

Reads Mermaid source from a file or stdin and renders it through a
Kroki server. Invalid diagrams go through one automatic repair pass
before rendering. Markdown input contributes its first fenced mermaid
block.

With --serve the rendered diagram is shown on a local preview page that
supports retrying failed repairs, pan and zoom. With --watch the source
file is re-rendered whenever it changes.

Examples:
  gitunderstand diagram architecture.mmd
  cat README.md | gitunderstand diagram --extract
  gitunderstand diagram docs/flow.mmd --serve --watch
  gitunderstand diagram arch.mmd --repo golang/go@master --serve`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		serve, _ := cmd.Flags().GetBool("serve")
		port, _ := cmd.Flags().GetInt("port")
		repoRef, _ := cmd.Flags().GetString("repo")
		out, _ := cmd.Flags().GetString("out")
		extract, _ := cmd.Flags().GetBool("extract")

		path := ""
		if len(args) == 1 && args[0] != "-" {
			path = args[0]
		}
		if watch && path == "" {
			return fmt.Errorf("--watch needs a file argument")
		}
		if port == 0 {
			port = cfg.Preview.Port
		}

		var owner, repo, branch string
		if repoRef != "" {
			var err error
			owner, repo, branch, err = parseRepoRef(repoRef)
			if err != nil {
				return err
			}
		}

		// load reads the source and resolves bare click targets into
		// repository URLs when --repo was given.
		load := func() (string, error) {
			source, err := readDiagramSource(path, extract)
			if err != nil {
				return "", err
			}
			if owner != "" {
				source = mermaid.ResolveClicks(source, owner, repo, branch)
			}
			return source, nil
		}

		source, err := load()
		if err != nil {
			return err
		}

		engine := newRenderEngine(serve)
		ctx := cmd.Context()
		engine.SetSource(ctx, source)

		if !watch && !serve {
			return writeSnapshot(engine.Snapshot(), out)
		}
		reportSnapshot(engine.Snapshot())

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watch {
			if err := watchSource(ctx, path, load, engine); err != nil {
				return err
			}
		}

		if serve {
			var opts []preview.Option
			if owner != "" {
				opts = append(opts, preview.WithRepoLink(
					fmt.Sprintf("https://github.com/%s/%s/blob/%s", owner, repo, branch)))
			}
			srv := preview.New(engine, port, logger, opts...)
			printStep("Preview at http://localhost:%d", port)
			return srv.Start(ctx)
		}

		<-ctx.Done()
		fmt.Fprintln(os.Stderr)
		return nil
	},
}

// newRenderEngine builds the render engine from the configuration. The link
// resolver and zoom hooks only make sense on the preview page, so they are
// wired when serving.
func newRenderEngine(serve bool) *render.Engine {
	renderer := kroki.NewClient(
		kroki.WithBaseURL(cfg.Render.KrokiURL),
		kroki.WithLogger(logger),
	)

	opts := []render.EngineOption{
		render.WithOptions(render.Options{
			Theme:         cfg.Render.Theme,
			SecurityLevel: cfg.Render.SecurityLevel,
		}),
		render.WithLogger(logger),
	}
	if serve {
		opts = append(opts, render.WithLinkResolver(func(repoPath string) string {
			return "/files/" + repoPath
		}))
		if cfg.Render.Zoom {
			opts = append(opts, render.WithZoom(func() (render.ZoomAttacher, error) {
				return preview.NewZoom(), nil
			}))
		}
	}
	return render.NewEngine(renderer, opts...)
}

// readDiagramSource loads Mermaid text from a file or stdin. Markdown input
// contributes its first fenced mermaid block.
func readDiagramSource(path string, extract bool) (string, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read diagram source: %w", err)
	}

	text := string(data)
	if extract || strings.HasSuffix(path, ".md") {
		blocks := mermaid.ExtractBlocks(text)
		if len(blocks) == 0 {
			return "", fmt.Errorf("no fenced mermaid blocks found")
		}
		if len(blocks) > 1 {
			printWarning("Using the first of %d mermaid blocks", len(blocks))
		}
		text = blocks[0]
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("diagram source is empty")
	}
	return text, nil
}

// parseRepoRef parses an owner/repo[@branch] reference. Full GitHub URLs are
// accepted too. The branch defaults to main.
func parseRepoRef(ref string) (owner, repo, branch string, err error) {
	branch = "main"
	if at := strings.LastIndex(ref, "@"); at > 0 {
		branch = ref[at+1:]
		ref = ref[:at]
	}
	ref = strings.TrimPrefix(ref, "https://github.com/")
	ref = strings.TrimPrefix(ref, "http://github.com/")
	ref = strings.Trim(ref, "/")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || branch == "" {
		return "", "", "", fmt.Errorf("invalid repository reference %q (want owner/repo[@branch])", ref)
	}
	return parts[0], parts[1], branch, nil
}

// watchSource re-renders whenever the file changes. The goroutine stops when
// ctx is canceled.
func watchSource(ctx context.Context, path string, load func() (string, error), engine *render.Engine) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	printStep("Watching %s for changes", path)

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				source, err := load()
				if err != nil {
					printError("%v", err)
					continue
				}
				engine.SetSource(ctx, source)
				reportSnapshot(engine.Snapshot())

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// reportSnapshot prints the outcome of a render pass to stderr.
func reportSnapshot(snap render.Snapshot) {
	switch snap.State {
	case render.StateRendered:
		if snap.Repaired {
			printWarning("Diagram repaired automatically before rendering")
		}
		printSuccess("Diagram rendered")
	case render.StateFailed:
		printError("Render failed: %s", snap.ErrMsg)
		if snap.Candidate != "" {
			printStep("A repaired candidate is available; retry it from the preview page")
		}
	case render.StateFaulted:
		printError("%s", snap.ErrMsg)
	}
}

// writeSnapshot writes the rendered SVG to out, or stdout when out is empty.
func writeSnapshot(snap render.Snapshot, out string) error {
	switch snap.State {
	case render.StateRendered:
	case render.StateFailed, render.StateFaulted:
		if snap.Candidate != "" {
			printStep("A repaired candidate exists; run with --serve to retry it")
		}
		return fmt.Errorf("render failed: %s", snap.ErrMsg)
	default:
		return fmt.Errorf("render did not finish (state %s)", snap.State)
	}

	if snap.Repaired {
		printWarning("Diagram repaired automatically before rendering")
	}
	if out == "" {
		fmt.Println(snap.SVG)
		return nil
	}
	if err := os.WriteFile(out, []byte(snap.SVG), 0o644); err != nil {
		return fmt.Errorf("failed to write SVG: %w", err)
	}
	printSuccess("SVG written to %s", out)
	return nil
}

func init() {
	diagramCmd.Flags().Bool("watch", false, "re-render when the source file changes")
	diagramCmd.Flags().Bool("serve", false, "serve an interactive preview page")
	diagramCmd.Flags().Int("port", 0, "preview port (default from config)")
	diagramCmd.Flags().String("repo", "", "owner/repo[@branch] for source file links")
	diagramCmd.Flags().String("out", "", "write the SVG to a file instead of stdout")
	diagramCmd.Flags().Bool("extract", false, "treat input as Markdown and extract the first mermaid block")
}
