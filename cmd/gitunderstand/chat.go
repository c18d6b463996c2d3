package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitunderstand/gitunderstand-go/internal/chat"
	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/tokens"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat about an ingested repository",
	Long: `Chat about an ingested repository.

With a message argument a single turn runs and the reply prints to
stdout. Without arguments an interactive prompt starts. History is
persisted per digest and restored between runs.

Examples:
  gitunderstand chat "How does request routing work?"
  gitunderstand chat
  gitunderstand chat --clear`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		digestFlag, _ := cmd.Flags().GetString("digest")
		clearHistory, _ := cmd.Flags().GetBool("clear")

		ctx := cmd.Context()
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		digestID, err := resolveDigestID(ctx, store, digestFlag)
		if err != nil {
			return err
		}

		var opts []chat.SessionOption
		if cfg.Chat.HistoryBudget > 0 {
			opts = append(opts, chat.WithHistoryBudget(tokens.NewCounter(), cfg.Chat.HistoryBudget))
		}
		session := chat.NewSession(ctx, digestID, store, logger, opts...)

		if clearHistory {
			session.Clear(ctx)
			printSuccess("Chat history cleared for digest %s", shortID(digestID))
			return nil
		}

		api := newBackendClient()

		if len(args) == 1 {
			return runTurn(ctx, api, session, args[0])
		}

		if n := len(session.Messages()); n > 0 {
			printStep("Resuming conversation with %d messages", n)
		}
		fmt.Fprintln(os.Stderr, `Type a question, or "exit" to leave.`)

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			fmt.Fprint(os.Stderr, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}
			if err := runTurn(ctx, api, session, line); err != nil {
				printError("%v", err)
			}
		}
		return scanner.Err()
	},
}

// runTurn sends one chat message, waits for the streamed response and prints
// the assistant reply.
func runTurn(ctx context.Context, api *client.Client, session *chat.Session, message string) error {
	req, err := session.Begin(ctx, message)
	if err != nil {
		return err
	}

	ch, err := api.StreamChat(ctx, req)
	if err != nil {
		session.Fail(err)
		return err
	}

	thinking := false
	for res := range ch {
		if res.Err != nil {
			session.Fail(res.Err)
			continue
		}
		if res.Event.Type == "thinking" && !thinking {
			printStep("Thinking...")
			thinking = true
		}
		session.Apply(ctx, *res.Event)
	}

	if msg := session.ErrMessage(); msg != "" {
		return fmt.Errorf("%s", msg)
	}

	msgs := session.Messages()
	if len(msgs) > 0 && msgs[len(msgs)-1].Role == chat.RoleAssistant {
		fmt.Println(msgs[len(msgs)-1].Content)
	}
	return nil
}

func init() {
	chatCmd.Flags().String("digest", "", "digest ID (default: most recent ingest)")
	chatCmd.Flags().Bool("clear", false, "clear stored history for the digest")
}
