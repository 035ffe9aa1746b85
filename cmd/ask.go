package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/lanne/internal/orchestrator"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the assistant a question from the terminal",
	Long:  `Runs one question through the full pipeline and prints the answer. Progress events are written to stderr.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().String("conversation", "", "continue an existing conversation")
	askCmd.Flags().String("user", "cli", "user id owning the conversation")
	askCmd.Flags().Bool("plan", false, "only print the execution plan")
	askCmd.Flags().Bool("json", false, "print the full result as JSON")
	askCmd.Flags().Bool("quiet", false, "do not print progress events")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := strings.Join(args, " ")

	conversationID, _ := cmd.Flags().GetString("conversation")
	user, _ := cmd.Flags().GetString("user")
	planOnly, _ := cmd.Flags().GetBool("plan")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if planOnly {
		return printJSON(a.orchestrator.Plan(ctx, question))
	}

	var opts []orchestrator.Option
	if !quiet {
		opts = append(opts, orchestrator.WithObserver(func(e orchestrator.Event) {
			if e.Type == orchestrator.EventStatus {
				fmt.Fprintf(os.Stderr, "… %s\n", e.Message)
			}
		}))
	}

	res, err := a.orchestrator.Handle(ctx, orchestrator.Query{
		ConversationID: conversationID,
		UserID:         user,
		Text:           question,
	}, opts...)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(res)
	}

	fmt.Println(res.Answer)
	fmt.Fprintf(os.Stderr, "\nconversation: %s", res.ConversationID)
	if len(res.Sources) > 0 {
		fmt.Fprintf(os.Stderr, "  sources: %s", strings.Join(res.Sources, ", "))
	}
	fmt.Fprintln(os.Stderr)
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
