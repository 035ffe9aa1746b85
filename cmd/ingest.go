package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/lanne/internal/db"
	"github.com/ziadkadry99/lanne/internal/ingest"
	"github.com/ziadkadry99/lanne/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index documents into the knowledge base",
	Long: `Walks a directory of markdown, text and JSONL question/answer files,
splits them into chunks, embeds them and stores them in the knowledge base.
Files whose content has not changed since the last run are skipped and
files that disappeared are removed from the index.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("force", false, "re-index every file, even unchanged ones")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openKnowledge(ctx, cfg, logger)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	in := ingest.New(store, ingest.NewLedger(database), ingest.Options{
		Include:   cfg.Ingest.Include,
		Exclude:   cfg.Ingest.Exclude,
		ChunkSize: cfg.Ingest.ChunkSize,
		IndexDir:  cfg.Retrieval.IndexDir,
		Force:     force,
		Reporter:  progress.NewReporter(os.Stderr),
		Logger:    logger,
	})

	stats, err := in.Run(ctx, root)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d file(s) into %d chunk(s); %d unchanged, %d removed, %d failed. Knowledge base now holds %d chunk(s).\n",
		stats.Files, stats.Chunks, stats.Skipped, stats.Removed, stats.Failed, store.Count())
	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) could not be indexed, see the log", stats.Failed)
	}
	return nil
}
