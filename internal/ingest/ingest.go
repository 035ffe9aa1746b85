// Package ingest loads documents from a directory into the knowledge-base
// vector store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/progress"
	"github.com/ziadkadry99/lanne/internal/vectordb"
	"github.com/ziadkadry99/lanne/internal/walker"
)

const defaultChunkSize = 512

// Options configures an Ingester.
type Options struct {
	Include   []string
	Exclude   []string
	ChunkSize int
	// IndexDir is where the store is persisted after a run.
	IndexDir string
	// Force re-ingests files whose content hash is unchanged.
	Force    bool
	Reporter progress.Reporter
	Logger   *zap.Logger
}

// Stats summarises one run.
type Stats struct {
	Files   int
	Skipped int
	Removed int
	Chunks  int
	Failed  int
}

// Ingester chunks, embeds and stores documents. Unchanged files are
// skipped using the ledger; changed files replace their previous chunks.
type Ingester struct {
	store     vectordb.VectorStore
	ledger    *Ledger
	include   []string
	exclude   []string
	chunkSize int
	indexDir  string
	force     bool
	reporter  progress.Reporter
	logger    *zap.Logger
}

// New creates an Ingester.
func New(store vectordb.VectorStore, ledger *Ledger, opts Options) *Ingester {
	in := &Ingester{
		store:     store,
		ledger:    ledger,
		include:   opts.Include,
		exclude:   opts.Exclude,
		chunkSize: opts.ChunkSize,
		indexDir:  opts.IndexDir,
		force:     opts.Force,
		reporter:  opts.Reporter,
		logger:    logging.OrNop(opts.Logger).Named("ingest"),
	}
	if in.chunkSize <= 0 {
		in.chunkSize = defaultChunkSize
	}
	if in.reporter == nil {
		in.reporter = progress.Nop{}
	}
	return in
}

// Run ingests every document under root. Sources that disappeared since
// the previous run are removed from the store. A file that fails is logged
// and counted; the run continues.
func (in *Ingester) Run(ctx context.Context, root string) (Stats, error) {
	var st Stats
	start := time.Now()

	files, err := walker.Walk(walker.Config{RootDir: root, Include: in.include, Exclude: in.exclude})
	if err != nil {
		return st, err
	}

	present := make(map[string]bool, len(files))
	in.reporter.Start(len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			in.reporter.Finish()
			return st, err
		}
		present[f.RelPath] = true
		in.reporter.Update(i+1, f.RelPath)

		n, skipped, err := in.ingestFile(ctx, f)
		switch {
		case err != nil:
			st.Failed++
			in.logger.Warn("ingesting file failed", zap.String("source", f.RelPath), zap.Error(err))
		case skipped:
			st.Skipped++
		default:
			st.Files++
			st.Chunks += n
		}
	}
	in.reporter.Finish()

	removed, err := in.prune(ctx, present)
	st.Removed = removed
	if err != nil {
		return st, err
	}

	if in.indexDir != "" {
		if err := in.store.Persist(ctx, in.indexDir); err != nil {
			return st, fmt.Errorf("persisting index: %w", err)
		}
	}

	in.logger.Info("ingestion finished",
		zap.Int("files", st.Files),
		zap.Int("skipped", st.Skipped),
		zap.Int("removed", st.Removed),
		zap.Int("failed", st.Failed),
		zap.Int("chunks", st.Chunks),
		zap.Int("total_documents", in.store.Count()),
		zap.Duration("elapsed", time.Since(start)))
	return st, nil
}

func (in *Ingester) ingestFile(ctx context.Context, f walker.FileInfo) (chunks int, skipped bool, err error) {
	if !in.force {
		prev, ok, err := in.ledger.Get(ctx, f.RelPath)
		if err != nil {
			return 0, false, err
		}
		if ok && prev.ContentHash == f.ContentHash {
			return 0, true, nil
		}
	}

	src, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, false, err
	}

	var sections []Section
	switch f.Format {
	case walker.FormatMarkdown:
		sections = MarkdownSections(src)
	case walker.FormatQA:
		var bad int
		sections, bad = QASections(src)
		if bad > 0 {
			in.logger.Warn("skipped malformed records", zap.String("source", f.RelPath), zap.Int("records", bad))
		}
	default:
		sections = TextSections(src)
	}

	docs := in.documents(f, sections)
	if err := in.store.DeleteBySource(ctx, f.RelPath); err != nil {
		return 0, false, fmt.Errorf("removing previous chunks: %w", err)
	}
	if len(docs) > 0 {
		if err := in.store.AddDocuments(ctx, docs); err != nil {
			return 0, false, fmt.Errorf("storing chunks: %w", err)
		}
	}
	if err := in.ledger.Record(ctx, f.RelPath, f.ContentHash, len(docs)); err != nil {
		return 0, false, err
	}
	in.logger.Debug("ingested", zap.String("source", f.RelPath), zap.Int("chunks", len(docs)))
	return len(docs), false, nil
}

func (in *Ingester) documents(f walker.FileInfo, sections []Section) []vectordb.Document {
	now := time.Now()
	var docs []vectordb.Document
	for _, s := range sections {
		for _, c := range Chunk(s.Text, in.chunkSize) {
			docs = append(docs, vectordb.Document{
				ID:      fmt.Sprintf("%s#%d", f.RelPath, len(docs)),
				Content: c,
				Metadata: vectordb.DocumentMetadata{
					Source:      f.RelPath,
					Section:     s.Title,
					ChunkIndex:  len(docs),
					ContentHash: f.ContentHash,
					LastUpdated: now,
				},
			})
		}
	}
	return docs
}

func (in *Ingester) prune(ctx context.Context, present map[string]bool) (int, error) {
	sources, err := in.ledger.Sources(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range sources {
		if present[s] {
			continue
		}
		if err := in.store.DeleteBySource(ctx, s); err != nil {
			return removed, fmt.Errorf("removing %s: %w", s, err)
		}
		if err := in.ledger.Forget(ctx, s); err != nil {
			return removed, err
		}
		removed++
		in.logger.Info("removed deleted source", zap.String("source", s))
	}
	return removed, nil
}
