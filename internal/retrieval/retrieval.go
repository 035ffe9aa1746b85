// Package retrieval answers knowledge-base lookups for the pipeline on top
// of a vectordb.VectorStore.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

// Hit is one retrieved chunk. Score is a similarity in [0,1].
type Hit struct {
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
	Section string  `json:"section,omitempty"`
}

// Retriever finds the chunks most similar to a query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Index is a Retriever over a vector store.
type Index struct {
	store  vectordb.VectorStore
	logger *zap.Logger
}

// NewIndex wraps store.
func NewIndex(store vectordb.VectorStore, logger *zap.Logger) *Index {
	return &Index{store: store, logger: logging.OrNop(logger).Named("retrieval")}
}

// Search returns at most topK hits ordered by descending score. An empty
// index yields no hits and no error.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	results, err := i.store.Search(ctx, query, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Text:    r.Document.Content,
			Score:   clamp(float64(r.Similarity)),
			Source:  r.Document.Metadata.Source,
			Section: r.Document.Metadata.Section,
		})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if len(hits) > 0 {
		i.logger.Debug("knowledge base hits",
			zap.Int("count", len(hits)),
			zap.Float64("top_score", hits[0].Score),
			zap.String("top_source", hits[0].Source))
	}
	return hits, nil
}

func clamp(s float64) float64 {
	return max(0, min(1, s))
}
