package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/config"
	"github.com/ziadkadry99/lanne/internal/embeddings"
	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

const (
	BackendChromem       = "chromem"
	BackendElasticsearch = "elasticsearch"
)

// OpenStore creates the configured vector store and loads its data. A
// chromem index that has not been ingested yet starts empty.
func OpenStore(ctx context.Context, cfg config.RetrievalConfig, embedder embeddings.Embedder, logger *zap.Logger) (vectordb.VectorStore, error) {
	logger = logging.OrNop(logger)

	switch cfg.Backend {
	case BackendChromem, "":
		store, err := vectordb.NewChromemStore(embedder)
		if err != nil {
			return nil, err
		}
		err = store.Load(ctx, cfg.IndexDir)
		switch {
		case errors.Is(err, vectordb.ErrNoIndex):
			logger.Warn("knowledge index not found, run `lanne ingest` to build it", zap.String("dir", cfg.IndexDir))
		case err != nil:
			return nil, fmt.Errorf("load knowledge index: %w", err)
		default:
			logger.Info("knowledge index loaded", zap.String("dir", cfg.IndexDir), zap.Int("chunks", store.Count()))
		}
		return store, nil

	case BackendElasticsearch:
		es := cfg.Elasticsearch
		store, err := vectordb.NewElasticStore(vectordb.ElasticConfig{
			Addresses: es.Addresses,
			Username:  es.Username,
			Password:  es.Password,
			Index:     es.Index,
		}, embedder)
		if err != nil {
			return nil, err
		}
		if err := store.Load(ctx, ""); err != nil {
			return nil, fmt.Errorf("open elasticsearch index: %w", err)
		}
		logger.Info("elasticsearch knowledge index ready", zap.Stringer("store", store))
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported retrieval backend: %s", cfg.Backend)
	}
}
