package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ziadkadry99/lanne/internal/embeddings"
)

// ElasticConfig configures the Elasticsearch kNN backend.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// ElasticStore implements VectorStore on an Elasticsearch dense_vector index
// with cosine similarity.
type ElasticStore struct {
	client   *elasticsearch.Client
	index    string
	embedder embeddings.Embedder

	mu      sync.Mutex
	ensured bool
}

// NewElasticStore creates a client for the configured cluster. The index is
// created lazily on first write.
func NewElasticStore(cfg ElasticConfig, embedder embeddings.Embedder) (*ElasticStore, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "lanne-knowledge"
	}
	return &ElasticStore{client: es, index: index, embedder: embedder}, nil
}

type esChunk struct {
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Section     string    `json:"section,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	ContentHash string    `json:"content_hash,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

func (s *ElasticStore) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	res, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		mapping := map[string]interface{}{
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"content":      map[string]interface{}{"type": "text"},
					"source":       map[string]interface{}{"type": "keyword"},
					"section":      map[string]interface{}{"type": "keyword"},
					"chunk_index":  map[string]interface{}{"type": "integer"},
					"content_hash": map[string]interface{}{"type": "keyword"},
					"last_updated": map[string]interface{}{"type": "date"},
					"embedding": map[string]interface{}{
						"type":       "dense_vector",
						"dims":       s.embedder.Dimensions(),
						"index":      true,
						"similarity": "cosine",
					},
				},
			},
		}
		body, _ := json.Marshal(mapping)
		res, err := esapi.IndicesCreateRequest{Index: s.index, Body: bytes.NewReader(body)}.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("create index failed: %s", res.String())
		}
	} else if res.IsError() {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	s.ensured = true
	return nil
}

func (s *ElasticStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureIndex(ctx); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, d := range docs {
		meta := map[string]interface{}{"index": map[string]string{"_id": d.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(esChunk{
			Content:     d.Content,
			Source:      d.Metadata.Source,
			Section:     d.Metadata.Section,
			ChunkIndex:  d.Metadata.ChunkIndex,
			ContentHash: d.Metadata.ContentHash,
			LastUpdated: d.Metadata.LastUpdated,
			Embedding:   vecs[i],
		}); err != nil {
			return err
		}
	}

	res, err := esapi.BulkRequest{Index: s.index, Body: &buf, Refresh: "true"}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}

	var bulk struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulk.Errors {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}

func (s *ElasticStore) Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   vecs[0],
		"k":              limit,
		"num_candidates": max(limit*10, 50),
	}
	if filter != nil && filter.Source != nil {
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"source": *filter.Source},
		}
	}
	body, _ := json.Marshal(map[string]interface{}{
		"knn":     knn,
		"size":    limit,
		"_source": []string{"content", "source", "section", "chunk_index", "content_hash", "last_updated"},
	})

	res, err := esapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float32 `json:"_score"`
				Source esChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]SearchResult, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, SearchResult{
			Document: Document{
				ID:      h.ID,
				Content: h.Source.Content,
				Metadata: DocumentMetadata{
					Source:      h.Source.Source,
					Section:     h.Source.Section,
					ChunkIndex:  h.Source.ChunkIndex,
					ContentHash: h.Source.ContentHash,
					LastUpdated: h.Source.LastUpdated,
				},
			},
			// Elasticsearch scores cosine as (1+cos)/2.
			Similarity: clampSimilarity(2*h.Score - 1),
		})
	}
	return out, nil
}

func (s *ElasticStore) DeleteBySource(ctx context.Context, source string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"source": source},
		},
	})
	refresh := true
	res, err := esapi.DeleteByQueryRequest{
		Index:   []string{s.index},
		Body:    bytes.NewReader(body),
		Refresh: &refresh,
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("delete by source: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete by source failed: %s", res.String())
	}
	return nil
}

// Persist refreshes the index; Elasticsearch owns durability.
func (s *ElasticStore) Persist(ctx context.Context, _ string) error {
	res, err := esapi.IndicesRefreshRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("refresh index failed: %s", res.String())
	}
	return nil
}

// Load only verifies that the index is reachable.
func (s *ElasticStore) Load(ctx context.Context, _ string) error {
	return s.ensureIndex(ctx)
}

func (s *ElasticStore) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := esapi.CountRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return 0
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0
	}

	var r struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0
	}
	return r.Count
}

// String identifies the backend in logs.
func (s *ElasticStore) String() string {
	return "elasticsearch/" + s.index
}
