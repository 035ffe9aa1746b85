package vectordb

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElastic is a minimal stand-in for the endpoints ElasticStore uses.
type fakeElastic struct {
	mu       sync.Mutex
	created  bool
	mapping  map[string]interface{}
	docs     map[string]esChunk
	lastKNN  map[string]interface{}
	deleted  []string
	searches int
}

func newFakeElastic() *fakeElastic {
	return &fakeElastic{docs: map[string]esChunk{}}
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/kb":
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/kb":
		json.NewDecoder(r.Body).Decode(&f.mapping)
		f.created = true
		io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			var meta struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			json.Unmarshal(sc.Bytes(), &meta)
			if !sc.Scan() {
				break
			}
			var c esChunk
			json.Unmarshal(sc.Bytes(), &c)
			f.docs[meta.Index.ID] = c
		}
		io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		f.searches++
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.lastKNN, _ = body["knn"].(map[string]interface{})
		io.WriteString(w, `{"hits":{"hits":[
			{"_id":"firewall#0","_score":0.91,"_source":{"content":"ufw enable","source":"rede/firewall.md","section":"Firewall","chunk_index":0}},
			{"_id":"apt#0","_score":0.40,"_source":{"content":"apt update","source":"pacotes/apt.md","chunk_index":0}}]}}`)
	case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
		var body struct {
			Query struct {
				Term map[string]string `json:"term"`
			} `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.deleted = append(f.deleted, body.Query.Term["source"])
		io.WriteString(w, `{"deleted":1}`)
	case strings.HasSuffix(r.URL.Path, "/_count"):
		io.WriteString(w, `{"count":`+itoa(len(f.docs))+`}`)
	case strings.HasSuffix(r.URL.Path, "/_refresh"):
		io.WriteString(w, `{"_shards":{"total":1,"successful":1,"failed":0}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"unexpected"}`)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestElasticStore(t *testing.T) (*ElasticStore, *fakeElastic) {
	t.Helper()
	fake := newFakeElastic()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewElasticStore(ElasticConfig{Addresses: []string{srv.URL}, Index: "kb"}, newMockEmbedder(16))
	require.NoError(t, err)
	return store, fake
}

func TestElasticStore_AddCreatesIndexAndBulkIndexes(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestElasticStore(t)

	require.NoError(t, store.AddDocuments(ctx, knowledgeDocs()))

	require.True(t, fake.created)
	props := fake.mapping["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	emb := props["embedding"].(map[string]interface{})
	assert.Equal(t, "dense_vector", emb["type"])
	assert.Equal(t, float64(16), emb["dims"])
	assert.Equal(t, "cosine", emb["similarity"])

	require.Len(t, fake.docs, 3)
	assert.Len(t, fake.docs["apt#1"].Embedding, 16)
	assert.Equal(t, "Limpeza", fake.docs["apt#1"].Section)
	assert.Equal(t, 3, store.Count())
}

func TestElasticStore_SearchConvertsScores(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestElasticStore(t)

	src := "rede/firewall.md"
	results, err := store.Search(ctx, "firewall", 2, &SearchFilter{Source: &src})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 0.82, results[0].Similarity, 1e-5)
	assert.Equal(t, "rede/firewall.md", results[0].Document.Metadata.Source)
	assert.Equal(t, "Firewall", results[0].Document.Metadata.Section)
	// 0.40 maps below zero cosine and is clamped.
	assert.Equal(t, float32(0), results[1].Similarity)

	assert.Equal(t, float64(2), fake.lastKNN["k"])
	assert.Equal(t, float64(50), fake.lastKNN["num_candidates"])
	assert.NotNil(t, fake.lastKNN["filter"])
}

func TestElasticStore_DeleteAndPersist(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestElasticStore(t)

	require.NoError(t, store.DeleteBySource(ctx, "pacotes/apt.md"))
	assert.Equal(t, []string{"pacotes/apt.md"}, fake.deleted)
	require.NoError(t, store.Persist(ctx, ""))
	require.NoError(t, store.Load(ctx, ""))
	assert.True(t, fake.created)
}
