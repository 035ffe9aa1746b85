package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedderBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[2])
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1,2]]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("m", 2, srv.URL).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestOpenAIEmbedderHonoursIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0.0,1.0]},
			{"object":"embedding","index":0,"embedding":[1.0,0.0]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("k", ModelTextEmbedding3Small, srv.URL+"/v1")
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
	assert.Equal(t, 1536, e.Dimensions())
}

func TestNewFactory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("openai", "", 0, "")
	assert.Error(t, err)

	_, err = New("bogus", "", 0, "")
	assert.Error(t, err)

	e, err := New("ollama", "", 0, "http://x")
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())
}

func TestToChromemFunc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[0.6,0.8]]}`))
	}))
	defer srv.Close()

	fn := ToChromemFunc(NewOllamaEmbedder("m", 2, srv.URL))
	vec, err := fn(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vec)
}
