package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/lanne/internal/config"
)

func TestNewTracerDisabled(t *testing.T) {
	tracer, shutdown, err := newTracer(context.Background(), config.TracingConfig{})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "orchestrator.handle")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerExportsSpans(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	tracer, shutdown, err := newTracer(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    strings.TrimPrefix(collector.URL, "http://"),
		Insecure:    true,
		SampleRatio: 1,
	})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "orchestrator.handle")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, paths, "/v1/traces")
}
