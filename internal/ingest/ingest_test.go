package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ziadkadry99/lanne/internal/db"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

type recordingStore struct {
	mu        sync.Mutex
	docs      map[string][]vectordb.Document
	deleted   []string
	persisted string
	failOn    string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{docs: map[string][]vectordb.Document{}}
}

func (s *recordingStore) AddDocuments(_ context.Context, docs []vectordb.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.Metadata.Source == s.failOn {
			return errors.New("embedding service down")
		}
		s.docs[d.Metadata.Source] = append(s.docs[d.Metadata.Source], d)
	}
	return nil
}

func (s *recordingStore) DeleteBySource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, source)
	delete(s.docs, source)
	return nil
}

func (s *recordingStore) Search(context.Context, string, int, *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	return nil, nil
}

func (s *recordingStore) Persist(_ context.Context, dir string) error {
	s.persisted = dir
	return nil
}

func (s *recordingStore) Load(context.Context, string) error { return nil }

func (s *recordingStore) Count() int {
	n := 0
	for _, d := range s.docs {
		n += len(d)
	}
	return n
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewLedger(database)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

const sshDoc = `Introducao sobre acesso remoto.

# Instalacao

Instale com ` + "`apt install openssh-server`" + `.

## Configuracao

- edite /etc/ssh/sshd_config
- reinicie o servico

` + "```bash\nsystemctl restart ssh\n```\n"

func TestMarkdownSections(t *testing.T) {
	sections := MarkdownSections([]byte(sshDoc))
	require.Len(t, sections, 3)

	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, "Introducao sobre acesso remoto.", sections[0].Text)

	assert.Equal(t, "Instalacao", sections[1].Title)
	assert.Contains(t, sections[1].Text, "apt install openssh-server")

	assert.Equal(t, "Configuracao", sections[2].Title)
	assert.Contains(t, sections[2].Text, "/etc/ssh/sshd_config")
	assert.Contains(t, sections[2].Text, "reinicie o servico")
	assert.Contains(t, sections[2].Text, "systemctl restart ssh")
}

func TestMarkdownSectionsSkipsEmptyHeadings(t *testing.T) {
	sections := MarkdownSections([]byte("# A\n\n# B\n\ntexto\n"))
	require.Len(t, sections, 1)
	assert.Equal(t, "B", sections[0].Title)
}

func TestQASections(t *testing.T) {
	src := strings.Join([]string{
		`{"question":"Como ver o IP?","context":"Use ip addr.","answer":"ip a","category":"Rede"}`,
		``,
		`not json`,
		`{"question":"","answer":"x"}`,
		`{"question":"Como listar discos?","answer":"lsblk"}`,
	}, "\n")

	sections, skipped := QASections([]byte(src))
	assert.Equal(t, 2, skipped)
	require.Len(t, sections, 2)
	assert.Equal(t, "Rede: Como ver o IP?", sections[0].Title)
	assert.Equal(t, "Como ver o IP?\nUse ip addr.\nip a", sections[0].Text)
	assert.Equal(t, "Como listar discos?", sections[1].Title)
}

func TestTextSections(t *testing.T) {
	assert.Nil(t, TextSections([]byte("  \n ")))
	assert.Equal(t, []Section{{Text: "apt update"}}, TextSections([]byte("\napt update\n")))
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("   ", 10))
	assert.Equal(t, []string{"um dois"}, Chunk("um\n\tdois", 100))

	// "aaaa " is 5 characters; the chunk closes once it reaches 10.
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd", "eeee"}, Chunk("aaaa bbbb cccc dddd eeee", 10))

	long := strings.Repeat("palavra ", 200)
	for _, c := range Chunk(long, 512) {
		assert.LessOrEqual(t, len(c), 512+len("palavra"))
		assert.False(t, strings.HasSuffix(c, " "))
	}
}

func TestRunIngestsAndSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"ssh.md":         sshDoc,
		"notas/apt.txt":  "Use apt update antes de apt upgrade.",
		"faq/rede.jsonl": `{"question":"Como ver o IP?","answer":"ip a"}`,
		"ignorado.go":    "package main",
	})
	store := newRecordingStore()
	ledger := newLedger(t)
	in := New(store, ledger, Options{IndexDir: filepath.Join(root, ".lanne", "index"), Logger: zaptest.NewLogger(t)})

	st, err := in.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 3, Chunks: 5}, st)
	assert.Equal(t, filepath.Join(root, ".lanne", "index"), store.persisted)

	ssh := store.docs["ssh.md"]
	require.Len(t, ssh, 3)
	assert.Equal(t, "ssh.md#0", ssh[0].ID)
	assert.Equal(t, "Instalacao", ssh[1].Metadata.Section)
	assert.Equal(t, 2, ssh[2].Metadata.ChunkIndex)
	assert.NotEmpty(t, ssh[0].Metadata.ContentHash)

	e, ok, err := ledger.Get(context.Background(), "notas/apt.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, e.Chunks)

	// Second run: nothing changed.
	store.deleted = nil
	st, err = in.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 3}, st)
	assert.Empty(t, store.deleted)
}

func TestRunReplacesChangedAndRemovesDeleted(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.md": "# A\n\nprimeira versao",
		"b.md": "# B\n\nvai sumir",
	})
	store := newRecordingStore()
	ledger := newLedger(t)
	in := New(store, ledger, Options{})

	_, err := in.Run(context.Background(), root)
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{"a.md": "# A\n\nsegunda versao"})
	require.NoError(t, os.Remove(filepath.Join(root, "b.md")))
	store.deleted = nil

	st, err := in.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1, Chunks: 1, Removed: 1}, st)

	sort.Strings(store.deleted)
	assert.Equal(t, []string{"a.md", "b.md"}, store.deleted)
	require.Len(t, store.docs["a.md"], 1)
	assert.Equal(t, "segunda versao", store.docs["a.md"][0].Content)
	assert.Empty(t, store.docs["b.md"])

	sources, err := ledger.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, sources)
}

func TestRunForceReingests(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.md": "texto"})
	store := newRecordingStore()
	ledger := newLedger(t)

	_, err := New(store, ledger, Options{}).Run(context.Background(), root)
	require.NoError(t, err)
	st, err := New(store, ledger, Options{Force: true}).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
}

func TestRunContinuesPastFailedFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"bom.md": "texto bom", "ruim.md": "texto ruim"})
	store := newRecordingStore()
	store.failOn = "ruim.md"
	ledger := newLedger(t)

	st, err := New(store, ledger, Options{}).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 1, st.Failed)

	_, ok, err := ledger.Get(context.Background(), "ruim.md")
	require.NoError(t, err)
	assert.False(t, ok, "failed files must be retried next run")
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.md": "texto"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newRecordingStore(), newLedger(t), Options{}).Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

// wordEmbedder hashes words into a small bag-of-words vector.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%32]++
		}
		v[31] += 0.01
		out[i] = v
	}
	return out, nil
}

func (wordEmbedder) Dimensions() int { return 32 }
func (wordEmbedder) Name() string    { return "words" }

func TestRunWithChromemRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"ssh.md":      sshDoc,
		"firewall.md": "# Firewall\n\nufw allow 22 libera a porta do ssh no firewall ufw",
	})
	indexDir := filepath.Join(t.TempDir(), "index")

	store, err := vectordb.NewChromemStore(wordEmbedder{})
	require.NoError(t, err)
	_, err = New(store, newLedger(t), Options{IndexDir: indexDir}).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, store.Count())

	loaded, err := vectordb.NewChromemStore(wordEmbedder{})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(context.Background(), indexDir))
	assert.Equal(t, 4, loaded.Count())

	results, err := loaded.Search(context.Background(), "firewall ufw porta", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "firewall.md", results[0].Document.Metadata.Source)
}
