package ingest

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/corpusloom/internal/chunker"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// fakeEmbedder returns deterministic vectors and records every text it
// was asked to embed.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string, useCache bool) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	f.texts = append(f.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t)), 1, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedModel() string { return "test-embed" }

func (f *fakeEmbedder) embedded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeEmbedder) batchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// paragraphConfig forces one chunk per paragraph for small test texts
func paragraphConfig() chunker.Config {
	return chunker.Config{MaxTokens: 2, HardWrapMultiplier: 1.25}
}

func setupIngestor(t *testing.T, cfg Config) (*Ingestor, *storage.SQLiteStorage, *fakeEmbedder) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embed := &fakeEmbedder{}
	return New(store, embed, cfg), store, embed
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew_Defaults(t *testing.T) {
	ing, _, _ := setupIngestor(t, Config{})

	assert.Equal(t, runtime.NumCPU(), ing.cfg.Workers)
	assert.Equal(t, DefaultBatchSize, ing.cfg.BatchSize)
	assert.Equal(t, int64(DefaultMaxFileSize), ing.cfg.MaxFileSize)
	assert.Equal(t, chunker.DefaultMaxTokens, ing.cfg.Chunker.MaxTokens)
}

func TestAddText_NewDocument(t *testing.T) {
	ing, store, embed := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	text := "Para A\n\nPara B"
	docID, chunkIDs, err := ing.AddText(ctx, text, "inline1", TextOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, docID)
	require.Len(t, chunkIDs, 2)

	doc, err := store.GetDocumentBySource(ctx, "inline1")
	require.NoError(t, err)
	assert.Equal(t, docID, doc.ID)
	assert.Equal(t, sha256.Sum256([]byte(text)), doc.ContentHash)

	chunks, err := store.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Para A", chunks[0].Content)
	assert.Equal(t, "Para B", chunks[1].Content)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 1, chunks[1].Position)

	// block offsets into the source text survive storage
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len("Para A"), chunks[0].EndOffset)
	assert.Equal(t, len("Para A\n\n"), chunks[1].StartOffset)
	assert.Equal(t, len(text), chunks[1].EndOffset)

	for _, id := range chunkIDs {
		emb, err := store.GetEmbedding(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "test-embed", emb.Model)
		assert.Equal(t, 3, emb.Dimension)
	}
	assert.Equal(t, 2, embed.embedded())
}

func TestAddText_AnonymousAlwaysNewDocument(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	d1, _, err := ing.AddText(ctx, "Para A", "", TextOptions{})
	require.NoError(t, err)
	d2, _, err := ing.AddText(ctx, "Para A", "", TextOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestAddText_ReplacesExistingSource(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	d1, oldIDs, err := ing.AddText(ctx, "Para A\n\nPara B", "notes.md", TextOptions{})
	require.NoError(t, err)

	d2, newIDs, err := ing.AddText(ctx, "Para X\n\nPara Y", "notes.md", TextOptions{})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	require.Len(t, newIDs, 2)

	chunks, err := store.ListChunksByDocument(ctx, d1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Para X", chunks[0].Content)
	assert.Equal(t, "Para Y", chunks[1].Content)

	_, err = store.GetEmbedding(ctx, oldIDs[0])
	assert.ErrorIs(t, err, storage.ErrNotFound)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestAddText_Incremental(t *testing.T) {
	ing, store, embed := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	d1, c1, err := ing.AddText(ctx, "Para A\n\nPara B", "inline1", TextOptions{})
	require.NoError(t, err)
	require.Len(t, c1, 2)

	text2 := "Para A\n\nPara C"
	d2, c2, err := ing.AddText(ctx, text2, "inline1", TextOptions{DocID: d1, IncrementalDoc: true})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	require.Len(t, c2, 1)

	chunks, err := store.ListChunksByDocument(ctx, d1)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Para A", chunks[0].Content)
	assert.Equal(t, "Para B", chunks[1].Content)
	assert.Equal(t, "Para C", chunks[2].Content)
	assert.Equal(t, 2, chunks[2].Position)

	// Only the new paragraph was embedded on the second call.
	assert.Equal(t, 3, embed.embedded())

	doc, err := store.GetDocument(ctx, d1)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256([]byte(text2)), doc.ContentHash)
}

func TestAddText_IncrementalBySource(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	d1, _, err := ing.AddText(ctx, "Para A\n\nPara B", "inline1", TextOptions{})
	require.NoError(t, err)

	d2, c2, err := ing.AddText(ctx, "Para A\n\nPara C", "inline1", TextOptions{IncrementalDoc: true})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, c2, 1)

	chunks, err := store.ListChunksByDocument(ctx, d1)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestAddText_IncrementalAnonymousByDocID(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	text2 := "Para A\n\nPara C"
	d1, _, err := ing.AddText(ctx, "Para A\n\nPara B", "", TextOptions{})
	require.NoError(t, err)

	d2, c2, err := ing.AddText(ctx, text2, "", TextOptions{DocID: d1, IncrementalDoc: true})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, c2, 1)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, sha256.Sum256([]byte(text2)), docs[0].ContentHash)
}

func TestAddText_IncrementalNoNewContent(t *testing.T) {
	ing, store, embed := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	text := "Para A\n\nPara B"
	d1, _, err := ing.AddText(ctx, text, "inline1", TextOptions{})
	require.NoError(t, err)
	calls := embed.batchCalls()

	_, c2, err := ing.AddText(ctx, text, "inline1", TextOptions{IncrementalDoc: true})
	require.NoError(t, err)
	assert.Empty(t, c2)
	assert.Equal(t, calls, embed.batchCalls())

	chunks, err := store.ListChunksByDocument(ctx, d1)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestAddText_EmptyText(t *testing.T) {
	ing, _, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})

	_, _, err := ing.AddText(context.Background(), "  \n\t ", "inline1", TextOptions{})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestAddText_UnknownDocID(t *testing.T) {
	ing, _, _ := setupIngestor(t, Config{Chunker: paragraphConfig()})

	_, _, err := ing.AddText(context.Background(), "Para A", "", TextOptions{DocID: "missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAddText_EmbedFailureLeavesStoreUntouched(t *testing.T) {
	ing, store, embed := setupIngestor(t, Config{Chunker: paragraphConfig()})
	ctx := context.Background()

	text1 := "Para A\n\nPara B"
	d1, _, err := ing.AddText(ctx, text1, "notes.md", TextOptions{})
	require.NoError(t, err)

	embed.err = assert.AnError
	_, _, err = ing.AddText(ctx, "Para X\n\nPara Y", "notes.md", TextOptions{})
	require.ErrorIs(t, err, assert.AnError)

	doc, err := store.GetDocumentBySource(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256([]byte(text1)), doc.ContentHash)

	chunks, err := store.ListChunksByDocument(ctx, d1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Para A", chunks[0].Content)
}

func TestAddText_BatchedEmbedding(t *testing.T) {
	cfg := Config{Chunker: paragraphConfig(), Workers: 2, BatchSize: 2}
	ing, store, embed := setupIngestor(t, cfg)
	ctx := context.Background()

	text := "Para 1\n\nPara 2\n\nPara 3\n\nPara 4\n\nPara 5"
	docID, chunkIDs, err := ing.AddText(ctx, text, "big.md", TextOptions{})
	require.NoError(t, err)
	require.Len(t, chunkIDs, 5)

	assert.Equal(t, 5, embed.embedded())
	assert.Equal(t, 3, embed.batchCalls())

	chunks, err := store.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Position)
		emb, err := store.GetEmbedding(ctx, chunk.ID)
		require.NoError(t, err)
		// First vector component is the text length: order preserved.
		vec := storage.DeserializeVector(emb.Vector)
		assert.Equal(t, float32(len(chunk.Content)), vec[0])
	}
}

func TestAddFiles_StrategyAuto(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	aPath := writeFile(t, dir, "a.md", "# A\n")
	bPath := writeFile(t, dir, "b.txt", "B1")

	out1, err := ing.AddFiles(ctx, []string{aPath, bPath}, FileOptions{Strategy: StrategyAuto})
	require.NoError(t, err)
	require.Len(t, out1, 2)
	assert.Equal(t, aPath, out1[0].Path)
	assert.Equal(t, bPath, out1[1].Path)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Unchanged file: no result entries.
	out2, err := ing.AddFiles(ctx, []string{aPath}, FileOptions{Strategy: StrategyAuto})
	require.NoError(t, err)
	assert.Empty(t, out2)

	// Changed file: replaced under the same document id.
	require.NoError(t, os.WriteFile(aPath, []byte("# A v2\n"), 0o644))
	out3, err := ing.AddFiles(ctx, []string{aPath}, FileOptions{Strategy: StrategyAuto})
	require.NoError(t, err)
	require.Len(t, out3, 1)
	assert.Equal(t, out1[0].DocID, out3[0].DocID)

	docs, err = store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	chunks, err := store.ListChunksByDocument(ctx, out3[0].DocID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "# A v2", chunks[0].Content)
}

func TestAddFiles_StrategySkip(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	bPath := writeFile(t, dir, "b.txt", "B1")
	out1, err := ing.AddFiles(ctx, []string{bPath}, FileOptions{Strategy: StrategyAuto})
	require.NoError(t, err)
	require.Len(t, out1, 1)

	// Skip leaves an existing document alone even when the file changed.
	require.NoError(t, os.WriteFile(bPath, []byte("B2"), 0o644))
	out2, err := ing.AddFiles(ctx, []string{bPath}, FileOptions{Strategy: StrategySkip})
	require.NoError(t, err)
	assert.Empty(t, out2)

	chunks, err := store.ListChunksByDocument(ctx, out1[0].DocID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "B1", chunks[0].Content)
}

func TestAddFiles_StrategyReplace(t *testing.T) {
	ing, store, _ := setupIngestor(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "a.md", "# A\n")
	out1, err := ing.AddFiles(ctx, []string{path}, FileOptions{Strategy: StrategyAuto})
	require.NoError(t, err)
	require.Len(t, out1, 1)

	// Replace re-ingests even an unchanged file.
	out2, err := ing.AddFiles(ctx, []string{path}, FileOptions{Strategy: StrategyReplace})
	require.NoError(t, err)
	require.Len(t, out2, 1)
	assert.Equal(t, out1[0].DocID, out2[0].DocID)
	assert.NotEqual(t, out1[0].ChunkIDs, out2[0].ChunkIDs)

	chunks, err := store.ListChunksByDocument(ctx, out2[0].DocID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestAddFiles_DefaultStrategyIsAuto(t *testing.T) {
	ing, _, _ := setupIngestor(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "a.md", "# A\n")
	_, err := ing.AddFiles(ctx, []string{path}, FileOptions{})
	require.NoError(t, err)

	out, err := ing.AddFiles(ctx, []string{path}, FileOptions{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAddFiles_MissingFile(t *testing.T) {
	ing, _, _ := setupIngestor(t, Config{})

	_, err := ing.AddFiles(context.Background(), []string{"does-not-exist.md"}, FileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.md")
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"auto", StrategyAuto, false},
		{"replace", StrategyReplace, false},
		{"skip", StrategySkip, false},
		{"", StrategyAuto, false},
		{"merge", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
