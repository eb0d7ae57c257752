package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/corpusloom/internal/storage"
)

// runCLI executes the command tree with a fresh root, capturing stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// fakeOllama serves the embeddings, generate, and chat endpoints with
// canned responses
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		// Constant vector: ranking decisions stay with the keyword leg.
		writeJSON(t, w, map[string]any{"embedding": []float64{1, 0, 0}})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.Stream {
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprintln(w, `{"response":"Hello ","done":false}`)
			fmt.Fprintln(w, `{"response":"world","done":true,"model":"test-model","eval_count":2}`)
			return
		}
		writeJSON(t, w, map[string]any{
			"model":      "test-model",
			"response":   "Hello world",
			"done":       true,
			"eval_count": 2,
		})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.NotEmpty(t, p.Messages)
		last := p.Messages[len(p.Messages)-1]
		writeJSON(t, w, map[string]any{
			"model":   "test-model",
			"message": map[string]any{"role": "assistant", "content": "echo: " + last.Content},
			"done":    true,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// setupEnv points the CLI at a temp database and the fake model server
func setupEnv(t *testing.T) string {
	t.Helper()
	srv := fakeOllama(t)
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	t.Setenv("CLOOM_DB", dbPath)
	t.Setenv("CLOOM_HOST", srv.URL)
	return dbPath
}

func TestIngestSearchContextStatus(t *testing.T) {
	setupEnv(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "alpha.md")
	require.NoError(t, os.WriteFile(file, []byte("alpha raft consensus"), 0644))

	out, err := runCLI(t, "ingest", file)
	require.NoError(t, err)
	assert.Contains(t, out, "1 chunks")
	assert.Contains(t, out, "ingested 1 of 1 files")

	// Unchanged files are skipped under the default strategy.
	out, err = runCLI(t, "ingest", file)
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 0 of 1 files")

	out, err = runCLI(t, "search", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha.md")
	assert.Contains(t, out, "alpha raft consensus")

	out, err = runCLI(t, "search", "--mode", "text", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha.md")

	out, err = runCLI(t, "search", "--mode", "text", "zzzunmatched")
	require.NoError(t, err)
	assert.Contains(t, out, "no results")

	out, err = runCLI(t, "context", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "[CTX 1 | "+file+"]")
	assert.Contains(t, out, "alpha raft consensus")

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "documents:     1")
	assert.Contains(t, out, "chunks:        1")
	assert.Contains(t, out, "embeddings:    1")
}

func TestIngest_BadStrategy(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "ingest", "--strategy", "merge", "whatever.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ingest strategy")
}

func TestIngest_MissingFile(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "ingest", filepath.Join(t.TempDir(), "absent.md"))
	require.Error(t, err)
}

func TestSearch_BadMode(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "search", "--mode", "fuzzy", "alpha")
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "generate", "--prompt", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
}

func TestGenerate_Stream(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "generate", "--prompt", "say hello", "--stream")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
}

func TestGenerate_RequiresPrompt(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "generate")
	require.Error(t, err)
}

func TestChat_PersistsConversation(t *testing.T) {
	dbPath := setupEnv(t)

	out, err := runCLI(t, "chat", "--system", "be brief", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello world\n", out)

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	ctx := context.Background()

	convs, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "hello world", convs[0].Name)

	msgs, err := store.ListMessages(ctx, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3) // system, user, assistant
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hello world", msgs[1].Content)
	assert.Equal(t, "echo: hello world", msgs[2].Content)
	require.NoError(t, store.Close())

	// Continue the same conversation by id.
	out, err = runCLI(t, "chat", "--conversation", convs[0].ID, "again")
	require.NoError(t, err)
	assert.Equal(t, "echo: again\n", out)

	store, err = storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	msgs, err = store.ListMessages(ctx, convs[0].ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
}

func TestTemplateLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	t.Setenv("CLOOM_DB", dbPath)
	t.Setenv("CLOOM_HOST", "http://localhost:1") // never dialed

	out, err := runCLI(t, "template", "add", "summary", "Summarize {topic}.")
	require.NoError(t, err)
	assert.Contains(t, out, `stored template "summary"`)

	out, err = runCLI(t, "template", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "summary")

	out, err = runCLI(t, "template", "render", "summary", "topic=raft")
	require.NoError(t, err)
	assert.Equal(t, "Summarize raft.\n", out)

	_, err = runCLI(t, "template", "render", "summary", "notapair")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = runCLI(t, "template", "render", "absent")
	require.Error(t, err)

	out, err = runCLI(t, "template", "rm", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, `deleted template "summary"`)

	out, err = runCLI(t, "template", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no templates")
}

func TestStatus_Check(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "embedding:     ok (3 dimensions)")
}

func TestStatus_CheckUnreachable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	t.Setenv("CLOOM_DB", dbPath)
	t.Setenv("CLOOM_HOST", "http://127.0.0.1:1")

	_, err := runCLI(t, "status", "--check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding check")
}

func TestGlobalFlag_DBOverridesEnv(t *testing.T) {
	setupEnv(t)
	otherDB := filepath.Join(t.TempDir(), "other.db")

	out, err := runCLI(t, "status", "--db", otherDB)
	require.NoError(t, err)
	assert.Contains(t, out, otherDB)
	assert.Contains(t, out, "documents:     0")
}
