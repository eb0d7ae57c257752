package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/corpusloom/internal/config"
	"github.com/corpusloom/corpusloom/internal/ingest"
	"github.com/corpusloom/corpusloom/internal/jsonmode"
	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/internal/retriever"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/internal/template"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// constEmbedder returns the same unit vector for every text, leaving
// ranking to the keyword leg. Satisfies both the ingest and retriever
// embedder interfaces.
type constEmbedder struct{}

func (constEmbedder) EmbedTexts(_ context.Context, texts []string, _ bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (constEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (constEmbedder) EmbedModel() string { return "test-embed" }

// fakeModel scripts Generate and Chat responses
type fakeModel struct {
	mu          sync.Mutex
	genResult   *ollama.GenerateResult
	genErr      error
	genRequests []ollama.GenerateRequest
	chatReplies []string
	chatErr     error
	chatCalls   int
}

func (f *fakeModel) Generate(_ context.Context, req ollama.GenerateRequest) (*ollama.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genRequests = append(f.genRequests, req)
	if f.genErr != nil {
		return nil, f.genErr
	}
	return f.genResult, nil
}

func (f *fakeModel) Chat(context.Context, ollama.ChatRequest) (*ollama.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	idx := f.chatCalls
	if idx >= len(f.chatReplies) {
		idx = len(f.chatReplies) - 1
	}
	f.chatCalls++
	return &ollama.ChatResult{
		Reply: types.Message{Role: types.RoleAssistant, Content: f.chatReplies[idx]},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeModel) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := constEmbedder{}
	model := &fakeModel{}
	cfg := &config.Config{
		Host:       "http://localhost:11434",
		Model:      "test-model",
		EmbedModel: "test-embed",
	}

	return &Server{
		cfg:       cfg,
		store:     store,
		ingestor:  ingest.New(store, emb, ingest.Config{}),
		searcher:  retriever.NewSearcher(store, emb),
		templates: template.NewRegistry(store),
		llm:       model,
		jsongen:   jsonmode.NewGenerator(model, -1),
	}, model
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func mcpCode(t *testing.T, err error) int {
	t.Helper()
	var me *MCPError
	require.ErrorAs(t, err, &me)
	return me.Code
}

func ingestText(t *testing.T, s *Server, text, source string) string {
	t.Helper()
	res, err := s.handleIngestText(context.Background(), toolRequest("ingest_text", map[string]interface{}{
		"text":   text,
		"source": source,
	}))
	require.NoError(t, err)
	return decodeResult(t, res)["doc_id"].(string)
}

func TestNewServer(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus", "corpusloom.db")
	cfg := &config.Config{
		Host:          "http://localhost:11434",
		Model:         "test-model",
		EmbedModel:    "test-embed",
		DBPath:        dbPath,
		MaxTokens:     800,
		OverlapTokens: 120,
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	defer func() { _ = s.store.Close() }()

	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.ingestor)
	assert.NotNil(t, s.searcher)
	assert.NotNil(t, s.templates)
	assert.NotNil(t, s.jsongen)

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHandleIngestText(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleIngestText(context.Background(), toolRequest("ingest_text", map[string]interface{}{
		"text":   "Raft elects a single leader per term.",
		"source": "notes/raft.md",
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	assert.NotEmpty(t, out["doc_id"])
	assert.Equal(t, float64(1), out["chunks"])
	assert.Len(t, out["chunk_ids"], 1)
}

func TestHandleIngestText_MissingText(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleIngestText(context.Background(), toolRequest("ingest_text", map[string]interface{}{
		"source": "notes/raft.md",
	}))
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
}

func TestHandleIngestText_NoContent(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleIngestText(context.Background(), toolRequest("ingest_text", map[string]interface{}{
		"text": "   \n\n  ",
	}))
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNoContent, mcpCode(t, err))
}

func TestHandleIngestText_Incremental(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	docID := ingestText(t, s, "alpha facts", "notes/log.md")

	res, err := s.handleIngestText(ctx, toolRequest("ingest_text", map[string]interface{}{
		"text":        "beta facts",
		"doc_id":      docID,
		"incremental": true,
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	assert.Equal(t, docID, out["doc_id"])
	assert.Equal(t, float64(1), out["chunks"])

	chunks, err := s.store.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestHandleIngestFiles(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.md")
	pathB := filepath.Join(dir, "b.md")
	require.NoError(t, os.WriteFile(pathA, []byte("alpha notes"), 0644))
	require.NoError(t, os.WriteFile(pathB, []byte("beta notes"), 0644))

	res, err := s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{
		"paths": []interface{}{pathA, pathB},
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	assert.Equal(t, float64(2), out["ingested"])
	assert.Equal(t, float64(0), out["skipped"])
	files := out["files"].([]interface{})
	require.Len(t, files, 2)
	first := files[0].(map[string]interface{})
	assert.Equal(t, pathA, first["path"])
	assert.NotEmpty(t, first["doc_id"])
	assert.Equal(t, float64(1), first["chunks"])

	// Unchanged files are skipped on re-ingest under the default strategy.
	res, err = s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{
		"paths": []interface{}{pathA, pathB},
	}))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, float64(0), out["ingested"])
	assert.Equal(t, float64(2), out["skipped"])

	res, err = s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{
		"paths":    []interface{}{pathA, pathB},
		"strategy": "replace",
	}))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, float64(2), out["ingested"])
}

func TestHandleIngestFiles_BadParams(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{
		"paths": []interface{}{"x.md", float64(3)},
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleIngestFiles(ctx, toolRequest("ingest_files", map[string]interface{}{
		"paths":    []interface{}{"x.md"},
		"strategy": "merge",
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
}

func TestHandleIngestFiles_MissingFile(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleIngestFiles(context.Background(), toolRequest("ingest_files", map[string]interface{}{
		"paths": []interface{}{filepath.Join(t.TempDir(), "absent.md")},
	}))
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInternalError, mcpCode(t, err))
}

func TestHandleSearch(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	ingestText(t, s, "alpha raft consensus", "notes/alpha.md")
	ingestText(t, s, "beta gossip protocol", "notes/beta.md")

	args := map[string]interface{}{"query": "alpha", "top_k": float64(5)}

	res, err := s.handleSearch(ctx, toolRequest("search", args))
	require.NoError(t, err)
	out := decodeResult(t, res)

	assert.Equal(t, "hybrid", out["mode"])
	assert.Equal(t, false, out["cache_hit"])
	results := out["results"].([]interface{})
	require.NotEmpty(t, results)
	top := results[0].(map[string]interface{})
	assert.Contains(t, top["content"], "alpha")
	assert.Equal(t, "notes/alpha.md", top["source"])
	assert.Equal(t, float64(1), top["rank"])
	assert.Greater(t, top["score"].(float64), 0.0)

	// Identical query is served from the cache.
	res, err = s.handleSearch(ctx, toolRequest("search", args))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, res)["cache_hit"])

	// Any ingest invalidates it.
	ingestText(t, s, "gamma paxos quorum", "notes/gamma.md")
	res, err = s.handleSearch(ctx, toolRequest("search", args))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, res)["cache_hit"])
}

func TestHandleSearch_BadParams(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearch(ctx, toolRequest("search", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeEmptyQuery, mcpCode(t, err))

	_, err = s.handleSearch(ctx, toolRequest("search", map[string]interface{}{"query": ""}))
	assert.Equal(t, ErrorCodeEmptyQuery, mcpCode(t, err))

	_, err = s.handleSearch(ctx, toolRequest("search", map[string]interface{}{
		"query": "x", "mode": "fuzzy",
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleSearch(ctx, toolRequest("search", map[string]interface{}{
		"query": "x", "top_k": float64(0),
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleSearch(ctx, toolRequest("search", map[string]interface{}{
		"query": "x", "top_k": float64(500),
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
}

func TestHandleBuildContext(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	ingestText(t, s, "alpha raft consensus", "notes/alpha.md")
	ingestText(t, s, "beta gossip protocol", "notes/beta.md")

	res, err := s.handleBuildContext(ctx, toolRequest("build_context", map[string]interface{}{
		"query": "alpha",
	}))
	require.NoError(t, err)

	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "[CTX 1 | notes/alpha.md]\n"), "got: %q", text)
	assert.Contains(t, text, "alpha raft consensus")
}

func TestHandleBuildContext_NoMatches(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleBuildContext(context.Background(), toolRequest("build_context", map[string]interface{}{
		"query": "anything",
	}))
	require.NoError(t, err)
	assert.Equal(t, "", resultText(t, res))
}

func TestHandleGenerate(t *testing.T) {
	s, model := newTestServer(t)
	model.genResult = &ollama.GenerateResult{
		ResponseText: "hello there",
		Model:        "test-model",
		EvalCount:    42,
		EvalDuration: 1500 * time.Millisecond,
	}

	res, err := s.handleGenerate(context.Background(), toolRequest("generate", map[string]interface{}{
		"prompt": "say hello",
		"system": "be brief",
		"model":  "other-model",
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	assert.Equal(t, "hello there", out["response"])
	assert.Equal(t, "test-model", out["model"])
	assert.Equal(t, float64(42), out["eval_count"])
	assert.Equal(t, float64(1500), out["duration_ms"])

	require.Len(t, model.genRequests, 1)
	assert.Equal(t, "say hello", model.genRequests[0].Prompt)
	assert.Equal(t, "be brief", model.genRequests[0].System)
	assert.Equal(t, "other-model", model.genRequests[0].Model)
}

func TestHandleGenerate_MissingPrompt(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleGenerate(context.Background(), toolRequest("generate", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
}

func TestHandleGenerate_RateLimited(t *testing.T) {
	s, model := newTestServer(t)
	model.genErr = ollama.ErrRateLimited

	_, err := s.handleGenerate(context.Background(), toolRequest("generate", map[string]interface{}{
		"prompt": "say hello",
	}))
	require.Error(t, err)
	assert.Equal(t, ErrorCodeRateLimited, mcpCode(t, err))
}

func TestHandleGenerate_WithSchema(t *testing.T) {
	s, model := newTestServer(t)
	model.chatReplies = []string{`{"answer": "ok"}`}

	res, err := s.handleGenerate(context.Background(), toolRequest("generate", map[string]interface{}{
		"prompt": "answer me",
		"schema": map[string]interface{}{
			"type":       "object",
			"required":   []interface{}{"answer"},
			"properties": map[string]interface{}{"answer": map[string]interface{}{"type": "string"}},
		},
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	assert.Equal(t, "ok", out["answer"])
	assert.Equal(t, 1, model.chatCalls)
}

func TestHandleGenerate_SchemaViolation(t *testing.T) {
	s, model := newTestServer(t)
	model.chatReplies = []string{`{"wrong": true}`}

	_, err := s.handleGenerate(context.Background(), toolRequest("generate", map[string]interface{}{
		"prompt": "answer me",
		"schema": map[string]interface{}{
			"type":       "object",
			"required":   []interface{}{"answer"},
			"properties": map[string]interface{}{"answer": map[string]interface{}{"type": "string"}},
		},
	}))
	require.Error(t, err)
	assert.Equal(t, ErrorCodeSchemaViolation, mcpCode(t, err))
	assert.Equal(t, 3, model.chatCalls) // 1 initial + 2 repairs
}

func TestHandleRenderTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.templates.Register(ctx, "summary", "Summarize {topic} in {lang}."))

	res, err := s.handleRenderTemplate(ctx, toolRequest("render_template", map[string]interface{}{
		"name": "summary",
		"vars": map[string]interface{}{"topic": "raft", "lang": "English"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Summarize raft in English.", resultText(t, res))
}

func TestHandleRenderTemplate_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleRenderTemplate(ctx, toolRequest("render_template", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleRenderTemplate(ctx, toolRequest("render_template", map[string]interface{}{
		"name": "summary",
		"vars": map[string]interface{}{"topic": float64(3)},
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleRenderTemplate(ctx, toolRequest("render_template", map[string]interface{}{
		"name": "absent",
	}))
	assert.Equal(t, ErrorCodeNotFound, mcpCode(t, err))
}

func TestHandleListTemplates(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleListTemplates(ctx, toolRequest("list_templates", nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(0), out["count"])

	require.NoError(t, s.templates.Register(ctx, "summary", "Summarize {topic}."))
	require.NoError(t, s.templates.Register(ctx, "review", "Review {diff}."))

	res, err = s.handleListTemplates(ctx, toolRequest("list_templates", nil))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, float64(2), out["count"])

	names := make([]string, 0, 2)
	for _, raw := range out["templates"].([]interface{}) {
		names = append(names, raw.(map[string]interface{})["name"].(string))
	}
	assert.ElementsMatch(t, []string{"summary", "review"}, names)
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	ingestText(t, s, "alpha raft consensus", "notes/alpha.md")

	res, err := s.handleStatus(ctx, toolRequest("status", nil))
	require.NoError(t, err)
	out := decodeResult(t, res)

	corpus := out["corpus"].(map[string]interface{})
	assert.Equal(t, float64(1), corpus["documents"])
	assert.Equal(t, float64(1), corpus["chunks"])
	assert.Equal(t, float64(1), corpus["embeddings"])

	models := out["models"].(map[string]interface{})
	assert.Equal(t, "test-model", models["model"])
	assert.Equal(t, "test-embed", models["embed_model"])
}
