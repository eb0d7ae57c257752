package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/corpusloom/corpusloom/internal/ingest"
	"github.com/corpusloom/corpusloom/internal/jsonmode"
	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/internal/retriever"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound        = -32001 // Referenced document or template does not exist
	ErrorCodeNoContent       = -32002 // Input produced no extractable content
	ErrorCodeEmptyQuery      = -32003 // Query parameter is empty
	ErrorCodeRateLimited     = -32004 // Model server refused the call after retries
	ErrorCodeSchemaViolation = -32005 // Model output never conformed to the schema
)

// handleIngestFiles handles the ingest_files tool invocation
func (s *Server) handleIngestFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	paths, ok := getStringSlice(args, "paths")
	if !ok || len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing, empty, or not an array of strings",
		})
	}

	strategy, err := ingest.ParseStrategy(getStringDefault(args, "strategy", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{
			"param":   "strategy",
			"value":   args["strategy"],
			"allowed": []string{"auto", "replace", "skip"},
		})
	}

	results, err := s.ingestor.AddFiles(ctx, paths, ingest.FileOptions{Strategy: strategy})
	if err != nil {
		return nil, backendError("ingest failed", err)
	}
	s.searcher.InvalidateCache()

	files := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		files = append(files, map[string]interface{}{
			"path":   r.Path,
			"doc_id": r.DocID,
			"chunks": len(r.ChunkIDs),
		})
	}

	response := map[string]interface{}{
		"ingested": len(results),
		"skipped":  len(paths) - len(results),
		"files":    files,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestText handles the ingest_text tool invocation
func (s *Server) handleIngestText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or not a string",
		})
	}

	opts := ingest.TextOptions{
		DocID:          getStringDefault(args, "doc_id", ""),
		IncrementalDoc: getBoolDefault(args, "incremental", false),
	}
	source := getStringDefault(args, "source", "")

	docID, chunkIDs, err := s.ingestor.AddText(ctx, text, source, opts)
	if err != nil {
		return nil, backendError("ingest failed", err)
	}
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"doc_id":    docID,
		"chunks":    len(chunkIDs),
		"chunk_ids": chunkIDs,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK, err := topKParam(args)
	if err != nil {
		return nil, err
	}

	mode, err := retriever.ParseMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []string{"hybrid", "vector", "text"},
		})
	}

	res, err := s.searcher.Search(ctx, retriever.Request{
		Query:    query,
		TopK:     topK,
		Mode:     mode,
		UseCache: true,
	})
	if err != nil {
		return nil, backendError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(res.Results))
	for _, r := range res.Results {
		results = append(results, map[string]interface{}{
			"chunk_id":    r.ChunkID,
			"document_id": r.DocumentID,
			"rank":        r.Rank,
			"score":       r.Score,
			"source":      r.Source,
			"content":     r.Content,
		})
	}

	response := map[string]interface{}{
		"results":     results,
		"mode":        string(res.Mode),
		"duration_ms": res.Duration.Milliseconds(),
		"cache_hit":   res.CacheHit,
		"vector_hits": res.VectorHits,
		"text_hits":   res.TextHits,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBuildContext handles the build_context tool invocation
func (s *Server) handleBuildContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK, err := topKParam(args)
	if err != nil {
		return nil, err
	}

	contextText, err := s.searcher.BuildContext(ctx, query, topK)
	if err != nil {
		return nil, backendError("context build failed", err)
	}

	// The stitched block is returned verbatim so callers can paste it
	// straight into a prompt.
	return mcp.NewToolResultText(contextText), nil
}

// handleGenerate handles the generate tool invocation
func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "prompt parameter is required", map[string]interface{}{
			"param":  "prompt",
			"reason": "missing or empty",
		})
	}

	if schemaObj, hasSchema := args["schema"].(map[string]interface{}); hasSchema {
		schemaJSON, err := json.Marshal(schemaObj)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid schema", map[string]interface{}{
				"param":  "schema",
				"reason": err.Error(),
			})
		}
		value, err := s.jsongen.Generate(ctx, prompt, schemaJSON)
		if err != nil {
			return nil, backendError("generation failed", err)
		}
		return mcp.NewToolResultText(formatJSON(value)), nil
	}

	res, err := s.llm.Generate(ctx, ollama.GenerateRequest{
		Prompt: prompt,
		System: getStringDefault(args, "system", ""),
		Model:  getStringDefault(args, "model", ""),
	})
	if err != nil {
		return nil, backendError("generation failed", err)
	}

	response := map[string]interface{}{
		"response":    res.ResponseText,
		"model":       res.Model,
		"eval_count":  res.EvalCount,
		"duration_ms": res.EvalDuration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRenderTemplate handles the render_template tool invocation
func (s *Server) handleRenderTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	name, ok := args["name"].(string)
	if !ok || name == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "name parameter is required", map[string]interface{}{
			"param":  "name",
			"reason": "missing or empty",
		})
	}

	vars, ok := getStringMap(args, "vars")
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid vars", map[string]interface{}{
			"param":  "vars",
			"reason": "must be an object with string values",
		})
	}

	rendered, err := s.templates.Render(ctx, name, vars)
	if err != nil {
		return nil, backendError("render failed", err)
	}

	return mcp.NewToolResultText(rendered), nil
}

// handleListTemplates handles the list_templates tool invocation
func (s *Server) handleListTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tpls, err := s.templates.List(ctx)
	if err != nil {
		return nil, backendError("list failed", err)
	}

	templates := make([]map[string]interface{}, 0, len(tpls))
	for _, tpl := range tpls {
		templates = append(templates, map[string]interface{}{
			"name":       tpl.Name,
			"created_at": tpl.CreatedAt.Format(time.RFC3339),
			"updated_at": tpl.UpdatedAt.Format(time.RFC3339),
		})
	}

	response := map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, backendError("status failed", err)
	}

	response := map[string]interface{}{
		"corpus": map[string]interface{}{
			"documents":     stats.Documents,
			"chunks":        stats.Chunks,
			"embeddings":    stats.Embeddings,
			"conversations": stats.Conversations,
			"templates":     stats.Templates,
			"size_mb":       fmt.Sprintf("%.2f", stats.SizeMB),
		},
		"models": map[string]interface{}{
			"host":        s.cfg.Host,
			"model":       s.cfg.Model,
			"embed_model": s.cfg.EmbedModel,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// backendError maps a collaborator error onto an MCP error code
func backendError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, ingest.ErrNoContent):
		code = ErrorCodeNoContent
	case errors.Is(err, ollama.ErrRateLimited):
		code = ErrorCodeRateLimited
	case errors.Is(err, jsonmode.ErrValidationFailed):
		code = ErrorCodeSchemaViolation
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// topKParam extracts and validates the shared top_k parameter
func topKParam(args map[string]interface{}) (int, error) {
	topK := getIntDefault(args, "top_k", retriever.DefaultTopK)
	if topK < 1 || topK > retriever.MaxTopK {
		return 0, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}
	return topK, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an array-of-strings parameter. A missing key or
// any non-string element reports not ok.
func getStringSlice(args map[string]interface{}, key string) ([]string, bool) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// getStringMap extracts an object parameter with string values. A missing
// key reports ok with a nil map; a non-string value reports not ok.
func getStringMap(args map[string]interface{}, key string) (map[string]string, bool) {
	raw, present := args[key]
	if !present {
		return nil, true
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[k] = s
	}
	return out, true
}
