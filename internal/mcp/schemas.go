package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestFilesTool returns the tool definition for ingest_files
func ingestFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_files",
		Description: "Ingest text or PDF files into the corpus: chunk, embed, and store them for retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "File paths to ingest (.pdf files are extracted, everything else is read as UTF-8 text)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "auto re-ingests only changed files, replace always re-ingests, skip never touches known files",
					"enum":        []string{"auto", "replace", "skip"},
					"default":     "auto",
				},
			},
			Required: []string{"paths"},
		},
	}
}

// ingestTextTool returns the tool definition for ingest_text
func ingestTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_text",
		Description: "Ingest a raw text string into the corpus: chunk, embed, and store it for retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to ingest",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Label for the document; re-ingesting the same source replaces its chunks. Empty creates an anonymous document",
				},
				"doc_id": map[string]interface{}{
					"type":        "string",
					"description": "Existing document id to update instead of resolving by source",
				},
				"incremental": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, append only chunks not already stored for the document instead of replacing",
					"default":     false,
				},
			},
			Required: []string{"text"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search ingested documents with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or text (BM25 only)",
					"enum":        []string{"hybrid", "vector", "text"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// buildContextTool returns the tool definition for build_context
func buildContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "build_context",
		Description: "Retrieve the best-matching chunks for a query and stitch them into a single prompt-ready context block",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query to retrieve context for",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks to stitch (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// generateTool returns the tool definition for generate
func generateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate",
		Description: "Run a one-shot completion against the configured model, optionally constrained to a JSON Schema",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "Prompt text",
				},
				"system": map[string]interface{}{
					"type":        "string",
					"description": "Optional system prompt",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Optional model override",
				},
				"schema": map[string]interface{}{
					"type":        "object",
					"description": "Optional JSON Schema; when set, the output is validated against it and repaired until it conforms",
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// renderTemplateTool returns the tool definition for render_template
func renderTemplateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "render_template",
		Description: "Render a stored prompt template, substituting {name} placeholders from vars",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Template name",
				},
				"vars": map[string]interface{}{
					"type":        "object",
					"description": "Placeholder values keyed by placeholder name; unmatched placeholders are left as-is",
					"additionalProperties": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"name"},
		},
	}
}

// listTemplatesTool returns the tool definition for list_templates
func listTemplatesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_templates",
		Description: "List the stored prompt templates",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report corpus statistics and the configured models",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
