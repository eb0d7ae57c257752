// Package mcp implements the Model Context Protocol (MCP) server for corpusloom.
//
// The MCP server exposes the corpus to AI assistants as a set of tools:
//   - ingest_files: Chunk, embed, and store files
//   - ingest_text: Chunk, embed, and store a raw text string
//   - search: Hybrid, vector, or keyword search over stored chunks
//   - build_context: Stitch the best-matching chunks into a prompt-ready block
//   - generate: One-shot completion, optionally constrained to a JSON Schema
//   - render_template: Render a stored prompt template
//   - list_templates: List stored prompt templates
//   - status: Corpus statistics and configured models
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	cloom serve
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout.
//
// # Tool: ingest_text
//
// Store a text so it becomes searchable:
//
//	Request:
//	{
//	  "name": "ingest_text",
//	  "arguments": {
//	    "text": "Raft elects a single leader per term...",
//	    "source": "notes/raft.md"
//	  }
//	}
//
//	Response:
//	{
//	  "doc_id": "2f1c9c6e-...",
//	  "chunks": 3,
//	  "chunk_ids": ["...", "...", "..."]
//	}
//
// Re-ingesting the same source replaces its chunks; passing
// "incremental": true appends only chunks whose content is new.
//
// # Tool: search
//
// Query the corpus:
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "query": "leader election",
//	    "top_k": 5,
//	    "mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.92,
//	      "chunk_id": "...",
//	      "document_id": "...",
//	      "source": "notes/raft.md",
//	      "content": "Raft elects a single leader per term..."
//	    }
//	  ],
//	  "mode": "hybrid",
//	  "cache_hit": false,
//	  "vector_hits": 5,
//	  "text_hits": 3
//	}
//
// # Tool: build_context
//
// build_context returns plain text rather than JSON, ready to paste into a
// prompt:
//
//	[CTX 1 | notes/raft.md]
//	Raft elects a single leader per term...
//
//	[CTX 2 | notes/paxos.md]
//	Paxos reaches agreement on a single value...
//
// # Tool: generate
//
// Without a schema the tool returns the raw completion. With a schema the
// model output is validated and repaired until it conforms, and the
// conforming JSON value is returned:
//
//	Request:
//	{
//	  "name": "generate",
//	  "arguments": {
//	    "prompt": "Summarize the trade-offs",
//	    "schema": {
//	      "type": "object",
//	      "required": ["summary"],
//	      "properties": {"summary": {"type": "string"}}
//	    }
//	  }
//	}
//
// The system and model arguments apply to plain generation only; schema
// generation pins its own system prompt and uses the configured chat model.
//
// # MCP Client Configuration
//
// Configure in Claude Code's MCP settings:
//
//	{
//	  "mcpServers": {
//	    "corpusloom": {
//	      "command": "/usr/local/bin/cloom",
//	      "args": ["serve"],
//	      "env": {
//	        "CLOOM_HOST": "http://localhost:11434"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "Invalid params",
//	    "data": {
//	      "param": "paths",
//	      "reason": "missing, empty, or not an array of strings"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Document or template not found
//   - -32002: No extractable content
//   - -32003: Empty query
//   - -32004: Model server rate limited the call
//   - -32005: Output never conformed to the schema
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol).
// Set the log level via environment:
//
//	CLOOM_LOG_LEVEL=debug cloom serve
package mcp
