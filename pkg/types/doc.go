// Package types provides shared type definitions for corpusloom.
//
// This package defines the domain types used across multiple components:
// blocks, chunks, chat messages, and search results.
//
// # Core Types
//
// Block represents a contiguous typed span of a source document produced
// by segmentation:
//
//	block := types.Block{
//	    Kind:        types.BlockCode,
//	    Content:     "```go\nfmt.Println(\"hi\")\n```",
//	    StartOffset: 120,
//	    EndOffset:   149,
//	}
//
// Chunk is the token-bounded unit of assembled text handed to embedding
// and storage:
//
//	chunk := types.Chunk{
//	    Index:         0,
//	    Text:          assembled,
//	    TokenEstimate: 512,
//	    Blocks:        blocks,
//	}
//
// # Budget Relaxation
//
// Chunks normally satisfy TokenEstimate <= MaxTokens. The one sanctioned
// exception is marked by the OverBudget flag: a lone block inside the
// hard-wrap tolerance band, or an indivisible unit (a long unbroken run
// with no whitespace) that still exceeds the budget after hard wrapping.
// Callers decide whether to log, accept, or reject flagged chunks:
//
//	for _, c := range chunks {
//	    if c.OverBudget {
//	        log.Warn("chunk exceeds budget", "index", c.Index, "tokens", c.TokenEstimate)
//	    }
//	}
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := chunk.Validate(); err != nil {
//	    return err
//	}
//
// # Search Results
//
// SearchResult combines chunk content with normalized relevance scoring:
//
//	result := types.SearchResult{
//	    ChunkID: "5b9b...",
//	    Rank:    1,
//	    Score:   0.92,
//	    Source:  "docs/intro.md",
//	    Content: chunkText,
//	}
//
// Scores are normalized to [0, 1], with higher values indicating better
// matches.
package types
