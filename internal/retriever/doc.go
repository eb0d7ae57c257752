// Package retriever runs searches over stored chunks and assembles
// prompt-ready context from the hits.
//
// # Search Modes
//
// Three modes are supported:
//
//   - vector: cosine similarity over chunk embeddings
//   - text: BM25 over the full-text index
//   - hybrid (default): both, merged with Reciprocal Rank Fusion
//
// Hybrid search runs the two legs concurrently and tolerates one of them
// failing. Results are fused by rank, not by raw score:
//
//	RRF(chunk) = sum over lists of 1/(k + rank)
//
// with k = 60. Rank fusion sidesteps the incomparable scales of cosine
// similarity and BM25.
//
// # Query Cache
//
// Responses can be cached in an LRU keyed by query, mode, topK, and the
// embedding model, with per-entry TTL:
//
//	resp, err := searcher.Search(ctx, retriever.Request{
//	    Query:    "leader election",
//	    UseCache: true,
//	})
//
// Cached responses are deep-copied on both store and load; callers may
// mutate what they receive. Ingesting new content should be followed by
// InvalidateCache.
//
// # Context Building
//
// BuildContext stitches search hits into one string, one block per
// document in order of best rank:
//
//	[CTX 1 | docs/raft.md]
//	Leader election uses randomized timeouts.
//
//	Log entries flow only from the leader.
//
//	[CTX 2 | docs/gossip.md]
//	Gossip rounds are O(log n).
package retriever
