// Package chunker splits long-form text into token-bounded, semantically
// coherent chunks for embedding and retrieval.
//
// The pipeline has three stages. A segmenter scans the document into
// ordered typed blocks (fenced code regions and prose paragraphs), a
// packer greedily assembles blocks into chunks under a token budget with
// overlap between consecutive chunks, and a hard-wrap splitter breaks
// blocks too large to pack at all.
//
// # Basic Usage
//
//	chunks, err := chunker.ChunkText(doc, chunker.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	for _, c := range chunks {
//	    fmt.Printf("chunk %d: %d tokens\n", c.Index, c.TokenEstimate)
//	}
//
// # Packing Rules
//
// A document whose whole text fits MaxTokens becomes exactly one chunk,
// verbatim. Otherwise blocks accumulate in order until the next block
// would push the buffer over budget; the buffer flushes and the next
// chunk starts with up to OverlapTokens of the flushed chunk's tail.
// A block estimating above MaxTokens*HardWrapMultiplier never merges
// with neighbors: the buffer flushes pre-emptively and the block is
// hard-wrapped into budget-sized pieces, one chunk each.
//
// A lone block that exceeds the budget but stays under the hard-wrap
// threshold is emitted as-is, over budget by design tolerance. Such
// chunks, and the rare indivisible unit no split point can shrink, carry
// the OverBudget flag so callers can log or reject them.
//
// # Token Estimation
//
// Estimates come from a pluggable Estimator. The default heuristic is
// chars/4; NewTiktoken provides BPE-accurate counts when a model-true
// budget matters. Estimators must be deterministic so packing decisions
// are reproducible.
//
// # Concurrency
//
// Chunking is a pure, synchronous computation over an in-memory string:
// no I/O, no shared mutable state. Distinct calls may run concurrently as
// long as a shared Estimator is itself side-effect free.
package chunker
