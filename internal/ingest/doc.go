// Package ingest coordinates the document pipeline: extract -> chunk ->
// embed -> store.
//
// An Ingestor wires the chunker, the model client, and the store. Each
// document is persisted atomically: chunks and their vectors land in one
// transaction, so a failed embedding run leaves previously stored content
// untouched.
//
// # Basic Usage
//
//	ing := ingest.New(store, client, ingest.DefaultConfig())
//
//	docID, chunkIDs, err := ing.AddText(ctx, text, "notes/raft.md", ingest.TextOptions{})
//
//	results, err := ing.AddFiles(ctx, paths, ingest.FileOptions{
//	    Strategy: ingest.StrategyAuto,
//	})
//
// # Strategies
//
// AddFiles resolves each path against the store by source and applies the
// strategy before doing any work:
//
//   - StrategyAuto: skip when the stored document hash matches the file,
//     replace the document's chunks when it changed.
//   - StrategyReplace: always re-chunk, dropping stored chunks first.
//   - StrategySkip: never touch a file that already has a document.
//
// Skipped files produce no result entries.
//
// # Incremental Updates
//
// AddText with TextOptions.IncrementalDoc keeps the stored chunks of an
// existing document and inserts only chunks whose content hash is new,
// appended after the last stored position. Re-adding a grown document this
// way embeds only the added content.
//
// Change detection uses SHA-256 at two levels: one hash over the extracted
// document text (drives StrategyAuto) and one per chunk (drives
// incremental updates).
package ingest
