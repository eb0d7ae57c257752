// Package storage provides SQLite-based persistence for ingested documents,
// their chunks and vector embeddings, chat conversations, and prompt
// templates.
//
// The storage layer manages:
//   - Document metadata and content hashes
//   - Ordered chunks with per-chunk hashes for incremental re-ingest
//   - Vector embeddings and a text-keyed embedding cache
//   - FTS5 full-text search over chunk content
//   - Conversation history
//   - Named prompt templates
//
// # Database Schema
//
// Tables:
//   - documents: One row per ingested source (UUID id, optional unique source)
//   - chunks: Ordered chunk content, hashes, and token estimates
//   - chunks_fts: FTS5 external-content index over chunk text
//   - embeddings: Per-chunk vectors (little-endian float32 blobs)
//   - embedding_cache: Vectors keyed by hash of model and input text
//   - conversations, messages: Persistent chat sessions
//   - templates: Named prompt templates
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.corpusloom/corpus.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	doc := &storage.Document{Source: "notes/design.md", ContentHash: hash}
//	if err := store.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//	if err := store.InsertChunks(ctx, chunks); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Use transactions for atomic replace operations:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.DeleteChunksByDocument(ctx, doc.ID)
//	_ = tx.InsertChunks(ctx, chunks)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Search
//
// Vector search ranks stored embeddings by cosine similarity against a
// query vector. Text search runs a sanitized FTS5 MATCH and normalizes the
// BM25 score into (0, 1]:
//
//	hits, err := store.SearchVector(ctx, queryVec, 10)
//	textHits, err := store.SearchText(ctx, "chunk overlap", 10)
//
// # Build Modes
//
// Two SQLite drivers are selected by build tags. The default pure Go build
// (modernc.org/sqlite) computes similarity in Go; building with the
// sqlite_vec tag (mattn/go-sqlite3 + CGO) pushes vector distance into SQL.
package storage
