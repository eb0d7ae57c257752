package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corpusloom/corpusloom/pkg/types"
)

// ErrNotFound is the shared sentinel for missing rows
var ErrNotFound = types.ErrNotFound

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// newID returns a fresh UUID string
func newID() string {
	return uuid.NewString()
}

// nullable maps the empty string to NULL
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// cacheKey hashes a model name and input text into an embedding cache key
func cacheKey(model, text string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum(nil)
}

// Document operations

// upsertDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	// A named source keeps its original document id across re-ingests;
	// NULL sources never conflict, so anonymous documents always insert.
	// The id clause covers re-upserts of anonymous documents by id.
	query := `
		INSERT INTO documents (id, source, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		doc.ID, nullable(doc.Source), doc.ContentHash[:], now, now,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

// scanDocument scans one documents row
func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	var doc Document
	var source sql.NullString
	var hash []byte
	err := row.Scan(&doc.ID, &source, &hash, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Source = source.String
	copy(doc.ContentHash[:], hash)
	return &doc, nil
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, id string) (*Document, error) {
	query := `
		SELECT id, source, content_hash, created_at, updated_at
		FROM documents
		WHERE id = ?
	`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

// getDocumentBySourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentBySourceWithQuerier(ctx context.Context, q querier, source string) (*Document, error) {
	query := `
		SELECT id, source, content_hash, created_at, updated_at
		FROM documents
		WHERE source = ?
	`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocumentBySource(ctx context.Context, source string) (*Document, error) {
	return s.getDocumentBySourceWithQuerier(ctx, s.querier(), source)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	query := `
		SELECT id, source, content_hash, created_at, updated_at
		FROM documents
		ORDER BY created_at
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// deleteDocumentWithQuerier is the internal implementation that uses a querier.
// Embeddings and chunks go first so FTS triggers run row by row.
func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, id string) error {
	if err := s.deleteChunksByDocumentWithQuerier(ctx, q, id); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), id)
}

// Chunk operations

// insertChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertChunksWithQuerier(ctx context.Context, q querier, chunks []*Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, position, content, content_hash, token_estimate, over_budget, start_offset, end_offset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = newID()
		}
		_, err := q.ExecContext(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.Position, chunk.Content,
			chunk.ContentHash[:], chunk.TokenEstimate, chunk.OverBudget,
			chunk.StartOffset, chunk.EndOffset, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.Position, err)
		}
		chunk.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	return s.insertChunksWithQuerier(ctx, s.querier(), chunks)
}

// scanChunk scans one chunks row
func scanChunk(row interface{ Scan(...interface{}) error }) (*Chunk, error) {
	var chunk Chunk
	var hash []byte
	err := row.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content,
		&hash, &chunk.TokenEstimate, &chunk.OverBudget,
		&chunk.StartOffset, &chunk.EndOffset, &chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)
	return &chunk, nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*Chunk, error) {
	query := `
		SELECT id, document_id, position, content, content_hash, token_estimate, over_budget, start_offset, end_offset, created_at
		FROM chunks
		WHERE id = ?
	`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// listChunksByDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listChunksByDocumentWithQuerier(ctx context.Context, q querier, docID string) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, position, content, content_hash, token_estimate, over_budget, start_offset, end_offset, created_at
		FROM chunks
		WHERE document_id = ?
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error) {
	return s.listChunksByDocumentWithQuerier(ctx, s.querier(), docID)
}

// chunkHashesByDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) chunkHashesByDocumentWithQuerier(ctx context.Context, q querier, docID string) (map[[32]byte]string, error) {
	query := `SELECT content_hash, id FROM chunks WHERE document_id = ?`
	rows, err := q.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[[32]byte]string)
	for rows.Next() {
		var hash []byte
		var id string
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, err
		}
		var key [32]byte
		copy(key[:], hash)
		hashes[key] = id
	}
	return hashes, rows.Err()
}

func (s *SQLiteStorage) ChunkHashesByDocument(ctx context.Context, docID string) (map[[32]byte]string, error) {
	return s.chunkHashesByDocumentWithQuerier(ctx, s.querier(), docID)
}

// maxChunkPositionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) maxChunkPositionWithQuerier(ctx context.Context, q querier, docID string) (int, error) {
	var max int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) FROM chunks WHERE document_id = ?`, docID,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

// MaxChunkPosition returns the highest chunk position for a document,
// or -1 when the document has no chunks
func (s *SQLiteStorage) MaxChunkPosition(ctx context.Context, docID string) (int, error) {
	return s.maxChunkPositionWithQuerier(ctx, s.querier(), docID)
}

// deleteChunksByDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteChunksByDocumentWithQuerier(ctx context.Context, q querier, docID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, docID)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	return err
}

func (s *SQLiteStorage) DeleteChunksByDocument(ctx context.Context, docID string) error {
	return s.deleteChunksByDocumentWithQuerier(ctx, s.querier(), docID)
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			model = excluded.model
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

// getEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var embedding Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&embedding.ChunkID, &embedding.Vector, &embedding.Dimension,
		&embedding.Model, &embedding.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &embedding, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Embedding cache operations

// cachedVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) cachedVectorWithQuerier(ctx context.Context, q querier, model, text string) ([]float32, bool, error) {
	var blob []byte
	err := q.QueryRowContext(ctx,
		`SELECT vector FROM embedding_cache WHERE key = ?`, cacheKey(model, text),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return deserializeVector(blob), true, nil
}

func (s *SQLiteStorage) CachedVector(ctx context.Context, model, text string) ([]float32, bool, error) {
	return s.cachedVectorWithQuerier(ctx, s.querier(), model, text)
}

// storeCachedVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) storeCachedVectorWithQuerier(ctx context.Context, q querier, model, text string, vector []float32) error {
	query := `
		INSERT INTO embedding_cache (key, model, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
	`
	_, err := q.ExecContext(ctx, query,
		cacheKey(model, text), model, serializeVector(vector), len(vector), time.Now())
	if err != nil {
		return fmt.Errorf("failed to store cached vector: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) StoreCachedVector(ctx context.Context, model, text string, vector []float32) error {
	return s.storeCachedVectorWithQuerier(ctx, s.querier(), model, text, vector)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	// Implementation moved to separate file for clarity
	return searchVector(ctx, s.db, queryVector, limit)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	// Implementation moved to separate file for clarity
	return searchText(ctx, s.db, query, limit)
}

// Conversation operations

// createConversationWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createConversationWithQuerier(ctx context.Context, q querier, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = newID()
	}
	query := `
		INSERT INTO conversations (id, name, system, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		conv.ID, conv.Name, conv.System, conv.Model, now, now)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *Conversation) error {
	return s.createConversationWithQuerier(ctx, s.querier(), conv)
}

// getConversationWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getConversationWithQuerier(ctx context.Context, q querier, id string) (*Conversation, error) {
	query := `
		SELECT id, name, system, model, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	var conv Conversation
	err := q.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.Name, &conv.System, &conv.Model,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.getConversationWithQuerier(ctx, s.querier(), id)
}

// listConversationsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listConversationsWithQuerier(ctx context.Context, q querier) ([]*Conversation, error) {
	query := `
		SELECT id, name, system, model, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	convs := make([]*Conversation, 0)
	for rows.Next() {
		var conv Conversation
		err := rows.Scan(
			&conv.ID, &conv.Name, &conv.System, &conv.Model,
			&conv.CreatedAt, &conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStorage) ListConversations(ctx context.Context) ([]*Conversation, error) {
	return s.listConversationsWithQuerier(ctx, s.querier())
}

// appendMessageWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) appendMessageWithQuerier(ctx context.Context, q querier, msg *Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	query := `
		INSERT INTO messages (id, conversation_id, seq, role, content, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE conversation_id = ?), ?, ?, ?)
		RETURNING seq
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.ConversationID, msg.Role, msg.Content, now,
	).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	msg.CreatedAt = now

	_, err = q.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, msg.ConversationID)
	return err
}

func (s *SQLiteStorage) AppendMessage(ctx context.Context, msg *Message) error {
	return s.appendMessageWithQuerier(ctx, s.querier(), msg)
}

// listMessagesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listMessagesWithQuerier(ctx context.Context, q querier, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, seq, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq
	`
	rows, err := q.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Seq, &msg.Role,
			&msg.Content, &msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return s.listMessagesWithQuerier(ctx, s.querier(), conversationID)
}

// Template operations

// upsertTemplateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertTemplateWithQuerier(ctx context.Context, q querier, tpl *Template) error {
	query := `
		INSERT INTO templates (name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
		RETURNING created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query, tpl.Name, tpl.Content, now, now).Scan(&tpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	tpl.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertTemplate(ctx context.Context, tpl *Template) error {
	return s.upsertTemplateWithQuerier(ctx, s.querier(), tpl)
}

// getTemplateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getTemplateWithQuerier(ctx context.Context, q querier, name string) (*Template, error) {
	query := `
		SELECT name, content, created_at, updated_at
		FROM templates
		WHERE name = ?
	`
	var tpl Template
	err := q.QueryRowContext(ctx, query, name).Scan(
		&tpl.Name, &tpl.Content, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *SQLiteStorage) GetTemplate(ctx context.Context, name string) (*Template, error) {
	return s.getTemplateWithQuerier(ctx, s.querier(), name)
}

// listTemplatesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listTemplatesWithQuerier(ctx context.Context, q querier) ([]*Template, error) {
	query := `
		SELECT name, content, created_at, updated_at
		FROM templates
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tpls := make([]*Template, 0)
	for rows.Next() {
		var tpl Template
		err := rows.Scan(&tpl.Name, &tpl.Content, &tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, &tpl)
	}
	return tpls, rows.Err()
}

func (s *SQLiteStorage) ListTemplates(ctx context.Context) ([]*Template, error) {
	return s.listTemplatesWithQuerier(ctx, s.querier())
}

// deleteTemplateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteTemplateWithQuerier(ctx context.Context, q querier, name string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteTemplate(ctx context.Context, name string) error {
	return s.deleteTemplateWithQuerier(ctx, s.querier(), name)
}

// Status operations

func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM embeddings", &stats.Embeddings},
		{"SELECT COUNT(*) FROM conversations", &stats.Conversations},
		{"SELECT COUNT(*) FROM templates", &stats.Templates},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var pageCount, pageSize int
	err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

// Transaction implementations

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetDocumentBySource(ctx context.Context, source string) (*Document, error) {
	return t.storage.getDocumentBySourceWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id string) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	return t.storage.insertChunksWithQuerier(ctx, t.querier(), chunks)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error) {
	return t.storage.listChunksByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) ChunkHashesByDocument(ctx context.Context, docID string) (map[[32]byte]string, error) {
	return t.storage.chunkHashesByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) MaxChunkPosition(ctx context.Context, docID string) (int, error) {
	return t.storage.maxChunkPositionWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) DeleteChunksByDocument(ctx context.Context, docID string) error {
	return t.storage.deleteChunksByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) CachedVector(ctx context.Context, model, text string) ([]float32, bool, error) {
	return t.storage.cachedVectorWithQuerier(ctx, t.querier(), model, text)
}

func (t *sqliteTx) StoreCachedVector(ctx context.Context, model, text string, vector []float32) error {
	return t.storage.storeCachedVectorWithQuerier(ctx, t.querier(), model, text, vector)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error) {
	return t.storage.SearchVector(ctx, vector, limit)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	return t.storage.SearchText(ctx, query, limit)
}

func (t *sqliteTx) CreateConversation(ctx context.Context, conv *Conversation) error {
	return t.storage.createConversationWithQuerier(ctx, t.querier(), conv)
}

func (t *sqliteTx) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return t.storage.getConversationWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListConversations(ctx context.Context) ([]*Conversation, error) {
	return t.storage.listConversationsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) AppendMessage(ctx context.Context, msg *Message) error {
	return t.storage.appendMessageWithQuerier(ctx, t.querier(), msg)
}

func (t *sqliteTx) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return t.storage.listMessagesWithQuerier(ctx, t.querier(), conversationID)
}

func (t *sqliteTx) UpsertTemplate(ctx context.Context, tpl *Template) error {
	return t.storage.upsertTemplateWithQuerier(ctx, t.querier(), tpl)
}

func (t *sqliteTx) GetTemplate(ctx context.Context, name string) (*Template, error) {
	return t.storage.getTemplateWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListTemplates(ctx context.Context) ([]*Template, error) {
	return t.storage.listTemplatesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteTemplate(ctx context.Context, name string) error {
	return t.storage.deleteTemplateWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) Stats(ctx context.Context) (*Stats, error) {
	return t.storage.Stats(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
