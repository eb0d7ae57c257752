package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting documents, chunks, vectors,
// conversations, and prompt templates
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentBySource(ctx context.Context, source string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations
	InsertChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	ListChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error)
	ChunkHashesByDocument(ctx context.Context, docID string) (map[[32]byte]string, error)
	MaxChunkPosition(ctx context.Context, docID string) (int, error)
	DeleteChunksByDocument(ctx context.Context, docID string) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Embedding cache, keyed by model and exact input text
	CachedVector(ctx context.Context, model, text string) ([]float32, bool, error)
	StoreCachedVector(ctx context.Context, model, text string, vector []float32) error

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int) ([]TextResult, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Template operations
	UpsertTemplate(ctx context.Context, tpl *Template) error
	GetTemplate(ctx context.Context, name string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
	DeleteTemplate(ctx context.Context, name string) error

	// Status operations
	Stats(ctx context.Context) (*Stats, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Document represents one ingested source text
type Document struct {
	ID          string // UUID
	Source      string // File path or label; empty for anonymous text
	ContentHash [32]byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk represents a stored chunk of a document, ready for embedding
type Chunk struct {
	ID            string // UUID
	DocumentID    string
	Position      int // 0-based order within the document
	Content       string
	ContentHash   [32]byte
	TokenEstimate int
	OverBudget    bool

	// Byte offsets of the contributing blocks in the normalized source
	// document. Zero for both when the chunk has no block provenance.
	StartOffset int
	EndOffset   int

	CreatedAt time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ChunkID   string
	Vector    []byte // Serialized float32 array
	Dimension int
	Model     string
	CreatedAt time.Time
}

// Conversation represents a persistent chat session
type Conversation struct {
	ID        string // UUID
	Name      string
	System    string // System prompt, empty for none
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents one stored turn of a conversation
type Message struct {
	ID             string // UUID
	ConversationID string
	Seq            int // 0-based order within the conversation
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Template represents a named prompt template with {name} placeholders
type Template struct {
	Name      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   string
	BM25Score float64
}

// Stats contains row counts and size information for the database
type Stats struct {
	Documents     int
	Chunks        int
	Embeddings    int
	Conversations int
	Templates     int
	SizeMB        float64
}
