package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/corpusloom/corpusloom/internal/chunker"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// Default configuration values
const (
	DefaultBatchSize   = 16
	DefaultMaxFileSize = 32 << 20 // bytes
)

// ErrNoContent is returned when a document yields no chunks after
// normalization and segmentation.
var ErrNoContent = errors.New("no extractable content")

// Strategy controls how AddFiles treats a file whose source already has a
// stored document.
type Strategy string

const (
	// StrategyAuto skips files whose stored content hash is unchanged and
	// replaces the chunks of files whose content changed.
	StrategyAuto Strategy = "auto"

	// StrategyReplace always re-chunks, deleting stored chunks first.
	StrategyReplace Strategy = "replace"

	// StrategySkip skips files that already have a document, changed or not.
	StrategySkip Strategy = "skip"
)

// ParseStrategy converts a user-supplied strategy name. The empty string
// selects StrategyAuto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyReplace, StrategySkip:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown ingest strategy %q", s)
}

// Embedder is the slice of the model client the pipeline needs
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, useCache bool) ([][]float32, error)
	EmbedModel() string
}

// Config contains configuration for the ingest pipeline
type Config struct {
	Chunker     chunker.Config // chunking parameters (default: chunker.DefaultConfig())
	Workers     int            // concurrent embedding batches (default: runtime.NumCPU())
	BatchSize   int            // texts per embedding batch (default: 16)
	MaxFileSize int64          // per-file size limit in bytes (default: 32 MiB)
	NoCache     bool           // skip the embedding cache
}

// DefaultConfig returns the stock pipeline configuration
func DefaultConfig() Config {
	return Config{
		Chunker:     chunker.DefaultConfig(),
		Workers:     runtime.NumCPU(),
		BatchSize:   DefaultBatchSize,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// TextOptions control a single AddText call.
type TextOptions struct {
	// DocID targets an existing document instead of resolving one by
	// source. The call fails if no such document exists.
	DocID string

	// IncrementalDoc keeps the stored chunks of an existing document and
	// inserts only chunks whose content hash is not already present.
	// Without it an existing document has its chunks replaced.
	IncrementalDoc bool
}

// FileOptions control an AddFiles call.
type FileOptions struct {
	Strategy Strategy // default StrategyAuto
}

// FileResult reports one ingested file. Files the strategy skipped
// produce no result.
type FileResult struct {
	Path     string
	DocID    string
	ChunkIDs []string
}

// Ingestor coordinates the pipeline: extract -> chunk -> embed -> store
type Ingestor struct {
	store storage.Storage
	embed Embedder
	cfg   Config
}

// New creates a new Ingestor. Zero fields of cfg fall back to the
// DefaultConfig values.
func New(store storage.Storage, embed Embedder, cfg Config) *Ingestor {
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker = chunker.DefaultConfig()
	}
	if cfg.Chunker.HardWrapMultiplier == 0 {
		cfg.Chunker.HardWrapMultiplier = chunker.DefaultHardWrapMultiplier
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Ingestor{store: store, embed: embed, cfg: cfg}
}

// AddText chunks, embeds, and stores one document. It returns the document
// id and the ids of the chunks this call inserted.
//
// A non-empty source keeps a stable document id across calls; an empty
// source always creates a new document. When opts.IncrementalDoc is set
// and the document already exists, stored chunks are kept and only new
// content is embedded.
func (ing *Ingestor) AddText(ctx context.Context, text, source string, opts TextOptions) (string, []string, error) {
	chunks, err := chunker.ChunkText(text, ing.cfg.Chunker)
	if err != nil {
		return "", nil, err
	}
	if len(chunks) == 0 {
		return "", nil, ErrNoContent
	}

	doc, err := ing.resolveDocument(ctx, source, opts.DocID)
	if err != nil {
		return "", nil, err
	}
	docHash := sha256.Sum256([]byte(text))

	if doc == nil {
		doc = &storage.Document{Source: source, ContentHash: docHash}
		ids, err := ing.storeChunks(ctx, doc, chunks, false)
		if err != nil {
			return "", nil, err
		}
		return doc.ID, ids, nil
	}

	doc.ContentHash = docHash
	var ids []string
	if opts.IncrementalDoc {
		ids, err = ing.appendNewChunks(ctx, doc, chunks)
	} else {
		ids, err = ing.storeChunks(ctx, doc, chunks, true)
	}
	if err != nil {
		return "", nil, err
	}
	return doc.ID, ids, nil
}

// AddFiles extracts and ingests each path per the strategy. Files the
// strategy skips (unchanged under StrategyAuto, already present under
// StrategySkip) yield no result entry. The first hard error aborts the
// batch.
func (ing *Ingestor) AddFiles(ctx context.Context, paths []string, opts FileOptions) ([]FileResult, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyAuto
	}

	var results []FileResult
	for _, path := range paths {
		path = filepath.Clean(path)
		res, ingested, err := ing.addFile(ctx, path, strategy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if ingested {
			results = append(results, res)
		}
	}
	return results, nil
}

func (ing *Ingestor) addFile(ctx context.Context, path string, strategy Strategy) (FileResult, bool, error) {
	doc, err := ing.store.GetDocumentBySource(ctx, path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return FileResult{}, false, err
		}
		doc = nil
	}
	if doc != nil && strategy == StrategySkip {
		return FileResult{}, false, nil
	}

	text, err := ExtractFile(path, ing.cfg.MaxFileSize)
	if err != nil {
		return FileResult{}, false, err
	}
	if doc != nil && strategy == StrategyAuto && doc.ContentHash == sha256.Sum256([]byte(text)) {
		return FileResult{}, false, nil
	}

	docID, chunkIDs, err := ing.AddText(ctx, text, path, TextOptions{})
	if err != nil {
		return FileResult{}, false, err
	}
	return FileResult{Path: path, DocID: docID, ChunkIDs: chunkIDs}, true, nil
}

// resolveDocument finds the document a call targets, or nil when the text
// should become a new one.
func (ing *Ingestor) resolveDocument(ctx context.Context, source, docID string) (*storage.Document, error) {
	if docID != "" {
		doc, err := ing.store.GetDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", docID, err)
		}
		return doc, nil
	}
	if source == "" {
		return nil, nil
	}
	doc, err := ing.store.GetDocumentBySource(ctx, source)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// storeChunks embeds every chunk and persists the document, chunks, and
// vectors in one transaction. With replace set, stored chunks of the
// document are deleted first.
func (ing *Ingestor) storeChunks(ctx context.Context, doc *storage.Document, chunks []types.Chunk, replace bool) ([]string, error) {
	records := make([]*storage.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i := range chunks {
		start, end := blockSpan(&chunks[i])
		records[i] = &storage.Chunk{
			Position:      chunks[i].Index,
			Content:       chunks[i].Text,
			ContentHash:   chunks[i].ContentHash(),
			TokenEstimate: chunks[i].TokenEstimate,
			OverBudget:    chunks[i].OverBudget,
			StartOffset:   start,
			EndOffset:     end,
		}
		texts[i] = chunks[i].Text
	}

	vectors, err := ing.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	tx, err := ing.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if replace {
		if err := tx.DeleteChunksByDocument(ctx, doc.ID); err != nil {
			return nil, err
		}
	}
	// The upsert may have resolved doc.ID to an existing row.
	for i := range records {
		records[i].DocumentID = doc.ID
	}
	if err := tx.InsertChunks(ctx, records); err != nil {
		return nil, err
	}
	if err := ing.insertEmbeddings(ctx, tx, records, vectors); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunkIDs(records), nil
}

// appendNewChunks inserts only chunks whose content hash is not already
// stored for the document, appended after the last stored position.
func (ing *Ingestor) appendNewChunks(ctx context.Context, doc *storage.Document, chunks []types.Chunk) ([]string, error) {
	existing, err := ing.store.ChunkHashesByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	maxPos, err := ing.store.MaxChunkPosition(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	var records []*storage.Chunk
	var texts []string
	next := maxPos + 1
	for i := range chunks {
		hash := chunks[i].ContentHash()
		if _, ok := existing[hash]; ok {
			continue
		}
		existing[hash] = "" // repeats within this call count as stored
		start, end := blockSpan(&chunks[i])
		records = append(records, &storage.Chunk{
			DocumentID:    doc.ID,
			Position:      next,
			Content:       chunks[i].Text,
			ContentHash:   hash,
			TokenEstimate: chunks[i].TokenEstimate,
			OverBudget:    chunks[i].OverBudget,
			StartOffset:   start,
			EndOffset:     end,
		})
		texts = append(texts, chunks[i].Text)
		next++
	}

	vectors, err := ing.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	tx, err := ing.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := tx.InsertChunks(ctx, records); err != nil {
			return nil, err
		}
		if err := ing.insertEmbeddings(ctx, tx, records, vectors); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunkIDs(records), nil
}

// embedAll generates vectors for every text in input order, batched
// across bounded workers.
func (ing *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.cfg.Workers)

	for start := 0; start < len(texts); start += ing.cfg.BatchSize {
		end := start + ing.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := ing.embed.EmbedTexts(gctx, texts[start:end], !ing.cfg.NoCache)
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", start, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (ing *Ingestor) insertEmbeddings(ctx context.Context, store storage.Storage, records []*storage.Chunk, vectors [][]float32) error {
	model := ing.embed.EmbedModel()
	for i, rec := range records {
		emb := &storage.Embedding{
			ChunkID:   rec.ID,
			Vector:    storage.SerializeVector(vectors[i]),
			Dimension: len(vectors[i]),
			Model:     model,
		}
		if err := store.UpsertEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("store embedding for chunk %s: %w", rec.ID, err)
		}
	}
	return nil
}

// blockSpan returns the source span covered by a chunk's contributing
// blocks. An overlap prefix extends the text but not the span.
func blockSpan(c *types.Chunk) (int, int) {
	if len(c.Blocks) == 0 {
		return 0, 0
	}
	return c.Blocks[0].StartOffset, c.Blocks[len(c.Blocks)-1].EndOffset
}

func chunkIDs(records []*storage.Chunk) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
