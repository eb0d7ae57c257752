package types

// SearchResult represents a single retrieval hit with relevance information
type SearchResult struct {
	// Identification
	ChunkID    string
	DocumentID string
	Rank       int // Position in result set (1-based)

	// Scoring
	Score float64 // Normalized relevance from vector, BM25, or RRF fusion

	// Content
	Source  string // Originating document source (path or label)
	Content string // Chunk text
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidScore
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
