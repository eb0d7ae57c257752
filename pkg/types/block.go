package types

import "errors"

// BlockKind classifies a segmented span of a source document
type BlockKind string

const (
	// BlockText is a prose paragraph: a contiguous run of non-blank lines.
	BlockText BlockKind = "text"
	// BlockCode is a fenced code region, fence markers included.
	BlockCode BlockKind = "code"
)

// Block represents a contiguous typed span of a source document.
// Blocks are produced once by segmentation, are immutable, and are
// consumed by the chunk packer; they are never persisted directly.
type Block struct {
	// Classification
	Kind BlockKind

	// Content is the exact substring of the normalized document.
	// For code blocks the fence markers are part of the content.
	Content string

	// Location (byte offsets into the normalized document).
	// Blocks are ordered and non-overlapping; together they cover the
	// document up to boundary blank-line normalization.
	StartOffset int
	EndOffset   int

	// TokenEstimate is the configured estimator applied to Content.
	TokenEstimate int
}

// Validate checks if the block is structurally valid
func (b *Block) Validate() error {
	switch b.Kind {
	case BlockText, BlockCode:
	default:
		return errors.New("invalid block kind")
	}

	if b.Content == "" {
		return errors.New("block content cannot be empty")
	}

	if b.StartOffset < 0 || b.EndOffset < b.StartOffset {
		return errors.New("block offsets must be ordered and non-negative")
	}

	if b.TokenEstimate < 0 {
		return errors.New("token estimate cannot be negative")
	}

	return nil
}
