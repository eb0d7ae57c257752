package types

import "errors"

// Domain errors shared across packages
var (
	// ErrInvalidConfig reports a chunking configuration rejected during
	// eager validation, before any segmentation work begins.
	ErrInvalidConfig = errors.New("invalid chunking configuration")

	// ErrNotFound reports a missing document, template, or conversation.
	ErrNotFound = errors.New("not found")

	// Search result validation errors
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score must be between 0 and 1")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
