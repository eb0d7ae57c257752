package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/corpusloom/corpusloom/pkg/types"
)

// Default configuration values
const (
	DefaultMaxTokens          = 800
	DefaultOverlapTokens      = 120
	DefaultHardWrapMultiplier = 1.25
)

// blockSep joins block contents inside a chunk
const blockSep = "\n\n"

// Config controls how a document is packed into chunks.
// A Config is validated once, eagerly, before any segmentation work.
type Config struct {
	// MaxTokens is the target upper bound per chunk. Must be positive.
	MaxTokens int

	// OverlapTokens is the amount of trailing content from one chunk
	// repeated at the head of the next. Must be >= 0 and <= MaxTokens.
	// Zero disables overlap entirely.
	OverlapTokens int

	// HardWrapMultiplier routes blocks estimating above
	// MaxTokens*HardWrapMultiplier to the hard-wrap splitter instead of
	// normal packing. Must be > 1.0.
	HardWrapMultiplier float64

	// Estimator computes token estimates. Nil selects Heuristic.
	Estimator Estimator
}

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	return Config{
		MaxTokens:          DefaultMaxTokens,
		OverlapTokens:      DefaultOverlapTokens,
		HardWrapMultiplier: DefaultHardWrapMultiplier,
	}
}

// Validate checks the configuration and reports types.ErrInvalidConfig
// with the offending field. No partial chunking ever happens on a bad
// configuration.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", types.ErrInvalidConfig, c.MaxTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("%w: overlap tokens cannot be negative, got %d", types.ErrInvalidConfig, c.OverlapTokens)
	}
	if c.OverlapTokens > c.MaxTokens {
		return fmt.Errorf("%w: overlap tokens %d exceed max tokens %d", types.ErrInvalidConfig, c.OverlapTokens, c.MaxTokens)
	}
	if c.HardWrapMultiplier <= 1.0 {
		return fmt.Errorf("%w: hard wrap multiplier must be greater than 1.0, got %v", types.ErrInvalidConfig, c.HardWrapMultiplier)
	}
	return nil
}

// estimator returns the configured estimator or the default heuristic
func (c Config) estimator() Estimator {
	if c.Estimator != nil {
		return c.Estimator
	}
	return Heuristic()
}

// ChunkText segments text into blocks and packs them into ordered,
// token-bounded chunks per the configuration.
//
// Short documents take the fast path: when the whole document fits the
// budget it becomes exactly one chunk, verbatim. Empty and whitespace-only
// input yields an empty sequence. The computation is pure and synchronous;
// distinct calls are safe to run concurrently.
func ChunkText(text string, cfg Config) ([]types.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	est := cfg.estimator()
	doc := Normalize(text)
	blocks := Segment(doc, est)
	if len(blocks) == 0 {
		return nil, nil
	}

	if whole := strings.TrimSpace(doc); est.Estimate(whole) <= cfg.MaxTokens {
		return []types.Chunk{{
			Index:         0,
			Text:          whole,
			TokenEstimate: est.Estimate(whole),
			Blocks:        blocks,
		}}, nil
	}

	p := &packer{cfg: cfg, est: est}
	for _, b := range blocks {
		if float64(b.TokenEstimate) > float64(cfg.MaxTokens)*cfg.HardWrapMultiplier {
			// Oversized block: never merged with prior content. Flush
			// whatever is buffered, then emit one chunk per wrap piece.
			// The overlap source for the next chunk is the last piece.
			p.flush()
			p.wrapBlock(b)
			continue
		}
		p.add(b)
	}
	p.flush()
	return p.chunks, nil
}

// packer accumulates blocks into a running buffer and emits chunks
type packer struct {
	cfg Config
	est Estimator

	chunks []types.Chunk

	seed string        // overlap prefix for the buffer being assembled
	buf  []types.Block // blocks in the buffer

	lastText string // text of the most recent chunk, the overlap source
}

// add places a block in the buffer, flushing first when the block no
// longer fits. A lone block that exceeds the budget but stayed under the
// hard-wrap threshold is emitted immediately, over budget by tolerance.
func (p *packer) add(b types.Block) {
	if len(p.buf) > 0 {
		if p.est.Estimate(p.assembled(b.Content)) <= p.cfg.MaxTokens {
			p.buf = append(p.buf, b)
			return
		}
		p.flush()
	}

	p.seed = p.overlapSeed(b.TokenEstimate)
	p.buf = append(p.buf, b)
	if p.est.Estimate(p.assembled()) > p.cfg.MaxTokens {
		// tolerance band: no further block can be added
		p.flush()
	}
}

// assembled returns the buffer text with any extra parts appended,
// seed prefix included
func (p *packer) assembled(extra ...string) string {
	parts := make([]string, 0, len(p.buf)+len(extra)+1)
	if p.seed != "" {
		parts = append(parts, p.seed)
	}
	for _, b := range p.buf {
		parts = append(parts, b.Content)
	}
	parts = append(parts, extra...)
	return strings.Join(parts, blockSep)
}

// flush emits the buffered blocks as a chunk and resets the buffer
func (p *packer) flush() {
	if len(p.buf) == 0 {
		return
	}
	text := p.assembled()
	p.emit(text, p.buf)
	p.seed = ""
	p.buf = nil
}

// wrapBlock hard-wraps one oversized block, emitting each piece as its
// own chunk. The first piece never carries an overlap prefix; the last
// piece becomes the overlap source for whatever follows the block.
func (p *packer) wrapBlock(b types.Block) {
	pieces := hardWrap(b.Content, p.cfg.MaxTokens, p.cfg.OverlapTokens, p.est)
	for _, piece := range pieces {
		p.emit(piece, []types.Block{b})
	}
}

// emit appends a chunk, flagging it when it runs over budget
func (p *packer) emit(text string, blocks []types.Block) {
	estimate := p.est.Estimate(text)
	p.chunks = append(p.chunks, types.Chunk{
		Index:         len(p.chunks),
		Text:          text,
		TokenEstimate: estimate,
		Blocks:        blocks,
		OverBudget:    estimate > p.cfg.MaxTokens,
	})
	p.lastText = text
}

// overlapSeed returns the trailing slice of the last chunk to prepend to
// a fresh buffer. The budget is OverlapTokens, clamped to the room the
// incoming block leaves so a seeded chunk still fits MaxTokens.
func (p *packer) overlapSeed(nextEstimate int) string {
	if p.cfg.OverlapTokens == 0 || p.lastText == "" {
		return ""
	}
	budget := p.cfg.OverlapTokens
	if room := p.cfg.MaxTokens - nextEstimate; room < budget {
		budget = room
	}
	if budget <= 0 {
		return ""
	}
	return tailSlice(p.lastText, budget, p.est)
}

// tailSlice returns the longest suffix of text whose estimate fits the
// budget. The suffix is always proper: overlap must never duplicate a
// full chunk, so when the whole text fits, the slice starts after the
// first whitespace run instead (empty when text has none).
func tailSlice(text string, budget int, est Estimator) string {
	if text == "" || budget <= 0 {
		return ""
	}

	var suffix string
	if est.Estimate(text) <= budget {
		suffix = afterFirstSpace(text)
	} else {
		// binary search over suffix length; estimates on mid-rune cuts
		// are fine, the final slice is realigned below
		lo, hi := 0, len(text)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if est.Estimate(text[len(text)-mid:]) <= budget {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		start := len(text) - lo
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
		suffix = text[start:]
	}

	// guard for estimators that are not monotone in suffix length
	for suffix != "" && est.Estimate(suffix) > budget {
		_, size := utf8.DecodeRuneInString(suffix)
		suffix = suffix[size:]
	}
	return suffix
}

// afterFirstSpace returns the text past its first whitespace run
func afterFirstSpace(text string) string {
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	rest := text[i:]
	j := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsSpace(r) })
	if j < 0 {
		return ""
	}
	return rest[j:]
}
