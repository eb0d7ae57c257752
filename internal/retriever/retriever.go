package retriever

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// Mode defines how search is performed
type Mode string

const (
	ModeHybrid Mode = "hybrid" // Vector + BM25 with RRF
	ModeVector Mode = "vector" // Vector similarity only
	ModeText   Mode = "text"   // BM25 text search only
)

// ParseMode converts a user-supplied mode name. The empty string selects
// ModeHybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHybrid, nil
	case ModeHybrid, ModeVector, ModeText:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

// Defaults applied by Search when the request leaves them zero
const (
	DefaultTopK     = 10
	MaxTopK         = 100
	DefaultRRFK     = 60
	DefaultCacheTTL = time.Hour

	cacheSize = 1000
)

// Request contains parameters for a search operation
type Request struct {
	Query       string
	TopK        int
	Mode        Mode
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion
}

// Response contains search results and metadata
type Response struct {
	Results    []types.SearchResult
	Mode       Mode
	Duration   time.Duration
	CacheHit   bool
	VectorHits int
	TextHits   int
}

// QueryEmbedder is the slice of the model client the searcher needs
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedModel() string
}

// cacheEntry is a cached response with its expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates retrieval across vector and text search
type Searcher struct {
	store   storage.Storage
	embed   QueryEmbedder
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, embed QueryEmbedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("create query cache: %v", err))
	}
	return &Searcher{store: store, embed: embed, cache: cache}
}

// Search runs the requested retrieval mode and returns ranked results
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var response *Response
	var err error
	switch req.Mode {
	case ModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case ModeVector:
		response, err = s.vectorSearch(ctx, req)
	case ModeText:
		response, err = s.textSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(start)
	response.Mode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

// BuildContext searches for the query and stitches the hits into one
// prompt-ready context string. Hits are grouped per document in order of
// best rank, one block per document:
//
//	[CTX 1 | docs/raft.md]
//	<chunk texts joined by blank lines>
//
// Blocks are separated by a blank line. No hits yield an empty string.
func (s *Searcher) BuildContext(ctx context.Context, query string, topK int) (string, error) {
	resp, err := s.Search(ctx, Request{Query: query, TopK: topK})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}

	type docBlock struct {
		source string
		texts  []string
	}
	var order []string
	blocks := make(map[string]*docBlock)
	for _, res := range resp.Results {
		b, ok := blocks[res.DocumentID]
		if !ok {
			b = &docBlock{source: res.Source}
			blocks[res.DocumentID] = b
			order = append(order, res.DocumentID)
		}
		b.texts = append(b.texts, res.Content)
	}

	var sb strings.Builder
	for i, docID := range order {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		b := blocks[docID]
		source := b.source
		if source == "" {
			source = docID
		}
		fmt.Fprintf(&sb, "[CTX %d | %s]\n%s", i+1, source, strings.Join(b.texts, "\n\n"))
	}
	return sb.String(), nil
}

// InvalidateCache drops all cached queries. Call after ingesting new
// content so stale hits are not served.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// legResult holds the outcome of one concurrent search leg
type legResult struct {
	vector []storage.VectorResult
	text   []storage.TextResult
	err    error
}

func (s *Searcher) runVectorLeg(ctx context.Context, req Request, out chan<- legResult) {
	var res legResult
	vector, err := s.embed.EmbedText(ctx, req.Query)
	if err != nil {
		res.err = fmt.Errorf("embed query: %w", err)
	} else {
		res.vector, res.err = s.store.SearchVector(ctx, vector, req.TopK*2)
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) runTextLeg(ctx context.Context, req Request, out chan<- legResult) {
	var res legResult
	res.text, res.err = s.store.SearchText(ctx, req.Query, req.TopK*2)
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and BM25 results with Reciprocal Rank
// Fusion. One leg may fail; both failing fails the search.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	vectorChan := make(chan legResult, 1)
	textChan := make(chan legResult, 1)

	go s.runVectorLeg(ctx, req, vectorChan)
	go s.runTextLeg(ctx, req, textChan)

	var vectorRes, textRes legResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	ranked := applyRRF(vectorRes.vector, textRes.text, req.RRFConstant)
	results, err := s.fetchResults(ctx, ranked, req.TopK)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:    results,
		VectorHits: len(vectorRes.vector),
		TextHits:   len(textRes.text),
	}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	vector, err := s.embed.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.SearchVector(ctx, vector, req.TopK)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(hits))
	for i, hit := range hits {
		ranked[i] = rankedResult{chunkID: hit.ChunkID, score: hit.SimilarityScore, rank: i + 1}
	}

	results, err := s.fetchResults(ctx, ranked, req.TopK)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, VectorHits: len(hits)}, nil
}

func (s *Searcher) textSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.store.SearchText(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(hits))
	for i, hit := range hits {
		ranked[i] = rankedResult{chunkID: hit.ChunkID, score: hit.BM25Score, rank: i + 1}
	}

	results, err := s.fetchResults(ctx, ranked, req.TopK)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, TextHits: len(hits)}, nil
}

// rankedResult is a chunk id with its relevance score and rank
type rankedResult struct {
	chunkID string
	score   float64
	rank    int
}

// applyRRF merges the two result lists by Reciprocal Rank Fusion:
// RRF(d) = sum over lists of 1/(k + rank(d))
func applyRRF(vectorHits []storage.VectorResult, textHits []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	for rank, hit := range vectorHits {
		scores[hit.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	for rank, hit := range textHits {
		scores[hit.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	ranked := make([]rankedResult, 0, len(scores))
	for chunkID, score := range scores {
		ranked = append(ranked, rankedResult{chunkID: chunkID, score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].chunkID < ranked[j].chunkID
	})
	for i := range ranked {
		ranked[i].rank = i + 1
	}
	return ranked
}

// fetchResults loads chunk content and document sources for the top
// ranked hits. Chunks that vanished since ranking are skipped.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.SearchResult, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}

	sources := make(map[string]string)
	results := make([]types.SearchResult, 0, limit)
	for _, rr := range ranked[:limit] {
		chunk, err := s.store.GetChunk(ctx, rr.chunkID)
		if err != nil {
			continue
		}

		source, ok := sources[chunk.DocumentID]
		if !ok {
			doc, err := s.store.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				continue
			}
			source = doc.Source
			sources[chunk.DocumentID] = source
		}

		score := rr.score
		if score < 0 {
			// Cosine similarity can dip below zero; reported scores stay in [0,1].
			score = 0
		}

		results = append(results, types.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Rank:       rr.rank,
			Score:      score,
			Source:     source,
			Content:    chunk.Content,
		})
	}
	return results, nil
}

func (s *Searcher) validateRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFK
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

func (s *Searcher) checkCache(req Request) *Response {
	hash := s.queryHash(req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	// Copy while holding the read lock so the entry cannot change mid-copy.
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(s.queryHash(req), entry)
	s.cacheMu.Unlock()
}

// copyResponse deep-copies a response so cached entries never share
// slices with callers
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		Mode:       src.Mode,
		Duration:   src.Duration,
		CacheHit:   src.CacheHit,
		VectorHits: src.VectorHits,
		TextHits:   src.TextHits,
		Results:    make([]types.SearchResult, len(src.Results)),
	}
	copy(dst.Results, src.Results)
	return dst
}

// queryHash computes the cache key: query, mode, topK, and the embedding
// model all change what a search returns.
func (s *Searcher) queryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d", req.TopK)
	data.WriteString("|")
	data.WriteString(s.embed.EmbedModel())
	return sha256.Sum256([]byte(data.String()))
}
