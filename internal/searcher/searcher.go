package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const (
	DefaultTopK      = 10
	MaxTopK          = 100
	DefaultCacheSize = 1000
)

var (
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrMissingProject = errors.New("project id is required")
	ErrSearchFailed   = errors.New("both search legs failed")
)

// Index is the part of storage the searcher reads from
type Index interface {
	SearchVector(ctx context.Context, projectID string, vector []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error)
	SearchText(ctx context.Context, projectID string, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error)
	GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*types.DocumentChunk, error)
}

// Request contains parameters for a search operation
type Request struct {
	ProjectID   string             `json:"projectId"`
	Query       string             `json:"query"`
	TopK        int                `json:"topK,omitempty"`
	SourceTypes []types.SourceType `json:"sourceTypes,omitempty"`
	MinScore    float64            `json:"minScore,omitempty"`
	Weights     Weights            `json:"weights,omitempty"`
}

// Options configures a Searcher. A zero CacheTTL disables the response cache.
type Options struct {
	Weights   Weights
	TopK      int
	CacheSize int
	CacheTTL  time.Duration
	MinScore  float64 // Used when a request leaves MinScore at zero
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	results   []types.SearchResult
	expiresAt time.Time
}

// Searcher runs the vector and full-text legs of a query and fuses them
type Searcher struct {
	index    Index
	embedder embedder.Embedder
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cache    *lru.Cache[[32]byte, *cacheEntry]
	now      func() time.Time
}

// New creates a new Searcher instance
func New(index Index, emb embedder.Embedder, opts Options, logger *zap.Logger, m *metrics.Metrics) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Weights = opts.Weights.orDefault(DefaultWeights())
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	s := &Searcher{
		index:    index,
		embedder: emb,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	if opts.CacheTTL > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](opts.CacheSize)
		if err != nil {
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}
	return s
}

// Search returns at most TopK chunks ranked by weighted RRF over vector
// similarity and full-text relevance. When one leg fails the other one's
// ranking is used alone; when both fail the call fails.
func (s *Searcher) Search(ctx context.Context, req Request) ([]types.SearchResult, error) {
	start := time.Now()
	results, err := s.search(ctx, req)

	matchTypes := make([]string, len(results))
	for i, r := range results {
		matchTypes[i] = string(r.MatchType)
	}
	s.metrics.Search(time.Since(start), matchTypes, err)
	return results, err
}

func (s *Searcher) search(ctx context.Context, req Request) ([]types.SearchResult, error) {
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	key := requestKey(req)
	if cached, ok := s.cached(key); ok {
		return cached, nil
	}

	filters := &storage.SearchFilters{SourceTypes: req.SourceTypes}

	var (
		vectorIDs, textIDs []int64
		vectorErr, textErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorIDs, vectorErr = s.vectorLeg(gctx, req, filters)
		return nil
	})
	g.Go(func() error {
		textIDs, textErr = s.textLeg(gctx, req, filters)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case vectorErr != nil && textErr != nil:
		return nil, fmt.Errorf("%w: vector: %v; fulltext: %v", ErrSearchFailed, vectorErr, textErr)
	case vectorErr != nil:
		s.metrics.SearchLegFailed("vector")
		s.logger.Warn("vector search failed, using full-text results only",
			zap.String("project", req.ProjectID), zap.Error(vectorErr))
	case textErr != nil:
		s.metrics.SearchLegFailed("fulltext")
		s.logger.Warn("full-text search failed, using vector results only",
			zap.String("project", req.ProjectID), zap.Error(textErr))
	}

	fused := Select(Fuse(vectorIDs, textIDs, req.Weights), req.MinScore, req.TopK)
	results, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	s.store(key, results)
	s.logger.Debug("search completed",
		zap.String("project", req.ProjectID),
		zap.Int("vector_hits", len(vectorIDs)),
		zap.Int("text_hits", len(textIDs)),
		zap.Int("results", len(results)))
	return results, nil
}

// normalize validates req and fills defaults
func (s *Searcher) normalize(req *Request) error {
	req.Query = embedder.SanitizeText(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return ErrMissingProject
	}
	if req.TopK <= 0 {
		req.TopK = s.opts.TopK
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}
	if req.MinScore <= 0 {
		req.MinScore = s.opts.MinScore
	}
	for _, st := range req.SourceTypes {
		if !st.Valid() {
			return fmt.Errorf("%w: %q", types.ErrInvalidSourceType, st)
		}
	}
	req.Weights = req.Weights.orDefault(s.opts.Weights)
	return req.Weights.Validate()
}

func (s *Searcher) vectorLeg(ctx context.Context, req Request, filters *storage.SearchFilters) ([]int64, error) {
	if s.embedder == nil {
		return nil, errors.New("embedder not configured")
	}
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	s.metrics.Tokens("search", emb.TokenCount)

	hits, err := s.index.SearchVector(ctx, req.ProjectID, emb.Vector, req.TopK, filters)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids, nil
}

func (s *Searcher) textLeg(ctx context.Context, req Request, filters *storage.SearchFilters) ([]int64, error) {
	// Queries made only of punctuation have no full-text terms
	if storage.SanitizeFTSQuery(req.Query) == "" {
		return nil, nil
	}
	hits, err := s.index.SearchText(ctx, req.ProjectID, req.Query, req.TopK, filters)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids, nil
}

// hydrate loads chunk content for fused ids. Chunks deleted since the legs
// ran are skipped.
func (s *Searcher) hydrate(ctx context.Context, fused []Fused) ([]types.SearchResult, error) {
	if len(fused) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := s.index.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	results := make([]types.SearchResult, 0, len(fused))
	for _, f := range fused {
		chunk, ok := chunks[f.ChunkID]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			ID:         f.ChunkID,
			Content:    chunk.Content,
			Metadata:   chunk.Metadata,
			SourceType: chunk.SourceType,
			Score:      f.Score,
			MatchType:  f.MatchType,
		})
	}
	return results, nil
}

func (s *Searcher) cached(key [32]byte) ([]types.SearchResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil, false
	}
	return copyResults(entry.results), true
}

func (s *Searcher) store(key [32]byte, results []types.SearchResult) {
	if s.cache == nil {
		return
	}
	s.cache.Add(key, &cacheEntry{
		results:   copyResults(results),
		expiresAt: s.now().Add(s.opts.CacheTTL),
	})
}

// InvalidateCache drops every cached response. Entries are not indexed by
// project, so the whole cache goes.
func (s *Searcher) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// copyResults deep-copies results so callers cannot mutate cached values
func copyResults(src []types.SearchResult) []types.SearchResult {
	dst := make([]types.SearchResult, len(src))
	for i, r := range src {
		dst[i] = r
		if r.Metadata != nil {
			dst[i].Metadata = append(json.RawMessage(nil), r.Metadata...)
		}
	}
	return dst
}

// requestKey hashes a normalized request
func requestKey(req Request) [32]byte {
	sourceTypes := make([]string, len(req.SourceTypes))
	for i, st := range req.SourceTypes {
		sourceTypes[i] = string(st)
	}
	sort.Strings(sourceTypes)

	var data strings.Builder
	fmt.Fprintf(&data, "%s|%s|%d|%s|%g|%g|%g|%g",
		req.ProjectID, req.Query, req.TopK, strings.Join(sourceTypes, ","),
		req.MinScore, req.Weights.VectorWeight, req.Weights.FullTextWeight, req.Weights.RRFK)
	return sha256.Sum256([]byte(data.String()))
}
