package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/chunker"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/embedder"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/metrics"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// ErrInvalidDocument is returned for documents that cannot be ingested
var ErrInvalidDocument = errors.New("invalid document")

// Document is a text document or wiki page to ingest
type Document struct {
	ProjectID  string           `json:"projectId"`
	DocumentID string           `json:"documentId"`
	SourceType types.SourceType `json:"sourceType"`
	Title      string           `json:"title,omitempty"`
	Content    string           `json:"content"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// IngestResult summarizes one ingestion
type IngestResult struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
	Tokens     int    `json:"tokens"`
	Embedded   bool   `json:"embedded"`
}

// Service bundles search with the chunk CRUD around it
type Service struct {
	*Searcher

	store     storage.Storage
	embedder  embedder.Embedder
	chunking  chunker.Options
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// ServiceOptions configures ingestion
type ServiceOptions struct {
	Search    Options
	Chunking  chunker.Options
	BatchSize int
}

// NewService wires a Searcher and the ingestion path over the same store
func NewService(store storage.Storage, emb embedder.Embedder, opts ServiceOptions, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Chunking.MaxTokens <= 0 {
		opts.Chunking = chunker.DefaultOptions()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = embedder.DefaultBatchSize
	}
	return &Service{
		Searcher:  New(store, emb, opts.Search, logger, m),
		store:     store,
		embedder:  emb,
		chunking:  opts.Chunking,
		batchSize: opts.BatchSize,
		logger:    logger,
		metrics:   m,
	}
}

// IngestDocument chunks and embeds a document and replaces any chunks stored
// for it before. If embedding fails the chunks are stored without vectors so
// full-text search still finds them.
func (s *Service) IngestDocument(ctx context.Context, doc Document) (*IngestResult, error) {
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	base := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		base[k] = v
	}
	if doc.Title != "" {
		base["title"] = doc.Title
	}

	chunks := chunker.Split(doc.Content, s.chunking)
	inputs := chunker.ToInputs(chunks, base)
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no content to index", ErrInvalidDocument)
	}

	result := &IngestResult{DocumentID: doc.DocumentID, Chunks: len(inputs)}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Content
	}
	embedded, err := embedder.EmbedAll(ctx, s.embedder, texts, s.batchSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("embedding failed, storing chunks without vectors",
			zap.String("project", doc.ProjectID),
			zap.String("document", doc.DocumentID),
			zap.Error(err))
	} else {
		for i, vec := range embedded.Vectors() {
			inputs[i].Embedding = vec
		}
		result.Tokens = embedded.TokenCount
		result.Embedded = true
		s.metrics.Tokens("ingest", embedded.TokenCount)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.DeleteChunksBySource(ctx, doc.ProjectID, doc.SourceType, doc.DocumentID); err != nil {
		return nil, fmt.Errorf("failed to replace chunks: %w", err)
	}
	if _, err := tx.InsertChunks(ctx, doc.ProjectID, doc.SourceType, doc.DocumentID, inputs); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}

	s.InvalidateCache()
	s.metrics.Chunks(string(doc.SourceType), len(inputs))
	s.logger.Info("document ingested",
		zap.String("project", doc.ProjectID),
		zap.String("document", doc.DocumentID),
		zap.Int("chunks", len(inputs)),
		zap.Bool("embedded", result.Embedded))
	return result, nil
}

// DeleteDocument removes every document or wiki chunk stored under
// documentID and returns how many were deleted
func (s *Service) DeleteDocument(ctx context.Context, projectID, documentID string) (int64, error) {
	if projectID == "" || documentID == "" {
		return 0, fmt.Errorf("%w: project and document id are required", ErrInvalidDocument)
	}
	n, err := s.store.DeleteChunksByDocument(ctx, projectID, documentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.InvalidateCache()
	}
	return n, nil
}

// Stats returns chunk counts and token totals for a project
func (s *Service) Stats(ctx context.Context, projectID string) (*types.ChunkStats, error) {
	if projectID == "" {
		return nil, ErrMissingProject
	}
	return s.store.ChunkStats(ctx, projectID)
}

func validateDocument(doc *Document) error {
	doc.ProjectID = strings.TrimSpace(doc.ProjectID)
	doc.DocumentID = strings.TrimSpace(doc.DocumentID)
	if doc.ProjectID == "" {
		return ErrMissingProject
	}
	if doc.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidDocument)
	}
	if doc.SourceType == "" {
		doc.SourceType = types.SourceDocument
	}
	switch {
	case !doc.SourceType.Valid():
		return fmt.Errorf("%w: %q", types.ErrInvalidSourceType, doc.SourceType)
	case doc.SourceType.PeriodScoped():
		return fmt.Errorf("%w: %s chunks are generated by monthly preparation", ErrInvalidDocument, doc.SourceType)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidDocument)
	}
	return nil
}
