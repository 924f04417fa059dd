package embedder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/retry"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashed-bow"

	// Dimensions
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API or any
// gateway that speaks the same protocol
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	policy    retry.Policy
	cache     *Cache
}

// OpenAIOptions configures an OpenAIProvider
type OpenAIOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     retry.Policy
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts OpenAIOptions, cache *Cache) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = OpenAIDimension
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = isRetryable
	}

	// Retries are driven by our policy, not the SDK's
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(reqOpts...),
		model:     opts.Model,
		dimension: opts.Dimension,
		policy:    opts.Retry,
		cache:     cache,
	}, nil
}

// isRetryable retries rate limits and server errors from the API plus
// transient network failures
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return retry.IsTransient(err)
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	emb := resp.Embeddings[0]
	emb.TokenCount = resp.TokenCount
	return emb, nil
}

// GenerateBatch embeds texts in one request; cached texts are not sent
func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	missing := make([]int, 0, len(req.Texts))
	for i, text := range req.Texts {
		if o.cache != nil {
			if emb, ok := o.cache.Get(ComputeHash(model + "\x00" + text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	resp := &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}
	if len(missing) == 0 {
		return resp, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = req.Texts[i]
	}

	result, err := retry.DoValue(ctx, o.policy, func(ctx context.Context) (apiResult, error) {
		vectors, tokens, err := o.callAPI(ctx, texts, model)
		return apiResult{vectors: vectors, tokens: tokens}, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	fresh := result.vectors
	if len(fresh) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(fresh), len(texts))
	}

	for j, i := range missing {
		hash := ComputeHash(model + "\x00" + req.Texts[i])
		emb := &Embedding{
			Vector:    fresh[j],
			Dimension: len(fresh[j]),
			Provider:  ProviderOpenAI,
			Model:     model,
			Hash:      hash,
		}
		if o.cache != nil {
			o.cache.Set(hash, emb)
		}
		embeddings[i] = emb
	}
	resp.TokenCount = result.tokens
	return resp, nil
}

type apiResult struct {
	vectors [][]float32
	tokens  int
}

// callAPI sends one embeddings request and returns vectors ordered by input index
func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, int, error) {
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the v3 models accept a reduced dimension
	if strings.HasPrefix(model, "text-embedding-3") && o.dimension != OpenAIDimension {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, 0, fmt.Errorf("embedding index %d out of range", idx)
		}
		vec := make([]float32, len(data.Embedding))
		for k, v := range data.Embedding {
			vec[k] = float32(v)
		}
		vectors[idx] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, 0, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vectors, int(resp.Usage.TotalTokens), nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// LocalProvider builds deterministic hashed bag-of-words vectors. It needs no
// network access, and texts sharing words land close together, which is
// enough for offline use and tests.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	words := tokenize(req.Text)
	vector := make([]float32, l.dimension)
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			vector[idx] -= 1
		} else {
			vector[idx] += 1
		}
	}
	if len(words) == 0 {
		// No words: fall back to a content hash so the vector is not all zeros
		sum := sha256.Sum256([]byte(req.Text))
		for i := 0; i < l.dimension && i < len(sum); i++ {
			vector[i] = float32(sum[i]) / 255.0
		}
	}

	emb := &Embedding{
		Vector:     NormalizeVector(vector),
		Dimension:  l.dimension,
		Provider:   ProviderLocal,
		Model:      l.model,
		Hash:       hash,
		TokenCount: len(words),
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	resp := &BatchEmbeddingResponse{
		Embeddings: make([]*Embedding, len(req.Texts)),
		Provider:   ProviderLocal,
		Model:      l.model,
	}
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		resp.Embeddings[i] = emb
		resp.TokenCount += emb.TokenCount
	}
	return resp, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
