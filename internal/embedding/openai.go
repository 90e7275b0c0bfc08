package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Error codes reported by the embed endpoint.
const (
	CodeEmptyText           = "EMPTY_TEXT"
	CodeInvalidReportFormat = "INVALID_REPORT_FORMAT"
	CodeOpenAIAPIError      = "OPENAI_API_ERROR"
	CodeEmbeddingFailed     = "EMBEDDING_FAILED"
	CodeEmbeddingDisabled   = "EMBEDDING_DISABLED"
)

var codeMessages = map[string]string{
	CodeEmptyText:           "no embeddable text could be extracted from the report",
	CodeInvalidReportFormat: "the report format is invalid",
	CodeOpenAIAPIError:      "the embedding provider returned an error",
	CodeEmbeddingFailed:     "failed to create the embedding",
	CodeEmbeddingDisabled:   "embedding is not configured on this server",
}

// Message returns the client-facing message for an error code.
func Message(code string) string {
	if m, ok := codeMessages[code]; ok {
		return m
	}
	return "unknown error"
}

// ProviderError is returned when the embedding provider could not produce a
// vector. Code is CodeOpenAIAPIError for errors reported by the API itself
// (including exhausted rate-limit and connection retries) and
// CodeEmbeddingFailed for everything else.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// OpenAIOptions configures an OpenAIEmbedder. Zero values fall back to the
// defaults noted on each field.
type OpenAIOptions struct {
	APIKey string
	// BaseURL overrides the API endpoint (default https://api.openai.com/v1).
	BaseURL string
	// Model defaults to text-embedding-3-small.
	Model string
	// Dimensions defaults to 1536. It is sent to the API for the
	// text-embedding-3 family only.
	Dimensions int
	CacheSize  int
	// MaxAttempts defaults to 3.
	MaxAttempts int
	// MinBackoff and MaxBackoff bound the exponential wait between attempts
	// (default 2s and 10s).
	MinBackoff time.Duration
	MaxBackoff time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dimensions  int
	cache       *EmbeddingCache
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger
}

// NewOpenAIEmbedder creates an embedder. It does not contact the API.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 1536
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 2 * time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 10 * time.Second
		if opts.MaxBackoff < opts.MinBackoff {
			opts.MaxBackoff = opts.MinBackoff
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(cfg),
		model:       openai.EmbeddingModel(opts.Model),
		dimensions:  opts.Dimensions,
		cache:       NewEmbeddingCache(opts.CacheSize),
		maxAttempts: opts.MaxAttempts,
		minBackoff:  opts.MinBackoff,
		maxBackoff:  opts.MaxBackoff,
		logger:      opts.Logger,
	}, nil
}

// Embed returns the embedding for text, using the cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vectors, err := e.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vectors[0])
	return vectors[0], nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

func (e *OpenAIEmbedder) create(ctx context.Context, input []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: input,
		Model: e.model,
	}
	if e.model == openai.SmallEmbedding3 || e.model == openai.LargeEmbedding3 {
		req.Dimensions = e.dimensions
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err == nil || !retryable(err) || attempt >= e.maxAttempts {
			break
		}
		wait := e.backoff(attempt)
		e.logger.Warn("retrying embedding request",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Code: CodeEmbeddingFailed, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
	if err != nil {
		return nil, &ProviderError{Code: providerCode(err), Err: err}
	}

	if len(resp.Data) != len(input) {
		return nil, &ProviderError{
			Code: CodeEmbeddingFailed,
			Err:  fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(input)),
		}
	}
	vectors := make([][]float32, len(input))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, nil
}

// backoff returns min * 2^(attempt-1), capped at max.
func (e *OpenAIEmbedder) backoff(attempt int) time.Duration {
	d := e.minBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.maxBackoff {
			return e.maxBackoff
		}
	}
	return d
}

// retryable reports rate limiting and transport failures.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func providerCode(err error) string {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr), errors.As(err, &netErr):
		return CodeOpenAIAPIError
	}
	return CodeEmbeddingFailed
}
