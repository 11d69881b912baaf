// Package openai implements EmbeddingPort and LLMPort against any
// OpenAI-compatible API (OpenAI itself, or a compatible gateway).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/metrics"
)

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimensions  int
	User        string
	Provider    string
	Logger      *zap.Logger
	RetryConfig retry.Config
}

// Embedder implements port.EmbeddingPort against an OpenAI-compatible
// embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
	retryCfg   retry.Config
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg EmbeddingConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
		logger:     logger,
		retryCfg:   retryCfg,
	}
}

// ModelName reports the configured embedding model id.
func (e *Embedder) ModelName() string { return string(e.model) }

// Dimensions reports the fixed vector length this embedder emits.
func (e *Embedder) Dimensions() int { return e.dimensions }

// EmbedQuery embeds a query string. The OpenAI embeddings API has no
// separate query/document task parameter, so the orientation distinction
// is a no-op here; asymmetric-embedding providers implement it in their
// own adapter (see internal/adapter/gcp).
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

// EmbedDocument embeds a document string. title is accepted for interface
// symmetry with asymmetric-embedding providers but unused here.
func (e *Embedder) EmbedDocument(ctx context.Context, text, title string) ([]float32, error) {
	return e.embed(ctx, text)
}

// EmbedDocumentsBatch embeds many documents in one request, chunking to
// the provider's per-request input limit.
func (e *Embedder) EmbedDocumentsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const chunkSize = 100

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += chunkSize {
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch issues the request under the shared retry policy: 429/5xx
// back off and retry, 401 fails immediately as AuthenticationError, and
// anything else fails immediately as EmbeddingError.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	result, err := retry.Do(ctx, e.retryCfg, func(ctx context.Context, attemptNum int) (any, retry.Outcome, error) {
		start := time.Now()
		resp, err := e.client.CreateEmbeddings(ctx, req)
		duration := time.Since(start)

		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "api_error").Inc()
			wrapped := parseEmbeddingError(err)
			return nil, retryOutcomeForStatus(httpStatusCode(err)), wrapped
		}
		if len(resp.Data) != len(texts) {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "short_response").Inc()
			return nil, retry.Fail, domain.NewEmbeddingError(fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
		metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())
		if resp.Usage.TotalTokens > 0 {
			metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").Add(float64(resp.Usage.TotalTokens))
		}

		vectors := make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			vectors[d.Index] = d.Embedding
		}
		return vectors, retry.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// HealthCheck verifies API availability via ListModels (a free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return domain.NewEmbeddingError("health check failed", err)
	}
	return nil
}

// parseEmbeddingError extracts a human-readable detail from the API
// response and wraps it as domain.AuthenticationError on 401, or
// domain.EmbeddingError otherwise.
func parseEmbeddingError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		if reqErr.HTTPStatusCode == http.StatusUnauthorized {
			return domain.NewAuthenticationError(fmt.Sprintf("api error %d: %s", reqErr.HTTPStatusCode, detail))
		}
		return domain.NewEmbeddingError(fmt.Sprintf("api error %d: %s", reqErr.HTTPStatusCode, detail), err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return domain.NewAuthenticationError(fmt.Sprintf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
		}
		return domain.NewEmbeddingError(fmt.Sprintf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message), err)
	}

	return domain.NewEmbeddingError("embedding request failed", err)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

// httpStatusCode extracts the HTTP status code go-openai attached to err,
// or 0 if err carries none.
func httpStatusCode(err error) int {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}

// retryOutcomeForStatus classifies an OpenAI-compatible HTTP status per the
// adapter retry policy: 401 fails immediately, 429/5xx back off and retry,
// everything else (including an unknown/transport-level status) fails
// immediately.
func retryOutcomeForStatus(code int) retry.Outcome {
	switch {
	case code == http.StatusUnauthorized:
		return retry.Fail
	case code == http.StatusTooManyRequests || code >= 500:
		return retry.RetryBackoff
	default:
		return retry.Fail
	}
}
