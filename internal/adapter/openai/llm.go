package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/metrics"
)

// LLMConfig holds the chat-completions provider settings.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Provider    string
	Logger      *zap.Logger
	RetryConfig retry.Config
}

// LLM implements port.LLMPort using go-openai's chat-completions JSON
// mode, generalizing the client's embedding-only use elsewhere in this
// package to also drive structured chat completions.
type LLM struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
	retryCfg retry.Config
}

// NewLLM creates an OpenAI-compatible chat-completions LLM provider.
func NewLLM(cfg LLMConfig) *LLM {
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

	return &LLM{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: provider,
		logger:   logger,
		retryCfg: retryCfg,
	}
}

// ModelName reports the configured chat-completions model id.
func (l *LLM) ModelName() string { return l.model }

// HealthCheck verifies API availability via ListModels (a free endpoint).
func (l *LLM) HealthCheck(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return domain.NewLLMError("health check failed", err)
	}
	return nil
}

// GenerateJSON issues one chat-completions call with JSON-object response
// mode and temperature 0.1, and returns the raw assistant message text.
// 429/5xx responses back off and retry; a 401 fails immediately as
// domain.AuthenticationError.
func (l *LLM) GenerateJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	result, err := retry.Do(ctx, l.retryCfg, func(ctx context.Context, attemptNum int) (any, retry.Outcome, error) {
		start := time.Now()
		resp, err := l.client.CreateChatCompletion(ctx, req)
		duration := time.Since(start)

		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(l.provider, l.model, "error").Inc()
			metrics.LLMErrorsTotal.WithLabelValues(l.provider, l.model, "api_error").Inc()
			wrapped := parseLLMError(err)
			return nil, retryOutcomeForStatus(httpStatusCode(err)), wrapped
		}
		if len(resp.Choices) == 0 {
			metrics.LLMRequestsTotal.WithLabelValues(l.provider, l.model, "error").Inc()
			metrics.LLMErrorsTotal.WithLabelValues(l.provider, l.model, "empty_response").Inc()
			return nil, retry.Fail, domain.NewLLMError("empty chat completion response", nil)
		}

		metrics.LLMRequestsTotal.WithLabelValues(l.provider, l.model, "success").Inc()
		metrics.LLMRequestDuration.WithLabelValues(l.provider, l.model).Observe(duration.Seconds())
		return resp.Choices[0].Message.Content, retry.Success, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// parseLLMError wraps err as domain.AuthenticationError on 401, or
// domain.LLMError otherwise.
func parseLLMError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 401 {
			return domain.NewAuthenticationError(fmt.Sprintf("api error %d", reqErr.HTTPStatusCode))
		}
		return domain.NewLLMError(fmt.Sprintf("api error %d", reqErr.HTTPStatusCode), err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 401 {
			return domain.NewAuthenticationError(fmt.Sprintf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
		}
		return domain.NewLLMError(fmt.Sprintf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message), err)
	}

	return domain.NewLLMError("chat completion request failed", err)
}
