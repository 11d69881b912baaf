package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/domain"
)

// LLMConfig holds the Vertex AI Gemini adapter settings.
type LLMConfig struct {
	ProjectID   string
	LocationID  string
	Model       string
	Timeout     time.Duration
	HTTPSProxy  string
	RetryConfig retry.Config
}

// LLM implements port.LLMPort against the Vertex AI Gemini generateContent
// endpoint, grounded on the reference GeminiLLMAdapter. Unlike the
// reference, any non-2xx response not handled by the retry policy fails
// immediately with LLMError rather than being swallowed into a nil return.
type LLM struct {
	tm       *TokenManager
	client   *http.Client
	url      string
	model    string
	retryCfg retry.Config
}

// NewLLM builds a Vertex AI Gemini adapter sharing tm with any sibling
// embedding adapter in the same provider family.
func NewLLM(tm *TokenManager, cfg LLMConfig) (*LLM, error) {
	client, err := httpClient(cfg.HTTPSProxy, orDefault(cfg.Timeout, 30*time.Second))
	if err != nil {
		return nil, err
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &LLM{
		tm:       tm,
		client:   client,
		url:      buildGenerateURL(cfg.LocationID, cfg.ProjectID, cfg.Model),
		model:    cfg.Model,
		retryCfg: retryCfg,
	}, nil
}

func buildGenerateURL(location, project, model string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		location, project, location, model)
}

// ModelName reports the configured Gemini model id.
func (l *LLM) ModelName() string { return l.model }

// HealthCheck confirms a Vertex AI access token can be obtained, the
// cheapest signal of provider availability this adapter has.
func (l *LLM) HealthCheck(ctx context.Context) error {
	_, err := l.tm.GetToken(ctx)
	return err
}

type generatePayload struct {
	SystemInstruction struct {
		Parts []textPart `json:"parts"`
	} `json:"systemInstruction"`
	Contents []struct {
		Role  string     `json:"role"`
		Parts []textPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type textPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []textPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateJSON sends the system/user prompt pair and returns the raw text
// the model produced, expected to be JSON.
func (l *LLM) GenerateJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	var payload generatePayload
	payload.SystemInstruction.Parts = []textPart{{Text: systemPrompt}}
	payload.Contents = []struct {
		Role  string     `json:"role"`
		Parts []textPart `json:"parts"`
	}{{Role: "user", Parts: []textPart{{Text: userMessage}}}}
	payload.GenerationConfig.Temperature = 0.1
	payload.GenerationConfig.ResponseMimeType = "application/json"

	raw, err := postJSON(ctx, l.tm, l.client, l.url, payload, l.retryCfg, func(detail string, cause error) error {
		return domain.NewLLMError(detail, cause)
	}, func(detail string, cause error) error {
		return domain.NewAuthenticationError(detail)
	})
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", domain.NewLLMError("unmarshal generateContent response", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", domain.NewLLMError("generateContent response contained no candidates or parts", nil)
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", domain.NewLLMError("generateContent response text was empty", nil)
	}
	return text, nil
}
