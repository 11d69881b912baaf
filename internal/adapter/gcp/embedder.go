package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/domain"
)

const (
	taskQuery    = "RETRIEVAL_QUERY"
	taskDocument = "RETRIEVAL_DOCUMENT"
)

// EmbeddingConfig holds the Vertex AI embedding adapter settings.
type EmbeddingConfig struct {
	ProjectID   string
	LocationID  string
	Model       string
	Dimensions  int
	BatchSize   int
	Timeout     time.Duration
	HTTPSProxy  string
	RetryConfig retry.Config
}

// Embedder implements port.EmbeddingPort against the Vertex AI Predict
// endpoint, grounded on the reference VertexEmbeddingAdapter.
type Embedder struct {
	tm         *TokenManager
	client     *http.Client
	url        string
	model      string
	dimensions int
	batchSize  int
	retryCfg   retry.Config
}

// NewEmbedder builds a Vertex AI embedding adapter sharing tm with any
// sibling LLM adapter in the same provider family.
func NewEmbedder(tm *TokenManager, cfg EmbeddingConfig) (*Embedder, error) {
	client, err := httpClient(cfg.HTTPSProxy, orDefault(cfg.Timeout, 5*time.Second))
	if err != nil {
		return nil, err
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Embedder{
		tm:         tm,
		client:     client,
		url:        buildEmbedURL(cfg.LocationID, cfg.ProjectID, cfg.Model),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		retryCfg:   retryCfg,
	}, nil
}

func buildEmbedURL(location, project, model string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		location, project, location, model)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// ModelName reports the configured Vertex embedding model id.
func (e *Embedder) ModelName() string { return e.model }

// Dimensions reports the fixed vector length this embedder emits.
func (e *Embedder) Dimensions() int { return e.dimensions }

// HealthCheck confirms a Vertex AI access token can be obtained, the
// cheapest signal of provider availability this adapter has.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	_, err := e.tm.GetToken(ctx)
	return err
}

// EmbedQuery embeds text under the RETRIEVAL_QUERY task type.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedSingle(ctx, text, taskQuery, "")
}

// EmbedDocument embeds text under the RETRIEVAL_DOCUMENT task type.
func (e *Embedder) EmbedDocument(ctx context.Context, text, title string) ([]float32, error) {
	return e.embedSingle(ctx, text, taskDocument, title)
}

// EmbedDocumentsBatch embeds many documents, chunking to batchSize.
func (e *Embedder) EmbedDocumentsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
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

type predictInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
	Title    string `json:"title,omitempty"`
}

type predictRequest struct {
	Instances []predictInstance `json:"instances"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

func (e *Embedder) embedSingle(ctx context.Context, text, taskType, title string) ([]float32, error) {
	vectors, err := e.embedBatchWithTask(ctx, []string{text}, taskType, []string{title})
	if err != nil {
		return nil, err
	}
	if vectors[0] == nil {
		return nil, domain.NewEmbeddingError("unexpected embed response shape", nil)
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	titles := make([]string, len(texts))
	return e.embedBatchWithTask(ctx, texts, taskDocument, titles)
}

func (e *Embedder) embedBatchWithTask(ctx context.Context, texts []string, taskType string, titles []string) ([][]float32, error) {
	instances := make([]predictInstance, len(texts))
	for i, t := range texts {
		instances[i] = predictInstance{Content: t, TaskType: taskType, Title: titles[i]}
	}
	payload := predictRequest{Instances: instances}

	raw, err := postJSON(ctx, e.tm, e.client, e.url, payload, e.retryCfg, func(detail string, cause error) error {
		if cause == nil {
			return domain.NewEmbeddingError(detail, nil)
		}
		return domain.NewEmbeddingError(detail, cause)
	}, func(detail string, cause error) error {
		return domain.NewAuthenticationError(detail)
	})
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.NewEmbeddingError("unmarshal embed response", err)
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		if i < len(resp.Predictions) {
			out[i] = resp.Predictions[i].Embeddings.Values
		}
	}
	return out, nil
}
