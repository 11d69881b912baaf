package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/metrics"
)

// fastRetry avoids paying the default 2s/4s backoff delays in tests.
var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func TestEmbedder_EmbedQuery(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingDatum{Object: "embedding", Embedding: expectedVec, Index: 0})
		resp.Usage.PromptTokens = 10
		resp.Usage.TotalTokens = 10
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{
		APIKey: "test-key", BaseURL: server.URL, Model: "test-model",
		Dimensions: 4, Provider: "test", Logger: zap.NewNop(),
	})

	vec, err := emb.EmbedQuery(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}
	if len(vec) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(vec))
	}
	for i, v := range vec {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
}

func TestEmbedder_BatchEmbedSortsByIndex(t *testing.T) {
	vec1 := []float32{0.1, 0.2}
	vec2 := []float32{0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		// Returned out of order on purpose to exercise Index-based reassembly.
		resp.Data = append(resp.Data,
			embeddingDatum{Object: "embedding", Embedding: vec2, Index: 1},
			embeddingDatum{Object: "embedding", Embedding: vec1, Index: 0},
		)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Provider: "test", Logger: zap.NewNop()})

	vectors, err := emb.EmbedDocumentsBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedDocumentsBatch failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != vec1[0] || vectors[1][0] != vec2[0] {
		t.Errorf("vectors not reassembled by index: %v", vectors)
	}
}

func TestEmbedder_NonOKResponseIsEmbeddingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Provider: "test", Logger: zap.NewNop(), RetryConfig: fastRetry})

	_, err := emb.EmbedQuery(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("expected EmbeddingError, got %T: %v", err, err)
	}
}

func TestEmbedder_UnauthorizedFailsImmediatelyAsAuthenticationError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad key"})
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Provider: "test", Logger: zap.NewNop(), RetryConfig: fastRetry})

	_, err := emb.EmbedQuery(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a 401, got %d", calls)
	}
}

func TestEmbedder_RateLimitedRetriesThenSucceeds(t *testing.T) {
	calls := 0
	expectedVec := []float32{0.5, 0.6}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"detail": "slow down"})
			return
		}
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingDatum{Object: "embedding", Embedding: expectedVec, Index: 0})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Provider: "test", Logger: zap.NewNop(), RetryConfig: fastRetry})

	vec, err := emb.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", calls)
	}
	if len(vec) != len(expectedVec) {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedder_HealthCheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "k", BaseURL: server.URL, Model: "test-model"})
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestEmbedder_HealthCheck_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	emb := NewEmbedder(EmbeddingConfig{APIKey: "k", BaseURL: server.URL, Model: "test-model"})
	if err := emb.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedder_ModelNameAndDimensions(t *testing.T) {
	emb := NewEmbedder(EmbeddingConfig{APIKey: "k", Model: "text-embed-3", Dimensions: 768})
	if emb.ModelName() != "text-embed-3" {
		t.Errorf("unexpected model name: %s", emb.ModelName())
	}
	if emb.Dimensions() != 768 {
		t.Errorf("unexpected dimensions: %d", emb.Dimensions())
	}
}
