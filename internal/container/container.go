// Package container is the composition root: it reads a config.Config
// and wires together the concrete adapters, Stage 1/2 collaborators, and
// the top-level Pipeline, selecting between the gcp and openai provider
// families per EMBED_PROVIDER/LLM_PROVIDER at construction time.
package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/adapter/gcp"
	"github.com/anzsic/classify/internal/adapter/openai"
	"github.com/anzsic/classify/internal/adapter/redisdb"
	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/classifier"
	"github.com/anzsic/classify/internal/config"
	"github.com/anzsic/classify/internal/health"
	"github.com/anzsic/classify/internal/port"
	"github.com/anzsic/classify/internal/rerank"
	"github.com/anzsic/classify/internal/retrieval"
)

// embeddingAdapter is every concrete embedding adapter built here: the
// pipeline's EmbeddingPort plus the health check neither provider family
// exposes through that narrower port.
type embeddingAdapter interface {
	port.EmbeddingPort
	HealthCheck(ctx context.Context) error
}

// llmAdapter is every concrete LLM adapter built here: the pipeline's
// LLMPort plus its health check.
type llmAdapter interface {
	port.LLMPort
	HealthCheck(ctx context.Context) error
}

// Container owns every constructed adapter plus the assembled pipeline,
// so a caller can run Health.Check and then Close on shutdown.
type Container struct {
	Pipeline *classifier.Pipeline
	Health   *health.Service
	Store    *redisdb.Store
}

// Build constructs the full adapter graph from cfg. logger may be nil,
// in which case a no-op logger is used.
func Build(cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := redisdb.NewStore(databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build database store: %w", err)
	}

	var tm *gcp.TokenManager
	if cfg.Embedding.Provider == "gcp" || cfg.LLM.Provider == "gcp" {
		tm = gcp.NewTokenManager(cfg.GCP.GcloudPath)
	}

	embedder, err := buildEmbedder(cfg, tm, logger)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	llm, err := buildLLM(cfg, tm, logger)
	if err != nil {
		return nil, fmt.Errorf("build llm: %w", err)
	}

	retriever := retrieval.New(embedder, store, cfg.Retrieval.RRFK, logger)
	reranker := rerank.New(llm, cfg.MasterCSVPath, logger)
	pipeline := classifier.New(retriever, reranker, embedder.ModelName(), llm.ModelName())

	return &Container{
		Pipeline: pipeline,
		Health:   health.New(store, embedder, llm),
		Store:    store,
	}, nil
}

func databaseConfig(cfg config.Config) redisdb.Config {
	return redisdb.Config{
		Addrs:       cfg.Database.Addrs,
		IndexName:   cfg.Database.IndexName,
		KeyPrefix:   cfg.Database.KeyPrefix,
		Timeout:     time.Duration(cfg.Database.TimeoutMS) * time.Millisecond,
		RetryConfig: retry.Config{MaxAttempts: cfg.Database.Retries, InitialDelay: 100 * time.Millisecond, Multiplier: 2},
	}
}

func buildEmbedder(cfg config.Config, tm *gcp.TokenManager, logger *zap.Logger) (embeddingAdapter, error) {
	retryCfg := retry.Config{MaxAttempts: cfg.Embedding.Retries, InitialDelay: 2 * time.Second, Multiplier: 2}
	timeout := time.Duration(cfg.Embedding.TimeoutMS) * time.Millisecond

	switch cfg.Embedding.Provider {
	case "gcp":
		return gcp.NewEmbedder(tm, gcp.EmbeddingConfig{
			ProjectID:   cfg.GCP.ProjectID,
			LocationID:  cfg.GCP.LocationID,
			Model:       cfg.Embedding.Model,
			Dimensions:  cfg.Embedding.Dimensions,
			BatchSize:   cfg.Embedding.BatchSize,
			Timeout:     timeout,
			HTTPSProxy:  cfg.HTTPSProxy,
			RetryConfig: retryCfg,
		})
	case "openai":
		return openai.NewEmbedder(openai.EmbeddingConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.Embedding.Model,
			Dimensions:  cfg.Embedding.Dimensions,
			Provider:    cfg.Embedding.Provider,
			Logger:      logger,
			RetryConfig: retryCfg,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildLLM(cfg config.Config, tm *gcp.TokenManager, logger *zap.Logger) (llmAdapter, error) {
	retryCfg := retry.Config{MaxAttempts: cfg.LLM.Retries, InitialDelay: 2 * time.Second, Multiplier: 2}
	timeout := time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond

	switch cfg.LLM.Provider {
	case "gcp":
		return gcp.NewLLM(tm, gcp.LLMConfig{
			ProjectID:   cfg.GCP.ProjectID,
			LocationID:  cfg.GCP.LocationID,
			Model:       cfg.LLM.Model,
			Timeout:     timeout,
			HTTPSProxy:  cfg.HTTPSProxy,
			RetryConfig: retryCfg,
		})
	case "openai":
		return openai.NewLLM(openai.LLMConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.LLM.Model,
			Provider:    cfg.LLM.Provider,
			Logger:      logger,
			RetryConfig: retryCfg,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
