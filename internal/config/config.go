// Package config loads the classification pipeline's settings from the
// process environment, grounded on the teacher's Config/ApplyDefaults/
// Validate shape but sourced from os.Getenv (optionally seeded by a
// .env file) rather than a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/anzsic/classify/internal/domain"
)

// Config holds every setting the pipeline needs to construct its
// adapters and classifier.
type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	GCP       GCPConfig
	OpenAI    OpenAIConfig

	HTTPSProxy    string
	MasterCSVPath string
}

// DatabaseConfig holds the catalogue Redis/Valkey connection settings.
type DatabaseConfig struct {
	Addrs     []string
	IndexName string
	KeyPrefix string
	TimeoutMS int
	Retries   int
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string // "openai" or "gcp"
	Model      string
	Dimensions int
	BatchSize  int
	TimeoutMS  int
	Retries    int
}

// LLMConfig holds re-rank LLM provider settings.
type LLMConfig struct {
	Provider  string // "openai" or "gcp"
	Model     string
	TimeoutMS int
	Retries   int
}

// RetrievalConfig holds Stage 1 fusion and result-size defaults.
type RetrievalConfig struct {
	RRFK       int
	RetrievalN int // pool size default, a.k.a. RETRIEVAL_N
	TopK       int
}

// GCPConfig holds Vertex AI connection settings.
type GCPConfig struct {
	ProjectID  string
	LocationID string
	GcloudPath string
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// Load reads configuration from the process environment, optionally
// seeded by a .env file in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	cfg := Config{
		Database: DatabaseConfig{
			Addrs:     splitAddrs(getenv("DB_ADDRS", getenv("DB_DSN", ""))),
			IndexName: os.Getenv("DB_INDEX_NAME"),
			KeyPrefix: os.Getenv("DB_KEY_PREFIX"),
			TimeoutMS: atoiOr("DB_TIMEOUT_MS", 0),
			Retries:   atoiOr("DB_RETRIES", 0),
		},
		Embedding: EmbeddingConfig{
			Provider:   os.Getenv("EMBED_PROVIDER"),
			Model:      os.Getenv("EMBED_MODEL"),
			Dimensions: atoiOr("EMBED_DIM", 0),
			BatchSize:  atoiOr("EMBED_BATCH_SIZE", 0),
			TimeoutMS:  atoiOr("EMBED_TIMEOUT_MS", 0),
			Retries:    atoiOr("EMBED_RETRIES", 0),
		},
		LLM: LLMConfig{
			Provider:  os.Getenv("LLM_PROVIDER"),
			Model:     os.Getenv("LLM_MODEL"),
			TimeoutMS: atoiOr("LLM_TIMEOUT_MS", 0),
			Retries:   atoiOr("LLM_RETRIES", 0),
		},
		Retrieval: RetrievalConfig{
			RRFK:       atoiOr("RRF_K", 0),
			RetrievalN: atoiOr("RETRIEVAL_N", 0),
			TopK:       atoiOr("TOP_K", 0),
		},
		GCP: GCPConfig{
			ProjectID:  os.Getenv("GCP_PROJECT_ID"),
			LocationID: os.Getenv("GCP_LOCATION_ID"),
			GcloudPath: os.Getenv("GCLOUD_PATH"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		HTTPSProxy:    os.Getenv("HTTPS_PROXY"),
		MasterCSVPath: os.Getenv("MASTER_CSV_PATH"),
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ApplyDefaults fills empty fields with the pipeline's documented
// defaults, mirroring domain.SearchRequest's own default/range constants
// so the two never drift apart.
func (c *Config) ApplyDefaults() {
	if c.Database.IndexName == "" {
		c.Database.IndexName = "catalogue_idx"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "catalogue:"
	}
	if c.Database.TimeoutMS <= 0 {
		c.Database.TimeoutMS = 2000
	}
	if c.Database.Retries <= 0 {
		c.Database.Retries = 3
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.TimeoutMS <= 0 {
		c.Embedding.TimeoutMS = 10000
	}
	if c.Embedding.Retries <= 0 {
		c.Embedding.Retries = 3
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutMS <= 0 {
		c.LLM.TimeoutMS = 30000
	}
	if c.LLM.Retries <= 0 {
		c.LLM.Retries = 3
	}

	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = 60
	}
	if c.Retrieval.RetrievalN <= 0 {
		c.Retrieval.RetrievalN = 20
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}

	if c.GCP.GcloudPath == "" {
		c.GCP.GcloudPath = "gcloud"
	}
}

// Validate checks the configuration for correctness, returning a
// domain.ConfigurationError wrapping the first violation found.
func (c *Config) Validate() error {
	if len(c.Database.Addrs) == 0 {
		return domain.NewConfigurationError("DB_ADDRS (or DB_DSN) is required")
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return domain.NewConfigurationError("OPENAI_API_KEY is required when EMBED_PROVIDER=openai")
		}
	case "gcp":
		if c.GCP.ProjectID == "" || c.GCP.LocationID == "" {
			return domain.NewConfigurationError("GCP_PROJECT_ID and GCP_LOCATION_ID are required when EMBED_PROVIDER=gcp")
		}
	default:
		return domain.NewConfigurationError(fmt.Sprintf("EMBED_PROVIDER must be \"openai\" or \"gcp\", got %q", c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		return domain.NewConfigurationError("EMBED_MODEL is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return domain.NewConfigurationError("EMBED_DIM must be positive")
	}

	switch c.LLM.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return domain.NewConfigurationError("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gcp":
		if c.GCP.ProjectID == "" || c.GCP.LocationID == "" {
			return domain.NewConfigurationError("GCP_PROJECT_ID and GCP_LOCATION_ID are required when LLM_PROVIDER=gcp")
		}
	default:
		return domain.NewConfigurationError(fmt.Sprintf("LLM_PROVIDER must be \"openai\" or \"gcp\", got %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		return domain.NewConfigurationError("LLM_MODEL is required")
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoiOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitAddrs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
