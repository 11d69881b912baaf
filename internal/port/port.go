// Package port declares the capability contracts the classification
// pipeline is built against. These are behavioral contracts, not an
// inheritance tree — any type satisfying the method set qualifies.
package port

import (
	"context"

	"github.com/anzsic/classify/internal/domain"
)

// RankedCode is a single (code, rank) pair returned by a Stage 1 search.
// Rank is 1-based and strictly increasing within a result slice.
type RankedCode struct {
	Code string
	Rank int
}

// EmbeddingPort produces vector embeddings for query and document text.
type EmbeddingPort interface {
	// ModelName reports the effective model identifier actually used,
	// for provenance in ClassifyResponse.
	ModelName() string
	// Dimensions reports the fixed length of every vector this port emits.
	Dimensions() int
	// EmbedQuery embeds text under the "retrieval query" task orientation,
	// for embedding families that distinguish query from document vectors.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocument embeds text under the "retrieval document" orientation.
	// title is optional context and may be empty.
	EmbedDocument(ctx context.Context, text, title string) ([]float32, error)
	// EmbedDocumentsBatch embeds many documents in one logical call,
	// chunking to the provider-specific limit internally.
	EmbedDocumentsBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DatabasePort is the read-only query surface over the precomputed
// catalogue. Implementations own their own connection lifecycle.
type DatabasePort interface {
	// VectorSearch ranks by cosine distance ascending, returning at most
	// n results.
	VectorSearch(ctx context.Context, embedding []float32, n int) ([]RankedCode, error)
	// FTSSearch ranks by the datastore's native relevance descending,
	// returning at most n results.
	FTSSearch(ctx context.Context, queryText string, n int) ([]RankedCode, error)
	// FetchByCodes hydrates a set of codes into catalogue records in one
	// round trip. The returned map may be a strict subset of codes if
	// some are missing; order is not guaranteed.
	FetchByCodes(ctx context.Context, codes []string) (map[string]domain.CatalogueRecord, error)
	// Healthcheck reports whether the datastore is reachable and ready.
	Healthcheck(ctx context.Context) (bool, error)
}

// LLMPort drives the re-ranking language model call.
type LLMPort interface {
	// ModelName reports the effective model identifier actually used.
	ModelName() string
	// GenerateJSON issues one call and returns the raw text the provider
	// believes to be JSON. Parsing is the reranker's responsibility.
	GenerateJSON(ctx context.Context, systemPrompt, userMessage string) (string, error)
}
