// Package classifier implements ClassifierPipeline: the top-level mode
// router that adapts Stage 1 candidates directly to results in FAST mode,
// or delegates to the reranker in HIGH_FIDELITY mode.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/anzsic/classify/internal/domain"
)

// Retriever is the capability the pipeline needs from Stage 1.
type Retriever interface {
	Retrieve(ctx context.Context, query string, poolSize int) ([]domain.Candidate, error)
}

// Reranker is the capability the pipeline needs from Stage 2.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.ClassifyResult, error)
}

// Pipeline is ClassifierPipeline: mode routing, candidate-to-result
// adaptation, and error propagation. Safe to share across concurrent
// callers provided its Retriever and Reranker are.
type Pipeline struct {
	retriever  Retriever
	reranker   Reranker
	embedModel string
	llmModel   string
	now        func() time.Time
}

// New builds a Pipeline. embedModel/llmModel are the provenance strings
// reported in every ClassifyResponse.
func New(retriever Retriever, reranker Reranker, embedModel, llmModel string) *Pipeline {
	return &Pipeline{
		retriever:  retriever,
		reranker:   reranker,
		embedModel: embedModel,
		llmModel:   llmModel,
		now:        time.Now,
	}
}

// Classify implements the full ClassifierPipeline.classify contract.
func (p *Pipeline) Classify(ctx context.Context, req domain.SearchRequest) (domain.ClassifyResponse, error) {
	candidates, err := p.retriever.Retrieve(ctx, req.Query, req.PoolSize)
	if err != nil {
		return domain.ClassifyResponse{}, err
	}

	var results []domain.ClassifyResult
	llmModel := ""

	switch req.Mode {
	case domain.ModeFast:
		results = adaptFast(candidates, req.TopK)
	case domain.ModeHighFidelity:
		if len(candidates) > 0 {
			results, err = p.reranker.Rerank(ctx, req.Query, candidates, req.TopK)
			if err != nil {
				return domain.ClassifyResponse{}, err
			}
			llmModel = p.llmModel
		}
	default:
		return domain.ClassifyResponse{}, domain.NewConfigurationError(fmt.Sprintf("unknown mode %q", req.Mode))
	}

	return domain.ClassifyResponse{
		Query:               req.Query,
		Mode:                req.Mode,
		TopKRequested:       req.TopK,
		CandidatesRetrieved: len(candidates),
		Results:             results,
		GeneratedAt:         p.now(),
		EmbedModel:          p.embedModel,
		LLMModel:            llmModel,
	}, nil
}

// adaptFast converts Stage 1 candidates directly to results, synthesising
// a deterministic reason string. Stage 2 is never invoked in FAST mode,
// even when candidates is empty.
func adaptFast(candidates []domain.Candidate, topK int) []domain.ClassifyResult {
	n := topK
	if len(candidates) < n {
		n = len(candidates)
	}
	results := make([]domain.ClassifyResult, 0, n)
	for i := 0; i < n; i++ {
		c := candidates[i]
		results = append(results, domain.ClassifyResult{
			Rank:         i + 1,
			Code:         c.Code,
			Description:  c.Description,
			ClassDesc:    c.ClassDesc,
			DivisionDesc: c.DivisionDesc,
			Reason:       fmt.Sprintf("RRF score %v; sources: %s", c.RRFScore, c.SourceLabel()),
			RRFScore:     c.RRFScore,
		})
	}
	return results
}
