package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anzsic/classify/internal/domain"
)

type stubRetriever struct {
	candidates []domain.Candidate
	err        error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, poolSize int) ([]domain.Candidate, error) {
	return s.candidates, s.err
}

type stubReranker struct {
	results []domain.ClassifyResult
	err     error
	calls   int
}

func (s *stubReranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.ClassifyResult, error) {
	s.calls++
	return s.results, s.err
}

func mkCandidate(code string, score float64) domain.Candidate {
	return domain.Candidate{Code: code, Description: "desc-" + code, RRFScore: score, InVector: true, VectorRank: 1}
}

// TestClassify_FastModePassthrough is seed scenario 2.
func TestClassify_FastModePassthrough(t *testing.T) {
	retriever := &stubRetriever{candidates: []domain.Candidate{
		mkCandidate("X", 0.5), mkCandidate("Y", 0.3), mkCandidate("Z", 0.1),
	}}
	reranker := &stubReranker{}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, err := domain.NewSearchRequest("query", domain.ModeFast, 2, 20)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	resp, err := p.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Code != "X" || resp.Results[1].Code != "Y" {
		t.Fatalf("unexpected order: %+v", resp.Results)
	}
	if !strings.Contains(resp.Results[0].Reason, "RRF score 0.5") {
		t.Errorf("expected reason to mention RRF score 0.5, got %q", resp.Results[0].Reason)
	}
	if !strings.Contains(resp.Results[1].Reason, "RRF score 0.3") {
		t.Errorf("expected reason to mention RRF score 0.3, got %q", resp.Results[1].Reason)
	}
	if reranker.calls != 0 {
		t.Errorf("expected no LLM call in FAST mode, got %d calls", reranker.calls)
	}
	if resp.LLMModel != "" {
		t.Errorf("expected empty llm_model in FAST mode, got %q", resp.LLMModel)
	}
}

// TestClassify_RetrievalPartialFailure is seed scenario 6.
func TestClassify_RetrievalPartialFailure(t *testing.T) {
	retriever := &stubRetriever{err: domain.NewRetrievalError("vector search failed while fts search succeeded")}
	reranker := &stubReranker{}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, _ := domain.NewSearchRequest("query", domain.ModeHighFidelity, 5, 20)

	_, err := p.Classify(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}
	var retErr *domain.RetrievalError
	if !errors.As(err, &retErr) {
		t.Errorf("expected RetrievalError, got %T: %v", err, err)
	}
	if reranker.calls != 0 {
		t.Errorf("expected no LLM call after retrieval failure, got %d calls", reranker.calls)
	}
}

func TestClassify_HighFidelityEmptyCandidatesSkipsLLM(t *testing.T) {
	retriever := &stubRetriever{candidates: nil}
	reranker := &stubReranker{}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, _ := domain.NewSearchRequest("query", domain.ModeHighFidelity, 5, 20)

	resp, err := p.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty results, got %+v", resp.Results)
	}
	if reranker.calls != 0 {
		t.Errorf("expected no LLM call with empty candidate pool, got %d calls", reranker.calls)
	}
}

func TestClassify_HighFidelityHappyPathDelegatesToReranker(t *testing.T) {
	candidates := []domain.Candidate{mkCandidate("X", 0.5)}
	rerankResults := []domain.ClassifyResult{{Rank: 1, Code: "X", Reason: "matched"}}
	retriever := &stubRetriever{candidates: candidates}
	reranker := &stubReranker{results: rerankResults}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, _ := domain.NewSearchRequest("query", domain.ModeHighFidelity, 5, 20)

	resp, err := p.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Code != "X" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.LLMModel != "llm-v1" {
		t.Errorf("expected llm_model provenance set, got %q", resp.LLMModel)
	}
	if reranker.calls != 1 {
		t.Errorf("expected exactly 1 llm call, got %d", reranker.calls)
	}
}

func TestClassify_ResultsNeverExceedTopK(t *testing.T) {
	candidates := []domain.Candidate{
		mkCandidate("A", 0.9), mkCandidate("B", 0.5), mkCandidate("C", 0.1),
	}
	retriever := &stubRetriever{candidates: candidates}
	reranker := &stubReranker{}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, _ := domain.NewSearchRequest("query", domain.ModeFast, 2, 20)

	resp, err := p.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) > req.TopK {
		t.Fatalf("len(results)=%d exceeds top_k=%d", len(resp.Results), req.TopK)
	}
}

func TestClassify_ResultRanksContiguous(t *testing.T) {
	candidates := []domain.Candidate{
		mkCandidate("A", 0.9), mkCandidate("B", 0.5), mkCandidate("C", 0.1),
	}
	retriever := &stubRetriever{candidates: candidates}
	reranker := &stubReranker{}
	p := New(retriever, reranker, "embed-v1", "llm-v1")

	req, _ := domain.NewSearchRequest("query", domain.ModeFast, 3, 20)

	resp, err := p.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range resp.Results {
		if r.Rank != i+1 {
			t.Errorf("expected rank %d at index %d, got %d", i+1, i, r.Rank)
		}
	}
}

func TestNewSearchRequest_TopKGreaterThanPoolSizeRejected(t *testing.T) {
	_, err := domain.NewSearchRequest("query", domain.ModeFast, 10, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %T: %v", err, err)
	}
}
