package domain

import (
	"fmt"
	"strings"
	"time"
)

// SearchMode controls which pipeline stages classify() executes.
type SearchMode string

const (
	// ModeFast runs Stage 1 (hybrid retrieval) only.
	ModeFast SearchMode = "fast"
	// ModeHighFidelity runs Stage 1 followed by Stage 2 (LLM re-rank).
	ModeHighFidelity SearchMode = "high_fidelity"
)

const (
	minQueryLen    = 1
	maxQueryLen    = 2000
	minTopK        = 1
	maxTopK        = 20
	minPoolSize    = 5
	maxPoolSize    = 100
	defaultTopK    = 5
	defaultPool    = 20
)

// SearchRequest is the validated input to ClassifierPipeline.Classify.
// Construct via NewSearchRequest — the zero value is not a valid request.
type SearchRequest struct {
	Query    string
	Mode     SearchMode
	TopK     int
	PoolSize int
}

// NewSearchRequest builds and validates a SearchRequest, applying defaults
// for zero-valued fields (Mode defaults to HighFidelity, TopK to 5,
// PoolSize to 20, matching spec defaults).
func NewSearchRequest(query string, mode SearchMode, topK, poolSize int) (SearchRequest, error) {
	query = strings.TrimSpace(query)
	if mode == "" {
		mode = ModeHighFidelity
	}
	if topK == 0 {
		topK = defaultTopK
	}
	if poolSize == 0 {
		poolSize = defaultPool
	}

	req := SearchRequest{Query: query, Mode: mode, TopK: topK, PoolSize: poolSize}
	if err := req.validate(); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}

func (r SearchRequest) validate() error {
	if l := len(r.Query); l < minQueryLen || l > maxQueryLen {
		return NewConfigurationError(fmt.Sprintf("query length must be %d-%d after trim, got %d", minQueryLen, maxQueryLen, l))
	}
	if r.Mode != ModeFast && r.Mode != ModeHighFidelity {
		return NewConfigurationError(fmt.Sprintf("unknown mode %q", r.Mode))
	}
	if r.TopK < minTopK || r.TopK > maxTopK {
		return NewConfigurationError(fmt.Sprintf("top_k must be %d-%d, got %d", minTopK, maxTopK, r.TopK))
	}
	if r.PoolSize < minPoolSize || r.PoolSize > maxPoolSize {
		return NewConfigurationError(fmt.Sprintf("pool_size must be %d-%d, got %d", minPoolSize, maxPoolSize, r.PoolSize))
	}
	if r.PoolSize < r.TopK {
		return NewConfigurationError(fmt.Sprintf("pool_size (%d) must be >= top_k (%d)", r.PoolSize, r.TopK))
	}
	return nil
}

// CatalogueRecord is the opaque catalogue record consumed via DatabasePort,
// keyed by Code. All string fields may be empty but are never absent.
type CatalogueRecord struct {
	Code             string
	Description      string
	ClassDesc        string
	GroupDesc        string
	SubdivisionDesc  string
	DivisionDesc     string
	ClassExclusions  string
	EnrichedText     string
}

// Candidate is a single catalogue entry surfaced by Stage 1 (hybrid
// retrieval), carrying RRF fusion provenance.
type Candidate struct {
	Code            string
	Description     string
	ClassDesc       string
	GroupDesc       string
	SubdivisionDesc string
	DivisionDesc    string
	ClassExclusions string
	EnrichedText    string

	RRFScore float64
	InVector bool
	InFTS    bool

	// VectorRank and FTSRank are positive (1-based) when the corresponding
	// In* flag is true, and zero (absent) otherwise.
	VectorRank int
	FTSRank    int
}

// SourceLabel reports which search system(s) surfaced this candidate.
func (c Candidate) SourceLabel() string {
	switch {
	case c.InVector && c.InFTS:
		return "both"
	case c.InVector:
		return "vector"
	case c.InFTS:
		return "fts"
	default:
		return ""
	}
}

// CandidateFromRecord builds a Candidate from a hydrated catalogue record
// plus its RRF fusion provenance.
func CandidateFromRecord(rec CatalogueRecord, rrfScore float64, inVector, inFTS bool, vectorRank, ftsRank int) Candidate {
	return Candidate{
		Code:            rec.Code,
		Description:     rec.Description,
		ClassDesc:       rec.ClassDesc,
		GroupDesc:       rec.GroupDesc,
		SubdivisionDesc: rec.SubdivisionDesc,
		DivisionDesc:    rec.DivisionDesc,
		ClassExclusions: rec.ClassExclusions,
		EnrichedText:    rec.EnrichedText,
		RRFScore:        rrfScore,
		InVector:        inVector,
		InFTS:           inFTS,
		VectorRank:      vectorRank,
		FTSRank:         ftsRank,
	}
}

// ClassifyResult is a single ranked ANZSIC code after Stage 2 (or, in FAST
// mode, a direct adaptation of a Stage 1 Candidate).
type ClassifyResult struct {
	Rank         int     `json:"rank"`
	Code         string  `json:"code"`
	Description  string  `json:"description"`
	ClassDesc    string  `json:"class_desc"`
	DivisionDesc string  `json:"division_desc"`
	Reason       string  `json:"reason"`
	RRFScore     float64 `json:"rrf_score"`
}

// ClassifyResponse is the complete output of ClassifierPipeline.Classify.
type ClassifyResponse struct {
	Query               string           `json:"query"`
	Mode                SearchMode       `json:"mode"`
	TopKRequested       int              `json:"top_k_requested"`
	CandidatesRetrieved int              `json:"candidates_retrieved"`
	Results             []ClassifyResult `json:"results"`
	GeneratedAt         time.Time        `json:"generated_at"`
	EmbedModel          string           `json:"embed_model"`
	LLMModel            string           `json:"llm_model"`
}
