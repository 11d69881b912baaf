package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/metrics"
	"github.com/anzsic/classify/internal/port"
)

// Retriever implements Stage 1 of the pipeline: embed the query, run
// vector and lexical search concurrently, fuse by RRF, then hydrate the
// fused codes into full candidates.
type Retriever struct {
	embed  port.EmbeddingPort
	db     port.DatabasePort
	rrfK   int
	logger *zap.Logger
}

// New builds a Retriever. logger may be nil, in which case a no-op
// logger is used.
func New(embed port.EmbeddingPort, db port.DatabasePort, rrfK int, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	return &Retriever{embed: embed, db: db, rrfK: rrfK, logger: logger}
}

type searchOutcome struct {
	results []port.RankedCode
	err     error
}

// Retrieve runs the full Stage 1 algorithm and returns an ordered
// candidate list of length at most poolSize.
func (r *Retriever) Retrieve(ctx context.Context, query string, poolSize int) ([]domain.Candidate, error) {
	totalStart := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues("total").Observe(time.Since(totalStart).Seconds())
	}()

	embedding, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, domain.NewCancelledError("context cancelled during embed query")
		}
		return nil, domain.NewEmbeddingError("embed query", err)
	}

	vecCh := make(chan searchOutcome, 1)
	ftsCh := make(chan searchOutcome, 1)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		res, err := r.db.VectorSearch(ctx, embedding, poolSize)
		metrics.RetrievalDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
		vecCh <- searchOutcome{results: res, err: err}
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		res, err := r.db.FTSSearch(ctx, query, poolSize)
		metrics.RetrievalDuration.WithLabelValues("fts").Observe(time.Since(start).Seconds())
		ftsCh <- searchOutcome{results: res, err: err}
	}()

	wg.Wait()
	vecOut, ftsOut := <-vecCh, <-ftsCh

	if ctx.Err() == context.Canceled {
		return nil, domain.NewCancelledError("context cancelled during hybrid search")
	}

	switch {
	case vecOut.err != nil && ftsOut.err != nil:
		return nil, domain.NewDatabaseError("vector and fts search both failed", vecOut.err)
	case vecOut.err != nil:
		return nil, domain.NewRetrievalError(fmt.Sprintf("vector search failed while fts search succeeded: %v", vecOut.err))
	case ftsOut.err != nil:
		return nil, domain.NewRetrievalError(fmt.Sprintf("fts search failed while vector search succeeded: %v", ftsOut.err))
	}

	fused, err := FuseRRF(vecOut.results, ftsOut.results, r.rrfK)
	if err != nil {
		return nil, err
	}

	if len(fused) > poolSize {
		fused = fused[:poolSize]
	}
	if len(fused) == 0 {
		return nil, nil
	}

	codes := make([]string, len(fused))
	for i, e := range fused {
		codes[i] = e.Code
	}

	hydrateStart := time.Now()
	records, err := r.db.FetchByCodes(ctx, codes)
	metrics.RetrievalDuration.WithLabelValues("hydrate").Observe(time.Since(hydrateStart).Seconds())
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, domain.NewCancelledError("context cancelled during hydrate")
		}
		return nil, domain.NewDatabaseError("fetch by codes", err)
	}
	if len(records) == 0 {
		return nil, domain.NewRetrievalError("hydrate returned no records for any fused code")
	}

	candidates := make([]domain.Candidate, 0, len(fused))
	missing := 0
	for _, e := range fused {
		rec, ok := records[e.Code]
		if !ok {
			missing++
			continue
		}
		candidates = append(candidates, domain.CandidateFromRecord(rec, e.RRFScore, e.InVector, e.InFTS, e.VectorRank, e.FTSRank))
	}
	if missing > 0 {
		r.logger.Warn("hydrate returned a subset of fused codes",
			zap.Int("missing", missing), zap.Int("fused", len(fused)), zap.Int("hydrated", len(candidates)))
	}

	return candidates, nil
}
