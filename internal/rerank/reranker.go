// Package rerank implements Stage 2 of the classification pipeline: an
// LLM call that re-ranks Stage 1 candidates into natural-language-justified
// results, with a wide-context fallback when the first attempt is empty.
package rerank

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/port"
)

// rawEntry mirrors one element of the LLM's JSON array response. Rank and
// Reason are pointers so a missing field is distinguishable from a
// present-but-zero/empty one.
type rawEntry struct {
	Rank   *int    `json:"rank"`
	Code   string  `json:"code"`
	Reason *string `json:"reason"`
}

// Reranker drives the LLMPort call, parses its response, and enriches
// surviving entries from the Stage 1 candidate list or the catalogue CSV.
type Reranker struct {
	llm       port.LLMPort
	csvByCode map[string]domain.CatalogueRecord
	csvRecs   []domain.CatalogueRecord
	logger    *zap.Logger
}

// New builds a Reranker. csvPath is the optional MASTER_CSV_PATH catalogue
// reference; if empty or unreadable, no reference is loaded (not a
// construction error — matches the reference adapter's tolerance for a
// missing reference file). The fallback attempt still runs in that case,
// but its prompt carries no catalogue listing and only Stage 1 candidate
// codes are accepted from it.
func New(llm port.LLMPort, csvPath string, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reranker{llm: llm, logger: logger, csvByCode: map[string]domain.CatalogueRecord{}}
	if csvPath != "" {
		r.loadCSV(csvPath)
	}
	return r
}

func (r *Reranker) loadCSV(path string) {
	f, err := os.Open(path)
	if err != nil {
		r.logger.Warn("catalogue CSV reference unavailable, fallback lookup disabled", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.IndexAny(line, ":,")
		if idx < 0 {
			continue
		}
		code := strings.TrimSpace(line[:idx])
		desc := strings.TrimSpace(line[idx+1:])
		if code == "" {
			continue
		}
		rec := domain.CatalogueRecord{Code: code, Description: desc}
		r.csvByCode[code] = rec
		r.csvRecs = append(r.csvRecs, rec)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("error reading catalogue CSV reference", zap.Error(err))
	}
}

// Rerank implements the call policy in full: a compact first attempt, a
// CSV-widened fallback on syntactically-valid-but-empty, and strict
// propagation of any transport/auth failure as LLMError.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.ClassifyResult, error) {
	candidateByCode := make(map[string]domain.Candidate, len(candidates))
	for _, c := range candidates {
		candidateByCode[c.Code] = c
	}

	userMsg := BuildUserMessage(query, candidates, topK)

	raw, err := r.llm.GenerateJSON(ctx, BuildSystemPrompt(false, ""), userMsg)
	if err != nil {
		return nil, domain.NewLLMError("first rerank attempt", err)
	}
	entries, err := parseLLMResponse(raw)
	if err != nil {
		return nil, domain.NewLLMError("parse first rerank response", err)
	}
	results := r.buildResults(entries, candidateByCode, false, topK)
	if len(results) > 0 {
		return results, nil
	}

	r.logger.Info("first rerank attempt returned empty result, falling back to CSV-widened attempt")

	csvRef := BuildCSVReference(r.csvRecs)
	raw2, err := r.llm.GenerateJSON(ctx, BuildSystemPrompt(true, csvRef), userMsg)
	if err != nil {
		return nil, domain.NewLLMError("fallback rerank attempt", err)
	}
	entries2, err := parseLLMResponse(raw2)
	if err != nil {
		return nil, domain.NewLLMError("parse fallback rerank response", err)
	}
	results = r.buildResults(entries2, candidateByCode, true, topK)
	if len(results) == 0 {
		r.logger.Error("rerank returned empty result after fallback", zap.Error(domain.NewRerankError("both attempts yielded no usable ranked codes")))
		return nil, nil
	}
	r.logger.Info("fallback rerank attempt succeeded", zap.Int("results", len(results)))
	return results, nil
}

// parseLLMResponse accepts either a bare JSON array or an object wrapping
// a top-level array field. Object fields are tried in Go map iteration
// order, so when an object holds more than one array field, which of them
// is returned is not defined.
func parseLLMResponse(raw string) ([]rawEntry, error) {
	raw = strings.TrimSpace(raw)

	var arr []rawEntry
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	for _, v := range obj {
		var candidate []rawEntry
		if err := json.Unmarshal(v, &candidate); err == nil {
			return candidate, nil
		}
	}
	return nil, errors.New("no array field found in JSON object")
}

func (r *Reranker) buildResults(entries []rawEntry, candidateByCode map[string]domain.Candidate, allowCSV bool, topK int) []domain.ClassifyResult {
	seen := make(map[string]bool, len(entries))
	out := make([]domain.ClassifyResult, 0, len(entries))

	for i, e := range entries {
		code := strings.TrimSpace(e.Code)
		if code == "" || seen[code] {
			continue
		}

		cand, inCandidates := candidateByCode[code]
		var csvRec domain.CatalogueRecord
		inCSV := false
		if allowCSV {
			csvRec, inCSV = r.csvByCode[code]
		}
		if !inCandidates && !inCSV {
			r.logger.Warn("dropping rerank entry for unknown code", zap.String("code", code))
			continue
		}
		seen[code] = true

		rank := i + 1
		if e.Rank != nil {
			rank = *e.Rank
		}
		reason := ""
		if e.Reason != nil {
			reason = *e.Reason
		}

		var desc, classDesc, divisionDesc string
		var rrfScore float64
		if inCandidates {
			desc, classDesc, divisionDesc, rrfScore = cand.Description, cand.ClassDesc, cand.DivisionDesc, cand.RRFScore
		} else {
			desc, classDesc, divisionDesc, rrfScore = csvRec.Description, csvRec.ClassDesc, csvRec.DivisionDesc, 0
		}

		out = append(out, domain.ClassifyResult{
			Rank:         rank,
			Code:         code,
			Description:  desc,
			ClassDesc:    classDesc,
			DivisionDesc: divisionDesc,
			Reason:       reason,
			RRFScore:     rrfScore,
		})
		if len(out) >= topK {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
