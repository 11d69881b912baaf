// Package retrieval implements Stage 1 of the classification pipeline:
// hybrid vector + lexical search fused by Reciprocal Rank Fusion, followed
// by hydration into full catalogue candidates.
package retrieval

import (
	"math"
	"sort"

	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/port"
)

// DefaultRRFK is the standard Reciprocal Rank Fusion constant (Cormack
// et al. 2009), used when configuration does not override it.
const DefaultRRFK = 60

// FusedEntry is one code's outcome after RRF fusion, carrying enough
// provenance to build a domain.Candidate once hydrated.
type FusedEntry struct {
	Code       string
	RRFScore   float64
	InVector   bool
	InFTS      bool
	VectorRank int
	FTSRank    int
}

// FuseRRF merges vector and FTS ranked-code lists by Reciprocal Rank
// Fusion. It is a pure function: no I/O, no global state, and identical
// inputs always produce an identical ordering and identical scores.
//
// score(code) = sum over lists containing code of 1/(k + rank). A code
// present in both lists sums both contributions. Duplicate codes within
// a single list keep the best (smallest) rank rather than summing.
func FuseRRF(vectorList, ftsList []port.RankedCode, k int) ([]FusedEntry, error) {
	if k <= 0 {
		return nil, domain.NewConfigurationError("rrf k must be positive")
	}

	entries := make(map[string]*FusedEntry)

	bestRank := func(list []port.RankedCode) map[string]int {
		best := make(map[string]int, len(list))
		for _, rc := range list {
			if cur, ok := best[rc.Code]; !ok || rc.Rank < cur {
				best[rc.Code] = rc.Rank
			}
		}
		return best
	}

	for code, rank := range bestRank(vectorList) {
		entries[code] = &FusedEntry{
			Code:       code,
			RRFScore:   1.0 / float64(k+rank),
			InVector:   true,
			VectorRank: rank,
		}
	}

	for code, rank := range bestRank(ftsList) {
		if e, ok := entries[code]; ok {
			e.RRFScore += 1.0 / float64(k+rank)
			e.InFTS = true
			e.FTSRank = rank
		} else {
			entries[code] = &FusedEntry{
				Code:     code,
				RRFScore: 1.0 / float64(k+rank),
				InFTS:    true,
				FTSRank:  rank,
			}
		}
	}

	out := make([]FusedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		negA, negB := -minRank(a), -minRank(b)
		if negA != negB {
			return negA > negB
		}
		return a.Code > b.Code
	})

	return out, nil
}

func minRank(e FusedEntry) float64 {
	v := math.Inf(1)
	if e.InVector {
		v = float64(e.VectorRank)
	}
	f := math.Inf(1)
	if e.InFTS {
		f = float64(e.FTSRank)
	}
	return math.Min(v, f)
}
