package redisdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/metrics"
	"github.com/anzsic/classify/internal/port"
)

// vectorField is the catalogue index's dense vector field name.
// contentField is the combined lexical field (description + enriched_text).
const (
	vectorField  = "vector"
	contentField = "content"
	codeField    = "code"
)

// VectorSearch runs a KNN cosine-distance search via FT.SEARCH and returns
// results ranked ascending by distance (rank 1 = closest).
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, n int) ([]port.RankedCode, error) {
	if len(embedding) == 0 {
		return nil, domain.NewDatabaseError("vector search requires a non-empty embedding", nil)
	}
	if n <= 0 {
		return nil, domain.NewDatabaseError("vector search n must be positive", nil)
	}

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB]", n, vectorField)
	queryStr := fmt.Sprintf("*=>%s", knnPart)

	args := []string{
		s.indexName, queryStr,
		"RETURN", "1", codeField,
		"PARAMS", "2", "BLOB", vectorToBytes(embedding),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()

	var raw []rueidis.RedisMessage
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.do(ctx, cmd).ToArray()
		return err
	})
	if err != nil {
		metrics.DatabaseRequestsTotal.WithLabelValues("vector_search", "error").Inc()
		return nil, domain.NewDatabaseError("FT.SEARCH vector query", err)
	}
	metrics.DatabaseRequestsTotal.WithLabelValues("vector_search", "success").Inc()

	return parseRankedResult(raw, 2)
}

// FTSSearch runs a BM25 lexical search over the content field and returns
// results ranked descending by the datastore's native relevance.
func (s *Store) FTSSearch(ctx context.Context, queryText string, n int) ([]port.RankedCode, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.NewDatabaseError("fts search requires non-empty query text", nil)
	}
	if n <= 0 {
		return nil, domain.NewDatabaseError("fts search n must be positive", nil)
	}

	queryStr := fmt.Sprintf("@%s:(%s)", contentField, escapeQuery(queryText))

	args := []string{
		s.indexName, queryStr,
		"RETURN", "1", codeField,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(n),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()

	var raw []rueidis.RedisMessage
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.do(ctx, cmd).ToArray()
		return err
	})
	if err != nil {
		metrics.DatabaseRequestsTotal.WithLabelValues("fts_search", "error").Inc()
		return nil, domain.NewDatabaseError("FT.SEARCH fts query", err)
	}
	metrics.DatabaseRequestsTotal.WithLabelValues("fts_search", "success").Inc()

	return parseRankedResult(raw, 3)
}

// FetchByCodes hydrates codes into catalogue records via a single
// pipelined HGETALL round trip (HGetAllMulti-style batching).
func (s *Store) FetchByCodes(ctx context.Context, codes []string) (map[string]domain.CatalogueRecord, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(codes))
	for i, code := range codes {
		cmds[i] = s.b().Hgetall().Key(s.keyFor(code)).Build()
	}

	var results []rueidis.RedisResult
	err := s.withRetry(ctx, func(ctx context.Context) error {
		results = s.client.DoMulti(ctx, cmds...)
		for _, res := range results {
			if err := res.Error(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.DatabaseRequestsTotal.WithLabelValues("fetch_by_codes", "error").Inc()
		return nil, domain.NewDatabaseError("HGETALL batch fetch", err)
	}

	out := make(map[string]domain.CatalogueRecord, len(codes))
	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			metrics.DatabaseRequestsTotal.WithLabelValues("fetch_by_codes", "error").Inc()
			return nil, domain.NewDatabaseError(fmt.Sprintf("HGETALL for code %s", codes[i]), err)
		}
		if len(m) == 0 {
			continue
		}
		out[codes[i]] = recordFromHash(m)
	}

	metrics.DatabaseRequestsTotal.WithLabelValues("fetch_by_codes", "success").Inc()
	return out, nil
}

// Healthcheck reports whether the store answers PING.
func (s *Store) Healthcheck(ctx context.Context) (bool, error) {
	if err := s.Ping(ctx); err != nil {
		metrics.DatabaseRequestsTotal.WithLabelValues("healthcheck", "error").Inc()
		return false, nil
	}
	metrics.DatabaseRequestsTotal.WithLabelValues("healthcheck", "success").Inc()
	return true, nil
}

func recordFromHash(m map[string]string) domain.CatalogueRecord {
	return domain.CatalogueRecord{
		Code:            m["code"],
		Description:     m["description"],
		ClassDesc:       m["class_desc"],
		GroupDesc:       m["group_desc"],
		SubdivisionDesc: m["subdivision_desc"],
		DivisionDesc:    m["division_desc"],
		ClassExclusions: m["class_exclusions"],
		EnrichedText:    m["enriched_text"],
	}
}

// --- RESP2 result parsing ---

// parseRankedResult parses an FT.SEARCH reply shaped [total, key1, ...,
// key2, ...] with the given field-group stride (2 for KNN/RETURN-only
// results, 3 when WITHSCORES inserts a score entry between key and
// fields), assigning ranks 1..N in reply order.
func parseRankedResult(raw []rueidis.RedisMessage, stride int) ([]port.RankedCode, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	out := make([]port.RankedCode, 0, total)
	rank := 1
	for i := 1; i+stride-1 < len(raw); i += stride {
		fieldsIdx := i + stride - 1
		fields, err := raw[fieldsIdx].ToArray()
		if err != nil {
			continue
		}
		code := codeFromFieldPairs(fields)
		if code == "" {
			continue
		}
		out = append(out, port.RankedCode{Code: code, Rank: rank})
		rank++
	}

	return out, nil
}

func codeFromFieldPairs(fields []rueidis.RedisMessage) string {
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		if name != codeField {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		return value
	}
	return ""
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
