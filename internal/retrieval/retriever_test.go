package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/anzsic/classify/internal/domain"
	"github.com/anzsic/classify/internal/port"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) ModelName() string   { return "fake-embed" }
func (f *fakeEmbedder) Dimensions() int     { return len(f.vec) }
func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text, title string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedDocumentsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

type fakeDB struct {
	vecResults  []port.RankedCode
	vecErr      error
	ftsResults  []port.RankedCode
	ftsErr      error
	records     map[string]domain.CatalogueRecord
	fetchErr    error
}

func (f *fakeDB) VectorSearch(ctx context.Context, embedding []float32, n int) ([]port.RankedCode, error) {
	return f.vecResults, f.vecErr
}
func (f *fakeDB) FTSSearch(ctx context.Context, queryText string, n int) ([]port.RankedCode, error) {
	return f.ftsResults, f.ftsErr
}
func (f *fakeDB) FetchByCodes(ctx context.Context, codes []string) (map[string]domain.CatalogueRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[string]domain.CatalogueRecord)
	for _, c := range codes {
		if rec, ok := f.records[c]; ok {
			out[c] = rec
		}
	}
	return out, nil
}
func (f *fakeDB) Healthcheck(ctx context.Context) (bool, error) { return true, nil }

func mkRecord(code string) domain.CatalogueRecord {
	return domain.CatalogueRecord{Code: code, Description: "desc-" + code}
}

func TestRetrieve_HappyPath(t *testing.T) {
	db := &fakeDB{
		vecResults: []port.RankedCode{{Code: "A", Rank: 1}, {Code: "B", Rank: 2}},
		ftsResults: []port.RankedCode{{Code: "A", Rank: 1}},
		records:    map[string]domain.CatalogueRecord{"A": mkRecord("A"), "B": mkRecord("B")},
	}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	cands, err := r.Retrieve(context.Background(), "mobile mechanic", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].Code != "A" {
		t.Errorf("expected A first, got %s", cands[0].Code)
	}
	if cands[0].SourceLabel() != "both" {
		t.Errorf("expected both, got %s", cands[0].SourceLabel())
	}
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	db := &fakeDB{}
	r := New(&fakeEmbedder{err: errors.New("boom")}, db, DefaultRRFK, nil)

	_, err := r.Retrieve(context.Background(), "q", 20)
	if err == nil {
		t.Fatal("expected error")
	}
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("expected EmbeddingError, got %T: %v", err, err)
	}
}

func TestRetrieve_PartialSearchFailureIsStrict(t *testing.T) {
	db := &fakeDB{
		vecErr:     errors.New("vector down"),
		ftsResults: []port.RankedCode{{Code: "A", Rank: 1}},
	}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	_, err := r.Retrieve(context.Background(), "q", 20)
	if err == nil {
		t.Fatal("expected error")
	}
	var retErr *domain.RetrievalError
	if !errors.As(err, &retErr) {
		t.Errorf("expected RetrievalError, got %T: %v", err, err)
	}
}

func TestRetrieve_BothSearchesFail(t *testing.T) {
	db := &fakeDB{vecErr: errors.New("v down"), ftsErr: errors.New("f down")}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	_, err := r.Retrieve(context.Background(), "q", 20)
	if err == nil {
		t.Fatal("expected error")
	}
	var dbErr *domain.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Errorf("expected DatabaseError, got %T: %v", err, err)
	}
}

func TestRetrieve_BothSearchesEmpty(t *testing.T) {
	db := &fakeDB{}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	cands, err := r.Retrieve(context.Background(), "q", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected 0 candidates, got %d", len(cands))
	}
}

func TestRetrieve_HydrateEmptyForAllCodes(t *testing.T) {
	db := &fakeDB{
		vecResults: []port.RankedCode{{Code: "A", Rank: 1}},
		records:    map[string]domain.CatalogueRecord{},
	}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	_, err := r.Retrieve(context.Background(), "q", 20)
	if err == nil {
		t.Fatal("expected error")
	}
	var retErr *domain.RetrievalError
	if !errors.As(err, &retErr) {
		t.Errorf("expected RetrievalError, got %T: %v", err, err)
	}
}

func TestRetrieve_HydrateSubsetReturnsSubset(t *testing.T) {
	db := &fakeDB{
		vecResults: []port.RankedCode{{Code: "A", Rank: 1}, {Code: "B", Rank: 2}},
		records:    map[string]domain.CatalogueRecord{"A": mkRecord("A")},
	}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	cands, err := r.Retrieve(context.Background(), "q", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Code != "A" {
		t.Fatalf("expected only A hydrated, got %+v", cands)
	}
}

func TestRetrieve_CancelledContextDuringEmbedIsCancelledError(t *testing.T) {
	db := &fakeDB{}
	r := New(&fakeEmbedder{err: context.Canceled}, db, DefaultRRFK, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Retrieve(ctx, "q", 20)
	if err == nil {
		t.Fatal("expected error")
	}
	var cancelErr *domain.CancelledError
	if !errors.As(err, &cancelErr) {
		t.Errorf("expected CancelledError, got %T: %v", err, err)
	}
}

func TestRetrieve_TruncatesToPoolSize(t *testing.T) {
	db := &fakeDB{
		vecResults: []port.RankedCode{{Code: "A", Rank: 1}, {Code: "B", Rank: 2}, {Code: "C", Rank: 3}},
		records: map[string]domain.CatalogueRecord{
			"A": mkRecord("A"), "B": mkRecord("B"), "C": mkRecord("C"),
		},
	}
	r := New(&fakeEmbedder{vec: []float32{0.1}}, db, DefaultRRFK, nil)

	cands, err := r.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
}
