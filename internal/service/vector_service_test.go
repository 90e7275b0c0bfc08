package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devine/vecgate/internal/models"
	"github.com/devine/vecgate/internal/storage"
)

func newTestService(t *testing.T, dims int) *VectorService {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "svc.db"), storage.SQLiteOptions{Dimensions: dims})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewVectorService(store, 0, zap.NewNop())
}

func save(t *testing.T, s *VectorService, id int64, title string, v []float64) {
	t.Helper()
	if err := s.SaveEmbedding(context.Background(), &models.EmbeddingRequest{ReportID: &id, ReportTitle: &title, Vector: v}); err != nil {
		t.Fatalf("save %d: %v", id, err)
	}
}

func TestVectorService_roundTrip(t *testing.T) {
	s := newTestService(t, 4)
	v := []float64{0.1, 0.7, -0.2, 0.4}
	save(t, s, 10, "target", v)
	save(t, s, 11, "other", []float64{-0.5, 0.1, 0.9, 0})

	one := 1
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: v, Limit: &one})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.ReportID != 10 || r.Similarity == nil || math.Abs(*r.Similarity-1) > 1e-9 {
		t.Errorf("result = %+v", r)
	}
	if r.Distance != nil {
		t.Error("cosine results should not carry a distance")
	}
}

func TestVectorService_defaultLimitAndOrdering(t *testing.T) {
	s := newTestService(t, 2)
	for i := 0; i < 8; i++ {
		angle := float64(i) * math.Pi / 16
		save(t, s, int64(i), "r", []float64{math.Cos(angle), math.Sin(angle)})
	}
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != models.DefaultSearchLimit {
		t.Fatalf("got %d results, want default %d", len(results), models.DefaultSearchLimit)
	}
	for i := 1; i < len(results); i++ {
		if *results[i-1].Similarity < *results[i].Similarity {
			t.Errorf("results not in descending similarity at %d: %v < %v", i, *results[i-1].Similarity, *results[i].Similarity)
		}
		if results[i].SearchTimeMs != results[0].SearchTimeMs {
			t.Error("every result should carry the batch search time")
		}
	}
	if results[0].ReportID != 0 {
		t.Errorf("nearest = %d, want 0", results[0].ReportID)
	}
}

func TestVectorService_limitAboveRowCount(t *testing.T) {
	s := newTestService(t, 2)
	save(t, s, 1, "a", []float64{1, 0})
	save(t, s, 2, "b", []float64{0, 1})
	ten := 10
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1, 1}, Limit: &ten})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestVectorService_emptyStore(t *testing.T) {
	s := newTestService(t, 2)
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("want empty non-nil results, got %#v", results)
	}
}

func TestVectorService_l2(t *testing.T) {
	s := newTestService(t, 2)
	save(t, s, 1, "origin", []float64{0, 0})
	save(t, s, 2, "far", []float64{6, 8})
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{0, 0}, Metric: models.MetricL2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ReportID != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[1].Distance == nil || *results[1].Distance != 10 {
		t.Errorf("distance = %v, want 10", results[1].Distance)
	}
	if results[0].Similarity != nil {
		t.Error("l2 results should not carry a similarity")
	}
}

func TestVectorService_unknownMetric(t *testing.T) {
	s := newTestService(t, 2)
	_, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1, 0}, Metric: "dot"})
	if storage.KindOf(err) != storage.KindUnsupportedOperation {
		t.Errorf("kind = %s, err = %v", storage.KindOf(err), err)
	}
}

func TestVectorService_countAndNoUpsert(t *testing.T) {
	s := newTestService(t, 2)
	ctx := context.Background()
	save(t, s, 5, "dup", []float64{1, 2})
	save(t, s, 5, "dup", []float64{1, 2})
	save(t, s, 6, "other", []float64{2, 1})
	n, err := s.EmbeddingCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestVectorService_wrongDimension(t *testing.T) {
	s := newTestService(t, 3)
	id := int64(1)
	err := s.SaveEmbedding(context.Background(), &models.EmbeddingRequest{ReportID: &id, Vector: []float64{1, 2}})
	if err == nil {
		t.Fatal("expected store to reject wrong dimension")
	}
	if err.Error() == "" {
		t.Error("error message should not be empty")
	}
}

// stubStore returns fixed matches and records the arguments it was called with.
type stubStore struct {
	storage.Store
	matches  []storage.Match
	err      error
	gotQuery string
	gotLimit int
	saved    []storage.Embedding
	sleepFor time.Duration
}

func (s *stubStore) SaveEmbedding(_ context.Context, e storage.Embedding) error {
	s.saved = append(s.saved, e)
	return s.err
}

func (s *stubStore) SearchCosine(_ context.Context, q string, limit int) ([]storage.Match, error) {
	s.gotQuery, s.gotLimit = q, limit
	time.Sleep(s.sleepFor)
	return s.matches, s.err
}

func TestVectorService_passesLiteralAndLimit(t *testing.T) {
	stub := &stubStore{}
	s := NewVectorService(stub, 7, nil)
	if _, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{0.5, -1}}); err != nil {
		t.Fatal(err)
	}
	if stub.gotQuery != "[0.5,-1]" {
		t.Errorf("query literal = %q", stub.gotQuery)
	}
	if stub.gotLimit != 7 {
		t.Errorf("limit = %d, want configured default 7", stub.gotLimit)
	}

	id := int64(3)
	if err := s.SaveEmbedding(context.Background(), &models.EmbeddingRequest{ReportID: &id, Vector: nil}); err != nil {
		t.Fatal(err)
	}
	if stub.saved[0].Vector != "[]" {
		t.Errorf("nil vector literal = %q, want []", stub.saved[0].Vector)
	}
}

func TestVectorService_nanScoreIsEncodable(t *testing.T) {
	stub := &stubStore{matches: []storage.Match{{ReportID: 1, Score: math.NaN()}}}
	s := NewVectorService(stub, 0, nil)
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if *results[0].Similarity != 0 {
		t.Errorf("similarity = %v, want 0", *results[0].Similarity)
	}
}

func TestVectorService_batchTiming(t *testing.T) {
	stub := &stubStore{
		matches:  []storage.Match{{ReportID: 1, Score: 0.9}, {ReportID: 2, Score: 0.8}},
		sleepFor: 15 * time.Millisecond,
	}
	s := NewVectorService(stub, 0, nil)
	results, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1}})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].SearchTimeMs < 15 {
		t.Errorf("search time = %d, want >= 15", results[0].SearchTimeMs)
	}
	if results[0].SearchTimeMs != results[1].SearchTimeMs {
		t.Error("search time should be identical across the batch")
	}
}

func TestVectorService_storeErrorPropagates(t *testing.T) {
	want := &storage.Error{Op: "search cosine", Kind: storage.KindConnectionFailure, Err: errors.New("connection refused")}
	s := NewVectorService(&stubStore{err: want}, 0, nil)
	_, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: []float64{1}})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestVectorService_logsQueryPrefix(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewVectorService(&stubStore{}, 0, zap.New(core))
	v := make([]float64, 40)
	for i := range v {
		v[i] = 0.125
	}
	if _, err := s.SearchSimilar(context.Background(), &models.SearchRequest{Vector: v}); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("query vector").All()
	if len(entries) != 1 {
		t.Fatalf("got %d query log entries, want 1", len(entries))
	}
	preview := entries[0].ContextMap()["preview"]
	want := "[0.125,0.125,0.125,0.125,0.125,0.125,0.125,0.125,0"
	if preview != want {
		t.Errorf("preview = %q, want %q", preview, want)
	}
}
