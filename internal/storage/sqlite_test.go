package storage

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSQLite(t *testing.T, dims int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vec.db"), SQLiteOptions{Dimensions: dims})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func int64Ptr(v int64) *int64    { return &v }
func stringPtr(v string) *string { return &v }

func TestSQLiteStore_SaveSearchCount(t *testing.T) {
	store := newTestSQLite(t, 3)
	ctx := context.Background()

	rows := []Embedding{
		{ReportID: int64Ptr(1), ReportTitle: stringPtr("x axis"), Vector: "[1,0,0]"},
		{ReportID: int64Ptr(2), ReportTitle: stringPtr("y axis"), Vector: "[0,1,0]"},
		{ReportID: int64Ptr(3), ReportTitle: stringPtr("diagonal"), Vector: "[1,1,0]"},
	}
	for _, r := range rows {
		if err := store.SaveEmbedding(ctx, r); err != nil {
			t.Fatalf("save %d: %v", *r.ReportID, err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	matches, err := store.SearchCosine(ctx, "[1,0,0]", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ReportID != 1 || math.Abs(matches[0].Score-1) > 1e-9 {
		t.Errorf("first match = %+v, want report 1 with similarity 1", matches[0])
	}
	if matches[1].ReportID != 3 {
		t.Errorf("second match = %+v, want report 3", matches[1])
	}
	if matches[0].ReportTitle == nil || *matches[0].ReportTitle != "x axis" {
		t.Errorf("title = %v", matches[0].ReportTitle)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches should be ordered by descending similarity")
	}
}

func TestSQLiteStore_SearchL2(t *testing.T) {
	store := newTestSQLite(t, 2)
	ctx := context.Background()
	_ = store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(1), Vector: "[0,0]"})
	_ = store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(2), Vector: "[3,4]"})

	matches, err := store.SearchL2(ctx, "[3,4]", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ReportID != 2 || matches[0].Score != 0 {
		t.Errorf("first = %+v, want report 2 at distance 0", matches[0])
	}
	if matches[1].Score != 5 {
		t.Errorf("second distance = %v, want 5", matches[1].Score)
	}
	if matches[1].ReportTitle != nil {
		t.Errorf("null title should scan as nil, got %q", *matches[1].ReportTitle)
	}
}

func TestSQLiteStore_emptySearch(t *testing.T) {
	store := newTestSQLite(t, 2)
	matches, err := store.SearchCosine(context.Background(), "[1,0]", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches on empty store", len(matches))
	}
}

func TestSQLiteStore_noUpsert(t *testing.T) {
	store := newTestSQLite(t, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(7), Vector: "[1,2]"}); err != nil {
			t.Fatal(err)
		}
	}
	n, _ := store.Count(ctx)
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestSQLiteStore_rejects(t *testing.T) {
	store := newTestSQLite(t, 3)
	ctx := context.Background()

	tests := []struct {
		name string
		e    Embedding
		kind Kind
	}{
		{"wrong dimension", Embedding{ReportID: int64Ptr(1), Vector: "[1,2]"}, KindConstraintViolation},
		{"empty vector", Embedding{ReportID: int64Ptr(1), Vector: "[]"}, KindConstraintViolation},
		{"malformed literal", Embedding{ReportID: int64Ptr(1), Vector: "[1,x,3]"}, KindDataException},
		{"missing report id", Embedding{Vector: "[1,2,3]"}, KindConstraintViolation},
		{"title too long", Embedding{ReportID: int64Ptr(1), ReportTitle: stringPtr(strings.Repeat("t", 501)), Vector: "[1,2,3]"}, KindConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveEmbedding(ctx, tt.e)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() == "" {
				t.Error("error message should not be empty")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.kind, err)
			}
		})
	}

	n, _ := store.Count(ctx)
	if n != 0 {
		t.Errorf("rejected rows must not be stored, count = %d", n)
	}
}

func TestSQLiteStore_searchErrors(t *testing.T) {
	store := newTestSQLite(t, 2)
	ctx := context.Background()
	_ = store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(1), Vector: "[1,2]"})

	if _, err := store.SearchCosine(ctx, "[1,2,3]", 5); err == nil {
		t.Error("expected dimension mismatch error")
	}
	_, err := store.SearchCosine(ctx, "[1,2]", -1)
	if err == nil {
		t.Fatal("expected error for negative limit")
	}
	if KindOf(err) != KindDataException {
		t.Errorf("kind = %s", KindOf(err))
	}
}

func TestSQLiteStore_limitZero(t *testing.T) {
	store := newTestSQLite(t, 2)
	ctx := context.Background()
	_ = store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(1), Vector: "[1,2]"})
	matches, err := store.SearchCosine(ctx, "[1,2]", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("limit 0 returned %d rows", len(matches))
	}
}

func TestSQLiteStore_customTable(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "t.db"), SQLiteOptions{Table: `my "reports"`, Dimensions: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.SaveEmbedding(context.Background(), Embedding{ReportID: int64Ptr(1), Vector: "[1,1]"}); err != nil {
		t.Fatal(err)
	}
	if store.Driver() != "sqlite" {
		t.Errorf("driver = %s", store.Driver())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestNewSQLiteStore_invalidDimensions(t *testing.T) {
	if _, err := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"), SQLiteOptions{}); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestQuoteSQLiteIdent(t *testing.T) {
	if got := quoteSQLiteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("got %s", got)
	}
}

func TestSQLiteStore_searchCosineLargeMagnitude(t *testing.T) {
	store := newTestSQLite(t, 2)
	ctx := context.Background()
	if err := store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(1), Vector: "[1e+300,1]"}); err != nil {
		t.Fatal(err)
	}
	matches, err := store.SearchCosine(ctx, "[1,0]", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || math.Abs(matches[0].Score-1) > 1e-9 {
		t.Errorf("matches = %+v, want similarity 1", matches)
	}
}
