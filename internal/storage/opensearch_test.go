package storage

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeCluster answers the handful of OpenSearch endpoints the store uses.
type fakeCluster struct {
	mu       sync.Mutex
	docs     []map[string]any
	lastKnn  map[string]any
	failWith int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_, _ = io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"Vector dimension mismatch. Expected: 3, Given: 2"},"status":400}`)
		return
	}
	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case strings.HasSuffix(r.URL.Path, "/_doc"):
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.docs = append(f.docs, doc)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var q map[string]any
		_ = json.NewDecoder(r.Body).Decode(&q)
		f.lastKnn = q
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_score":1.0,"_source":{"report_id":1,"report_title":"same"}},
			{"_score":0.5,"_source":{"report_id":2,"report_title":null}}
		]}}`)
	case strings.HasSuffix(r.URL.Path, "/_count"):
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(f.docs)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestOpenSearch(t *testing.T) (*OpenSearchStore, *fakeCluster) {
	t.Helper()
	fake := &fakeCluster{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := NewOpenSearchStore(OpenSearchOptions{Addresses: []string{srv.URL}, Index: "vectors"})
	if err != nil {
		t.Fatal(err)
	}
	return store, fake
}

func TestOpenSearchStore_SaveAndCount(t *testing.T) {
	store, fake := newTestOpenSearch(t)
	ctx := context.Background()

	if err := store.SaveEmbedding(ctx, Embedding{ReportID: int64Ptr(42), ReportTitle: stringPtr("t"), Vector: "[0.5,0.25]"}); err != nil {
		t.Fatal(err)
	}
	if len(fake.docs) != 1 {
		t.Fatalf("indexed %d docs", len(fake.docs))
	}
	doc := fake.docs[0]
	if doc["report_id"].(float64) != 42 {
		t.Errorf("report_id = %v", doc["report_id"])
	}
	emb, ok := doc["embedding"].([]any)
	if !ok || len(emb) != 2 || emb[0].(float64) != 0.5 {
		t.Errorf("embedding = %v", doc["embedding"])
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestOpenSearchStore_SearchCosine(t *testing.T) {
	store, fake := newTestOpenSearch(t)
	matches, err := store.SearchCosine(context.Background(), "[1,0]", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	if math.Abs(matches[0].Score-1) > 1e-12 || math.Abs(matches[1].Score) > 1e-12 {
		t.Errorf("scores = %v, %v; want 1 and 0", matches[0].Score, matches[1].Score)
	}
	if matches[1].ReportTitle != nil {
		t.Error("null title should decode as nil")
	}
	knn := fake.lastKnn["query"].(map[string]any)["knn"].(map[string]any)["embedding"].(map[string]any)
	if knn["k"].(float64) != 2 {
		t.Errorf("k = %v", knn["k"])
	}
	if fake.lastKnn["size"].(float64) != 2 {
		t.Errorf("size = %v", fake.lastKnn["size"])
	}
}

func TestOpenSearchStore_limits(t *testing.T) {
	store, _ := newTestOpenSearch(t)
	ctx := context.Background()
	matches, err := store.SearchCosine(ctx, "[1,0]", 0)
	if err != nil || len(matches) != 0 {
		t.Errorf("limit 0: %v, %v", matches, err)
	}
	if _, err := store.SearchCosine(ctx, "[1,0]", -1); KindOf(err) != KindDataException {
		t.Errorf("negative limit kind = %s", KindOf(err))
	}
	if _, err := store.SearchCosine(ctx, "[1,", 1); KindOf(err) != KindDataException {
		t.Errorf("malformed literal kind = %s", KindOf(err))
	}
}

func TestOpenSearchStore_errorResponse(t *testing.T) {
	store, fake := newTestOpenSearch(t)
	fake.failWith = http.StatusBadRequest
	err := store.SaveEmbedding(context.Background(), Embedding{ReportID: int64Ptr(1), Vector: "[1,2]"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindDataException {
		t.Errorf("kind = %s", KindOf(err))
	}
	if !strings.Contains(err.Error(), "Vector dimension mismatch") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestOpenSearchStore_SearchL2Unsupported(t *testing.T) {
	store, _ := newTestOpenSearch(t)
	if _, err := store.SearchL2(context.Background(), "[1]", 1); KindOf(err) != KindUnsupportedOperation {
		t.Errorf("kind = %s", KindOf(err))
	}
}

func TestOpenSearchStore_Ping(t *testing.T) {
	store, _ := newTestOpenSearch(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestNewOpenSearchStore_noAddresses(t *testing.T) {
	if _, err := NewOpenSearchStore(OpenSearchOptions{}); err == nil {
		t.Error("expected error")
	}
}
