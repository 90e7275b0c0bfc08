package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// OpenSearchStore is a Store over an OpenSearch k-NN index. The index must
// map "embedding" as a knn_vector in the cosinesimil space on the lucene or
// faiss engine, whose score is (1 + cos) / 2. Similarity is recovered as
// 2*score - 1. L2 search is not available on a cosine index.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
}

// OpenSearchOptions configures NewOpenSearchStore.
type OpenSearchOptions struct {
	Addresses          []string
	Username           string
	Password           string
	Index              string
	InsecureSkipVerify bool
}

// NewOpenSearchStore creates a client for the given cluster. It does not
// contact the cluster; call Ping to verify connectivity.
func NewOpenSearchStore(opts OpenSearchOptions) (*OpenSearchStore, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("opensearch: no addresses configured")
	}
	if opts.Index == "" {
		opts.Index = "report_embeddings"
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}, //nolint:gosec // opt-in for local clusters
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &OpenSearchStore{client: client, index: opts.Index}, nil
}

type osDocument struct {
	ReportID    *int64          `json:"report_id"`
	ReportTitle *string         `json:"report_title"`
	Embedding   json.RawMessage `json:"embedding"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SaveEmbedding indexes one document and refreshes the index so the row is
// visible to the next search.
func (s *OpenSearchStore) SaveEmbedding(ctx context.Context, e Embedding) error {
	body, err := json.Marshal(osDocument{
		ReportID:    e.ReportID,
		ReportTitle: e.ReportTitle,
		// The literal is valid JSON, so it is sent as the array itself.
		Embedding: json.RawMessage(e.Vector),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return &Error{Op: "save", Kind: KindDataException, Err: err}
	}
	req := opensearchapi.IndexRequest{
		Index:   s.index,
		Body:    bytes.NewReader(body),
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return &Error{Op: "save", Kind: KindConnectionFailure, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("save", res)
	}
	return nil
}

type knnQuery struct {
	Size   int      `json:"size"`
	Source []string `json:"_source"`
	Query  struct {
		Knn map[string]knnField `json:"knn"`
	} `json:"query"`
}

type knnField struct {
	Vector json.RawMessage `json:"vector"`
	K      int             `json:"k"`
}

// SearchCosine runs a k-NN query with k = size = limit.
func (s *OpenSearchStore) SearchCosine(ctx context.Context, query string, limit int) ([]Match, error) {
	const op = "search cosine"
	if limit < 0 {
		return nil, &Error{Op: op, Kind: KindDataException, Err: errors.New("LIMIT must not be negative")}
	}
	if limit == 0 {
		// k-NN rejects k = 0; an empty page is what LIMIT 0 means.
		return nil, nil
	}
	if !json.Valid([]byte(query)) {
		return nil, &Error{Op: op, Kind: KindDataException, Err: fmt.Errorf("malformed vector literal")}
	}
	var q knnQuery
	q.Size = limit
	q.Source = []string{"report_id", "report_title"}
	q.Query.Knn = map[string]knnField{"embedding": {Vector: json.RawMessage(query), K: limit}}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindDataException, Err: err}
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindConnectionFailure, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(op, res)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ReportID    int64   `json:"report_id"`
					ReportTitle *string `json:"report_title"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, &Error{Op: op, Kind: KindStoreError, Err: fmt.Errorf("failed to decode search response: %w", err)}
	}
	out := make([]Match, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		out = append(out, Match{
			ReportID:    h.Source.ReportID,
			ReportTitle: h.Source.ReportTitle,
			Score:       2*h.Score - 1,
		})
	}
	return out, nil
}

// SearchL2 is not supported: the index space is fixed to cosine at creation.
func (s *OpenSearchStore) SearchL2(ctx context.Context, query string, limit int) ([]Match, error) {
	return nil, &Error{
		Op:   "search l2",
		Kind: KindUnsupportedOperation,
		Err:  fmt.Errorf("opensearch index %q uses the cosinesimil space; l2 search is not available", s.index),
	}
}

// Count returns the document count of the index.
func (s *OpenSearchStore) Count(ctx context.Context) (int64, error) {
	req := opensearchapi.CountRequest{Index: []string{s.index}}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, &Error{Op: "count", Kind: KindConnectionFailure, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, responseError("count", res)
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, &Error{Op: "count", Kind: KindStoreError, Err: fmt.Errorf("failed to decode count response: %w", err)}
	}
	return out.Count, nil
}

func (s *OpenSearchStore) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, s.client)
	if err != nil {
		return &Error{Op: "ping", Kind: KindConnectionFailure, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

func (s *OpenSearchStore) Driver() string {
	return "opensearch"
}

// Close is a no-op; the HTTP transport has no persistent resources to release.
func (s *OpenSearchStore) Close() error {
	return nil
}

// responseError turns an error response into an *Error, preferring the
// cluster's own reason text.
func responseError(op string, res *opensearchapi.Response) error {
	raw, _ := io.ReadAll(res.Body)
	msg := fmt.Sprintf("opensearch returned %d", res.StatusCode)
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Error) > 0 {
		var detail struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}
		var plain string
		switch {
		case json.Unmarshal(body.Error, &detail) == nil && detail.Reason != "":
			msg = fmt.Sprintf("%s: %s", detail.Type, detail.Reason)
		case json.Unmarshal(body.Error, &plain) == nil && plain != "":
			msg = plain
		}
	}
	return &Error{Op: op, Kind: statusKind(res.StatusCode), Err: errors.New(msg)}
}

func statusKind(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindDataException
	case status == http.StatusConflict:
		return KindConstraintViolation
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return KindConnectionFailure
	case status == http.StatusNotFound:
		return KindQueryFailure
	}
	return KindStoreError
}

var _ Store = (*OpenSearchStore)(nil)
