// Package service implements the save, search and count operations on top
// of a vector store.
package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/devine/vecgate/internal/models"
	"github.com/devine/vecgate/internal/storage"
	"github.com/devine/vecgate/internal/vector"
	"github.com/devine/vecgate/pkg/utils"
)

// VectorService serializes vectors, issues one store call per operation and
// shapes the result. It holds no mutable state and is safe for concurrent use.
type VectorService struct {
	store        storage.Store
	defaultLimit int
	logger       *zap.Logger
}

// NewVectorService creates a service over store. defaultLimit applies to
// searches that carry no limit; zero or less means models.DefaultSearchLimit.
func NewVectorService(store storage.Store, defaultLimit int, logger *zap.Logger) *VectorService {
	if defaultLimit <= 0 {
		defaultLimit = models.DefaultSearchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorService{store: store, defaultLimit: defaultLimit, logger: logger}
}

// SaveEmbedding stores one embedding. The store decides whether the row is
// acceptable; nothing is validated here.
func (s *VectorService) SaveEmbedding(ctx context.Context, req *models.EmbeddingRequest) error {
	err := s.store.SaveEmbedding(ctx, storage.Embedding{
		ReportID:    req.ReportID,
		ReportTitle: req.ReportTitle,
		Vector:      vector.Format(req.Vector),
	})
	if err != nil {
		return err
	}
	s.logger.Info("saved embedding", reportIDField(req.ReportID))
	return nil
}

// SearchSimilar returns the nearest stored embeddings to req.Vector. Every
// result carries the duration of the single store query.
func (s *VectorService) SearchSimilar(ctx context.Context, req *models.SearchRequest) ([]models.SearchResult, error) {
	metric, err := req.MetricOrDefault()
	if err != nil {
		return nil, &storage.Error{Op: "search", Kind: storage.KindUnsupportedOperation, Err: err}
	}
	query := vector.Format(req.Vector)
	limit := req.LimitOr(s.defaultLimit)
	s.logger.Debug("query vector", zap.String("preview", utils.Prefix(query, 50)), zap.String("metric", metric))

	start := time.Now()
	var matches []storage.Match
	if metric == models.MetricL2 {
		matches, err = s.store.SearchL2(ctx, query, limit)
	} else {
		matches, err = s.store.SearchCosine(ctx, query, limit)
	}
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, err
	}
	s.logger.Info("vector search completed",
		zap.Int64("duration_ms", elapsed),
		zap.Int("results", len(matches)),
	)

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		score := finite(m.Score)
		r := models.SearchResult{
			ReportID:     m.ReportID,
			ReportTitle:  m.ReportTitle,
			SearchTimeMs: elapsed,
		}
		if metric == models.MetricL2 {
			r.Distance = &score
		} else {
			r.Similarity = &score
		}
		results = append(results, r)
	}
	return results, nil
}

// EmbeddingCount returns the number of stored embeddings.
func (s *VectorService) EmbeddingCount(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// finite maps NaN (pgvector's cosine distance for a zero vector) to 0 and
// clamps infinities so every score can be encoded as JSON.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func reportIDField(id *int64) zap.Field {
	if id == nil {
		return zap.Skip()
	}
	return zap.Int64("report_id", *id)
}
