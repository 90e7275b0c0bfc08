package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devine/vecgate/internal/embedding"
	"github.com/devine/vecgate/internal/models"
	"github.com/devine/vecgate/internal/storage"
)

const unknownError = "Unknown error"

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req models.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	log := s.log(r)

	start := time.Now()
	if err := s.vectors.SaveEmbedding(context.WithoutCancel(r.Context()), &req); err != nil {
		log.Error("save embedding failed", reportIDField(req.ReportID), zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Success:   false,
			Error:     errorMessage(err),
			ErrorType: string(storage.KindOf(err)),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, models.SaveResponse{
		Success:    true,
		ReportID:   req.ReportID,
		SaveTimeMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := req.MetricOrDefault(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := s.log(r)
	log.Debug("search request", zap.Int("dimensions", len(req.Vector)), zap.String("metric", req.Metric))

	start := time.Now()
	results, err := s.vectors.SearchSimilar(context.WithoutCancel(r.Context()), &req)
	if err != nil {
		log.Error("vector search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Success:     true,
		Results:     results,
		TotalTimeMs: time.Since(start).Milliseconds(),
		ResultCount: len(results),
	})
}

// handleCount leaves store failures unshaped: the client gets a plain 500.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.vectors.EmbeddingCount(context.WithoutCancel(r.Context()))
	if err != nil {
		s.log(r).Error("count embeddings failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, models.CountResponse{Count: count})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: s.config.ServiceName,
	})
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		s.respondEmbedError(w, http.StatusNotImplemented, embedding.CodeEmbeddingDisabled, "")
		return
	}
	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Report == nil {
		detail := "report object is required"
		if err != nil {
			detail = err.Error()
		}
		s.respondEmbedError(w, http.StatusBadRequest, embedding.CodeInvalidReportFormat, detail)
		return
	}
	log := s.log(r)
	log.Info("embedding request received")

	text := embedding.ExtractText(req.Report)
	if strings.TrimSpace(text) == "" {
		log.Error("embedding request rejected", zap.String("code", embedding.CodeEmptyText))
		s.respondEmbedError(w, http.StatusBadRequest, embedding.CodeEmptyText, "")
		return
	}
	log.Debug("extracted report text", zap.Int("chars", len(text)))

	vec, err := s.embedder.Embed(r.Context(), text)
	if err != nil {
		code := embedding.CodeEmbeddingFailed
		var perr *embedding.ProviderError
		if errors.As(err, &perr) {
			code = perr.Code
		}
		log.Error("embedding failed", zap.String("code", code), zap.Error(err))
		s.respondEmbedError(w, http.StatusInternalServerError, code, err.Error())
		return
	}
	log.Info("embedding created", zap.Int("dimension", len(vec)))
	s.respondJSON(w, http.StatusOK, models.EmbedResponse{
		Vector:    vec,
		Dimension: len(vec),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Success: false, Error: message})
}

// respondEmbedError writes the embed failure envelope. detail is only
// exposed in debug mode and when it adds something to the message.
func (s *Server) respondEmbedError(w http.ResponseWriter, status int, code, detail string) {
	resp := models.EmbedErrorResponse{
		Success:   false,
		ErrorCode: code,
		Message:   embedding.Message(code),
	}
	if s.debug && detail != "" && detail != resp.Message {
		resp.Detail = &detail
	}
	s.respondJSON(w, status, resp)
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return unknownError
}

func reportIDField(id *int64) zap.Field {
	if id == nil {
		return zap.Skip()
	}
	return zap.Int64("report_id", *id)
}
