package events_http

import (
	"encoding/json"
	"net/http"

	"merchbot/internal/cache"
	"merchbot/internal/domain"
	"merchbot/internal/gateway"
	"merchbot/internal/processor"
	"merchbot/internal/repository/deadletter_repo"

	"go.uber.org/zap"
)

// StatsSources aggregates the component health accessors for the
// operational surface. Archive is nil unless the postgres dead-letter
// archive is enabled.
type StatsSources struct {
	Gateway interface{ Stats() gateway.Stats }
	Processor interface {
		Stats() processor.Stats
		DeadLetters() []domain.DeadLetterRecord
	}
	Cache   interface{ Stats() cache.Stats }
	Archive deadletter_repo.Repository
}

type HealthHandler struct {
	sources StatsSources
	logger  *zap.Logger
}

func NewHealthHandler(sources StatsSources, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{sources: sources, logger: logger}
}

type healthResponse struct {
	Status    string          `json:"status"`
	Gateway   gateway.Stats   `json:"gateway"`
	Processor processor.Stats `json:"processor"`
	Cache     cache.Stats     `json:"cache"`
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Gateway:   h.sources.Gateway.Stats(),
		Processor: h.sources.Processor.Stats(),
		Cache:     h.sources.Cache.Stats(),
	}
	if resp.Gateway.Breaker.Open || resp.Processor.QueueDepth > 100 {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write health response", zap.Error(err))
	}
}

func (h *HealthHandler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	var records []domain.DeadLetterRecord
	if r.URL.Query().Get("source") == "archive" && h.sources.Archive != nil {
		archived, err := h.sources.Archive.ListRecent(r.Context(), 100)
		if err != nil {
			h.logger.Error("Failed to read dead-letter archive", zap.Error(err))
			http.Error(w, "Archive unavailable", http.StatusServiceUnavailable)
			return
		}
		records = archived
	} else {
		records = h.sources.Processor.DeadLetters()
	}
	if records == nil {
		records = []domain.DeadLetterRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.logger.Error("Failed to write dead-letter response", zap.Error(err))
	}
}
