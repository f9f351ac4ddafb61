package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"readmit/monitoring"
	"readmit/schema"
	"readmit/scoring"
	"readmit/store"
)

// maxBatchRows bounds one scoring request.
const maxBatchRows = 1000

// Handlers carries the injected dependencies for all API endpoints. The
// audit store and hub are optional.
type Handlers struct {
	service   *scoring.Service
	collector *monitoring.Collector
	audit     *store.AuditStore
	hub       *monitoring.Hub
	logger    *zap.Logger
}

func NewHandlers(service *scoring.Service, collector *monitoring.Collector, audit *store.AuditStore, hub *monitoring.Hub, logger *zap.Logger) *Handlers {
	return &Handlers{
		service:   service,
		collector: collector,
		audit:     audit,
		hub:       hub,
		logger:    logger,
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/score", h.handleScore)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/metadata", h.handleMetadata)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/audit/recent", h.handleAuditRecent)
	if h.hub != nil {
		mux.Handle("GET /api/ws/monitor", h.hub)
	}
}

type scoreRequest struct {
	Rows []json.RawMessage `json:"rows"`
}

type scoreResponse struct {
	Predictions []scoring.RowResult `json:"predictions"`
	N           int                 `json:"n"`
}

func (h *Handlers) handleScore(w http.ResponseWriter, r *http.Request) {
	var request scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(request.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows is required")
		return
	}
	if len(request.Rows) > maxBatchRows {
		writeError(w, http.StatusRequestEntityTooLarge, "too many rows in one batch")
		return
	}

	// Each element decodes independently so one malformed row becomes a
	// per-row error instead of failing the batch.
	rows := make([]schema.Row, len(request.Rows))
	for i, raw := range request.Rows {
		var row schema.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			rows[i] = nil
			continue
		}
		rows[i] = row
	}

	results, err := h.service.ScoreBatch(rows)
	if err != nil {
		if errors.Is(err, scoring.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "model artifact not ready")
			return
		}
		h.logger.Error("score batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}

	h.recordAudit(results)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scoreResponse{Predictions: results, N: len(results)})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health()
	status := http.StatusOK
	if !health.Ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

type metadataField struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Default    any      `json:"default"`
	Categories []string `json:"categories,omitempty"`
}

func (h *Handlers) handleMetadata(w http.ResponseWriter, r *http.Request) {
	bundle := h.service.Bundle()
	if bundle == nil {
		writeError(w, http.StatusServiceUnavailable, "model artifact not ready")
		return
	}

	fields := make([]metadataField, len(bundle.Schema.Fields))
	for i, f := range bundle.Schema.Fields {
		field := metadataField{Name: f.Name, Kind: string(f.Kind), Categories: f.Categories}
		switch f.Kind {
		case schema.KindNumeric:
			field.Default = f.Median
		case schema.KindBoolean:
			field.Default = false
		case schema.KindCategorical:
			field.Default = "unknown"
		}
		fields[i] = field
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"model_version": bundle.ModelVersion,
		"trained_at":    bundle.TrainedAt,
		"schema_width":  bundle.Schema.Width(),
		"fields":        fields,
	})
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.collector.Snapshot())
}

func (h *Handlers) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.audit.Recent(limit)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries, "n": len(entries)})
}

func (h *Handlers) recordAudit(results []scoring.RowResult) {
	if h.audit == nil {
		return
	}
	version := ""
	if bundle := h.service.Bundle(); bundle != nil {
		version = bundle.ModelVersion
	}
	now := time.Now()
	for _, result := range results {
		h.audit.Record(store.Entry{
			RowID:        result.RowID,
			Probability:  result.Probability,
			Error:        result.Error,
			ModelVersion: version,
			ScoredAt:     now,
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
