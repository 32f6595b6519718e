// Package api exposes the watcher's current state over HTTP for dashboards
// and the buyer process's health checks.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryanr/restock-watcher/internal/catalog"
	"github.com/aryanr/restock-watcher/internal/database"
	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	store   status.Store
	history *database.StatusHistory
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewHandlers wires the read-only API surface. history and cat may be nil;
// their endpoints then answer 404 and an empty list respectively.
func NewHandlers(store status.Store, history *database.StatusHistory, cat *catalog.Catalog, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		history: history,
		catalog: cat,
		logger:  logger,
	}
}

// GetStatus returns the last written status record.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.store.Read()
	if err != nil {
		h.logger.Error("failed to read status", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	if !ok {
		h.respondError(w, http.StatusNotFound, "no status recorded yet")
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

// GetHistory returns recent status transitions for a product, newest first.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotFound, "history archive not configured")
		return
	}

	productID := chi.URLParam(r, "productID")
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "product ID is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.history.Recent(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "product_id", productID)
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.respondJSON(w, http.StatusOK, records)
}

// GetLatest returns the newest archived record for a product.
func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotFound, "history archive not configured")
		return
	}

	productID := chi.URLParam(r, "productID")
	rec, err := h.history.Latest(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to load latest record", "error", err, "product_id", productID)
		h.respondError(w, http.StatusInternalServerError, "failed to load latest record")
		return
	}
	if rec == nil {
		h.respondError(w, http.StatusNotFound, "no history for product")
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

// GetStats returns per-status cycle counts for a product.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotFound, "history archive not configured")
		return
	}

	productID := chi.URLParam(r, "productID")
	counts, err := h.history.CountByStatus(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to load stats", "error", err, "product_id", productID)
		h.respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	h.respondJSON(w, http.StatusOK, counts)
}

// GetCatalog lists the known product labels.
func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		h.respondJSON(w, http.StatusOK, []string{})
		return
	}
	h.respondJSON(w, http.StatusOK, h.catalog.Labels())
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
