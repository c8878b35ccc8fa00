package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/delivery/http/request"
	"github.com/user/listing-scraper/internal/delivery/http/response"
	"github.com/user/listing-scraper/internal/usecase"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	searchManager usecase.SearchManager
	checks        map[string]HealthCheck
	logger        *zap.Logger
}

func NewHandler(searchManager usecase.SearchManager, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		searchManager: searchManager,
		checks:        checks,
		logger:        logger,
	}
}

func (h *Handler) HandleSubmitSearch(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tasks, err := h.searchManager.Submit(r.Context(), req.Terms, req.Localities)
	if err != nil {
		if errors.Is(err, usecase.ErrNoSearchPairs) {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to submit search", zap.String("terms", req.Terms), zap.String("localities", req.Localities), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.SubmitSearchResponse{
		Status:  "success",
		Message: "Searches queued",
		Tasks:   make([]response.TaskSummary, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, response.TaskSummary{TaskID: t.ID, Term: t.Term, Locality: t.Locality})
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) HandleGetSearchStatus(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	locality := r.URL.Query().Get("locality")
	if term == "" || locality == "" {
		h.writeJSONError(w, "term and locality query parameters are required", http.StatusBadRequest)
		return
	}

	status, err := h.searchManager.GetStatus(r.Context(), term, locality)
	if err != nil {
		if errors.Is(err, usecase.ErrTaskNotFound) {
			h.writeJSONError(w, "No search found for the given term and locality", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get search status", zap.String("term", term), zap.String("locality", locality), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, response.FromStatus(status))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "ok"}
	code := http.StatusOK

	if len(h.checks) > 0 {
		resp.Dependencies = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Dependencies[name] = "unhealthy"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "healthy"
	}

	pending, err := h.searchManager.Pending(ctx)
	if err != nil {
		h.logger.Warn("failed to read pending tasks", zap.Error(err))
	}
	resp.PendingTasks = pending

	h.writeJSON(w, code, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
