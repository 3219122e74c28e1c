// Package progressapi exposes the crawl's live progress over HTTP: a
// read-only observability surface, not a control plane.
package progressapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repo-crawler/internal/model"
)

// Source is read by the handler to produce the latest snapshot; in
// production it is the Supervisor's *model.Progress, narrowed to an
// interface so tests can substitute a fixed snapshot.
type Source interface {
	Snapshot() model.ProgressSnapshot
}

// Handler is the container for progress API dependencies.
type Handler struct {
	progress Source
	logger   *slog.Logger
}

// NewRouter builds a chi router exposing /health and /progress.
func NewRouter(progress Source, logger *slog.Logger) http.Handler {
	h := &Handler{progress: progress, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Get("/progress", h.progressSnapshot)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) progressSnapshot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.progress.Snapshot())
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
