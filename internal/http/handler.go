// Package httpapp exposes the job API consumed by the browser
// extension popup and any other local UI.
package httpapp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/stemforge/internal/app"
	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/logger"
)

// JobAPI is the slice of the controller the handlers call.
type JobAPI interface {
	StartDownload(ctx context.Context, url string) (string, error)
	StartStemJob(ctx context.Context, url string, quality domain.Quality, mode domain.Mode) (*app.StemJob, error)
	GetProgress(ctx context.Context) *domain.ProgressRecord
	CancelJob(ctx context.Context) error
}

// JobLister reads the job history.
type JobLister interface {
	ListJobs(limit int) ([]*domain.Job, error)
}

type Handler struct {
	Jobs    JobAPI
	History JobLister
	WS      http.Handler
	Logger  *logger.Logger
}

func NewHandler(jobs JobAPI, history JobLister, ws http.Handler, log *logger.Logger) *Handler {
	return &Handler{
		Jobs:    jobs,
		History: history,
		WS:      ws,
		Logger:  log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/download", h.Download)
	r.Post("/api/stems", h.Stems)
	r.Get("/api/progress", h.Progress)
	r.Post("/api/cancel", h.Cancel)
	r.Get("/api/jobs", h.JobsList)
	r.Get("/ws", h.WS.ServeHTTP)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}
