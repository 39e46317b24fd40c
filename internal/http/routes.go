package httpapp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cesargomez89/stemforge/internal/app"
	"github.com/cesargomez89/stemforge/internal/http/dto"
)

const historyLimit = 50

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req dto.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, dto.DownloadResponse{Error: "invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondJSON(w, http.StatusBadRequest, dto.DownloadResponse{Error: dto.ToResponse(errs)})
		return
	}

	file, err := h.Jobs.StartDownload(r.Context(), req.URL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrJobActive) {
			status = http.StatusConflict
		}
		h.respondJSON(w, status, dto.DownloadResponse{Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, dto.DownloadResponse{Success: true, File: file})
}

func (h *Handler) Stems(w http.ResponseWriter, r *http.Request) {
	var req dto.StemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, dto.StemsResponse{Error: "invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondJSON(w, http.StatusBadRequest, dto.StemsResponse{Error: dto.ToResponse(errs)})
		return
	}

	job, err := h.Jobs.StartStemJob(r.Context(), req.URL, req.QualityOrDefault(), req.ModeOrDefault())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrJobActive) {
			status = http.StatusConflict
		}
		h.respondJSON(w, status, dto.StemsResponse{Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, dto.StemsResponse{Success: true, JobID: job.JobID, Title: job.Title})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	rec := h.Jobs.GetProgress(r.Context())
	h.respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Jobs.CancelJob(r.Context()); err != nil {
		if errors.Is(err, app.ErrNoActiveJob) {
			// Nothing to cancel is a normal outcome for the UI, not a
			// server failure.
			h.respondJSON(w, http.StatusOK, dto.CancelResponse{Success: false, Error: err.Error()})
			return
		}
		h.respondJSON(w, http.StatusInternalServerError, dto.CancelResponse{Error: err.Error()})
		return
	}
	h.respondJSON(w, http.StatusOK, dto.CancelResponse{Success: true})
}

func (h *Handler) JobsList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.History.ListJobs(historyLimit)
	if err != nil {
		h.Logger.Error("Failed to list jobs", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]dto.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, dto.NewJobResponse(j))
	}
	h.respondJSON(w, http.StatusOK, resp)
}
