package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/stemforge/internal/app"
	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/http/dto"
	"github.com/cesargomez89/stemforge/internal/logger"
)

type fakeJobAPI struct {
	file        string
	downloadErr error
	stemJob     *app.StemJob
	stemErr     error
	progress    *domain.ProgressRecord
	cancelErr   error
	cancelled   int

	gotQuality domain.Quality
	gotMode    domain.Mode
}

func (f *fakeJobAPI) StartDownload(ctx context.Context, url string) (string, error) {
	return f.file, f.downloadErr
}

func (f *fakeJobAPI) StartStemJob(ctx context.Context, url string, quality domain.Quality, mode domain.Mode) (*app.StemJob, error) {
	f.gotQuality = quality
	f.gotMode = mode
	return f.stemJob, f.stemErr
}

func (f *fakeJobAPI) GetProgress(ctx context.Context) *domain.ProgressRecord {
	if f.progress == nil {
		return domain.Idle()
	}
	return f.progress
}

func (f *fakeJobAPI) CancelJob(ctx context.Context) error {
	f.cancelled++
	return f.cancelErr
}

type fakeLister struct {
	jobs []*domain.Job
	err  error
}

func (f *fakeLister) ListJobs(limit int) ([]*domain.Job, error) {
	return f.jobs, f.err
}

func setupHandler(t *testing.T) (*fakeJobAPI, *fakeLister, *chi.Mux) {
	t.Helper()

	api := &fakeJobAPI{
		file:    "Test Song.mp3",
		stemJob: &app.StemJob{JobID: "job-1", Title: "Test Song"},
	}
	lister := &fakeLister{}
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})

	h := NewHandler(api, lister, http.NotFoundHandler(), log)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return api, lister, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDownloadEndpoint(t *testing.T) {
	_, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/download", map[string]string{"url": "https://example.com/v"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp dto.DownloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !resp.Success || resp.File != "Test Song.mp3" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestDownloadEndpointRejectsBadURL(t *testing.T) {
	_, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/download", map[string]string{"url": "not-a-url"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestStemsEndpoint(t *testing.T) {
	api, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/stems", map[string]string{
		"url":     "https://example.com/v",
		"quality": "high",
		"mode":    "rock",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp dto.StemsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !resp.Success || resp.JobID != "job-1" || resp.Title != "Test Song" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if api.gotQuality != domain.QualityHigh || api.gotMode != domain.ModeRock {
		t.Errorf("Expected high/rock, got %s/%s", api.gotQuality, api.gotMode)
	}
}

func TestStemsEndpointDefaults(t *testing.T) {
	api, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/stems", map[string]string{"url": "https://example.com/v"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if api.gotQuality != domain.QualityFast || api.gotMode != domain.ModeFull {
		t.Errorf("Expected defaults fast/full, got %s/%s", api.gotQuality, api.gotMode)
	}
}

func TestStemsEndpointConflict(t *testing.T) {
	api, _, r := setupHandler(t)
	api.stemErr = app.ErrJobActive

	w := doJSON(t, r, "POST", "/api/stems", map[string]string{"url": "https://example.com/v"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}
}

func TestStemsEndpointRejectsBadTier(t *testing.T) {
	_, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/stems", map[string]string{
		"url":     "https://example.com/v",
		"quality": "ultra",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestProgressEndpoint(t *testing.T) {
	api, _, r := setupHandler(t)
	api.progress = &domain.ProgressRecord{
		Stage:   domain.StageProcessing,
		Percent: 42,
		Message: "Separating stems... 40%",
		JobID:   "job-1",
	}

	w := doJSON(t, r, "GET", "/api/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var rec domain.ProgressRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if rec.Stage != domain.StageProcessing || rec.Percent != 42 {
		t.Errorf("Unexpected record %+v", rec)
	}
}

func TestCancelEndpoint(t *testing.T) {
	api, _, r := setupHandler(t)

	w := doJSON(t, r, "POST", "/api/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if api.cancelled != 1 {
		t.Errorf("Expected 1 cancel call, got %d", api.cancelled)
	}

	var resp dto.CancelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !resp.Success {
		t.Errorf("Expected success, got %+v", resp)
	}
}

func TestCancelEndpointNoActiveJob(t *testing.T) {
	api, _, r := setupHandler(t)
	api.cancelErr = app.ErrNoActiveJob

	w := doJSON(t, r, "POST", "/api/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp dto.CancelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp.Success {
		t.Error("Expected success:false with no active job")
	}
}

func TestJobsEndpoint(t *testing.T) {
	_, lister, r := setupHandler(t)
	errMsg := "boom"
	lister.jobs = []*domain.Job{
		{
			ID:        "job-1",
			Type:      domain.JobTypeStems,
			Stage:     domain.StageComplete,
			Title:     "Test Song",
			Quality:   domain.QualityFast,
			Mode:      domain.ModeFull,
			Percent:   100,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		{
			ID:        "job-2",
			Type:      domain.JobTypeDownload,
			Stage:     domain.StageError,
			Title:     "Other Song",
			Error:     &errMsg,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}

	w := doJSON(t, r, "GET", "/api/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp []dto.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(resp))
	}
	if resp[0].Stage != "complete" || resp[1].Error != "boom" {
		t.Errorf("Unexpected rows %+v", resp)
	}
}
