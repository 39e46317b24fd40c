package dto

import (
	"github.com/cesargomez89/stemforge/internal/domain"
)

// DownloadRequest starts a plain MP3 download.
type DownloadRequest struct {
	URL string `json:"url"`
}

func (r *DownloadRequest) Validate() []ValidationError {
	return validateMediaURL(r.URL)
}

// StemsRequest starts a stem separation job. Quality and mode are
// optional and fall back to the cheapest settings.
type StemsRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Mode    string `json:"mode"`
}

func (r *StemsRequest) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateMediaURL(r.URL)...)
	errs = append(errs, validateQuality(r.Quality)...)
	errs = append(errs, validateMode(r.Mode)...)
	return errs
}

// QualityOrDefault normalizes the requested tier.
func (r *StemsRequest) QualityOrDefault() domain.Quality {
	if r.Quality == "" {
		return domain.QualityFast
	}
	return domain.Quality(r.Quality)
}

// ModeOrDefault normalizes the requested mode.
func (r *StemsRequest) ModeOrDefault() domain.Mode {
	if r.Mode == "" {
		return domain.ModeFull
	}
	return domain.Mode(r.Mode)
}

type DownloadResponse struct {
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StemsResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CancelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Stage     string `json:"stage"`
	Title     string `json:"title"`
	Quality   string `json:"quality,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Percent   int    `json:"percent"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Error     string `json:"error,omitempty"`
}

func NewJobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Type:      string(j.Type),
		Stage:     string(j.Stage),
		Title:     j.Title,
		Quality:   string(j.Quality),
		Mode:      string(j.Mode),
		Percent:   j.Percent,
		CreatedAt: j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: j.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if j.Error != nil {
		resp.Error = *j.Error
	}
	return resp
}
