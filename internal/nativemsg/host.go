package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/cesargomez89/stemforge/internal/app"
	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/logger"
)

// JobAPI is the slice of the controller the host dispatches to.
type JobAPI interface {
	StartDownload(ctx context.Context, url string) (string, error)
	StartStemJob(ctx context.Context, url string, quality domain.Quality, mode domain.Mode) (*app.StemJob, error)
	GetProgress(ctx context.Context) *domain.ProgressRecord
	CancelJob(ctx context.Context) error
}

type request struct {
	Action  string `json:"action"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Mode    string `json:"mode"`
}

type response struct {
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Host serves job requests over a native messaging channel, one
// request and one response at a time. The browser launches the host
// and owns its lifetime: a closed stdin means shut down.
type Host struct {
	Jobs JobAPI
	In   io.Reader
	Out  io.Writer
	Log  *logger.Logger
}

func NewHost(jobs JobAPI, in io.Reader, out io.Writer, log *logger.Logger) *Host {
	return &Host{
		Jobs: jobs,
		In:   in,
		Out:  out,
		Log:  log.WithComponent("native-host"),
	}
}

// Serve processes requests until the channel closes or ctx is
// cancelled.
func (h *Host) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := ReadMessage(h.In)
		if errors.Is(err, io.EOF) {
			h.Log.Info("Channel closed")
			return nil
		}
		if err != nil {
			return err
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			h.Log.Warn("Malformed request", "error", err)
			if wErr := WriteMessage(h.Out, response{Error: "malformed request"}); wErr != nil {
				return wErr
			}
			continue
		}

		h.Log.Debug("Request received", "action", req.Action)
		if err := WriteMessage(h.Out, h.dispatch(ctx, req)); err != nil {
			return err
		}
	}
}

func (h *Host) dispatch(ctx context.Context, req request) interface{} {
	switch req.Action {
	case "download":
		file, err := h.Jobs.StartDownload(ctx, req.URL)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{Success: true, File: file}

	case "download_stems":
		quality := domain.Quality(req.Quality)
		if req.Quality == "" {
			quality = domain.QualityFast
		}
		mode := domain.Mode(req.Mode)
		if req.Mode == "" {
			mode = domain.ModeFull
		}
		job, err := h.Jobs.StartStemJob(ctx, req.URL, quality, mode)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{Success: true, JobID: job.JobID, Title: job.Title}

	case "get_progress":
		return h.Jobs.GetProgress(ctx)

	case "cancel_job":
		if err := h.Jobs.CancelJob(ctx); err != nil {
			return response{Error: err.Error()}
		}
		return response{Success: true}

	case "ping":
		return response{Success: true, Message: "pong"}

	default:
		return response{Error: "unknown action: " + req.Action}
	}
}
