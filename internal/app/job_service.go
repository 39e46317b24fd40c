// Package app holds the job controller: the single authority for job
// admission, worker supervision and terminal-state cleanup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/stemforge/internal/config"
	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/logger"
	"github.com/cesargomez89/stemforge/internal/proc"
	"github.com/cesargomez89/stemforge/internal/progress"
)

var (
	// ErrJobActive is the admission conflict: a start request while a
	// job is already running. A normal rejection, not a failure.
	ErrJobActive = errors.New("a job is already running")

	// ErrNoActiveJob is returned by cancel when there is nothing to
	// cancel.
	ErrNoActiveJob = errors.New("no active job")
)

// MediaTool is the slice of yt-dlp the controller itself needs.
type MediaTool interface {
	Title(ctx context.Context, url string) (string, error)
	DownloadMP3(ctx context.Context, url, destDir string) (string, error)
}

// History is the slice of the job store the controller writes.
type History interface {
	CreateJob(job *domain.Job) error
	FinishJob(id string, stage domain.Stage, percent int, errorMsg string) error
	MarkCancelled(id string) error
}

// WorkerParams describe one detached worker launch.
type WorkerParams struct {
	JobID   string
	URL     string
	Quality domain.Quality
	Mode    domain.Mode
	Title   string
}

// WorkerCommand builds the command line for a detached worker launch.
type WorkerCommand func(p WorkerParams) (string, []string)

// StemJob is the acknowledgment returned by StartStemJob.
type StemJob struct {
	JobID string `json:"job_id"`
	Title string `json:"title"`
}

type JobService struct {
	Progress  progress.Store
	History   History
	Launcher  proc.Launcher
	PIDs      *proc.PIDFile
	Media     MediaTool
	WorkerCmd WorkerCommand
	Cfg       *config.Config
	Logger    *logger.Logger

	// OnJobStarted is invoked after a job is admitted, so the bridge
	// can start its poll loop. Optional.
	OnJobStarted func()

	// mu serializes admission and slot mutation. Handlers run
	// concurrently; the slot check and claim must be one step.
	mu sync.Mutex

	now func() time.Time
}

func NewJobService(st progress.Store, hist History, launcher proc.Launcher, pids *proc.PIDFile, media MediaTool, workerCmd WorkerCommand, cfg *config.Config, log *logger.Logger) *JobService {
	return &JobService{
		Progress:  st,
		History:   hist,
		Launcher:  launcher,
		PIDs:      pids,
		Media:     media,
		WorkerCmd: workerCmd,
		Cfg:       cfg,
		Logger:    log.WithComponent("controller"),
		now:       time.Now,
	}
}

// validateSource rejects references that cannot name a media source
// before any resource is allocated.
func validateSource(raw string) error {
	if raw == "" {
		return fmt.Errorf("no URL provided")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid media URL: %s", raw)
	}
	return nil
}

// activeState classifies the current slot. It returns the classified
// record plus whether the job behind it is still live. An unreadable
// record is an error; it must not admit a second job. Callers hold mu.
func (s *JobService) activeState() (*domain.ProgressRecord, bool, error) {
	rec, err := s.Progress.Read()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read progress record: %w", err)
	}

	cls := progress.Classify(rec, s.now())
	if !cls.Stage.Active() {
		return cls, false, nil
	}

	h, err := s.PIDs.Load()
	if err != nil {
		s.Logger.Warn("Failed to read process record", "error", err)
		return cls, true, nil
	}
	if h == nil {
		// An active record with no pid record is an in-process job: the
		// synchronous download path, or a worker between admission and
		// pid persistence. The dead-slot heuristic needs a pid to test;
		// without one the record itself is the claim, and read-time
		// staleness is what eventually frees the slot.
		return cls, true, nil
	}
	return cls, s.Launcher.Alive(h), nil
}

// StartDownload performs the synchronous single-shot MP3 download. It
// blocks for the duration of the tool invocation and never launches a
// worker.
func (s *JobService) StartDownload(ctx context.Context, sourceURL string) (string, error) {
	if err := validateSource(sourceURL); err != nil {
		return "", err
	}

	title, err := s.Media.Title(ctx, sourceURL)
	if err != nil || title == "" {
		title = "audio"
	}

	// Check and claim the slot in one step, then release the lock for
	// the blocking tool invocation.
	s.mu.Lock()
	cls, alive, err := s.activeState()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if cls.Stage.Active() {
		if alive {
			s.mu.Unlock()
			return "", ErrJobActive
		}
		s.Logger.Info("Clearing slot of dead worker", "job_id", cls.JobID)
		s.clearSlot()
	}

	jobID := uuid.New().String()
	now := s.now()
	if err := s.History.CreateJob(&domain.Job{
		ID:        jobID,
		Type:      domain.JobTypeDownload,
		Stage:     domain.StageDownloading,
		URL:       sourceURL,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		s.Logger.Warn("Failed to record download job", "error", err)
	}

	s.writeProgress(&domain.ProgressRecord{
		Stage:   domain.StageDownloading,
		Percent: 10,
		Message: "Downloading MP3...",
		Title:   title,
		JobID:   jobID,
	})
	s.mu.Unlock()
	s.notifyStarted()

	path, err := s.Media.DownloadMP3(ctx, sourceURL, s.Cfg.DownloadsDir)
	if err != nil {
		s.writeProgress(&domain.ProgressRecord{
			Stage:   domain.StageError,
			Message: "Download failed",
			Title:   title,
			JobID:   jobID,
			Error:   err.Error(),
		})
		if hErr := s.History.FinishJob(jobID, domain.StageError, 10, err.Error()); hErr != nil {
			s.Logger.Warn("Failed to finish download job", "error", hErr)
		}
		return "", err
	}

	filename := filepath.Base(path)
	s.writeProgress(&domain.ProgressRecord{
		Stage:   domain.StageComplete,
		Percent: 100,
		Message: fmt.Sprintf("Downloaded: %s", filename),
		Title:   title,
		JobID:   jobID,
	})
	if hErr := s.History.FinishJob(jobID, domain.StageComplete, 100, ""); hErr != nil {
		s.Logger.Warn("Failed to finish download job", "error", hErr)
	}

	s.Logger.Info("Download completed", "title", title, "file", filename)
	return filename, nil
}

// StartStemJob admits at most one job, launches the detached worker
// and returns immediately with the job acknowledgment.
func (s *JobService) StartStemJob(ctx context.Context, sourceURL string, quality domain.Quality, mode domain.Mode) (*StemJob, error) {
	if err := validateSource(sourceURL); err != nil {
		return nil, err
	}
	if !domain.ValidQuality(quality) {
		return nil, fmt.Errorf("unknown quality tier: %s", quality)
	}
	if !domain.ValidMode(mode) {
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}

	title, err := s.Media.Title(ctx, sourceURL)
	if err != nil || title == "" {
		title = "stems"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cls, alive, err := s.activeState()
	if err != nil {
		return nil, err
	}
	if cls.Stage.Active() {
		if alive {
			return nil, ErrJobActive
		}
		// The record claims activity but the worker is gone: free the
		// stale slot before admitting.
		s.Logger.Info("Clearing slot of dead worker", "job_id", cls.JobID)
		s.clearSlot()
	}

	jobID := uuid.New().String()
	now := s.now()

	if err := s.Progress.Write(&domain.ProgressRecord{
		Stage:   domain.StageDownloading,
		Percent: 0,
		Message: "Starting...",
		Title:   title,
		JobID:   jobID,
		Quality: quality,
		Mode:    mode,
	}); err != nil {
		return nil, fmt.Errorf("failed to write initial progress: %w", err)
	}

	name, args := s.WorkerCmd(WorkerParams{
		JobID:   jobID,
		URL:     sourceURL,
		Quality: quality,
		Mode:    mode,
		Title:   title,
	})
	h, err := s.Launcher.Launch(jobID, name, args...)
	if err != nil {
		s.clearSlot()
		return nil, fmt.Errorf("failed to launch worker: %w", err)
	}

	if err := s.PIDs.Save(h); err != nil {
		s.Logger.Warn("Failed to persist worker pid", "pid", h.PID, "error", err)
	}

	if err := s.History.CreateJob(&domain.Job{
		ID:        jobID,
		Type:      domain.JobTypeStems,
		Stage:     domain.StageDownloading,
		URL:       sourceURL,
		Title:     title,
		Quality:   quality,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		s.Logger.Warn("Failed to record stem job", "error", err)
	}

	s.Logger.Info("Stem job started", "job_id", jobID, "title", title, "quality", quality, "mode", mode, "pid", h.PID)
	s.notifyStarted()
	return &StemJob{JobID: jobID, Title: title}, nil
}

func (s *JobService) notifyStarted() {
	if s.OnJobStarted != nil {
		s.OnJobStarted()
	}
}

// GetProgress returns the classified progress record. Read failures
// are reported as an error-stage record, never as a controller crash.
func (s *JobService) GetProgress(ctx context.Context) *domain.ProgressRecord {
	rec, err := s.Progress.Read()
	if err != nil {
		return &domain.ProgressRecord{
			Stage:     domain.StageError,
			Message:   "Failed to read job status",
			Error:     err.Error(),
			UpdatedAt: s.now(),
		}
	}
	return progress.Classify(rec, s.now())
}

// CancelJob terminates the worker's process group and resets the slot.
// Safe to call with no active job.
func (s *JobService) CancelJob(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Progress.Read()
	if err != nil {
		s.Logger.Warn("Failed to read progress record on cancel", "error", err)
	}
	cls := progress.Classify(rec, s.now())

	// Stale jobs are cancellable too: cancel is how a stuck slot is
	// manually cleared.
	if !cls.Stage.Active() && cls.Stage != domain.StageStale {
		return ErrNoActiveJob
	}

	h, err := s.PIDs.Load()
	if err != nil {
		s.Logger.Warn("Failed to read process record on cancel", "error", err)
	}
	if h != nil {
		if err := s.Launcher.Terminate(h); err != nil {
			s.Logger.Warn("Failed to terminate worker", "pid", h.PID, "error", err)
		}
	}

	if cls.JobID != "" {
		if err := s.History.MarkCancelled(cls.JobID); err != nil {
			s.Logger.Warn("Failed to mark job cancelled", "job_id", cls.JobID, "error", err)
		}
	}

	// The reset is authoritative; a dying worker's late write is
	// tolerated as harmless.
	s.clearSlot()
	s.Logger.Info("Job cancelled", "job_id", cls.JobID)
	return nil
}

// Reconcile cleans up after a worker that died while the server was
// away: a recorded pid that is no longer alive under an active stage
// becomes a terminal error record.
func (s *JobService) Reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.PIDs.Load()
	if err != nil {
		s.Logger.Warn("Failed to read process record on startup", "error", err)
	}
	if h != nil && s.Launcher.Alive(h) {
		// Worker survived the restart; leave it alone.
		return
	}

	rec, err := s.Progress.Read()
	if err != nil {
		s.Logger.Warn("Failed to read progress record on startup", "error", err)
		return
	}
	if rec == nil || !rec.Stage.Active() {
		if h != nil {
			if err := s.PIDs.Clear(); err != nil {
				s.Logger.Warn("Failed to clear process record", "error", err)
			}
		}
		return
	}

	s.Logger.Info("Marking interrupted job", "job_id", rec.JobID)
	s.writeProgress(&domain.ProgressRecord{
		Stage:   domain.StageError,
		Percent: rec.Percent,
		Message: "Previous job was interrupted",
		Title:   rec.Title,
		JobID:   rec.JobID,
		Quality: rec.Quality,
		Mode:    rec.Mode,
		Error:   "Job interrupted",
	})
	if rec.JobID != "" {
		if err := s.History.FinishJob(rec.JobID, domain.StageError, rec.Percent, "Job interrupted"); err != nil {
			s.Logger.Warn("Failed to finish interrupted job", "error", err)
		}
	}
	if err := s.PIDs.Clear(); err != nil {
		s.Logger.Warn("Failed to clear process record", "error", err)
	}
}

func (s *JobService) clearSlot() {
	if err := s.Progress.Clear(); err != nil {
		s.Logger.Warn("Failed to clear progress record", "error", err)
	}
	if err := s.PIDs.Clear(); err != nil {
		s.Logger.Warn("Failed to clear process record", "error", err)
	}
}

func (s *JobService) writeProgress(rec *domain.ProgressRecord) {
	if err := s.Progress.Write(rec); err != nil {
		s.Logger.Warn("Failed to write progress record", "stage", rec.Stage, "error", err)
	}
}
