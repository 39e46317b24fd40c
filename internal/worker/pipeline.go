// Package worker runs the detached stem separation pipeline. A worker
// is its own process; it communicates with the server exclusively
// through the shared progress record.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/cesargomez89/stemforge/internal/config"
	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/logger"
	"github.com/cesargomez89/stemforge/internal/progress"
	"github.com/cesargomez89/stemforge/internal/tagging"
)

// Downloader is the slice of yt-dlp the pipeline needs.
type Downloader interface {
	DownloadWAV(ctx context.Context, url, outPath string) error
	Thumbnail(ctx context.Context, url, workDir string) ([]byte, error)
}

// Separator runs the stem separation model on one input file.
type Separator interface {
	Available() bool
	Separate(ctx context.Context, inputPath, outDir string, preset domain.QualityPreset, format string, onPercent func(int)) error
}

// Prober measures audio files and mixes stems down to one track.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
	Combine(ctx context.Context, inputs []string, outPath string) error
}

// Tagger writes metadata to one produced stem file.
type Tagger func(path string, tag tagging.StemTag) error

// Params identify the job a pipeline run executes.
type Params struct {
	JobID   string
	URL     string
	Title   string
	Quality domain.Quality
	Mode    domain.Mode
}

// Separation percentages are scaled into this window so the overall
// number keeps moving across download, separation and finalize.
const (
	percentDownloaded = 10
	percentSeparated  = 90
)

type Pipeline struct {
	Progress   progress.Store
	Downloader Downloader
	Separator  Separator
	Prober     Prober
	Tagger     Tagger
	Cfg        *config.Config
	Logger     *logger.Logger

	limiter     *rate.Limiter
	lastStage   domain.Stage
	lastPercent int
}

func NewPipeline(st progress.Store, dl Downloader, sep Separator, prober Prober, tagger Tagger, cfg *config.Config, log *logger.Logger) *Pipeline {
	return &Pipeline{
		Progress:   st,
		Downloader: dl,
		Separator:  sep,
		Prober:     prober,
		Tagger:     tagger,
		Cfg:        cfg,
		Logger:     log.WithComponent("pipeline"),
		// Model output arrives in bursts; two writes a second is
		// plenty for a UI polling at 1.5s.
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		lastStage: domain.StageIdle,
	}
}

// Run executes the full pipeline for one job. Any failure is written
// as a terminal error record before returning.
func (p *Pipeline) Run(ctx context.Context, params Params) error {
	log := p.Logger.WithJob(params.JobID)

	if !p.Separator.Available() {
		err := fmt.Errorf("demucs environment not found at %s", p.Cfg.DemucsPython)
		p.fail(params, "Stem separation is not installed", err)
		return err
	}

	workDir, err := os.MkdirTemp(p.Cfg.DataDir, "job-*")
	if err != nil {
		p.fail(params, "Failed to create working directory", err)
		return err
	}
	defer os.RemoveAll(workDir)

	inputPath, cover, err := p.download(ctx, params, workDir, log)
	if err != nil {
		p.fail(params, "Download failed", err)
		return err
	}

	estimate := p.estimate(ctx, inputPath, params.Quality)
	stemDir, err := p.separate(ctx, params, inputPath, workDir, estimate, log)
	if err != nil {
		p.fail(params, "Stem separation failed", err)
		return err
	}

	destDir, err := p.finalize(ctx, params, stemDir, cover, log)
	if err != nil {
		p.fail(params, "Failed to save stems", err)
		return err
	}

	p.write(params, domain.StageComplete, 100, fmt.Sprintf("Stems saved to %s", filepath.Base(destDir)), 0)
	log.Info("Pipeline complete", "dest", destDir)
	return nil
}

func (p *Pipeline) download(ctx context.Context, params Params, workDir string, log *logger.Logger) (string, []byte, error) {
	log = log.WithStage(string(domain.StageDownloading))
	p.write(params, domain.StageDownloading, 2, "Downloading audio...", 0)

	inputPath := filepath.Join(workDir, "input.wav")
	if err := p.Downloader.DownloadWAV(ctx, params.URL, inputPath); err != nil {
		return "", nil, err
	}
	log.Info("Audio downloaded", "path", inputPath)

	cover, err := p.Downloader.Thumbnail(ctx, params.URL, workDir)
	if err != nil {
		log.Debug("No cover art available", "error", err)
		cover = nil
	}

	p.write(params, domain.StageDownloading, percentDownloaded, "Download complete", 0)
	return inputPath, cover, nil
}

// estimate derives a wall clock estimate from the track duration and
// the tier's speed factor, falling back to a fixed figure when the
// probe fails.
func (p *Pipeline) estimate(ctx context.Context, inputPath string, quality domain.Quality) int {
	preset := domain.PresetFor(quality)
	dur, err := p.Prober.Duration(ctx, inputPath)
	if err != nil || dur <= 0 {
		return preset.FallbackSeconds
	}
	return int(dur * preset.TimeMultiplier)
}

func (p *Pipeline) separate(ctx context.Context, params Params, inputPath, workDir string, estimate int, log *logger.Logger) (string, error) {
	log = log.WithStage(string(domain.StageProcessing))
	preset := domain.PresetFor(params.Quality)
	p.write(params, domain.StageProcessing, percentDownloaded, "Separating stems...", estimate)

	outDir := filepath.Join(workDir, "separated")
	onPercent := func(model int) {
		overall := percentDownloaded + model*(percentSeparated-percentDownloaded)/100
		p.writeThrottled(params, domain.StageProcessing, overall, fmt.Sprintf("Separating stems... %d%%", model), estimate)
	}

	if err := p.Separator.Separate(ctx, inputPath, outDir, preset, p.Cfg.StemFormat, onPercent); err != nil {
		return "", err
	}

	// Demucs writes to <outDir>/<model>/<input basename>/<stem>.<ext>.
	base := inputPath[:len(inputPath)-len(filepath.Ext(inputPath))]
	stemDir := filepath.Join(outDir, preset.Model, filepath.Base(base))
	if _, err := os.Stat(stemDir); err != nil {
		return "", fmt.Errorf("separation output missing: %w", err)
	}

	log.Info("Separation finished", "stem_dir", stemDir)
	return stemDir, nil
}

// finalize moves the selected stems into the user-facing folder,
// renders any combined mixdowns and tags everything.
func (p *Pipeline) finalize(ctx context.Context, params Params, stemDir string, cover []byte, log *logger.Logger) (string, error) {
	log = log.WithStage(string(domain.StageFinalizing))
	p.write(params, domain.StageFinalizing, percentSeparated, "Saving stems...", 0)

	preset := domain.PresetFor(params.Quality)
	spec := domain.SpecFor(params.Mode)
	ext := p.Cfg.StemExt()
	title := domain.Sanitize(params.Title)

	destDir := filepath.Join(p.Cfg.DownloadsDir, fmt.Sprintf("%s - %s%s", title, spec.FolderLabel, preset.FolderSuffix))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	album := fmt.Sprintf("%s - %s", title, spec.FolderLabel)
	track := 0
	produce := func(srcPath, label string) error {
		track++
		destPath := filepath.Join(destDir, fmt.Sprintf("%s - %s%s", title, label, ext))
		if err := moveFile(srcPath, destPath); err != nil {
			return fmt.Errorf("failed to place %s stem: %w", label, err)
		}
		if err := p.Tagger(destPath, tagging.StemTag{
			Title:   fmt.Sprintf("%s (%s)", title, label),
			Album:   album,
			Artist:  title,
			Track:   track,
			Picture: cover,
		}); err != nil {
			log.Warn("Failed to tag stem", "stem", label, "error", err)
		}
		return nil
	}

	for _, stem := range spec.Stems {
		src := filepath.Join(stemDir, stem+ext)
		if err := produce(src, domain.StemLabel(stem)); err != nil {
			return "", err
		}
	}

	for label, sources := range spec.Combined {
		inputs := make([]string, 0, len(sources))
		for _, stem := range sources {
			inputs = append(inputs, filepath.Join(stemDir, stem+ext))
		}
		mixed := filepath.Join(stemDir, "combined-"+label+ext)
		if err := p.Prober.Combine(ctx, inputs, mixed); err != nil {
			return "", fmt.Errorf("failed to mix %s: %w", label, err)
		}
		if err := produce(mixed, label); err != nil {
			return "", err
		}
	}

	return destDir, nil
}

// write records a stage transition. Transitions always land; only the
// in-stage percent stream is throttled. A write that would move the
// stage machine backwards is dropped.
func (p *Pipeline) write(params Params, stage domain.Stage, percent int, message string, estimate int) {
	if stage != p.lastStage {
		if !domain.ValidTransition(p.lastStage, stage) {
			p.Logger.Warn("Dropping out-of-order stage write", "from", p.lastStage, "to", stage)
			return
		}
		p.lastStage = stage
	}

	if percent < p.lastPercent {
		percent = p.lastPercent
	}
	p.lastPercent = percent

	rec := &domain.ProgressRecord{
		Stage:            stage,
		Percent:          percent,
		Message:          message,
		Title:            params.Title,
		JobID:            params.JobID,
		Quality:          params.Quality,
		Mode:             params.Mode,
		EstimatedSeconds: estimate,
	}
	if err := p.Progress.Write(rec); err != nil {
		p.Logger.Warn("Failed to write progress record", "stage", stage, "error", err)
	}
}

func (p *Pipeline) writeThrottled(params Params, stage domain.Stage, percent int, message string, estimate int) {
	if percent <= p.lastPercent || !p.limiter.Allow() {
		return
	}
	p.write(params, stage, percent, message, estimate)
}

func (p *Pipeline) fail(params Params, message string, err error) {
	p.Logger.Error("Pipeline failed", "job_id", params.JobID, "error", err)
	rec := &domain.ProgressRecord{
		Stage:   domain.StageError,
		Percent: p.lastPercent,
		Message: message,
		Title:   params.Title,
		JobID:   params.JobID,
		Quality: params.Quality,
		Mode:    params.Mode,
		Error:   err.Error(),
	}
	if wErr := p.Progress.Write(rec); wErr != nil {
		p.Logger.Error("Failed to write error record", "error", wErr)
	}
}

// moveFile renames where possible and falls back to a copy for
// cross-device destinations.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
