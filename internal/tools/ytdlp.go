package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
)

// YTDLP invokes yt-dlp for metadata probes and audio extraction.
type YTDLP struct {
	Path    string
	Runner  Runner
	Timeout time.Duration
}

func NewYTDLP(path string, runner Runner, timeout time.Duration) *YTDLP {
	return &YTDLP{
		Path:    FindBinary(path, "yt-dlp"),
		Runner:  runner,
		Timeout: timeout,
	}
}

// Title resolves the media title with a lightweight metadata probe.
func (y *YTDLP) Title(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := y.Runner.Run(ctx, y.Path, "--get-title", "--no-playlist", url)
	if err != nil {
		return "", fmt.Errorf("failed to resolve title: %s", diagnosticOr(res, err))
	}
	return domain.Sanitize(strings.TrimSpace(res.Stdout)), nil
}

// DownloadMP3 extracts the source as a best-quality mp3 directly into
// destDir and returns the final file path reported by yt-dlp.
func (y *YTDLP) DownloadMP3(ctx context.Context, url, destDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, y.Timeout)
	defer cancel()

	args := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--output", filepath.Join(destDir, "%(title)s.%(ext)s"),
		"--no-playlist",
		"--print", "after_move:filepath",
		url,
	}

	res, err := y.Runner.Run(ctx, y.Path, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("download timed out after %s", y.Timeout)
		}
		return "", fmt.Errorf("%s", diagnosticOr(res, err))
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if path == "" {
		return "", fmt.Errorf("yt-dlp reported no output file")
	}
	return path, nil
}

// DownloadWAV extracts the source as WAV to outPath for the separation
// pipeline.
func (y *YTDLP) DownloadWAV(ctx context.Context, url, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, y.Timeout)
	defer cancel()

	args := []string{
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--output", outPath,
		"--no-playlist",
		url,
	}

	res, err := y.Runner.Run(ctx, y.Path, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("download timed out after %s", y.Timeout)
		}
		return fmt.Errorf("%s", diagnosticOr(res, err))
	}
	return nil
}

// Thumbnail fetches the source's cover image, converted to jpg, and
// returns the raw bytes. Best effort; callers tolerate an error.
func (y *YTDLP) Thumbnail(ctx context.Context, url, workDir string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	outPath := filepath.Join(workDir, "cover.jpg")
	args := []string{
		"--skip-download",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"--output", strings.TrimSuffix(outPath, ".jpg"),
		"--no-playlist",
		url,
	}

	res, err := y.Runner.Run(ctx, y.Path, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %s", diagnosticOr(res, err))
	}
	return os.ReadFile(outPath)
}

func diagnosticOr(res Result, err error) string {
	if d := res.Diagnostic(); d != "" {
		return d
	}
	return err.Error()
}
