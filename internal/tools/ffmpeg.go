package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FFmpeg invokes ffmpeg/ffprobe for duration probes and stem mixdowns.
type FFmpeg struct {
	Path      string
	ProbePath string
	Runner    Runner
}

func NewFFmpeg(path, probePath string, runner Runner) *FFmpeg {
	return &FFmpeg{
		Path:      FindBinary(path, "ffmpeg"),
		ProbePath: FindBinary(probePath, "ffprobe"),
		Runner:    runner,
	}
}

// Duration returns the audio duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := f.Runner.Run(ctx, f.ProbePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to probe duration: %s", diagnosticOr(res, err))
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return 0, fmt.Errorf("ffprobe returned no duration")
	}
	return strconv.ParseFloat(out, 64)
}

// Combine mixes several stems into one file via the amix filter.
func (f *FFmpeg) Combine(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to combine")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("amix=inputs=%d:duration=longest", len(inputs)),
	)
	if strings.HasSuffix(outPath, ".flac") {
		args = append(args, "-codec:a", "flac")
	} else {
		args = append(args, "-codec:a", "libmp3lame", "-b:a", "320k")
	}
	args = append(args, outPath)

	res, err := f.Runner.Run(ctx, f.Path, args...)
	if err != nil {
		return fmt.Errorf("failed to combine stems: %s", diagnosticOr(res, err))
	}
	return nil
}
