package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/cesargomez89/stemforge/internal/domain"
)

// Demucs invokes the stem separation model through its virtualenv
// python and translates its tqdm output into percentages.
type Demucs struct {
	Python string
	Runner Runner
}

func NewDemucs(python string, runner Runner) *Demucs {
	return &Demucs{Python: python, Runner: runner}
}

// Available reports whether the Demucs environment is installed.
func (d *Demucs) Available() bool {
	info, err := os.Stat(d.Python)
	return err == nil && !info.IsDir() && info.Mode()&0111 != 0
}

// tqdm writes lines like " 50%|█████     | 617/1234 [01:23<01:20]".
var tqdmPercent = regexp.MustCompile(`(\d+)%\|`)

// ParseProgress extracts a percentage from one line of Demucs output.
func ParseProgress(line string) (int, bool) {
	m := tqdmPercent.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// Separate runs the model over inputPath, writing stems under outDir.
// onPercent receives the model's own 0-100 progress as it advances.
func (d *Demucs) Separate(ctx context.Context, inputPath, outDir string, preset domain.QualityPreset, format string, onPercent func(int)) error {
	args := []string{
		"-m", "demucs",
		inputPath,
		"-n", preset.Model,
		"-o", outDir,
		"--overlap", strconv.FormatFloat(preset.Overlap, 'f', -1, 64),
	}
	if format == "flac" {
		args = append(args, "--flac")
	} else {
		args = append(args, "--mp3", "--mp3-bitrate", "320")
	}
	if preset.Shifts > 0 {
		args = append(args, "--shifts", strconv.Itoa(preset.Shifts))
	}

	res, err := d.Runner.Stream(ctx, d.Python, args, func(line string) {
		if pct, ok := ParseProgress(line); ok {
			onPercent(pct)
		}
	})
	if err != nil {
		return fmt.Errorf("stem separation failed: %s", diagnosticOr(res, err))
	}
	return nil
}
