// Package tools wraps the external collaborators (yt-dlp, Demucs,
// ffmpeg/ffprobe). Their exit code and stdout/stderr are the only
// contract; everything else is a black box.
package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Result is one external command invocation outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Diagnostic returns the tool's own error output, falling back to
// stdout, for verbatim pass-through to the user.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner abstracts process execution for testability.
type Runner interface {
	// Run executes a command to completion, capturing output.
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// Stream executes a command, invoking onLine for every stderr
	// line as it is produced; stdout is captured.
	Stream(ctx context.Context, name string, args []string, onLine func(string)) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return resultOf(stdout.String(), stderr.String(), err)
}

func (r *ExecRunner) Stream(ctx context.Context, name string, args []string, onLine func(string)) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, err
	}

	var tail strings.Builder
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		// Keep a bounded tail for diagnostics.
		if tail.Len() > 16*1024 {
			tail.Reset()
		}
		tail.WriteString(line)
		tail.WriteByte('\n')
		onLine(line)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// An oversized line stops the scan; drain the pipe so the child
		// is not blocked on a full buffer, and record the cut so the
		// diagnostic does not look like a clean stream.
		io.Copy(io.Discard, stderrPipe)
		fmt.Fprintf(&tail, "stderr truncated: %v\n", scanErr)
	}

	waitErr := cmd.Wait()
	return resultOf(stdout.String(), tail.String(), waitErr)
}

func resultOf(stdout, stderr string, err error) (Result, error) {
	res := Result{Stdout: stdout, Stderr: stderr, ExitCode: 0}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// FindBinary resolves a tool path: an explicit override wins, then
// PATH, then well-known install locations. The bare name is returned as
// a last resort so the eventual exec error names the missing tool.
func FindBinary(override, name string, extra ...string) string {
	if override != "" {
		return override
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	candidates := append([]string{
		"/opt/homebrew/bin/" + name,
		"/usr/local/bin/" + name,
		"/usr/bin/" + name,
	}, extra...)
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return name
}
