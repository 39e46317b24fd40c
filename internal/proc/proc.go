// Package proc manages the detached worker process: launching it in its
// own process group so it outlives the server, persisting its identity
// for later lookup, and terminating the whole group on cancellation.
package proc

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Handle identifies a launched worker process.
type Handle struct {
	PID       int       `json:"pid"`
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
}

// Launcher abstracts detached process control for testability.
type Launcher interface {
	Launch(jobID, name string, args ...string) (*Handle, error)
	Terminate(h *Handle) error
	Alive(h *Handle) bool
}

// OSLauncher launches real OS processes detached into their own
// process group.
type OSLauncher struct{}

func NewLauncher() *OSLauncher {
	return &OSLauncher{}
}

// Launch starts name with args fully detached: no inherited stdio and a
// new process group, so the child survives this process exiting and can
// be signalled as a group later.
func (l *OSLauncher) Launch(jobID, name string, args ...string) (*Handle, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch worker: %w", err)
	}

	h := &Handle{
		PID:       cmd.Process.Pid,
		JobID:     jobID,
		StartedAt: time.Now(),
	}

	// Reap in the background: the new process group keeps the worker
	// alive if this process dies, but while we live an exited worker
	// must not linger as a zombie or Alive would keep reporting true.
	go func() { _ = cmd.Wait() }()

	return h, nil
}

// Terminate signals the worker's process group so in-flight child tool
// invocations die with it. It does not wait for acknowledgment.
func (l *OSLauncher) Terminate(h *Handle) error {
	if h == nil || h.PID <= 0 {
		return fmt.Errorf("no process to terminate")
	}

	// Negative pid targets the whole group. Fall back to the single
	// process if the group is already gone.
	if err := syscall.Kill(-h.PID, syscall.SIGTERM); err != nil {
		if err := syscall.Kill(h.PID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to terminate worker %d: %w", h.PID, err)
		}
	}
	return nil
}

// Alive reports whether the process still exists. Signal 0 probes
// without delivering; EPERM still means the process is there.
func (l *OSLauncher) Alive(h *Handle) bool {
	if h == nil || h.PID <= 0 {
		return false
	}
	err := syscall.Kill(h.PID, 0)
	return err == nil || err == syscall.EPERM
}

// PIDFile persists the worker handle so cancellation works across
// server restarts.
type PIDFile struct {
	path string
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Save writes the handle, replacing any previous one.
func (f *PIDFile) Save(h *Handle) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode process record: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write process record: %w", err)
	}
	return nil
}

// Load returns the persisted handle, or nil when none exists.
func (f *PIDFile) Load() (*Handle, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read process record: %w", err)
	}

	h := &Handle{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to decode process record: %w", err)
	}
	return h, nil
}

// Clear removes the persisted handle.
func (f *PIDFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear process record: %w", err)
	}
	return nil
}
