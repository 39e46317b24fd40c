// Package progress owns the single shared progress record that the
// worker writes and every other component reads. The record is replaced
// atomically so readers never observe a partial write, and staleness is
// a read-time classification layered on top of whatever is on disk.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
)

// Store is the injectable progress-record slot. Read returns nil when
// no record exists.
type Store interface {
	Read() (*domain.ProgressRecord, error)
	Write(rec *domain.ProgressRecord) error
	Clear() error
}

// FileStore keeps the record in a single JSON file. Writes go to a temp
// file in the same directory followed by a rename, so concurrent
// readers only ever see a complete snapshot.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Read() (*domain.ProgressRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress record: %w", err)
	}

	rec := &domain.ProgressRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode progress record: %w", err)
	}
	return rec, nil
}

func (s *FileStore) Write(rec *domain.ProgressRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode progress record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write progress record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp progress file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace progress record: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear progress record: %w", err)
	}
	return nil
}

// Classify applies the read-time staleness rule: an active record whose
// last update is older than the quality tier's allowance is reported as
// stale, regardless of what the stage field claims. A nil record
// classifies as idle.
func Classify(rec *domain.ProgressRecord, now time.Time) *domain.ProgressRecord {
	if rec == nil {
		return domain.Idle()
	}

	if rec.Stage.Active() {
		allowed := domain.PresetFor(rec.Quality).StaleAfter
		if age := now.Sub(rec.UpdatedAt); age > allowed {
			stale := *rec
			stale.Stage = domain.StageStale
			stale.Message = "Job appears to have stalled"
			stale.Error = fmt.Sprintf("no progress update for %s", age.Round(time.Second))
			return &stale
		}
	}

	out := *rec
	return &out
}
