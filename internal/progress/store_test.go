package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
)

func setupFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "progress.json"))
}

func TestFileStoreReadMissing(t *testing.T) {
	s := setupFileStore(t)

	rec, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := setupFileStore(t)

	in := &domain.ProgressRecord{
		Stage:   domain.StageProcessing,
		Percent: 42,
		Message: "Separating stems...",
		Title:   "Test Track",
		JobID:   "job-1",
		Quality: domain.QualityFast,
		Mode:    domain.ModeFull,
	}
	if err := s.Write(in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if out.Stage != domain.StageProcessing || out.Percent != 42 || out.Title != "Test Track" {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.UpdatedAt.IsZero() {
		t.Error("Write must stamp UpdatedAt")
	}
}

func TestFileStoreAtomicReplace(t *testing.T) {
	s := setupFileStore(t)

	for i := 0; i <= 5; i++ {
		rec := &domain.ProgressRecord{Stage: domain.StageProcessing, Percent: i * 10}
		if err := s.Write(rec); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	out, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if out.Percent != 50 {
		t.Errorf("expected last snapshot, got percent %d", out.Percent)
	}

	// No temp files may survive a completed write.
	entries, err := os.ReadDir(filepath.Dir(s.path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".progress-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestFileStoreClear(t *testing.T) {
	s := setupFileStore(t)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on missing record failed: %v", err)
	}

	if err := s.Write(&domain.ProgressRecord{Stage: domain.StageDownloading}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	rec, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec != nil {
		t.Errorf("record survived Clear: %+v", rec)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	s := setupFileStore(t)
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read(); err == nil {
		t.Error("expected error reading corrupt record")
	}
}

func TestClassifyNil(t *testing.T) {
	rec := Classify(nil, time.Now())
	if rec.Stage != domain.StageIdle {
		t.Errorf("nil record classified as %s", rec.Stage)
	}
}

func TestClassifyFresh(t *testing.T) {
	now := time.Now()
	in := &domain.ProgressRecord{
		Stage:     domain.StageProcessing,
		Percent:   40,
		Quality:   domain.QualityFast,
		UpdatedAt: now.Add(-time.Minute),
	}

	out := Classify(in, now)
	if out.Stage != domain.StageProcessing {
		t.Errorf("fresh record classified as %s", out.Stage)
	}
}

func TestClassifyStale(t *testing.T) {
	now := time.Now()
	in := &domain.ProgressRecord{
		Stage:     domain.StageProcessing,
		Percent:   40,
		Quality:   domain.QualityFast,
		UpdatedAt: now.Add(-11 * time.Minute),
	}

	out := Classify(in, now)
	if out.Stage != domain.StageStale {
		t.Fatalf("expected stale, got %s", out.Stage)
	}
	if out.Error == "" || out.Message == "" {
		t.Error("stale classification must synthesize an error message")
	}
	// The input record is not mutated.
	if in.Stage != domain.StageProcessing {
		t.Error("Classify mutated its input")
	}
}

func TestClassifyStaleScalesWithQuality(t *testing.T) {
	now := time.Now()
	in := &domain.ProgressRecord{
		Stage:     domain.StageProcessing,
		Quality:   domain.QualityHigh,
		UpdatedAt: now.Add(-11 * time.Minute),
	}

	// 11 minutes is stale for the fast tier but within the high tier's
	// allowance.
	if out := Classify(in, now); out.Stage != domain.StageProcessing {
		t.Errorf("high tier classified as %s after 11m", out.Stage)
	}

	in.UpdatedAt = now.Add(-31 * time.Minute)
	if out := Classify(in, now); out.Stage != domain.StageStale {
		t.Errorf("high tier classified as %s after 31m", out.Stage)
	}
}

func TestClassifyTerminalNeverStale(t *testing.T) {
	now := time.Now()
	in := &domain.ProgressRecord{
		Stage:     domain.StageComplete,
		Percent:   100,
		UpdatedAt: now.Add(-24 * time.Hour),
	}

	if out := Classify(in, now); out.Stage != domain.StageComplete {
		t.Errorf("terminal record classified as %s", out.Stage)
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	rec, err := s.Read()
	if err != nil || rec != nil {
		t.Fatalf("empty MemStore read = %+v, %v", rec, err)
	}

	if err := s.Write(&domain.ProgressRecord{Stage: domain.StageDownloading, Percent: 5}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rec, err = s.Read()
	if err != nil || rec == nil || rec.Percent != 5 {
		t.Fatalf("read back = %+v, %v", rec, err)
	}
	if s.Writes != 1 {
		t.Errorf("write count = %d", s.Writes)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	rec, _ = s.Read()
	if rec != nil {
		t.Error("record survived Clear")
	}
}
