package domain

import (
	"regexp"
	"strings"
	"time"
)

// Stage is the lifecycle phase of the current job. It is shared by the
// progress record, the job history and the UI surfaces.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageDownloading Stage = "downloading"
	StageProcessing  Stage = "processing"
	StageFinalizing  Stage = "finalizing"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
	// StageStale is a read-time classification, never written by a worker.
	StageStale Stage = "stale"
	// StageCancelled only appears in the job history, never in a
	// progress record (cancellation resets the record to idle).
	StageCancelled Stage = "cancelled"
)

// Active reports whether the stage belongs to a running job.
func (s Stage) Active() bool {
	switch s {
	case StageDownloading, StageProcessing, StageFinalizing:
		return true
	default:
		return false
	}
}

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	switch s {
	case StageComplete, StageError, StageStale, StageCancelled:
		return true
	default:
		return false
	}
}

// ValidTransition enforces the allowed stage machine edges for a worker.
func ValidTransition(from, to Stage) bool {
	switch from {
	case StageIdle:
		return to == StageDownloading
	case StageDownloading:
		return to == StageProcessing || to == StageError
	case StageProcessing:
		return to == StageFinalizing || to == StageError
	case StageFinalizing:
		return to == StageComplete || to == StageError
	default:
		return false
	}
}

type JobType string

const (
	JobTypeDownload JobType = "download"
	JobTypeStems    JobType = "stems"
)

type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityHigh     Quality = "high"
)

type Mode string

const (
	ModeFull   Mode = "full"
	ModeHipHop Mode = "hiphop"
	ModeRock   Mode = "rock"
)

// ProgressRecord is the single shared snapshot describing the current
// job. It has exactly one writer at a time and is replaced atomically.
type ProgressRecord struct {
	Stage            Stage     `json:"stage"`
	Percent          int       `json:"percent"`
	Message          string    `json:"message"`
	Title            string    `json:"title,omitempty"`
	JobID            string    `json:"job_id,omitempty"`
	Quality          Quality   `json:"quality,omitempty"`
	Mode             Mode      `json:"mode,omitempty"`
	Error            string    `json:"error,omitempty"`
	EstimatedSeconds int       `json:"estimated_seconds,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Idle returns the record served when no job exists.
func Idle() *ProgressRecord {
	return &ProgressRecord{Stage: StageIdle, Message: "Ready"}
}

// Job is one history row: a user-initiated download or stem separation.
type Job struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	Error     *string   `json:"error,omitempty" db:"error"`
	ID        string    `json:"id" db:"id"`
	Type      JobType   `json:"type" db:"type"`
	Stage     Stage     `json:"stage" db:"stage"`
	URL       string    `json:"url" db:"url"`
	Title     string    `json:"title" db:"title"`
	Quality   Quality   `json:"quality" db:"quality"`
	Mode      Mode      `json:"mode" db:"mode"`
	Percent   int       `json:"percent" db:"percent"`
}

// QualityPreset maps a quality tier onto Demucs parameters, time
// estimation and the allowed progress silence before a job is stale.
type QualityPreset struct {
	Model           string
	Shifts          int
	Overlap         float64
	TimeMultiplier  float64
	FallbackSeconds int
	FolderSuffix    string
	StaleAfter      time.Duration
}

const baseStaleAfter = 10 * time.Minute

var qualityPresets = map[Quality]QualityPreset{
	QualityFast: {
		Model:           "htdemucs",
		Shifts:          0,
		Overlap:         0.25,
		TimeMultiplier:  0.4,
		FallbackSeconds: 90,
		FolderSuffix:    "",
		StaleAfter:      baseStaleAfter,
	},
	QualityBalanced: {
		Model:           "htdemucs",
		Shifts:          5,
		Overlap:         0.5,
		TimeMultiplier:  1.2,
		FallbackSeconds: 300,
		FolderSuffix:    " (HQ)",
		StaleAfter:      2 * baseStaleAfter,
	},
	QualityHigh: {
		Model:           "htdemucs_ft",
		Shifts:          10,
		Overlap:         0.75,
		TimeMultiplier:  2.5,
		FallbackSeconds: 600,
		FolderSuffix:    " (Ultra)",
		StaleAfter:      3 * baseStaleAfter,
	},
}

// PresetFor returns the preset of a quality tier, falling back to the
// fast tier for unknown values.
func PresetFor(q Quality) QualityPreset {
	if p, ok := qualityPresets[q]; ok {
		return p
	}
	return qualityPresets[QualityFast]
}

// ValidQuality reports whether q names a known quality tier.
func ValidQuality(q Quality) bool {
	_, ok := qualityPresets[q]
	return ok
}

// ModeSpec selects which Demucs stems a mode keeps and which it mixes
// down into a combined output.
type ModeSpec struct {
	Stems       []string
	Combined    map[string][]string
	FolderLabel string
}

var modeSpecs = map[Mode]ModeSpec{
	ModeFull: {
		Stems:       []string{"vocals", "drums", "bass", "other"},
		FolderLabel: "Stems",
	},
	ModeHipHop: {
		Stems:       []string{"vocals"},
		Combined:    map[string][]string{"Beat": {"drums", "bass", "other"}},
		FolderLabel: "Hip Hop",
	},
	ModeRock: {
		Stems:       []string{"vocals", "drums", "bass"},
		FolderLabel: "Rock",
	},
}

// SpecFor returns the stem selection of a mode, falling back to the
// full set for unknown values.
func SpecFor(m Mode) ModeSpec {
	if s, ok := modeSpecs[m]; ok {
		return s
	}
	return modeSpecs[ModeFull]
}

// ValidMode reports whether m names a known mode.
func ValidMode(m Mode) bool {
	_, ok := modeSpecs[m]
	return ok
}

// StemLabel maps a Demucs stem name to its user-facing file label.
func StemLabel(stem string) string {
	switch stem {
	case "vocals":
		return "Vocals"
	case "drums":
		return "Drums"
	case "bass":
		return "Bass"
	case "other":
		return "Other"
	default:
		return strings.Title(stem) //nolint:staticcheck // stem names are ASCII
	}
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// Sanitize strips characters that are unsafe in filenames, collapses
// whitespace and caps the length. It never returns an empty string.
func Sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	if len(name) > 100 {
		name = strings.TrimSpace(name[:100])
	}
	if name == "" {
		return "download"
	}
	return name
}
