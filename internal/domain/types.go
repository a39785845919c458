package domain

// MediaKind classifies an input file into one of the convertible categories.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
)

// OutputExt returns the container extension written for this kind.
func (k MediaKind) OutputExt() string {
	switch k {
	case MediaKindAudio:
		return ".mp3"
	case MediaKindVideo:
		return ".mp4"
	case MediaKindImage:
		return ".avif"
	default:
		return ""
	}
}

// DirEntry is one node of the detailed input selection. Folders carry
// children and an aggregate size; files carry a resolved media kind and,
// for audio/video, a probed duration. The tree is built once by the
// scanner and never mutated afterwards.
type DirEntry struct {
	Path        string     `json:"path"`
	Name        string     `json:"name"`
	IsDir       bool       `json:"isDir"`
	Kind        MediaKind  `json:"kind,omitempty"`
	Size        int64      `json:"size"`
	DurationSec float64    `json:"durationSec,omitempty"`
	Children    []DirEntry `json:"children,omitempty"`
}

// WorkItem is one flattened, ready-to-encode file descriptor. OutputBase
// is extension-less; the driver appends the kind's container extension.
type WorkItem struct {
	Kind        MediaKind `json:"kind"`
	InputPath   string    `json:"inputPath"`
	OutputBase  string    `json:"outputBase"`
	DurationSec float64   `json:"durationSec,omitempty"`
}

// ItemOutcome records how one work item ended.
type ItemOutcome struct {
	InputPath string    `json:"inputPath"`
	Kind      MediaKind `json:"kind"`
	Succeeded bool      `json:"succeeded"`
	Reason    string    `json:"reason,omitempty"`
}

// RunStatus tracks the lifecycle of one conversion run.
type RunStatus string

const (
	RunStatusIdle    RunStatus = "idle"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
)

// Run stores the current run identity and lifecycle status.
type Run struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir     string `json:"outputDir"`
	FFmpegPath    string `json:"ffmpegPath"`
	FFprobePath   string `json:"ffprobePath"`
	MaxConcurrent int    `json:"maxConcurrent"` // 0 derives the cap from host cores
}
