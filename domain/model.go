package domain

import "time"

// Step identifies one of the five ordered production stages.
type Step int

const (
	StepNone            Step = 0
	StepSummarize       Step = 1
	StepSegment         Step = 2
	StepExtractKeywords Step = 3
	StepGenerateMedia   Step = 4
	StepCompose         Step = 5
)

func (s Step) String() string {
	switch s {
	case StepSummarize:
		return "summarize"
	case StepSegment:
		return "segment"
	case StepExtractKeywords:
		return "extract_keywords"
	case StepGenerateMedia:
		return "generate_media"
	case StepCompose:
		return "compose"
	default:
		return "none"
	}
}

// Project is the metadata persisted as project.json in the project root.
// It is created once when a source document is accepted and mutated only
// by the step sequencer.
type Project struct {
	Title        string    `json:"title"`
	CreatedTime  time.Time `json:"created_time"`
	TargetLength int       `json:"target_length"`
	NumSegments  int       `json:"num_segments"`
	LLMModel     string    `json:"llm_model"`
	ImageModel   string    `json:"image_model"`
	Voice        string    `json:"voice"`
	ImageSize    string    `json:"image_size"`
	SpeechRate   int       `json:"speech_rate"`
}

// RawScript is the stage 1 artifact (text/raw.json): the summarized
// narration draft before segmentation.
type RawScript struct {
	Title       string `json:"title"`
	GoldenQuote string `json:"golden_quote,omitempty"`
	Content     string `json:"content"`
	TotalLength int    `json:"total_length"`
}

// Segment is one narrated unit of the final script. Indices are 1-based
// and fixed once stage 2 completes.
type Segment struct {
	Index             int     `json:"index"`
	Content           string  `json:"content"`
	Length            int     `json:"length"`
	EstimatedDuration float64 `json:"estimated_duration"`
}

// Script is the stage 2 artifact (text/script.json).
type Script struct {
	Title       string    `json:"title"`
	GoldenQuote string    `json:"golden_quote,omitempty"`
	TotalLength int       `json:"total_length"`
	NumSegments int       `json:"num_segments"`
	Segments    []Segment `json:"segments"`
}

// SegmentKeywords carries the stage 3 output for one segment, aligned to
// the script by position.
type SegmentKeywords struct {
	Keywords   []string `json:"keywords"`
	Atmosphere []string `json:"atmosphere"`
}

// Keywords is the stage 3 artifact (text/keywords.json).
type Keywords struct {
	Segments []SegmentKeywords `json:"segments"`
}

// MediaKind distinguishes the two per-segment generation tasks.
type MediaKind string

const (
	ImageMedia MediaKind = "image"
	AudioMedia MediaKind = "audio"
)

// MediaRef addresses one per-segment artifact.
type MediaRef struct {
	Index int
	Kind  MediaKind
}

// StageStatus is the completion state of one stage as observed on disk.
type StageStatus string

const (
	StageMissing  StageStatus = "missing"
	StagePartial  StageStatus = "partial"
	StageComplete StageStatus = "complete"
)

// StageState describes one stage inside a StageCompletion. Done/Expected
// and Missing are populated for the media stage only.
type StageState struct {
	Status   StageStatus
	Done     int
	Expected int
	Missing  []MediaRef
}

// ArtifactWarning records a present-but-invalid artifact found during
// inspection. The stage is still reported Missing; the warning lets
// operators tell "never generated" from "generated but broken".
type ArtifactWarning struct {
	Stage  Step
	Path   string
	Reason string
}

// StageCompletion is the value computed by ArtifactStore.Inspect. The
// filesystem is the only status record; this type is recomputable at any
// time and never persisted.
type StageCompletion struct {
	Stages   map[Step]StageState
	Warnings []ArtifactWarning
}

// CurrentStep returns the highest step k such that stages 1..k are all
// complete. A gap stops the count: a complete stage above an incomplete
// one is stale evidence, not progress.
func (c StageCompletion) CurrentStep() Step {
	for s := StepSummarize; s <= StepCompose; s++ {
		if c.Stages[s].Status != StageComplete {
			return s - 1
		}
	}
	return StepCompose
}

// StateOf returns the recorded state for a stage, defaulting to Missing.
func (c StageCompletion) StateOf(s Step) StageState {
	if st, ok := c.Stages[s]; ok {
		return st
	}
	return StageState{Status: StageMissing}
}

// SegmentMediaResult is the per-segment outcome of a media generation run.
type SegmentMediaResult struct {
	Index     int
	ImagePath string
	AudioPath string
	ImageErr  error
	AudioErr  error
}

// Done reports whether both artifacts were produced for the segment.
func (r SegmentMediaResult) Done() bool {
	return r.ImageErr == nil && r.AudioErr == nil
}

// MediaStageResult aggregates a media generation run over all segments.
type MediaStageResult struct {
	Segments []SegmentMediaResult
}

// Complete reports whether every segment has both artifacts.
func (r MediaStageResult) Complete() bool {
	for _, s := range r.Segments {
		if !s.Done() {
			return false
		}
	}
	return len(r.Segments) > 0
}

// FailedSegments lists the indices that did not finish.
func (r MediaStageResult) FailedSegments() []int {
	var failed []int
	for _, s := range r.Segments {
		if !s.Done() {
			failed = append(failed, s.Index)
		}
	}
	return failed
}

// SegmentMedia pairs a segment with its generated artifacts for the
// composer.
type SegmentMedia struct {
	Segment   Segment
	ImagePath string
	AudioPath string
}

// RunState is the sequencer's externally visible state machine position.
type RunState string

const (
	RunIdle               RunState = "idle"
	RunSummarizing        RunState = "summarizing"
	RunSegmenting         RunState = "segmenting"
	RunExtractingKeywords RunState = "extracting_keywords"
	RunGeneratingMedia    RunState = "generating_media"
	RunComposing          RunState = "composing"
	RunCompleted          RunState = "completed"
	RunFailed             RunState = "failed"
)

// StepStatus values exposed on the status surface.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepPartial  StepStatus = "partial"
	StepComplete StepStatus = "complete"
	StepFailed   StepStatus = "failed"
)

// ErrorInfo is the last_error payload on the status surface: enough to
// decide whether to retry, rerun, or abandon the project.
type ErrorInfo struct {
	Stage   Step      `json:"stage"`
	Segment int       `json:"segment,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ProjectStatus is the status query result consumed by CLI/web callers.
type ProjectStatus struct {
	CurrentStep      Step              `json:"current_step"`
	StepStatus       StepStatus        `json:"step_status"`
	ProgressFraction float64           `json:"progress_fraction"`
	LastError        *ErrorInfo        `json:"last_error,omitempty"`
	Warnings         []ArtifactWarning `json:"-"`
}

// RerunRequest asks to re-execute stages from a chosen point after
// invalidating their outputs.
type RerunRequest struct {
	ProjectDir string
	FromStep   Step
}
