package inbound

import (
	"context"

	"github.com/lzcjsyr/AIGC-Video/domain"
)

// RunMode selects how the sequencer advances through stages.
type RunMode string

const (
	// RunAuto transitions through all remaining stages without pausing.
	RunAuto RunMode = "auto"
	// RunStepwise executes exactly one stage and returns; the caller
	// re-invokes Run to continue. This is the cooperative suspension
	// point for step-confirmed flows.
	RunStepwise RunMode = "step"
)

type CreateProjectParams struct {
	// DocumentText is the extracted source document content; text
	// extraction from PDF/EPUB happens outside the core.
	DocumentText string
	TargetLength int
	NumSegments  int
	LLMModel     string
	ImageModel   string
	Voice        string
	ImageSize    string
}

type RunParams struct {
	ProjectDir      string
	Mode            RunMode
	EnableSubtitles bool
	BGMPath         string
}

// StepSequencerPort is the core's top-level contract: project creation,
// run/resume, rerun, abort and the status query surface.
type StepSequencerPort interface {
	// CreateProject accepts a source document and scaffolds a new
	// project directory under the workspace root.
	CreateProject(ctx context.Context, params CreateProjectParams) (string, error)

	// Run resumes the project from whatever the artifacts say the
	// current stage is. In auto mode it drives to completion; in
	// stepwise mode it performs one stage.
	Run(ctx context.Context, params RunParams) error

	// Rerun invalidates stages >= FromStep and re-enters the sequencer
	// there. It is rejected when FromStep is out of range or a run is
	// already active on the project.
	Rerun(ctx context.Context, req domain.RerunRequest, params RunParams) error

	// Abort requests cancellation of the active run on the project.
	// In-flight media tasks are allowed to finish.
	Abort(projectDir string) error

	// Status reports current step, step status, progress and last error.
	Status(projectDir string) (domain.ProjectStatus, error)
}
