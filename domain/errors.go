package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. The kind decides the handling
// policy: validation errors block the stage, service errors may be
// retried, policy errors get one sanitized retry, corrupt artifacts are
// treated as missing, IO errors are fatal for the stage.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindService         ErrorKind = "service"
	KindContentPolicy   ErrorKind = "content_policy"
	KindCorruptArtifact ErrorKind = "corrupt_artifact"
	KindIO              ErrorKind = "io"
)

// PipelineError is the single error type crossing component boundaries.
type PipelineError struct {
	Kind    ErrorKind
	Stage   Step
	Segment int // 0 when not segment-scoped
	Message string
	// Retryable applies to service errors only: timeouts, rate limits
	// and 5xx set it, other upstream rejections do not.
	Retryable bool
	// Flagged carries the terms an upstream content filter objected to,
	// when the provider reports them.
	Flagged []string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// AtStage returns a copy annotated with the stage it surfaced in.
func (e *PipelineError) AtStage(s Step) *PipelineError {
	cp := *e
	cp.Stage = s
	return &cp
}

// AtSegment returns a copy annotated with the segment index.
func (e *PipelineError) AtSegment(i int) *PipelineError {
	cp := *e
	cp.Segment = i
	return &cp
}

// Info converts the error into its status-surface representation.
func (e *PipelineError) Info() *ErrorInfo {
	return &ErrorInfo{
		Stage:   e.Stage,
		Segment: e.Segment,
		Kind:    e.Kind,
		Message: e.Message,
	}
}

func NewValidationError(format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewServiceError(retryable bool, message string, err error) *PipelineError {
	return &PipelineError{Kind: KindService, Message: message, Retryable: retryable, Err: err}
}

func NewContentPolicyError(message string, flagged []string) *PipelineError {
	return &PipelineError{Kind: KindContentPolicy, Message: message, Flagged: flagged}
}

func NewCorruptArtifactError(path, reason string) *PipelineError {
	return &PipelineError{Kind: KindCorruptArtifact, Message: fmt.Sprintf("%s: %s", path, reason)}
}

func NewIOError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindIO, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain; unknown errors report as
// non-retryable service errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindService
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}

// IsRetryable reports whether the error is a transient service failure.
func IsRetryable(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == KindService && pe.Retryable
}

// AsPipelineError normalizes any error into a *PipelineError so the
// status surface always has a kind to show.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Kind: KindService, Message: err.Error(), Err: err}
}
