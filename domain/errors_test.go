package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	retryable := NewServiceError(true, "rate limited", nil)
	if !IsRetryable(retryable) {
		t.Errorf("expected retryable service error to report retryable")
	}

	permanent := NewServiceError(false, "bad request", nil)
	if IsRetryable(permanent) {
		t.Errorf("expected non-retryable service error to report not retryable")
	}

	if IsRetryable(NewValidationError("bad input")) {
		t.Errorf("validation errors are never retryable")
	}

	wrapped := fmt.Errorf("stage context: %w", retryable)
	if !IsRetryable(wrapped) {
		t.Errorf("expected retryable to survive wrapping")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NewContentPolicyError("rejected", nil)); got != KindContentPolicy {
		t.Errorf("got kind %q, want %q", got, KindContentPolicy)
	}
	if got := KindOf(errors.New("plain")); got != KindService {
		t.Errorf("unknown errors should report as service errors, got %q", got)
	}
}

func TestAtStageAndSegmentDoNotMutate(t *testing.T) {
	base := NewServiceError(true, "timeout", nil)
	annotated := base.AtStage(StepGenerateMedia).AtSegment(2)

	if base.Stage != StepNone || base.Segment != 0 {
		t.Errorf("annotation mutated the original error: stage=%d segment=%d", base.Stage, base.Segment)
	}
	if annotated.Stage != StepGenerateMedia || annotated.Segment != 2 {
		t.Errorf("annotation lost: stage=%d segment=%d", annotated.Stage, annotated.Segment)
	}

	info := annotated.Info()
	if info.Stage != StepGenerateMedia || info.Segment != 2 || info.Kind != KindService {
		t.Errorf("unexpected error info: %+v", info)
	}
}

func TestAsPipelineErrorNormalizesUnknown(t *testing.T) {
	pe := AsPipelineError(errors.New("boom"))
	if pe.Kind != KindService {
		t.Errorf("got kind %q, want %q", pe.Kind, KindService)
	}
	if pe.Message != "boom" {
		t.Errorf("got message %q", pe.Message)
	}

	original := NewIOError("disk full", nil)
	if AsPipelineError(original) != original {
		t.Errorf("expected existing pipeline error to pass through")
	}
}

func TestCurrentStepStopsAtGap(t *testing.T) {
	completion := StageCompletion{Stages: map[Step]StageState{
		StepSummarize:       {Status: StageComplete},
		StepSegment:         {Status: StageMissing},
		StepExtractKeywords: {Status: StageComplete},
	}}
	if got := completion.CurrentStep(); got != StepSummarize {
		t.Errorf("got current step %d, want %d", got, StepSummarize)
	}
}
