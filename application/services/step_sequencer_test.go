package services

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/lzcjsyr/AIGC-Video/application/ports/inbound"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/domain"
	"github.com/lzcjsyr/AIGC-Video/infrastructure/adapters"
)

type seqFixture struct {
	seq    inbound.StepSequencerPort
	store  outbound.ArtifactStorePort
	text   *fakeTextGenerator
	image  *fakeImageGenerator
	speech *fakeSpeechSynthesizer
	comp   *fakeComposer
	cfg    *config.PipelineConfig
}

func keywordsReply(n int) string {
	kw := domain.Keywords{}
	for i := 0; i < n; i++ {
		kw.Segments = append(kw.Segments, domain.SegmentKeywords{
			Keywords:   []string{"mountain"},
			Atmosphere: []string{"calm"},
		})
	}
	data, _ := json.Marshal(kw)
	return string(data)
}

func newSequencerFixture(t *testing.T, numSegments int) *seqFixture {
	t.Helper()

	cfg := &config.PipelineConfig{
		WorkspaceRoot:    t.TempDir(),
		SpeechRate:       300,
		MediaConcurrency: 2,
		MaxAttempts:      2,
		MinSegments:      1,
		MaxSegments:      50,
		MinTargetLength:  100,
		MaxTargetLength:  20000,
	}

	narration := strings.Repeat("这是一段用于测试的叙述文字。", numSegments*2)
	text := &fakeTextGenerator{respond: func(req outbound.GenerateTextRequest) (string, error) {
		if req.SystemMessage == summarizeSystemPrompt {
			return `{"title":"测试","golden_quote":"金句","content":"` + narration + `"}`, nil
		}
		return keywordsReply(numSegments), nil
	}}
	image := &fakeImageGenerator{}
	speech := &fakeSpeechSynthesizer{}
	comp := &fakeComposer{write: func(path string) error {
		return os.WriteFile(path, []byte("mp4"), 0o644)
	}}

	store := adapters.NewArtifactStore(nopLogger{})
	registry := &fakeRegistry{text: text, image: image, speech: speech}
	coordinator := NewMediaGenerationCoordinator(nopLogger{}, store, registry, goDispatcher{},
		cfg.MediaConcurrency, cfg.MaxAttempts, 0)
	seq := NewStepSequencer(nopLogger{}, store, adapters.NewArtifactInvalidator(nopLogger{}),
		registry, coordinator, comp, cfg)

	return &seqFixture{seq: seq, store: store, text: text, image: image, speech: speech, comp: comp, cfg: cfg}
}

func (f *seqFixture) createProject(t *testing.T, numSegments int) string {
	t.Helper()
	dir, err := f.seq.CreateProject(context.Background(), inbound.CreateProjectParams{
		DocumentText: strings.Repeat("原文内容。", 100),
		TargetLength: 300,
		NumSegments:  numSegments,
		LLMModel:     "test-llm",
		ImageModel:   "test-image",
		Voice:        "test-voice",
		ImageSize:    "1024x1024",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return dir
}

func (f *seqFixture) summarizeCalls() int {
	f.text.mu.Lock()
	defer f.text.mu.Unlock()
	n := 0
	for _, call := range f.text.calls {
		if call.SystemMessage == summarizeSystemPrompt {
			n++
		}
	}
	return n
}

func TestRunAutoCompletesAllStages(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(f.store.FinalVideoPath(dir)); err != nil {
		t.Errorf("final video missing: %v", err)
	}
	status, err := f.seq.Status(dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CurrentStep != domain.StepCompose || status.StepStatus != domain.StepComplete {
		t.Errorf("got step=%d status=%q, want 5/complete", status.CurrentStep, status.StepStatus)
	}
	if status.ProgressFraction != 1.0 {
		t.Errorf("got progress %v, want 1.0", status.ProgressFraction)
	}
	if f.text.callCount() != 2 {
		t.Errorf("got %d text calls, want 2 (summarize + keywords)", f.text.callCount())
	}
	if f.image.callCount() != 2 || f.speech.callCount() != 2 {
		t.Errorf("got %d image and %d speech calls, want 2 each", f.image.callCount(), f.speech.callCount())
	}
}

func TestRunIsIdempotentWhenComplete(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	textCalls, imageCalls := f.text.callCount(), f.image.callCount()

	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.text.callCount() != textCalls || f.image.callCount() != imageCalls {
		t.Errorf("rerunning a complete project re-executed stages")
	}
}

func TestRunStepwiseExecutesOneStagePerCall(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)
	params := inbound.RunParams{ProjectDir: dir, Mode: inbound.RunStepwise}

	if err := f.seq.Run(context.Background(), params); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	status, err := f.seq.Status(dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CurrentStep != domain.StepSummarize {
		t.Fatalf("after one stepwise call, got step %d, want 1", status.CurrentStep)
	}
	if _, err := f.store.ReadScript(dir); err == nil {
		t.Errorf("stepwise run advanced past the summarize stage")
	}

	for i := 0; i < 4; i++ {
		if err := f.seq.Run(context.Background(), params); err != nil {
			t.Fatalf("stepwise call %d: %v", i+2, err)
		}
	}
	status, err = f.seq.Status(dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.StepStatus != domain.StepComplete {
		t.Errorf("got status %q, want complete", status.StepStatus)
	}
}

func TestPartialMediaStageDoesNotAdvance(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	f.speech.respond = func(string) ([]byte, error) {
		return nil, domain.NewServiceError(false, "voice unavailable", nil)
	}

	err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto})
	if err == nil {
		t.Fatalf("expected run to fail on the media stage")
	}

	if _, serr := os.Stat(f.store.FinalVideoPath(dir)); serr == nil {
		t.Errorf("final video must not exist after a partial media stage")
	}
	if len(f.comp.calls) != 0 {
		t.Errorf("composer called despite partial media stage")
	}

	completion, err := f.store.Inspect(dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	state := completion.StateOf(domain.StepGenerateMedia)
	if state.Status != domain.StagePartial {
		t.Fatalf("got media stage %q, want partial", state.Status)
	}

	status, err := f.seq.Status(dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.StepStatus != domain.StepPartial {
		t.Errorf("got status %q, want partial", status.StepStatus)
	}
	if status.LastError == nil || status.LastError.Stage != domain.StepGenerateMedia {
		t.Errorf("got last error %+v, want stage 4", status.LastError)
	}

	// Recovery regenerates only the gaps.
	f.speech.respond = nil
	imageCalls := f.image.callCount()
	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if f.image.callCount() != imageCalls {
		t.Errorf("resume regenerated images that already existed")
	}
	if _, err := os.Stat(f.store.FinalVideoPath(dir)); err != nil {
		t.Errorf("final video missing after resume: %v", err)
	}
}

func TestRerunFromKeywordsRegeneratesDownstreamOnly(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("run: %v", err)
	}
	scriptBefore, err := f.store.ReadScript(dir)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}

	if err := f.seq.Rerun(context.Background(),
		domain.RerunRequest{ProjectDir: dir, FromStep: domain.StepExtractKeywords},
		inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("rerun: %v", err)
	}

	if f.summarizeCalls() != 1 {
		t.Errorf("rerun from step 3 re-ran summarize: %d calls", f.summarizeCalls())
	}
	scriptAfter, err := f.store.ReadScript(dir)
	if err != nil {
		t.Fatalf("read script after rerun: %v", err)
	}
	if scriptAfter.NumSegments != scriptBefore.NumSegments || len(scriptAfter.Segments) != len(scriptBefore.Segments) {
		t.Errorf("script changed across a rerun from step 3")
	}
	if f.image.callCount() != 4 || f.speech.callCount() != 4 {
		t.Errorf("got %d image and %d speech calls, want 4 each (two full media passes)", f.image.callCount(), f.speech.callCount())
	}
	if len(f.comp.calls) != 2 {
		t.Errorf("got %d compose calls, want 2", len(f.comp.calls))
	}
}

func TestRerunRejectsInvalidFromStep(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)
	params := inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}

	for _, step := range []domain.Step{0, 6} {
		err := f.seq.Rerun(context.Background(), domain.RerunRequest{ProjectDir: dir, FromStep: step}, params)
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("from_step %d: got %v, want validation error", step, err)
		}
	}

	// Fresh project: current step is 0, so from_step 3 is out of reach.
	err := f.seq.Rerun(context.Background(), domain.RerunRequest{ProjectDir: dir, FromStep: domain.StepExtractKeywords}, params)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("got %v, want validation error for unreachable from_step", err)
	}
}

func TestRerunRefusedWhileLockHeldKeepsArtifacts(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)
	params := inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}

	if err := f.seq.Run(context.Background(), params); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := f.store.AcquireLock(dir, "another-run"); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	err := f.seq.Rerun(context.Background(),
		domain.RerunRequest{ProjectDir: dir, FromStep: domain.StepExtractKeywords}, params)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("got %v, want validation error while lock held", err)
	}

	// A refused rerun must leave every artifact untouched.
	if _, kerr := f.store.ReadKeywords(dir); kerr != nil {
		t.Errorf("keywords invalidated by a refused rerun: %v", kerr)
	}
	if _, serr := os.Stat(f.store.FinalVideoPath(dir)); serr != nil {
		t.Errorf("final video removed by a refused rerun: %v", serr)
	}
	completion, err := f.store.Inspect(dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if completion.CurrentStep() != domain.StepCompose {
		t.Errorf("project no longer complete after a refused rerun: step %d", completion.CurrentStep())
	}

	if err := f.store.ReleaseLock(dir, "another-run"); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	if err := f.seq.Rerun(context.Background(),
		domain.RerunRequest{ProjectDir: dir, FromStep: domain.StepExtractKeywords}, params); err != nil {
		t.Fatalf("rerun after release: %v", err)
	}
}

func TestRunRejectsNarrationShorterThanSegments(t *testing.T) {
	f := newSequencerFixture(t, 3)
	f.text.respond = func(req outbound.GenerateTextRequest) (string, error) {
		if req.SystemMessage == summarizeSystemPrompt {
			return `{"title":"短","golden_quote":"","content":"短文"}`, nil
		}
		return keywordsReply(3), nil
	}
	dir := f.createProject(t, 3)

	err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto})
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("got %v, want validation error for a narration shorter than the segment count", err)
	}
	if _, rerr := f.store.ReadScript(dir); rerr == nil {
		t.Errorf("script written despite empty segments")
	}

	status, serr := f.seq.Status(dir)
	if serr != nil {
		t.Fatalf("status: %v", serr)
	}
	if status.LastError == nil || status.LastError.Stage != domain.StepSegment {
		t.Errorf("got last error %+v, want stage 2", status.LastError)
	}
	if status.StepStatus != domain.StepFailed {
		t.Errorf("got status %q, want failed", status.StepStatus)
	}
}

func TestRunRefusedWhileLockHeld(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	if err := f.store.AcquireLock(dir, "another-run"); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto})
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("got %v, want validation error while lock held", err)
	}

	if err := f.store.ReleaseLock(dir, "another-run"); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	if err := f.seq.Run(context.Background(), inbound.RunParams{ProjectDir: dir, Mode: inbound.RunAuto}); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}

func TestAbortWithoutActiveRunRejected(t *testing.T) {
	f := newSequencerFixture(t, 1)
	dir := f.createProject(t, 1)

	if err := f.seq.Abort(dir); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestStatusFreshProject(t *testing.T) {
	f := newSequencerFixture(t, 2)
	dir := f.createProject(t, 2)

	status, err := f.seq.Status(dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CurrentStep != domain.StepNone || status.StepStatus != domain.StepPending {
		t.Errorf("got step=%d status=%q, want 0/pending", status.CurrentStep, status.StepStatus)
	}
	if status.ProgressFraction != 0 {
		t.Errorf("got progress %v, want 0", status.ProgressFraction)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	f := newSequencerFixture(t, 2)

	cases := []inbound.CreateProjectParams{
		{DocumentText: "", TargetLength: 300, NumSegments: 2, LLMModel: "m", ImageModel: "i", Voice: "v"},
		{DocumentText: "text", TargetLength: 10, NumSegments: 2, LLMModel: "m", ImageModel: "i", Voice: "v"},
		{DocumentText: "text", TargetLength: 300, NumSegments: 0, LLMModel: "m", ImageModel: "i", Voice: "v"},
		{DocumentText: "text", TargetLength: 300, NumSegments: 99, LLMModel: "m", ImageModel: "i", Voice: "v"},
		{DocumentText: "text", TargetLength: 300, NumSegments: 2, LLMModel: "", ImageModel: "i", Voice: "v"},
	}
	for i, params := range cases {
		if _, err := f.seq.CreateProject(context.Background(), params); !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("case %d: got %v, want validation error", i, err)
		}
	}
}
