package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lzcjsyr/AIGC-Video/application/ports/inbound"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

const (
	summarizeMaxTokens   = 4000
	summarizeTemperature = 0.7
	keywordsMaxTokens    = 2000
	keywordsTemperature  = 0.3
)

type activeRun struct {
	runID  string
	cancel context.CancelFunc
	step   domain.Step
}

type stepSequencer struct {
	logger      outbound.LoggerPort
	store       outbound.ArtifactStorePort
	invalidator outbound.ArtifactInvalidatorPort
	registry    outbound.ProviderRegistryPort
	coordinator inbound.MediaGenerationCoordinatorPort
	composer    outbound.VideoComposerPort
	cfg         *config.PipelineConfig

	mu        sync.Mutex
	active    map[string]*activeRun
	lastError map[string]*domain.ErrorInfo
}

// NewStepSequencer drives a project through the five production stages.
// The current position is always recomputed from the artifacts on disk,
// so resuming an interrupted project and starting a fresh one are the
// same code path.
func NewStepSequencer(
	logger outbound.LoggerPort,
	store outbound.ArtifactStorePort,
	invalidator outbound.ArtifactInvalidatorPort,
	registry outbound.ProviderRegistryPort,
	coordinator inbound.MediaGenerationCoordinatorPort,
	composer outbound.VideoComposerPort,
	cfg *config.PipelineConfig,
) inbound.StepSequencerPort {
	return &stepSequencer{
		logger:      logger,
		store:       store,
		invalidator: invalidator,
		registry:    registry,
		coordinator: coordinator,
		composer:    composer,
		cfg:         cfg,
		active:      make(map[string]*activeRun),
		lastError:   make(map[string]*domain.ErrorInfo),
	}
}

func (s *stepSequencer) CreateProject(ctx context.Context, params inbound.CreateProjectParams) (string, error) {
	if strings.TrimSpace(params.DocumentText) == "" {
		return "", domain.NewValidationError("document text must not be empty")
	}
	if params.TargetLength < s.cfg.MinTargetLength || params.TargetLength > s.cfg.MaxTargetLength {
		return "", domain.NewValidationError("target length %d outside [%d, %d]",
			params.TargetLength, s.cfg.MinTargetLength, s.cfg.MaxTargetLength)
	}
	if params.NumSegments < s.cfg.MinSegments || params.NumSegments > s.cfg.MaxSegments {
		return "", domain.NewValidationError("segment count %d outside [%d, %d]",
			params.NumSegments, s.cfg.MinSegments, s.cfg.MaxSegments)
	}
	if params.LLMModel == "" || params.ImageModel == "" || params.Voice == "" {
		return "", domain.NewValidationError("llm model, image model and voice must all be set")
	}

	now := time.Now()
	dir := filepath.Join(s.cfg.WorkspaceRoot,
		now.Format("20060102-150405")+"-"+uuid.NewString()[:8])

	project := domain.Project{
		CreatedTime:  now,
		TargetLength: params.TargetLength,
		NumSegments:  params.NumSegments,
		LLMModel:     params.LLMModel,
		ImageModel:   params.ImageModel,
		Voice:        params.Voice,
		ImageSize:    params.ImageSize,
		SpeechRate:   s.cfg.SpeechRate,
	}
	if err := s.store.CreateProject(dir, project); err != nil {
		return "", err
	}
	if err := s.store.WriteDocument(dir, params.DocumentText); err != nil {
		return "", err
	}

	s.logger.InfoWithFields("project created", map[string]interface{}{
		"dir":          dir,
		"num_segments": params.NumSegments,
	})
	return dir, nil
}

func (s *stepSequencer) Run(ctx context.Context, params inbound.RunParams) error {
	run, err := s.begin(params.ProjectDir)
	if err != nil {
		return err
	}
	defer s.finish(params.ProjectDir, run)

	return s.execute(ctx, params, run)
}

// execute drives the stage loop. The caller must hold the project's
// run registration and lock.
func (s *stepSequencer) execute(ctx context.Context, params inbound.RunParams, run *activeRun) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	run.cancel = cancel
	s.mu.Unlock()

	project, err := s.store.ReadProject(params.ProjectDir)
	if err != nil {
		return s.fail(params.ProjectDir, domain.StepNone, err)
	}

	completion, err := s.store.Inspect(params.ProjectDir)
	if err != nil {
		return s.fail(params.ProjectDir, domain.StepNone, err)
	}
	for {
		current := completion.CurrentStep()
		if current == domain.StepCompose {
			s.clearError(params.ProjectDir)
			s.logger.InfoWithFields("project complete", map[string]interface{}{"dir": params.ProjectDir})
			return nil
		}

		next := current + 1
		s.setStep(params.ProjectDir, next)
		s.logger.InfoWithFields("entering stage", map[string]interface{}{
			"dir":   params.ProjectDir,
			"stage": next.String(),
			"state": string(runStateFor(next)),
		})

		if err := s.executeStage(runCtx, params, project, next, completion); err != nil {
			return s.fail(params.ProjectDir, next, err)
		}
		s.clearError(params.ProjectDir)

		if params.Mode == inbound.RunStepwise {
			return nil
		}
		if err := runCtx.Err(); err != nil {
			return domain.NewServiceError(false, "run aborted", err).AtStage(next)
		}

		completion, err = s.store.Inspect(params.ProjectDir)
		if err != nil {
			return s.fail(params.ProjectDir, next, err)
		}
		// A stage that returned success must be visible on disk, or the
		// loop would re-enter it forever.
		if completion.CurrentStep() < next {
			return s.fail(params.ProjectDir, next,
				domain.NewCorruptArtifactError(params.ProjectDir,
					fmt.Sprintf("stage %s reported success without a valid artifact", next)))
		}
	}
}

func runStateFor(step domain.Step) domain.RunState {
	switch step {
	case domain.StepSummarize:
		return domain.RunSummarizing
	case domain.StepSegment:
		return domain.RunSegmenting
	case domain.StepExtractKeywords:
		return domain.RunExtractingKeywords
	case domain.StepGenerateMedia:
		return domain.RunGeneratingMedia
	case domain.StepCompose:
		return domain.RunComposing
	default:
		return domain.RunIdle
	}
}

func (s *stepSequencer) executeStage(ctx context.Context, params inbound.RunParams,
	project domain.Project, step domain.Step, completion domain.StageCompletion) error {

	switch step {
	case domain.StepSummarize:
		return s.runSummarize(ctx, params.ProjectDir, project)
	case domain.StepSegment:
		return s.runSegment(params.ProjectDir, project)
	case domain.StepExtractKeywords:
		return s.runExtractKeywords(ctx, params.ProjectDir, project)
	case domain.StepGenerateMedia:
		return s.runGenerateMedia(ctx, params.ProjectDir, project, completion)
	case domain.StepCompose:
		return s.runCompose(ctx, params)
	default:
		return domain.NewValidationError("unknown stage %d", step)
	}
}

func (s *stepSequencer) runSummarize(ctx context.Context, dir string, project domain.Project) error {
	doc, err := s.store.ReadDocument(dir)
	if err != nil {
		return err
	}
	textGen, err := s.registry.TextGenerator(project.LLMModel)
	if err != nil {
		return err
	}

	reply, err := textGen.GenerateText(ctx, outbound.GenerateTextRequest{
		SystemMessage: summarizeSystemPrompt,
		Prompt:        buildSummarizeUserPrompt(doc, project.TargetLength),
		MaxTokens:     summarizeMaxTokens,
		Temperature:   summarizeTemperature,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Title       string `json:"title"`
		GoldenQuote string `json:"golden_quote"`
		Content     string `json:"content"`
	}
	if err := parseJSONReply(reply, &parsed); err != nil {
		return err
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return domain.NewServiceError(false, "model returned an empty narration", nil)
	}

	raw := domain.RawScript{
		Title:       parsed.Title,
		GoldenQuote: parsed.GoldenQuote,
		Content:     parsed.Content,
		TotalLength: len([]rune(parsed.Content)),
	}
	if err := s.store.WriteRawScript(dir, raw); err != nil {
		return err
	}

	if project.Title == "" && raw.Title != "" {
		project.Title = raw.Title
		if err := s.store.WriteProject(dir, project); err != nil {
			return err
		}
	}
	return nil
}

func (s *stepSequencer) runSegment(dir string, project domain.Project) error {
	raw, err := s.store.ReadRawScript(dir)
	if err != nil {
		return err
	}
	script := BuildScript(raw, project.NumSegments, project.SpeechRate)
	for _, seg := range script.Segments {
		if seg.Length == 0 {
			return domain.NewValidationError(
				"narration of %d characters cannot fill %d segments", raw.TotalLength, project.NumSegments)
		}
	}
	return s.store.WriteScript(dir, script)
}

func (s *stepSequencer) runExtractKeywords(ctx context.Context, dir string, project domain.Project) error {
	script, err := s.store.ReadScript(dir)
	if err != nil {
		return err
	}
	textGen, err := s.registry.TextGenerator(project.LLMModel)
	if err != nil {
		return err
	}

	reply, err := textGen.GenerateText(ctx, outbound.GenerateTextRequest{
		SystemMessage: keywordsSystemPrompt,
		Prompt:        buildKeywordsUserPrompt(script),
		MaxTokens:     keywordsMaxTokens,
		Temperature:   keywordsTemperature,
	})
	if err != nil {
		return err
	}

	var kw domain.Keywords
	if err := parseJSONReply(reply, &kw); err != nil {
		return err
	}
	if len(kw.Segments) != len(script.Segments) {
		return domain.NewServiceError(false,
			fmt.Sprintf("model returned %d keyword entries for %d segments", len(kw.Segments), len(script.Segments)), nil)
	}
	return s.store.WriteKeywords(dir, kw)
}

func (s *stepSequencer) runGenerateMedia(ctx context.Context, dir string,
	project domain.Project, completion domain.StageCompletion) error {

	script, err := s.store.ReadScript(dir)
	if err != nil {
		return err
	}
	kw, err := s.store.ReadKeywords(dir)
	if err != nil {
		return err
	}

	result, err := s.coordinator.GenerateMedia(ctx, inbound.GenerateMediaParams{
		ProjectDir: dir,
		Script:     script,
		Keywords:   kw,
		Missing:    completion.StateOf(domain.StepGenerateMedia).Missing,
		ImageModel: project.ImageModel,
		ImageSize:  project.ImageSize,
		Voice:      project.Voice,
	})
	if err != nil {
		return err
	}
	if result.Complete() {
		return nil
	}

	// The stage stays partial: finished artifacts are kept and the next
	// run redoes only the gaps. Surface the first per-segment failure.
	failed := result.FailedSegments()
	for _, seg := range result.Segments {
		if seg.ImageErr != nil {
			return domain.AsPipelineError(seg.ImageErr).AtSegment(seg.Index)
		}
		if seg.AudioErr != nil {
			return domain.AsPipelineError(seg.AudioErr).AtSegment(seg.Index)
		}
	}
	return domain.NewServiceError(true,
		fmt.Sprintf("media generation incomplete for segments %v", failed), nil)
}

func (s *stepSequencer) runCompose(ctx context.Context, params inbound.RunParams) error {
	script, err := s.store.ReadScript(params.ProjectDir)
	if err != nil {
		return err
	}

	media := make([]domain.SegmentMedia, 0, len(script.Segments))
	for _, seg := range script.Segments {
		media = append(media, domain.SegmentMedia{
			Segment:   seg,
			ImagePath: s.store.MediaPath(params.ProjectDir, domain.MediaRef{Index: seg.Index, Kind: domain.ImageMedia}),
			AudioPath: s.store.MediaPath(params.ProjectDir, domain.MediaRef{Index: seg.Index, Kind: domain.AudioMedia}),
		})
	}

	_, err = s.composer.Compose(ctx, outbound.ComposeVideoRequest{
		Segments:        media,
		OutputPath:      s.store.FinalVideoPath(params.ProjectDir),
		EnableSubtitles: params.EnableSubtitles,
		BGMPath:         params.BGMPath,
	})
	return err
}

func (s *stepSequencer) Rerun(ctx context.Context, req domain.RerunRequest, params inbound.RunParams) error {
	if req.FromStep < domain.StepSummarize || req.FromStep > domain.StepCompose {
		return domain.NewValidationError("from_step %d outside [1, 5]", req.FromStep)
	}

	// Take the run lock before touching any artifact. Invalidating while
	// another run holds the lock would destroy artifacts that run is
	// still building on.
	run, err := s.begin(req.ProjectDir)
	if err != nil {
		return err
	}
	defer s.finish(req.ProjectDir, run)

	completion, err := s.store.Inspect(req.ProjectDir)
	if err != nil {
		return err
	}
	if max := completion.CurrentStep() + 1; req.FromStep > max {
		return domain.NewValidationError("from_step %d beyond current step %d", req.FromStep, completion.CurrentStep())
	}

	if err := s.invalidator.Invalidate(req.ProjectDir, req.FromStep); err != nil {
		return err
	}
	s.clearError(req.ProjectDir)

	params.ProjectDir = req.ProjectDir
	return s.execute(ctx, params, run)
}

func (s *stepSequencer) Abort(projectDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[projectDir]
	if !ok || run.cancel == nil {
		return domain.NewValidationError("no active run on %s", projectDir)
	}
	run.cancel()
	s.logger.InfoWithFields("abort requested", map[string]interface{}{"dir": projectDir})
	return nil
}

func (s *stepSequencer) Status(projectDir string) (domain.ProjectStatus, error) {
	completion, err := s.store.Inspect(projectDir)
	if err != nil {
		return domain.ProjectStatus{}, err
	}

	s.mu.Lock()
	run, running := s.active[projectDir]
	lastErr := s.lastError[projectDir]
	s.mu.Unlock()

	status := domain.ProjectStatus{
		CurrentStep:      completion.CurrentStep(),
		ProgressFraction: progressFraction(completion),
		LastError:        lastErr,
		Warnings:         completion.Warnings,
	}

	switch {
	case running:
		status.CurrentStep = run.step
		status.StepStatus = domain.StepRunning
	case status.CurrentStep == domain.StepCompose:
		status.StepStatus = domain.StepComplete
	case completion.StateOf(status.CurrentStep+1).Status == domain.StagePartial:
		status.StepStatus = domain.StepPartial
	case lastErr != nil && lastErr.Stage == status.CurrentStep+1:
		status.StepStatus = domain.StepFailed
	default:
		status.StepStatus = domain.StepPending
	}
	return status, nil
}

// progressFraction counts completed stages out of five, with fractional
// credit for a partially generated media stage.
func progressFraction(completion domain.StageCompletion) float64 {
	current := completion.CurrentStep()
	fraction := float64(current) / 5

	if current < domain.StepGenerateMedia {
		if state := completion.StateOf(domain.StepGenerateMedia); state.Status == domain.StagePartial && state.Expected > 0 {
			fraction += float64(state.Done) / float64(state.Expected) / 5
		}
	}
	return fraction
}

// begin registers the run and takes the on-disk lock under one mutex
// hold, so two concurrent Run calls on the same project cannot both
// proceed.
func (s *stepSequencer) begin(projectDir string) (*activeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[projectDir]; ok {
		return nil, domain.NewValidationError("a run is already active on %s", projectDir)
	}
	run := &activeRun{runID: uuid.NewString()}
	if err := s.store.AcquireLock(projectDir, run.runID); err != nil {
		return nil, err
	}
	s.active[projectDir] = run
	return run, nil
}

func (s *stepSequencer) finish(projectDir string, run *activeRun) {
	if err := s.store.ReleaseLock(projectDir, run.runID); err != nil {
		s.logger.Error(err, "failed to release run lock")
	}
	s.mu.Lock()
	delete(s.active, projectDir)
	s.mu.Unlock()
}

func (s *stepSequencer) setStep(projectDir string, step domain.Step) {
	s.mu.Lock()
	if run, ok := s.active[projectDir]; ok {
		run.step = step
	}
	s.mu.Unlock()
}

func (s *stepSequencer) fail(projectDir string, step domain.Step, err error) error {
	pe := domain.AsPipelineError(err)
	if pe.Stage == domain.StepNone && step != domain.StepNone {
		pe = pe.AtStage(step)
	}

	s.mu.Lock()
	s.lastError[projectDir] = pe.Info()
	s.mu.Unlock()

	s.logger.ErrorWithFields(pe, "stage failed, artifacts preserved", map[string]interface{}{
		"dir":   projectDir,
		"stage": pe.Stage.String(),
	})
	return pe
}

func (s *stepSequencer) clearError(projectDir string) {
	s.mu.Lock()
	delete(s.lastError, projectDir)
	s.mu.Unlock()
}

var _ inbound.StepSequencerPort = (*stepSequencer)(nil)
