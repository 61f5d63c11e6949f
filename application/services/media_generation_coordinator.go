package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lzcjsyr/AIGC-Video/application/ports/inbound"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type mediaGenerationCoordinator struct {
	logger      outbound.LoggerPort
	store       outbound.ArtifactStorePort
	registry    outbound.ProviderRegistryPort
	workerPool  outbound.TaskDispatcher
	concurrency int
	maxAttempts int
	baseBackoff time.Duration
}

// NewMediaGenerationCoordinator fans per-segment image and audio tasks
// out on the worker pool, bounded by a concurrency ceiling so a large
// segment count cannot overwhelm the providers.
func NewMediaGenerationCoordinator(
	logger outbound.LoggerPort,
	store outbound.ArtifactStorePort,
	registry outbound.ProviderRegistryPort,
	workerPool outbound.TaskDispatcher,
	concurrency int,
	maxAttempts int,
	baseBackoff time.Duration,
) inbound.MediaGenerationCoordinatorPort {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &mediaGenerationCoordinator{
		logger:      logger,
		store:       store,
		registry:    registry,
		workerPool:  workerPool,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

func (c *mediaGenerationCoordinator) GenerateMedia(ctx context.Context, params inbound.GenerateMediaParams) (domain.MediaStageResult, error) {
	imageGen, err := c.registry.ImageGenerator(params.ImageModel)
	if err != nil {
		return domain.MediaStageResult{}, err
	}
	speechSynth, err := c.registry.SpeechSynthesizer(params.Voice)
	if err != nil {
		return domain.MediaStageResult{}, err
	}
	if len(params.Keywords.Segments) != len(params.Script.Segments) {
		return domain.MediaStageResult{}, domain.NewValidationError(
			"keyword entries (%d) do not match segments (%d)",
			len(params.Keywords.Segments), len(params.Script.Segments))
	}

	missing := params.Missing
	if len(missing) == 0 {
		missing = allMediaRefs(len(params.Script.Segments))
	}

	// Pre-fill results: artifacts not in the missing set already exist
	// on disk and keep their deterministic paths.
	results := make(map[int]*domain.SegmentMediaResult, len(params.Script.Segments))
	for _, seg := range params.Script.Segments {
		results[seg.Index] = &domain.SegmentMediaResult{
			Index:     seg.Index,
			ImagePath: c.store.MediaPath(params.ProjectDir, domain.MediaRef{Index: seg.Index, Kind: domain.ImageMedia}),
			AudioPath: c.store.MediaPath(params.ProjectDir, domain.MediaRef{Index: seg.Index, Kind: domain.AudioMedia}),
		}
	}

	// In-flight tasks run on a context detached from the abort signal:
	// an abort stops dispatching new tasks but lets running generation
	// calls finish, so the stage stays cleanly resumable.
	taskCtx := context.WithoutCancel(ctx)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, c.concurrency)
	)

	record := func(ref domain.MediaRef, taskErr error) {
		mu.Lock()
		defer mu.Unlock()
		res := results[ref.Index]
		if ref.Kind == domain.ImageMedia {
			res.ImageErr = taskErr
			if taskErr != nil {
				res.ImagePath = ""
			}
		} else {
			res.AudioErr = taskErr
			if taskErr != nil {
				res.AudioPath = ""
			}
		}
	}

	aborted := false
dispatch:
	for di, ref := range missing {
		select {
		case <-ctx.Done():
			aborted = true
			// Refs not reached stay missing; mark them so the stage
			// reports Partial instead of pretending they exist.
			for _, rest := range missing[di:] {
				record(rest, domain.NewServiceError(false, "run aborted before generation", ctx.Err()))
			}
			break dispatch
		case sem <- struct{}{}:
		}

		ref := ref
		seg := params.Script.Segments[ref.Index-1]
		kw := params.Keywords.Segments[ref.Index-1]

		wg.Add(1)
		err := c.workerPool.Submit(func() {
			defer wg.Done()
			defer func() { <-sem }()

			var taskErr error
			if ref.Kind == domain.ImageMedia {
				taskErr = c.generateImage(taskCtx, imageGen, params, ref, kw)
			} else {
				taskErr = c.generateAudio(taskCtx, speechSynth, params, ref, seg)
			}
			record(ref, taskErr)
		})
		if err != nil {
			wg.Done()
			<-sem
			record(ref, domain.NewServiceError(false, "failed to submit generation task", err))
		}
	}

	wg.Wait()

	if aborted {
		c.logger.Warn("media generation aborted, stage left partial")
	}

	result := domain.MediaStageResult{Segments: make([]domain.SegmentMediaResult, 0, len(params.Script.Segments))}
	for _, seg := range params.Script.Segments {
		result.Segments = append(result.Segments, *results[seg.Index])
	}
	return result, nil
}

func allMediaRefs(n int) []domain.MediaRef {
	refs := make([]domain.MediaRef, 0, 2*n)
	for i := 1; i <= n; i++ {
		refs = append(refs,
			domain.MediaRef{Index: i, Kind: domain.ImageMedia},
			domain.MediaRef{Index: i, Kind: domain.AudioMedia})
	}
	return refs
}

// generateImage retries transient failures with backoff and falls back
// once to a sanitized prompt after a policy rejection; a second
// rejection is permanent for this run.
func (c *mediaGenerationCoordinator) generateImage(ctx context.Context, gen outbound.ImageGeneratorPort,
	params inbound.GenerateMediaParams, ref domain.MediaRef, kw domain.SegmentKeywords) error {

	prompt := buildImagePrompt(kw, nil)
	sanitized := false

	// The sanitized policy retry is tracked apart from the transient
	// attempt count, so it happens even with a single attempt allowed.
	attempts := 0
	for {
		data, err := gen.GenerateImage(ctx, outbound.GenerateImageRequest{
			Prompt: prompt,
			Size:   params.ImageSize,
		})
		if err == nil {
			if _, werr := c.store.WriteMedia(params.ProjectDir, ref, data); werr != nil {
				return domain.AsPipelineError(werr).AtSegment(ref.Index)
			}
			return nil
		}

		var pe *domain.PipelineError
		if errors.As(err, &pe) && pe.Kind == domain.KindContentPolicy {
			if sanitized {
				c.logger.WarnWithFields("image rejected by content policy after sanitized retry", map[string]interface{}{
					"segment": ref.Index,
				})
				return domain.AsPipelineError(err).AtSegment(ref.Index)
			}
			prompt = sanitizeImagePrompt(kw, pe.Flagged)
			sanitized = true
			c.logger.WarnWithFields("image rejected by content policy, retrying with sanitized prompt", map[string]interface{}{
				"segment": ref.Index,
			})
			continue
		}
		if !domain.IsRetryable(err) {
			return domain.AsPipelineError(err).AtSegment(ref.Index)
		}
		attempts++
		if attempts >= c.maxAttempts {
			return domain.AsPipelineError(err).AtSegment(ref.Index)
		}
		c.logger.WarnWithFields("transient image generation failure, backing off", map[string]interface{}{
			"segment": ref.Index,
			"attempt": attempts,
		})
		c.sleep(attempts)
	}
}

func (c *mediaGenerationCoordinator) generateAudio(ctx context.Context, synth outbound.SpeechSynthesizerPort,
	params inbound.GenerateMediaParams, ref domain.MediaRef, seg domain.Segment) error {

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		data, err := synth.SynthesizeSpeech(ctx, outbound.SynthesizeSpeechRequest{
			Text:  seg.Content,
			Voice: params.Voice,
		})
		if err == nil {
			if _, werr := c.store.WriteMedia(params.ProjectDir, ref, data); werr != nil {
				return domain.AsPipelineError(werr).AtSegment(ref.Index)
			}
			return nil
		}

		lastErr = err
		if !domain.IsRetryable(err) {
			return domain.AsPipelineError(err).AtSegment(ref.Index)
		}
		c.logger.WarnWithFields("transient speech synthesis failure, backing off", map[string]interface{}{
			"segment": ref.Index,
			"attempt": attempt,
		})
		c.sleep(attempt)
	}
	return domain.AsPipelineError(lastErr).AtSegment(ref.Index)
}

func (c *mediaGenerationCoordinator) sleep(attempt int) {
	if c.baseBackoff <= 0 {
		return
	}
	time.Sleep(c.baseBackoff << (attempt - 1))
}
