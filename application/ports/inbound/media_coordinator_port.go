package inbound

import (
	"context"

	"github.com/lzcjsyr/AIGC-Video/domain"
)

type GenerateMediaParams struct {
	ProjectDir string
	Script     domain.Script
	Keywords   domain.Keywords
	// Missing restricts the run to the artifacts Inspect reported
	// absent, so resuming a partial stage redoes only those.
	Missing    []domain.MediaRef
	ImageModel string
	ImageSize  string
	Voice      string
}

// MediaGenerationCoordinatorPort fans out per-segment image and audio
// generation with bounded concurrency, retry and content-policy
// fallback. Per-segment failures are isolated and aggregated into the
// result; the error return is reserved for whole-stage failures.
type MediaGenerationCoordinatorPort interface {
	GenerateMedia(ctx context.Context, params GenerateMediaParams) (domain.MediaStageResult, error)
}
