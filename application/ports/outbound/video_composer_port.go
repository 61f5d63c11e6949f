package outbound

import (
	"context"

	"github.com/lzcjsyr/AIGC-Video/domain"
)

type ComposeVideoRequest struct {
	Segments        []domain.SegmentMedia
	OutputPath      string
	EnableSubtitles bool
	// BGMPath is empty when no background music is wanted.
	BGMPath string
}

// VideoComposerPort assembles the per-segment artifacts into the final
// video. It is idempotent given identical inputs and never leaves a
// partial file at OutputPath.
type VideoComposerPort interface {
	Compose(ctx context.Context, req ComposeVideoRequest) (string, error)
}
