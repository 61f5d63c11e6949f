package outbound

import "github.com/lzcjsyr/AIGC-Video/domain"

// ArtifactInvalidatorPort clears every stage artifact at or above
// fromStep. The operation is effectively atomic: artifacts are moved to
// a trash directory first, so a crash never leaves a stage looking
// complete while holding stale content.
type ArtifactInvalidatorPort interface {
	Invalidate(dir string, fromStep domain.Step) error
}
