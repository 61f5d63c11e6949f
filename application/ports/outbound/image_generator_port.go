package outbound

import "context"

type GenerateImageRequest struct {
	Prompt string
	Size   string
}

// ImageGeneratorPort is the text-to-image capability of a provider.
// A policy rejection surfaces as a content_policy PipelineError.
type ImageGeneratorPort interface {
	GenerateImage(ctx context.Context, req GenerateImageRequest) ([]byte, error)
}
