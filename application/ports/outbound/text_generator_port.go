package outbound

import "context"

type GenerateTextRequest struct {
	SystemMessage string
	Prompt        string
	MaxTokens     int
	Temperature   float64
}

// TextGeneratorPort is the LLM capability of a provider.
type TextGeneratorPort interface {
	GenerateText(ctx context.Context, req GenerateTextRequest) (string, error)
}
