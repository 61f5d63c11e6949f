package outbound

import "context"

type SynthesizeSpeechRequest struct {
	Text  string
	Voice string
}

// SpeechSynthesizerPort is the TTS capability of a provider.
type SpeechSynthesizerPort interface {
	SynthesizeSpeech(ctx context.Context, req SynthesizeSpeechRequest) ([]byte, error)
}
