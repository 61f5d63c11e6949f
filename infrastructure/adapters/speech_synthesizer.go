package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type ttsApiRequest struct {
	Text          string        `json:"text"`
	ModelId       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechSynthesizer struct {
	ContentFetcher
	logger    outbound.LoggerPort
	ttsConfig *config.TTSConfig
}

// NewSpeechSynthesizer talks to an ElevenLabs-style per-voice TTS
// endpoint and returns the raw audio payload.
func NewSpeechSynthesizer(contentFetcher ContentFetcher, ttsConfig *config.TTSConfig, logger outbound.LoggerPort) outbound.SpeechSynthesizerPort {
	return &speechSynthesizer{
		ContentFetcher: contentFetcher,
		logger:         logger,
		ttsConfig:      ttsConfig,
	}
}

func (a *speechSynthesizer) SynthesizeSpeech(ctx context.Context, synthReq outbound.SynthesizeSpeechRequest) ([]byte, error) {
	req, err := a.getRequest(ctx, synthReq.Text, synthReq.Voice)
	if err != nil {
		a.logger.ErrorWithFields(err, "Failed to construct the HTTP request for speech synthesis", map[string]interface{}{
			"voice": synthReq.Voice,
		})
		return nil, err
	}

	return a.FetchContent(req)
}

func (a *speechSynthesizer) getRequest(ctx context.Context, text string, voice string) (*http.Request, error) {
	if voice == "" {
		voice = a.ttsConfig.Voice
	}
	reqBody := ttsApiRequest{
		Text:    text,
		ModelId: a.ttsConfig.ModelId,
		VoiceSettings: voiceSettings{
			Stability:       a.ttsConfig.Stability,
			SimilarityBoost: a.ttsConfig.SimilarityBoost,
		},
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to marshal TTS request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.ttsConfig.ApiUrl+"/"+voice, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to create TTS request", err)
	}

	req.Header.Add("Accept", "audio/wav")
	req.Header.Add("xi-api-key", a.ttsConfig.ApiKey)
	req.Header.Add("Content-Type", "application/json")

	return req, nil
}
