package config

import (
	"fmt"
	"os"
)

type TTSConfig struct {
	ApiUrl          string
	ApiKey          string
	ModelId         string
	Voice           string
	Stability       float64
	SimilarityBoost float64
}

func GetTTSConfig() (*TTSConfig, error) {
	apiUrl := os.Getenv("TTS_API_URL")
	if apiUrl == "" {
		return nil, fmt.Errorf("TTS_API_URL must be set")
	}
	apiKey := os.Getenv("TTS_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("TTS_API_KEY must be set")
	}
	modelId := os.Getenv("TTS_MODEL")
	if modelId == "" {
		return nil, fmt.Errorf("TTS_MODEL must be set")
	}
	voice := os.Getenv("TTS_VOICE")
	if voice == "" {
		return nil, fmt.Errorf("TTS_VOICE must be set")
	}
	return &TTSConfig{
		ApiUrl:          apiUrl,
		ApiKey:          apiKey,
		ModelId:         modelId,
		Voice:           voice,
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}, nil
}
