package config

import (
	"fmt"
	"os"
	"strconv"
)

// PipelineConfig holds the orchestration knobs: workspace location,
// speech rate for duration estimates, the stage-4 concurrency ceiling
// and the retry limit for transient provider failures.
type PipelineConfig struct {
	WorkspaceRoot    string
	SpeechRate       int // characters per minute
	MediaConcurrency int
	MaxAttempts      int
	MinSegments      int
	MaxSegments      int
	MinTargetLength  int
	MaxTargetLength  int
}

const (
	defaultSpeechRate       = 300
	defaultMediaConcurrency = 4
	defaultMaxAttempts      = 3
)

func GetPipelineConfig() (*PipelineConfig, error) {
	root := os.Getenv("WORKSPACE_ROOT")
	if root == "" {
		return nil, fmt.Errorf("WORKSPACE_ROOT must be set")
	}

	speechRate, err := intEnv("SPEECH_RATE", defaultSpeechRate)
	if err != nil {
		return nil, err
	}
	concurrency, err := intEnv("MEDIA_CONCURRENCY", defaultMediaConcurrency)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := intEnv("MEDIA_MAX_ATTEMPTS", defaultMaxAttempts)
	if err != nil {
		return nil, err
	}

	return &PipelineConfig{
		WorkspaceRoot:    root,
		SpeechRate:       speechRate,
		MediaConcurrency: concurrency,
		MaxAttempts:      maxAttempts,
		MinSegments:      1,
		MaxSegments:      50,
		MinTargetLength:  100,
		MaxTargetLength:  20000,
	}, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}
