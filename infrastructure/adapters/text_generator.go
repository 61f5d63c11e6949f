package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/donovanhide/eventsource"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

const doneSignal = "[DONE]"

type chatRequest struct {
	Stream      bool          `json:"stream"`
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunkBody struct {
	Choices []chatChunkChoice `json:"choices"`
}

type chatChunkChoice struct {
	Index int `json:"index"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type textGenerator struct {
	logger    outbound.LoggerPort
	llmConfig *config.LLMConfig
}

// NewTextGenerator streams chat completions from an OpenAI-compatible
// endpoint and accumulates the deltas into the final text.
func NewTextGenerator(llmConfig *config.LLMConfig, logger outbound.LoggerPort) outbound.TextGeneratorPort {
	return &textGenerator{
		logger:    logger,
		llmConfig: llmConfig,
	}
}

func (s *textGenerator) GenerateText(ctx context.Context, genReq outbound.GenerateTextRequest) (string, error) {
	req, err := s.createRequest(ctx, genReq)
	if err != nil {
		s.logger.Error(err, "Failed to create HTTP request for completion stream")
		return "", err
	}

	stream, err := eventsource.SubscribeWithRequest("", req)
	if err != nil {
		s.logger.Error(err, "Failed to subscribe to completion stream")
		return "", domain.NewServiceError(true, "failed to subscribe to completion stream", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", domain.NewServiceError(false, "completion stream cancelled", ctx.Err())
		case ev, ok := <-stream.Events:
			if !ok {
				return builder.String(), nil
			}
			if ev.Data() == doneSignal {
				return builder.String(), nil
			}
			payload, err := s.extractPayload(ev.Data())
			if err != nil {
				return "", err
			}
			builder.WriteString(payload)
		case err, ok := <-stream.Errors:
			if !ok || err == io.EOF {
				return builder.String(), nil
			}
			s.logger.Error(err, "Error occurred during completion streaming")
			return "", domain.NewServiceError(true, "completion stream failed", err)
		}
	}
}

func (s *textGenerator) extractPayload(data string) (string, error) {
	var chunk chatChunkBody
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		s.logger.Error(err, "Failed to unmarshal completion chunk")
		return "", domain.NewServiceError(false, "invalid completion chunk", err)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

func (s *textGenerator) createRequest(ctx context.Context, genReq outbound.GenerateTextRequest) (*http.Request, error) {
	reqBody := chatRequest{
		Stream: true,
		Model:  s.llmConfig.Model,
		Messages: []chatMessage{
			{Role: "system", Content: genReq.SystemMessage},
			{Role: "user", Content: genReq.Prompt},
		},
		MaxTokens:   genReq.MaxTokens,
		Temperature: genReq.Temperature,
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to marshal completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.llmConfig.ApiUrl, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to create completion request", err)
	}

	req.Header.Add("Authorization", "Bearer "+s.llmConfig.ApiKey)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "text/event-stream")

	return req, nil
}
