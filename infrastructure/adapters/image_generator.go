package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type imageApiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	Number         int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageApiResponse struct {
	Data []struct {
		B64Json string `json:"b64_json"`
	} `json:"data"`
}

type imageGenerator struct {
	ContentFetcher
	logger      outbound.LoggerPort
	imageConfig *config.ImageConfig
}

// NewImageGenerator talks to an OpenAI-compatible images endpoint
// (DALL·E, Seedream behind a gateway, and the like).
func NewImageGenerator(contentFetcher ContentFetcher, imageConfig *config.ImageConfig, logger outbound.LoggerPort) outbound.ImageGeneratorPort {
	return &imageGenerator{
		ContentFetcher: contentFetcher,
		logger:         logger,
		imageConfig:    imageConfig,
	}
}

func (i *imageGenerator) GenerateImage(ctx context.Context, genReq outbound.GenerateImageRequest) ([]byte, error) {
	req, err := i.getRequest(ctx, genReq)
	if err != nil {
		i.logger.Error(err, "Failed to create the HTTP request")
		return nil, err
	}

	rawRes, err := i.FetchContent(req)
	if err != nil {
		return nil, err
	}

	var imageRes imageApiResponse
	if err := json.Unmarshal(rawRes, &imageRes); err != nil {
		i.logger.Error(err, "Failed to unmarshal the image response")
		return nil, domain.NewServiceError(false, "invalid image response payload", err)
	}
	if len(imageRes.Data) == 0 {
		return nil, domain.NewServiceError(true, "image response contained no data", nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(imageRes.Data[0].B64Json)
	if err != nil {
		i.logger.Error(err, "Failed to decode the image")
		return nil, domain.NewServiceError(false, "failed to decode image payload", err)
	}

	return decoded, nil
}

func (i *imageGenerator) getRequest(ctx context.Context, genReq outbound.GenerateImageRequest) (*http.Request, error) {
	size := genReq.Size
	if size == "" {
		size = i.imageConfig.Size
	}
	reqBody := imageApiRequest{
		Model:          i.imageConfig.Model,
		Prompt:         genReq.Prompt,
		Size:           size,
		Number:         1,
		ResponseFormat: "b64_json",
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to marshal image request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", i.imageConfig.ApiUrl, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, domain.NewServiceError(false, "failed to create image request", err)
	}

	req.Header.Add("Authorization", "Bearer "+i.imageConfig.ApiKey)
	req.Header.Add("Content-Type", "application/json")

	return req, nil
}
