package adapters

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type ContentFetcher interface {
	FetchContent(req *http.Request) ([]byte, error)
}

type contentFetcher struct {
	logger outbound.LoggerPort
	client *http.Client
}

func NewContentFetcher(logger outbound.LoggerPort) ContentFetcher {
	return &contentFetcher{
		logger: logger,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// FetchContent performs the request and classifies failures: transport
// errors, 429 and 5xx are retryable service errors; policy rejections
// become content_policy errors; anything else non-2xx is a permanent
// service error.
func (c *contentFetcher) FetchContent(req *http.Request) ([]byte, error) {
	res, err := c.client.Do(req)
	if err != nil {
		c.logger.ErrorWithFields(err, "Failed to send the HTTP request", map[string]interface{}{
			"method": req.Method,
			"URL":    req.URL.String(),
		})
		return nil, domain.NewServiceError(true, "request failed", err)
	}

	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Error(cerr, "Failed to close the response body")
		}
	}(res.Body)

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		c.logger.Error(err, "Failed to read the response body")
		return nil, domain.NewServiceError(true, "failed to read response body", err)
	}

	if res.StatusCode == http.StatusOK {
		return payload, nil
	}

	message := string(payload)
	c.logger.ErrorWithFields(nil, "HTTP request returned non-OK status code", map[string]interface{}{
		"method":  req.Method,
		"URL":     req.URL.String(),
		"status":  res.StatusCode,
		"message": message,
	})

	if isPolicyRejection(res.StatusCode, message) {
		return nil, domain.NewContentPolicyError(
			fmt.Sprintf("request rejected by content policy: %d", res.StatusCode), nil)
	}

	retryable := res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
	return nil, domain.NewServiceError(retryable,
		fmt.Sprintf("HTTP request returned non-OK status code: %d", res.StatusCode), nil)
}

func isPolicyRejection(status int, body string) bool {
	if status != http.StatusBadRequest && status != http.StatusForbidden {
		return false
	}
	lowered := strings.ToLower(body)
	for _, marker := range []string{"content_policy", "content policy", "sensitive", "safety system"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
