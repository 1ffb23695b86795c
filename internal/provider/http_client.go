package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RequestError represents a non-2xx response from the generation endpoint.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("clip generation request failed (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("clip generation request failed (HTTP %d): %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// ResponseShapeError represents a 2xx response that did not carry a
// usable clip URL. It is a failure for the attempt, not a crash.
type ResponseShapeError struct {
	Detail string
}

func (e *ResponseShapeError) Error() string {
	return "provider response did not include a playable clip URL: " + e.Detail
}

// HTTPClient talks to the remote clip-generation provider. One POST
// per attempt; the caller decides whether to retry.
type HTTPClient struct {
	endpoint   string
	credential string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(endpoint, credential string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint:   endpoint,
		credential: credential,
		httpClient: &http.Client{
			// Generation is slow; timeout policy beyond this belongs to
			// the provider, not the orchestration core.
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Name() string { return "remote" }

type clipRequestPayload struct {
	Prompt          string           `json:"prompt"`
	DurationSeconds int              `json:"duration_seconds"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

// clipResponsePayload tolerates the response shapes observed across
// provider deployments: url, data.url, video_url, data.video_url.
type clipResponsePayload struct {
	URL             string `json:"url"`
	VideoURL        string `json:"video_url"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
	Data            *struct {
		URL             string `json:"url"`
		VideoURL        string `json:"video_url"`
		ThumbnailURL    string `json:"thumbnail_url"`
		DurationSeconds int    `json:"duration_seconds"`
	} `json:"data"`
}

func (p *clipResponsePayload) clipURL() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Data != nil && p.Data.URL != "" {
		return p.Data.URL
	}
	if p.VideoURL != "" {
		return p.VideoURL
	}
	if p.Data != nil && p.Data.VideoURL != "" {
		return p.Data.VideoURL
	}
	return ""
}

func (p *clipResponsePayload) thumbnailURL() string {
	if p.ThumbnailURL != "" {
		return p.ThumbnailURL
	}
	if p.Data != nil {
		return p.Data.ThumbnailURL
	}
	return ""
}

func (p *clipResponsePayload) durationSeconds() int {
	if p.DurationSeconds > 0 {
		return p.DurationSeconds
	}
	if p.Data != nil {
		return p.Data.DurationSeconds
	}
	return 0
}

func (c *HTTPClient) GenerateClip(ctx context.Context, req ClipRequest) (*Clip, error) {
	body, err := json.Marshal(clipRequestPayload{
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationS,
		ReferenceImages: req.ReferenceImages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal clip request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	httpReq.Header.Set("X-Storyforge-Request-Id", generateRequestID())

	if c.logger != nil {
		c.logger.Info("requesting clip generation",
			"endpoint", c.endpoint,
			"segment", req.SegmentIndex,
			"duration_s", req.DurationS,
			"reference_images", len(req.ReferenceImages),
		)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var payload clipResponsePayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &ResponseShapeError{Detail: "response body is not valid JSON"}
	}

	url := payload.clipURL()
	if url == "" {
		return nil, &ResponseShapeError{Detail: "no url, data.url, video_url, or data.video_url field"}
	}
	if !IsPlayableURL(url) {
		return nil, &ResponseShapeError{Detail: fmt.Sprintf("url %q is not http(s) or blob", url)}
	}

	durationS := payload.durationSeconds()
	if durationS == 0 {
		durationS = req.DurationS
	}

	if c.logger != nil {
		c.logger.Info("clip generated", "segment", req.SegmentIndex, "url", url)
	}

	return &Clip{
		URL:          url,
		ThumbnailURL: payload.thumbnailURL(),
		DurationS:    durationS,
		Prompt:       req.Prompt,
	}, nil
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
