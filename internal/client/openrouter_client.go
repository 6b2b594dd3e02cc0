package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/faceswaplab/api/internal/config"
)

const swapPrompt = `You are an expert photo editor.
We have two images:
1) BASE: keep everything from this image (background, pose, clothing, hair, lighting).
2) SELFIE: use ONLY the face identity from this image.

Task: Replace ONLY the face of the person in BASE with the face identity from SELFIE.
Rules:
- Preserve BASE composition: background, body, pose, clothes, hair style, camera angle.
- Match BASE lighting and shadows.
- Photorealistic.
- Output a single edited image.
- If no clear face is visible in either image, output text 'NO_FACE'.
`

// OpenRouterClient implements SwapProvider against the OpenRouter
// chat-completions API using an image-output model.
type OpenRouterClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type chatContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatCompletionRequest struct {
	Model      string        `json:"model"`
	Modalities []string      `json:"modalities"`
	Messages   []chatMessage `json:"messages"`
	Stream     bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenRouterClient creates a new OpenRouter API client.
func NewOpenRouterClient(cfg *config.OpenRouterConfig) *OpenRouterClient {
	return &OpenRouterClient{
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// IsConfigured returns true if the client has valid configuration.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Swap submits one image-edit request. Backend conditions are classified into
// the SwapResult outcome; a non-nil error means the request could not even be
// constructed.
func (c *OpenRouterClient) Swap(ctx context.Context, baseImage, selfieImage []byte) (*SwapResult, error) {
	reqBody := chatCompletionRequest{
		Model:      c.model,
		Modalities: []string{"image", "text"},
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					textPart(swapPrompt),
					textPart("BASE IMAGE:"),
					imagePart(baseImage),
					textPart("SELFIE IMAGE:"),
					imagePart(selfieImage),
				},
			},
		},
		Stream: false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[OpenRouter] → POST %s model=%s (payload %d bytes)", req.URL.String(), c.model, len(bodyBytes))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are backend conditions, not caller
		// mistakes: retryable.
		if errors.Is(err, context.DeadlineExceeded) {
			return transient("request timed out", 0), nil
		}
		return transient(fmt.Sprintf("request failed: %v", err), 0), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transient(fmt.Sprintf("failed to read response: %v", err), 0), nil
	}

	log.Printf("[OpenRouter] ← %d (%d bytes)", resp.StatusCode, len(respBody))

	if resp.StatusCode == http.StatusTooManyRequests {
		return transient(fmt.Sprintf("rate limited (status 429): %s", preview(respBody)), retryAfterHint(resp)), nil
	}
	if resp.StatusCode >= 500 {
		return transient(fmt.Sprintf("backend error (status %d): %s", resp.StatusCode, preview(respBody)), retryAfterHint(resp)), nil
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return fatal(fmt.Sprintf("non-JSON response (status %d): %s", resp.StatusCode, preview(respBody))), nil
	}

	if chatResp.Error != nil {
		return fatal("openrouter error: " + chatResp.Error.Message), nil
	}
	if resp.StatusCode >= 400 {
		return fatal(fmt.Sprintf("openrouter API error (status %d): %s", resp.StatusCode, preview(respBody))), nil
	}
	if len(chatResp.Choices) == 0 {
		return fatal("no choices in response"), nil
	}

	message := chatResp.Choices[0].Message
	if len(message.Images) == 0 {
		if strings.Contains(message.Content, "NO_FACE") {
			return &SwapResult{Outcome: SwapNoFace, Message: "no clear face detected in input images"}, nil
		}
		return fatal("no image returned in response; check the model supports image output"), nil
	}

	imgBytes, mime, err := decodeDataURL(message.Images[0].ImageURL.URL)
	if err != nil {
		return fatal("failed to decode returned image: " + err.Error()), nil
	}

	log.Printf("[OpenRouter] decoded output image bytes=%d mime=%s", len(imgBytes), mime)
	return &SwapResult{Outcome: SwapSuccess, Image: imgBytes, MimeType: mime}, nil
}

func textPart(text string) chatContent {
	return chatContent{Type: "text", Text: text}
}

func imagePart(data []byte) chatContent {
	mime := mimetype.Detect(data).String()
	url := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	part := chatContent{Type: "image_url"}
	part.ImageURL = &struct {
		URL string `json:"url"`
	}{URL: url}
	return part
}

// decodeDataURL turns "data:image/png;base64,..." into raw bytes + mime type.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, "", fmt.Errorf("expected a data URL")
	}
	header, b64, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mime := strings.TrimPrefix(strings.SplitN(header, ";", 2)[0], "data:")
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", err
	}
	return raw, mime, nil
}

func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func transient(msg string, retryAfter time.Duration) *SwapResult {
	return &SwapResult{Outcome: SwapTransient, Message: msg, RetryAfter: retryAfter}
}

func fatal(msg string) *SwapResult {
	return &SwapResult{Outcome: SwapFatal, Message: msg}
}

func preview(body []byte) string {
	const max = 500
	s := string(body)
	if len(s) > max {
		return s[:max] + "...(truncated)"
	}
	return s
}
