// Package llamacpp classifies leaf photos with a multimodal model behind a
// llama.cpp server, using its OpenAI-compatible chat endpoint.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/leaf-doctor/internal/httpc"
	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/pkg/classify"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// DefaultURL is where llama-server listens by default.
const DefaultURL = "http://localhost:8080"

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	kb         classify.KnowledgeBase
}

// OpenAI-compatible message format
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type ChatCompletionResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// statusError carries the HTTP status of a failed call.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.code, e.body)
}

func NewClient(serverURL, model string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL %q: scheme must be http or https", serverURL)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		model:      model,
		httpClient: httpc.NewClient(timeout),
		kb:         classify.Builtin(),
	}, nil
}

// Predict asks the model for a class and attaches the advice for it.
// lang is not used; the model answers with identifiers.
func (c *Client) Predict(ctx context.Context, artifact types.Artifact, lang string) (*types.Diagnosis, error) {
	const op = "predict"

	if len(artifact.Data) == 0 {
		return nil, failure.Newf(failure.TransportError, op, "artifact is empty")
	}

	text, err := c.complete(ctx, classify.Prompt(), artifact, 0, 512)
	if err != nil {
		return nil, transportError(op, err)
	}

	d := classify.ParseAnswer(text)
	c.kb.Enrich(d)
	log.Debug("llama.cpp diagnosis", "class", d.Class, "confidence", d.Confidence)
	return d, nil
}

// Describe asks the model what it sees, to check it receives images at all.
func (c *Client) Describe(ctx context.Context, artifact types.Artifact) (string, error) {
	text, err := c.complete(ctx, classify.SimpleTestPrompt, artifact, 0.7, 2048)
	if err != nil {
		return "", transportError("describe", err)
	}
	return text, nil
}

// Ping queries the server health endpoint.
func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "", transportError("ping", err)
	}
	body, err := c.do(req)
	if err != nil {
		return "", transportError("ping", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil || health.Status == "" {
		return strings.TrimSpace(string(body)), nil
	}
	return "llama.cpp " + health.Status, nil
}

func (c *Client) complete(ctx context.Context, prompt string, artifact types.Artifact, temperature float64, maxTokens int) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	content := []ContentPart{
		{Type: "text", Text: prompt},
		{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(artifact.Data),
			},
		},
	}

	payload, err := json.Marshal(ChatCompletionRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: content}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	if text := messageText(resp.Choices[0].Message.Content); text != "" {
		return text, nil
	}
	return "", errors.New("empty response from llama.cpp server")
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// messageText handles both string and content-part array replies.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func transportError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return failure.NewTransport(op, se.code, err)
	}
	return failure.NewTransport(op, 0, err)
}
