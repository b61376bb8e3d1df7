// Package ollama classifies leaf photos with a vision model served by Ollama.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/leaf-doctor/internal/httpc"
	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/pkg/classify"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// DefaultTimeout bounds a request whose context has no deadline. Vision
// models on CPU are slow.
const DefaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
	kb     classify.KnowledgeBase
}

// NewClient creates a new Ollama client for model
func NewClient(ollamaURL, model string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing scheme or host", ollamaURL)
	}
	if model == "" {
		return nil, errors.New("model is required")
	}

	// Drop any path like /api/chat; the SDK adds its own.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, httpc.NewClient(timeout)),
		model:  model,
		kb:     classify.Builtin(),
	}, nil
}

// Predict asks the model for a class and attaches the advice for it.
// The model answers with identifiers only, so lang is not used.
func (c *Client) Predict(ctx context.Context, artifact types.Artifact, lang string) (*types.Diagnosis, error) {
	const op = "predict"

	if len(artifact.Data) == 0 {
		return nil, failure.Newf(failure.TransportError, op, "artifact is empty")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	content, err := c.chat(ctx, classify.Prompt(), artifact.Data, true)
	if err != nil {
		return nil, transportError(op, err)
	}

	d := classify.ParseAnswer(content)
	c.kb.Enrich(d)
	log.Debug("ollama diagnosis", "model", c.model, "class", d.Class, "confidence", d.Confidence)
	return d, nil
}

// Describe asks the model what it sees, to check it receives images at all.
func (c *Client) Describe(ctx context.Context, artifact types.Artifact) (string, error) {
	content, err := c.chat(ctx, classify.SimpleTestPrompt, artifact.Data, false)
	if err != nil {
		return "", transportError("describe", err)
	}
	return content, nil
}

// Ping reports the server version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	v, err := c.client.Version(ctx)
	if err != nil {
		return "", transportError("ping", err)
	}
	return "ollama " + v, nil
}

func (c *Client) chat(ctx context.Context, prompt string, img []byte, jsonOut bool) (string, error) {
	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(img)},
			},
		},
		Stream:  &streamFalse,
		Options: modelOptions(c.model),
	}
	if jsonOut {
		req.Format = json.RawMessage(`"json"`)
	}

	var b strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", errors.New("empty response from ollama")
	}
	return b.String(), nil
}

// modelOptions keeps answers deterministic; MiniCPM-V 4.x also needs a larger context.
func modelOptions(model string) map[string]any {
	options := map[string]any{"temperature": 0.0}

	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}
	return options
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failure.NewTransport(op, 0, err)
	}
	var se api.StatusError
	if errors.As(err, &se) {
		return failure.NewTransport(op, se.StatusCode, err)
	}
	return failure.NewTransport(op, 0, fmt.Errorf("ollama chat error: %w", err))
}
