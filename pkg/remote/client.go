// Package remote talks to the HTTP prediction service: POST /predict with a
// multipart "file" field and GET /ping.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/leaf-doctor/internal/httpc"
	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// DefaultURL is where the prediction service listens by default.
const DefaultURL = "http://localhost:8000"

// FileField is the multipart field carrying the image.
const FileField = "file"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client is an HTTP prediction client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at serverURL. A zero timeout
// leaves the deadline to the request context.
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL %q: scheme must be http or https", serverURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing host", serverURL)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: httpc.NewClient(timeout),
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Predict uploads the artifact and decodes the diagnosis. Any failure,
// including a non-200 status or an unreadable body, is a TransportError.
func (c *Client) Predict(ctx context.Context, artifact types.Artifact, lang string) (*types.Diagnosis, error) {
	const op = "predict"

	if len(artifact.Data) == 0 {
		return nil, failure.Newf(failure.TransportError, op, "artifact is empty")
	}

	body, contentType, err := encodeMultipart(artifact)
	if err != nil {
		return nil, failure.NewTransport(op, 0, err)
	}

	endpoint := c.baseURL + "/predict"
	if lang != "" {
		endpoint += "?" + url.Values{"lang": {lang}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, failure.NewTransport(op, 0, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.NewTransport(op, 0, err)
	}
	defer resp.Body.Close()

	log.Debug("prediction response",
		"status", resp.StatusCode,
		"lang", lang,
		"bytes", len(artifact.Data),
		"elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, failure.NewTransport(op, resp.StatusCode,
			fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var d types.Diagnosis
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, failure.NewTransport(op, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	if d.Class == "" {
		return nil, failure.NewTransport(op, resp.StatusCode, errors.New("response has no class"))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return nil, failure.NewTransport(op, resp.StatusCode, fmt.Errorf("confidence %g outside [0,1]", d.Confidence))
	}
	normalizeLists(&d)
	return &d, nil
}

// Ping checks that the service is alive and returns its greeting.
func (c *Client) Ping(ctx context.Context) (string, error) {
	const op = "ping"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return "", failure.NewTransport(op, 0, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failure.NewTransport(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", failure.NewTransport(op, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", failure.NewTransport(op, resp.StatusCode,
			fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	// The service answers with a JSON string; accept plain text too.
	var greeting string
	if err := json.Unmarshal(body, &greeting); err != nil {
		greeting = strings.TrimSpace(string(body))
	}
	return greeting, nil
}

func encodeMultipart(artifact types.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := artifact.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileField, filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func normalizeLists(d *types.Diagnosis) {
	if d.Cause == nil {
		d.Cause = []string{}
	}
	if d.Precaution == nil {
		d.Precaution = []string{}
	}
	if d.Cure == nil {
		d.Cure = []string{}
	}
}
