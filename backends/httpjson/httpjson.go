// Package httpjson implements a backend that POSTs prompts as JSON to an
// HTTP endpoint and returns the decoded response body untouched.
package httpjson

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmgov/internal/httputil"
	"github.com/blueberrycongee/llmgov/pkg/backend"
	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
)

// DefaultName is used when the config leaves the backend name empty.
const DefaultName = "httpjson"

// maxErrorMessage caps error messages taken from response bodies.
const maxErrorMessage = 256

type invokeRequest struct {
	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Backend calls a JSON-over-HTTP language-model endpoint.
type Backend struct {
	name    string
	url     string
	apiKey  string
	headers map[string]string
	client  *http.Client

	maxResponseBytes int64
}

// New creates an HTTP backend from cfg. A zero Timeout leaves the deadline
// to the caller's context.
func New(cfg backend.Config) (*Backend, error) {
	if err := backend.ValidateURL(cfg.URL); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Backend{
		name:    name,
		url:     strings.TrimSpace(cfg.URL),
		apiKey:  cfg.APIKey,
		headers: headers,
		client:  &http.Client{Timeout: cfg.Timeout},

		maxResponseBytes: cfg.MaxResponseBytes,
	}, nil
}

// Factory adapts New to backend.Factory.
func Factory(cfg backend.Config) (backend.Backend, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Invoke sends the prompt and returns the decoded body. JSON bodies decode
// to maps, slices or scalars; anything else is returned as a string.
func (b *Backend) Invoke(ctx context.Context, prompt string, params map[string]any) (any, error) {
	body, err := json.Marshal(invokeRequest{Prompt: prompt, Parameters: params})
	if err != nil {
		return nil, llmerrors.NewInvalidRequestError(b.name, "encode request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, llmerrors.NewInvalidRequestError(b.name, "build request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, b.mapTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httputil.ReadLimitedBody(resp.Body, b.maxResponseBytes)
	tooLarge := stderrors.Is(err, httputil.ErrResponseBodyTooLarge)
	if err != nil && !tooLarge {
		return nil, b.mapTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, b.MapError(resp.StatusCode, data)
	}
	if tooLarge {
		return nil, llmerrors.NewMalformedResponseError(b.name, fmt.Sprintf("response exceeds %d bytes", len(data)))
	}
	return decodeBody(data), nil
}

// MapError converts a non-2xx response into a BackendError.
func (b *Backend) MapError(statusCode int, body []byte) error {
	return llmerrors.FromStatus(b.name, statusCode, errorMessage(statusCode, body))
}

func (b *Backend) mapTransportError(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewTimeoutError(b.name, "request deadline exceeded")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return llmerrors.NewTimeoutError(b.name, "request timed out")
	}
	return llmerrors.NewConnectionError(b.name, err.Error())
}

// decodeBody returns nil for an empty body, the decoded value for valid
// JSON and the raw text otherwise.
func decodeBody(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(data)
}

func errorMessage(statusCode int, body []byte) string {
	var errResp struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case len(errResp.Error) > 0 && json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "":
			message = nested.Message
		case len(errResp.Error) > 0 && json.Unmarshal(errResp.Error, &flat) == nil && flat != "":
			message = flat
		case errResp.Message != "":
			message = errResp.Message
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = fmt.Sprintf("backend returned status %d", statusCode)
	}
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage]
	}
	return message
}
