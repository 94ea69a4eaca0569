package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// ExecutePath is the worker's HTTP execute endpoint.
const ExecutePath = "/api/execute"

// HTTPPeer sends requests to a worker's HTTP endpoint. Each request is
// independent, so only requests that finish their own session are allowed.
type HTTPPeer struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// HTTPOption configures an HTTPPeer.
type HTTPOption func(*HTTPPeer)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) HTTPOption {
	return func(p *HTTPPeer) { p.token = token }
}

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(p *HTTPPeer) { p.httpClient = c }
}

// NewHTTPPeer creates a peer for the worker at baseURL.
func NewHTTPPeer(baseURL string, log logger.Logger, opts ...HTTPOption) *HTTPPeer {
	p := &HTTPPeer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     log.WithField("component", "http_peer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute posts req and decodes the response envelope. Error envelopes are
// returned as responses, not errors.
func (p *HTTPPeer) Execute(ctx context.Context, req protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	if req.SessionScoped() && !req.Done() {
		return nil, ErrStepwiseUnsupported
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ExecutePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope protocol.Response
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Status == "" {
		p.logger.Warn(ctx, "Worker returned a non-envelope body", map[string]interface{}{
			"status": resp.StatusCode,
		})
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("worker returned %s: %s", resp.Status, truncate(strings.TrimSpace(string(data)), 200))
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(string(data), 200))
	}
	return &envelope, nil
}
