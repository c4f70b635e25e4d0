// Package renderer provides the HTTP client for the external section
// rendering engine, which turns a template plus a data binding into one
// rendered PDF document.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/assesskit/reportgen/internal/core"
)

const maxRenderedSectionBytes = 64 << 20 // 64 MiB

// ClientOptions groups configuration for the renderer Client.
type ClientOptions struct {
	BaseURL    string        // Required: base URL of the render endpoint
	Timeout    time.Duration // Optional: per-call timeout, defaults to 60s
	HTTPClient *http.Client  // Optional: override transport, mainly for tests
	Logger     *slog.Logger  // Optional
}

// Client calls the external renderer over HTTP. Calls are synchronous and
// stateless; one call renders one document.
type Client struct {
	renderURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ core.SectionRenderer = (*Client)(nil)

type renderRequest struct {
	TemplateID string `json:"template_id"`
	Data       any    `json:"data"`
}

// NewClient constructs a renderer Client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("BaseURL must be a valid http(s) URL: %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "renderer_client")
	}

	return &Client{
		renderURL:  base + "/render",
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Render posts the template and binding to the renderer and returns the
// rendered document bytes.
func (c *Client) Render(ctx context.Context, templateID string, data any) ([]byte, error) {
	body, err := json.Marshal(renderRequest{TemplateID: templateID, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.renderURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", templateID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("render %s: unexpected status %d: %s",
			templateID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	rendered, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderedSectionBytes))
	if err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}
	if len(rendered) == 0 {
		return nil, fmt.Errorf("render %s: empty document", templateID)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "section rendered", "template_id", templateID, "bytes", len(rendered))
	}

	return rendered, nil
}
