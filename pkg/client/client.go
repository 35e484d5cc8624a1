// Package client is a thin Go SDK for the FastLED WASM compile
// service. It exposes synchronous and streaming entry points over the
// same HTTP contract the service's internal/api package implements —
// there is no separate async variant to keep in sync.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the service's root, e.g. "http://localhost:80".
	BaseURL string
	// AuthToken is the shared bearer token for protected endpoints.
	AuthToken string
	// Timeout bounds a single non-streaming request (default 30s).
	Timeout time.Duration
}

// Client is a thin wrapper over the compile service's HTTP surface.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client. Timeout bounds only the synchronous
// (non-streaming) calls; StreamRebuild is bounded by ctx alone, since
// an http.Client-level timeout would also cut off a long-running
// rebuild stream's body read.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Healthz reports whether the service is live.
func (c *Client) Healthz(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fastled-compile-client: healthz: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Settings returns the service's introspected configuration.
func (c *Client) Settings(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/settings", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fastled-compile-client: decode settings: %w", err)
	}
	return out, nil
}

// Info returns the service's stats/examples object.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/info", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fastled-compile-client: decode info: %w", err)
	}
	return out, nil
}

// InUse reports whether the build lock is currently held.
func (c *Client) InUse(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/compile/wasm/inuse", nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	var out struct {
		InUse bool `json:"in_use"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("fastled-compile-client: decode inuse: %w", err)
	}
	return out.InUse, nil
}

// CompileOptions mirrors the /compile/wasm request headers.
type CompileOptions struct {
	Build                 string
	Profile               bool
	Strict                bool
	Native                bool
	NoPlatformio          bool
	AllowLibraryRecompile bool
	SessionID             uint64
}

// CompileResult is the outcome of a successful compile.
type CompileResult struct {
	Artifact    []byte
	SessionID   string
	SessionInfo string
}

// CompileWasm uploads sketch (a zip archive) and returns the packaged
// artifact. On a toolchain failure, the error's message is the
// captured toolchain log.
func (c *Client) CompileWasm(ctx context.Context, sketch io.Reader, opts CompileOptions) (*CompileResult, error) {
	headers := map[string]string{
		"build":            opts.Build,
		"profile":          boolHeader(opts.Profile),
		"strict":           boolHeader(opts.Strict),
		"native":           boolHeader(opts.Native),
		"no_platformio":    boolHeader(opts.NoPlatformio),
		"allow_libcompile": boolHeader(opts.AllowLibraryRecompile),
	}
	if opts.SessionID != 0 {
		headers["session_id"] = strconv.FormatUint(opts.SessionID, 10)
	}

	resp, err := c.do(ctx, http.MethodPost, "/compile/wasm", sketch, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fastled-compile-client: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fastled-compile-client: compile failed (status %d): %s", resp.StatusCode, string(body))
	}

	return &CompileResult{
		Artifact:    body,
		SessionID:   resp.Header.Get("X-Session-Id"),
		SessionInfo: resp.Header.Get("X-Session-Info"),
	}, nil
}

// RebuildOptions mirrors the /compile/libfastled request headers.
type RebuildOptions struct {
	Build  string
	DryRun bool
}

// RebuildEvent is one `data:` line from the library rebuild stream.
type RebuildEvent struct {
	Payload string
}

// StreamRebuild calls /compile/libfastled and invokes onEvent once per
// streamed line, including the four trailer events. It returns once
// the stream closes, or when ctx is cancelled.
func (c *Client) StreamRebuild(ctx context.Context, opts RebuildOptions, onEvent func(RebuildEvent)) error {
	headers := map[string]string{
		"build":   opts.Build,
		"dry_run": boolHeader(opts.DryRun),
	}
	resp, err := c.do(ctx, http.MethodPost, "/compile/libfastled", nil, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fastled-compile-client: rebuild rejected (status %d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if onEvent != nil {
			onEvent(RebuildEvent{Payload: payload})
		}
	}
	return scanner.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	var reqBody io.Reader
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return nil, fmt.Errorf("fastled-compile-client: buffer request body: %w", err)
		}
		reqBody = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("fastled-compile-client: build request: %w", err)
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("authorization", c.cfg.AuthToken)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fastled-compile-client: request failed: %w", err)
	}
	return resp, nil
}

func boolHeader(b bool) string {
	if b {
		return "true"
	}
	return ""
}
