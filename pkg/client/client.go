// Package client is an HTTP client for the fileroot API. Idempotent reads and
// deletes are retried with backoff; uploads, moves and copies are sent once.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/pkg/protocol"
	"github.com/fruitsalade/fileroot/pkg/retry"
)

// Client talks to one fileroot server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu     sync.RWMutex
	online bool
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration // per request, excluding streamed bodies
	RetryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		retryConfig: cfg.RetryConfig,
		online:      true,
	}
}

// APIError is a response the server answered with success false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsNotFound reports whether the server answered 404.
func IsNotFound(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.StatusCode == http.StatusNotFound
}

// IsOnline reports whether the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("server is back online", zap.String("server", c.baseURL))
		} else {
			logging.Warn("server is offline", zap.String("server", c.baseURL))
		}
	}
	c.online = online
}

// Health fetches /health. A degraded server answers 503; its report is
// returned together with an APIError once retries run out.
func (c *Client) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var report *protocol.HealthResponse
	err := retry.Do(ctx, c.retryConfig, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		var h protocol.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			err = &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			if resp.StatusCode >= http.StatusInternalServerError {
				return retry.Retryable(err)
			}
			return err
		}
		report = &h
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: h.Status}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.Retryable(apiErr)
		}
		return apiErr
	})
	return report, err
}

// List returns the entries of the directory at path. An empty path lists
// the root.
func (c *Client) List(ctx context.Context, path string) ([]protocol.FileInfo, error) {
	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}
	return retry.DoWithResult(ctx, c.retryConfig, func() ([]protocol.FileInfo, error) {
		resp, err := c.send(ctx, http.MethodGet, "/api/v1/ls", q, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var lr protocol.ListResponse
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		if err := checkStatus(resp.StatusCode, lr.Response); err != nil {
			return nil, err
		}
		return lr.Files, nil
	})
}

// Mkdir creates one directory.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		return c.call(ctx, http.MethodPut, "/api/v1/mkdir", url.Values{"path": {path}}, nil)
	})
}

// Rmdir removes a directory and everything under it.
func (c *Client) Rmdir(ctx context.Context, path string) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		return c.call(ctx, http.MethodDelete, "/api/v1/rmdir", url.Values{"path": {path}}, nil)
	})
}

// Remove deletes one file.
func (c *Client) Remove(ctx context.Context, path string) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		return c.call(ctx, http.MethodDelete, "/api/v1/rm", url.Values{"path": {path}}, nil)
	})
}

// Move renames from to to. It is not retried: a lost response followed by a
// second attempt would report a missing source.
func (c *Client) Move(ctx context.Context, from, to string) error {
	return c.call(ctx, http.MethodPut, "/api/v1/mv", url.Values{"from": {from}, "to": {to}}, nil)
}

// Copy duplicates a file or directory tree. Not retried.
func (c *Client) Copy(ctx context.Context, from, to string) error {
	return c.call(ctx, http.MethodPut, "/api/v1/cp", url.Values{"from": {from}, "to": {to}}, nil)
}

// Upload streams body to a new file at path. A body that cannot be rewound
// cannot be resent, so uploads are never retried.
func (c *Client) Upload(ctx context.Context, path string, body io.Reader, size int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/upload", url.Values{"path": {path}}, body)
	if err != nil {
		return err
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readEnvelope(resp)
}

// Download is an open file stream from the server.
type Download struct {
	io.ReadCloser
	Size        int64
	ContentType string
}

// Download opens the file at path. With peek the server omits the attachment
// disposition. Only failures before the body starts are retried.
func (c *Client) Download(ctx context.Context, path string, peek bool) (*Download, error) {
	q := url.Values{"path": {path}}
	if peek {
		q.Set("peek", "true")
	}
	return retry.DoWithResult(ctx, c.retryConfig, func() (*Download, error) {
		resp, err := c.send(ctx, http.MethodGet, "/api/v1/download", q, nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, readEnvelope(resp)
		}
		return &Download{
			ReadCloser:  resp.Body,
			Size:        resp.ContentLength,
			ContentType: resp.Header.Get("Content-Type"),
		}, nil
	})
}

// Watch streams mutation events to fn until ctx ends or the server closes
// the stream.
func (c *Client) Watch(ctx context.Context, fn func(protocol.Event)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/events", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readEnvelope(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var e protocol.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			logging.Debug("skipping malformed event", zap.Error(err))
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

// call sends a request and decodes the standard envelope.
func (c *Client) call(ctx context.Context, method, endpoint string, q url.Values, body io.Reader) error {
	resp, err := c.send(ctx, method, endpoint, q, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readEnvelope(resp)
}

// send performs one attempt. Transport failures and 5xx answers are marked
// retryable; the caller owns the body of a non-nil response.
func (c *Client) send(ctx context.Context, method, endpoint string, q url.Values, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, endpoint, q, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, retry.Retryable(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		defer resp.Body.Close()
		return nil, retry.Retryable(readEnvelope(resp))
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return http.NewRequestWithContext(ctx, method, u, body)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() == nil {
			c.setOnline(false)
		}
		return nil, err
	}
	c.setOnline(true)
	return resp, nil
}

// readEnvelope turns a JSON envelope into nil or an APIError.
func readEnvelope(resp *http.Response) error {
	var env protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode == http.StatusOK {
			return fmt.Errorf("decode response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return checkStatus(resp.StatusCode, env)
}

func checkStatus(status int, env protocol.Response) error {
	if status == http.StatusOK && env.Success {
		return nil
	}
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
