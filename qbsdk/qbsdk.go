/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Version is reported to the API in the QB-SDK header.
const Version = "1.3.6"

// Plugin represents a QuickBlox API plugin
type Plugin interface {
	// Name returns the name of the plugin
	Name() string
}

// Client is the core QuickBlox REST client. Plugins (auth, users, dialogs,
// messages) issue their requests through it.
type Client struct {
	// HTTP client used to communicate with the API
	httpClient *http.Client

	// Base URL for API requests
	BaseURL *url.URL

	// Session token for API authentication
	mu          sync.RWMutex
	accessToken string

	// Plugins registered with the client
	plugins map[string]Plugin

	// Configuration for the client
	Config *Config

	// Logger for SDK operations
	logger Logger
}

// GetAccessToken returns the session token used for API authentication
func (c *Client) GetAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken replaces the session token, typically after a session
// has been created through the auth plugin.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// GetHTTPClient returns the HTTP client used for API requests
func (c *Client) GetHTTPClient() *http.Client {
	return c.httpClient
}

// GetLogger returns the logger used by the SDK.
func (c *Client) GetLogger() Logger {
	return c.logger
}

// NewClient creates a new QuickBlox client. The token may be empty when the
// configuration carries application credentials, in which case a session is
// created later through the auth plugin.
func NewClient(accessToken string, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if accessToken == "" && !config.Creds.Complete() {
		return nil, fmt.Errorf("access token cannot be empty without application credentials")
	}

	baseURL, err := url.Parse(config.APIBaseURL())
	if err != nil {
		return nil, err
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", config.APIBaseURL())
	}

	// Create HTTP client - either use the provided custom client or create a default one
	httpClient := config.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = NewLogger(config.Debug)
	}

	client := &Client{
		httpClient:  httpClient,
		BaseURL:     baseURL,
		accessToken: accessToken,
		plugins:     make(map[string]Plugin),
		logger:      logger,
		Config:      config,
	}

	return client, nil
}

// RegisterPlugin registers a plugin with the client
func (c *Client) RegisterPlugin(plugin Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins[plugin.Name()] = plugin
}

// GetPlugin returns a plugin by name
func (c *Client) GetPlugin(name string) (Plugin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plugin, ok := c.plugins[name]
	return plugin, ok
}

// ResourcePath builds the relative path of a REST resource, optionally
// addressed by id, terminated by the configured type suffix:
// ResourcePath("chat/Dialog", "42") == "chat/Dialog/42.json".
func (c *Client) ResourcePath(base string, id ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.Trim(base, "/"))
	for _, part := range id {
		if part == "" {
			continue
		}
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(part))
	}
	sb.WriteString(c.Config.URLs.Type)
	return sb.String()
}

// Request performs an HTTP request to the QuickBlox API with automatic retry
// for transient errors (429, 502, 503, 504).
// The caller is responsible for closing the response body when done.
func (c *Client) Request(method, path string, params url.Values, body interface{}) (*http.Response, error) {
	return c.RequestWithRetry(context.Background(), method, path, params, body)
}

// RequestWithContext performs a single HTTP request with the given context.
// The caller is responsible for closing the response body when done.
func (c *Client) RequestWithContext(ctx context.Context, method, path string, params url.Values, body interface{}) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL.String() + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}

	if params != nil {
		u.RawQuery = params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	if token := c.GetAccessToken(); token != "" {
		req.Header.Set("QB-Token", token)
	}
	req.Header.Set("QB-SDK", "Go "+Version)
	req.Header.Set("QB-Request-ID", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")

	for k, v := range c.Config.DefaultHeaders {
		req.Header.Set(k, v)
	}

	return c.httpClient.Do(req)
}

// RequestWithRetry performs an HTTP request with automatic retry for transient errors.
// It retries on HTTP 429 (Too Many Requests, respecting Retry-After header) and
// transient server errors (502, 503, 504) using exponential backoff.
// The caller is responsible for closing the response body when done.
func (c *Client) RequestWithRetry(ctx context.Context, method, path string, params url.Values, body interface{}) (*http.Response, error) {
	maxRetries := c.Config.MaxRetries
	baseDelay := c.Config.RetryBaseDelay
	if baseDelay == 0 {
		baseDelay = 1 * time.Second
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = c.RequestWithContext(ctx, method, path, params, body)
		if err != nil {
			return nil, err
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == maxRetries {
			return resp, nil
		}

		delay := retryDelay(resp, baseDelay, attempt)
		c.logger.Printf("[QBSDK] %s %s returned %d, retrying in %s", method, path, resp.StatusCode, delay)

		// Close the response body before retrying
		resp.Body.Close()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return resp, err
}

// isRetryableStatus returns true for HTTP status codes that should be retried.
func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// retryDelay calculates the delay before the next retry attempt.
// For 429 responses, it respects the Retry-After header if present.
// Otherwise, it uses exponential backoff: baseDelay * 2^attempt.
func retryDelay(resp *http.Response, baseDelay time.Duration, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return baseDelay * (1 << uint(attempt))
}

// ParseResponse parses an HTTP response into the given interface. A nil
// target discards the body, which suits delete calls answering with an
// empty 200.
func ParseResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return NewAPIError(resp, body)
	}

	if v == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	return json.Unmarshal(body, v)
}
