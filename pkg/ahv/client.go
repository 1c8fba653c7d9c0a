/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ahv implements a REST client for the AHV Prism gateway.
//
// The client owns exactly one authenticated HTTPS endpoint. Requests are
// retried with a fixed-interval backoff; authentication (401/403) and
// conflict (409) responses fail immediately, a fixed set of status codes
// stops retrying early, and everything else is retried until the budget is
// exhausted. Exhaustion is not an error: the failed call is logged and a
// nil body is returned, so callers must treat nil as "it didn't work".
package ahv

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Fatal faults. Everything below this severity is absorbed by the retry
// loop and surfaced as a nil result instead of an error.
var (
	// ErrAuthFailed marks a 401/403 response: bad credentials are not
	// worth retrying.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConflict marks a 409 response: the request conflicts with the
	// current state of the target resource.
	ErrConflict = errors.New("resource conflict")
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetries       = 5
	defaultRetryInterval = 30 * time.Second
)

// Client talks to one AHV endpoint. Its configuration is immutable after
// construction; a Client may be used from a single goroutine at a time,
// and independent Clients need no coordination.
type Client struct {
	server   string
	port     int
	version  string
	username string
	password string

	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	internalDebug bool
	tlsVerify     bool

	baseURL    string
	httpClient *http.Client
	log        logr.Logger
	metrics    *clientMetrics

	// sleep is swapped out in tests to observe the backoff schedule.
	sleep func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithPort overrides the Prism gateway port.
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithVersion selects the interface version (VersionV2 or VersionV3).
func WithVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithRetries sets the maximum number of attempts per request.
func WithRetries(retries int) Option {
	return func(c *Client) { c.retries = retries }
}

// WithRetryInterval sets the sleep between attempts.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *Client) { c.retryInterval = interval }
}

// WithResponseDebug enables detailed logging of every request and
// response body.
func WithResponseDebug(enabled bool) Option {
	return func(c *Client) { c.internalDebug = enabled }
}

// WithTLSVerify enables certificate verification. Prism gateways commonly
// serve self-signed certificates, so verification is off by default.
func WithTLSVerify(verify bool) Option {
	return func(c *Client) { c.tlsVerify = verify }
}

// WithLogger injects the logger used for request/retry/failure reporting.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics registers request/retry collectors on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) { c.metrics = newClientMetrics(reg) }
}

// WithHTTPClient replaces the underlying HTTP client. Mostly useful for
// tests that need to stub the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for one AHV endpoint. Credentials are not
// validated here; a bad username or password surfaces as ErrAuthFailed on
// the first request.
func NewClient(server, username, password string, opts ...Option) *Client {
	c := &Client{
		server:        server,
		port:          DefaultPort,
		version:       VersionV2,
		username:      username,
		password:      password,
		timeout:       defaultTimeout,
		retries:       defaultRetries,
		retryInterval: defaultRetryInterval,
		log:           logr.Discard(),
		sleep:         time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.baseURL = fmt.Sprintf(baseURLTemplate, c.server, c.port, c.version)

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !c.tlsVerify, //nolint:gosec
				},
			},
		}
	}

	return c
}

// makeURL joins the base URL with a relative URI and appends any extra
// args verbatim as additional path/query fragments. No escaping is
// performed; callers own the encoding of what they append.
func (c *Client) makeURL(uri string, args ...string) string {
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}

	url := c.baseURL + uri
	for _, arg := range args {
		url += arg
	}

	return url
}

// Get sends a GET request. Extra args are appended to the URL as-is,
// which is how callers build query strings like "/?name=vm1".
func (c *Client) Get(ctx context.Context, uri string, args ...string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, c.makeURL(uri, args...), nil)
}

// Post sends a POST request. A non-nil body is serialized to JSON as the
// sole payload.
func (c *Client) Post(ctx context.Context, uri string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, c.makeURL(uri), body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, uri string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, c.makeURL(uri), nil)
}

// Call dispatches by explicit HTTP verb. It is the generic entry point
// the command table funnels through.
func (c *Client) Call(ctx context.Context, method, uri string, body any, args ...string) (map[string]any, error) {
	switch method {
	case http.MethodGet:
		return c.Get(ctx, uri, args...)
	case http.MethodPost:
		return c.Post(ctx, uri, body)
	case http.MethodDelete:
		return c.Delete(ctx, uri)
	default:
		return nil, fmt.Errorf("unsupported HTTP method %q", method)
	}
}

// do executes one logical request with the configured retry budget.
//
// Faults are classified per attempt:
//   - connection/timeout errors: warn, sleep, retry
//   - 401/403: return an ErrAuthFailed-wrapped error immediately
//   - 409: return an ErrConflict-wrapped error immediately
//   - status in noRetryStatusCodes: stop retrying, fall through to
//     failure reporting
//   - any other non-2xx: sleep, retry
//
// There is no sleep after the final attempt. When the budget is exhausted
// the failure is logged with the last response body and (nil, nil) is
// returned.
func (c *Client) do(ctx context.Context, method, url string, body any) (map[string]any, error) {
	payload, err := json.Marshal(bodyOrEmpty(body))
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	var (
		lastStatus int
		lastBody   []byte
		seen       bool
	)

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 && c.metrics != nil {
			c.metrics.retriesTotal.Inc()
		}

		status, respBody, err := c.attempt(ctx, method, url, payload)
		if err != nil {
			c.log.Info("request failed, will retry", "method", method, "url", url, "error", err.Error())
			if attempt != c.retries-1 {
				c.sleep(c.retryInterval)
			}
			continue
		}

		seen = true
		lastStatus = status
		lastBody = respBody

		if status >= 200 && status < 300 {
			return decodeBody(respBody)
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			err := fmt.Errorf("HTTP auth failed: %s %s: status %d: %w", method, url, status, ErrAuthFailed)
			c.log.Error(err, "request failed", "body", string(respBody))
			return nil, err
		case status == http.StatusConflict:
			err := fmt.Errorf(
				"HTTP conflict with the current state of the target resource: %s %s: status %d: %w",
				method, url, status, ErrConflict,
			)
			c.log.Error(err, "request failed", "body", string(respBody))
			return nil, err
		case noRetryStatusCodes[status]:
			// These will not succeed on retry.
		default:
			if attempt != c.retries-1 {
				c.sleep(c.retryInterval)
			}
			continue
		}

		break
	}

	if seen {
		c.log.Error(nil, "HTTP request failed",
			"method", method, "url", url, "status", lastStatus, "body", string(lastBody))
	} else {
		c.log.Error(nil, "failed to make the HTTP request", "method", method, "url", url)
	}

	return nil, nil
}

// attempt performs a single network round trip. The session's idle
// connections are dropped after every attempt, so each retry starts from
// a fresh TCP handshake.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	defer c.httpClient.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("content-type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.requestsTotal.WithLabelValues(method, "error").Inc()
		}
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if c.metrics != nil {
		c.metrics.requestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}

	if c.internalDebug {
		c.log.Info("rest call",
			"method", method,
			"url", url,
			"status", resp.StatusCode,
			"response", string(respBody))
	}

	return resp.StatusCode, respBody, nil
}

func bodyOrEmpty(body any) any {
	if body == nil {
		return map[string]any{}
	}
	return body
}

func decodeBody(respBody []byte) (map[string]any, error) {
	if len(respBody) == 0 {
		return map[string]any{}, nil
	}

	out := map[string]any{}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}

	return out, nil
}
