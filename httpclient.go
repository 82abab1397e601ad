package omnillm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// httpClient is the transport shared by every adapter: a base URL, a set of
// default headers, and a tuned http.Client. Configuration is explicit and
// owned by the adapter instance; there is no process-wide client.
type httpClient struct {
	base    string
	headers http.Header
	client  *http.Client
	logger  zerolog.Logger
}

func newHTTPClient(baseURL string, defaultHeaders http.Header, logger zerolog.Logger) *httpClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second, // connect timeout
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	if defaultHeaders == nil {
		defaultHeaders = http.Header{}
	}
	return &httpClient{
		base:    strings.TrimRight(baseURL, "/"),
		headers: defaultHeaders,
		client: &http.Client{
			Transport: transport,
			Timeout:   120 * time.Second, // request timeout
		},
		logger: logger,
	}
}

// httpStatusError is a non-2xx response surfaced verbatim. The adapter owns
// translation into a typed error because error-body shape is
// provider-specific.
type httpStatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (hc *httpClient) do(ctx context.Context, method, path string, body io.Reader, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, hc.base+path, body)
	if err != nil {
		return nil, &NetworkError{SDKError{Message: "failed to create request", Cause: err}}
	}

	for k, vs := range hc.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := hc.client.Do(req)
	if err != nil {
		hc.logger.Debug().Str("method", method).Str("path", path).
			Str("request_id", requestID).Err(err).Msg("http request failed")
		return nil, wrapTransportError(err)
	}

	hc.logger.Debug().Str("method", method).Str("path", path).
		Str("request_id", requestID).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("http request")
	return resp, nil
}

// wrapTransportError maps transport faults to the taxonomy: deadline to
// RequestTimeoutError, cancellation to AbortError, anything else to
// NetworkError.
func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{ProviderError{
			SDKError: SDKError{Message: "request timed out", Cause: err},
		}}
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{SDKError{Message: "request cancelled", Cause: err}}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &RequestTimeoutError{ProviderError{
			SDKError: SDKError{Message: "request timed out", Cause: err},
		}}
	}
	return &NetworkError{SDKError{Message: "request failed", Cause: err}}
}

// postJSON posts a JSON body and returns the response body and headers.
// Non-2xx responses come back as *httpStatusError. A timeout of zero keeps
// the transport default.
func (hc *httpClient) postJSON(ctx context.Context, path string, body []byte, headers http.Header, timeout time.Duration) ([]byte, http.Header, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := hc.do(ctx, http.MethodPost, path, bytes.NewReader(body), headers)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, wrapTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &httpStatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
	}
	return respBody, resp.Header, nil
}

// cancelReadCloser ties a per-call cancel to the stream body so abandoning
// the stream releases the request.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}

// postStream posts a JSON body and returns the raw response byte stream and
// headers. The caller owns the stream and must close it. The http.Client
// request timeout does not apply; streams are bounded by the per-call
// timeout and the caller's context.
func (hc *httpClient) postStream(ctx context.Context, path string, body []byte, headers http.Header, timeout time.Duration) (io.ReadCloser, http.Header, error) {
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	streamClient := &http.Client{Transport: hc.client.Transport}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.base+path, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, &NetworkError{SDKError{Message: "failed to create request", Cause: err}}
	}
	for k, vs := range hc.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, wrapTransportError(err)
	}

	hc.logger.Debug().Str("method", http.MethodPost).Str("path", path).
		Str("request_id", requestID).Int("status", resp.StatusCode).Msg("http stream opened")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, resp.Header, &httpStatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
	}

	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, resp.Header, nil
}

// getJSON issues a GET and returns the response body and headers. Non-2xx
// responses come back as *httpStatusError.
func (hc *httpClient) getJSON(ctx context.Context, path string, headers http.Header) ([]byte, http.Header, error) {
	resp, err := hc.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, wrapTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &httpStatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
	}
	return respBody, resp.Header, nil
}

// translateHTTPError maps a transport failure into the taxonomy. Typed
// errors pass through untouched; *httpStatusError is classified by status
// code after extracting the provider's message from the common error-body
// shapes ({"error":{"message","code","type"}}, top-level "message", and
// Mistral's "detail").
func translateHTTPError(provider string, err error) error {
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	body := statusErr.Body
	message := gjson.GetBytes(body, "error.message").String()
	errorCode := gjson.GetBytes(body, "error.code").String()
	if errorCode == "" {
		errorCode = gjson.GetBytes(body, "error.type").String()
	}
	if message == "" {
		message = gjson.GetBytes(body, "message").String()
	}
	if message == "" {
		if detail := gjson.GetBytes(body, "detail"); detail.Exists() {
			message = detail.String()
		}
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", statusErr.StatusCode, string(body))
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	retryAfter := parseRetryAfter(statusErr.Header.Get("Retry-After"))
	return ErrorFromStatusCode(statusErr.StatusCode, message, provider, errorCode, raw, retryAfter)
}

// parseRetryAfter parses a Retry-After header value. Only numeric seconds
// count: the value must be finite and positive. HTTP-date forms and
// non-positive, NaN, or infinite values are treated as absent.
func parseRetryAfter(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return nil
	}
	return &seconds
}

// parseRateLimitHeaders extracts rate-limit counters from response headers.
// Both the x-ratelimit-* and anthropic-ratelimit-* families are checked;
// each field is independently optional. Returns nil when no relevant header
// is present.
func parseRateLimitHeaders(headers http.Header) *RateLimitInfo {
	info := &RateLimitInfo{}
	hasAny := false

	intHeader := func(names ...string) *int {
		for _, name := range names {
			if v := headers.Get(name); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					hasAny = true
					return &n
				}
			}
		}
		return nil
	}

	info.RequestsRemaining = intHeader("x-ratelimit-remaining-requests", "anthropic-ratelimit-requests-remaining")
	info.RequestsLimit = intHeader("x-ratelimit-limit-requests", "anthropic-ratelimit-requests-limit")
	info.TokensRemaining = intHeader("x-ratelimit-remaining-tokens", "anthropic-ratelimit-tokens-remaining")
	info.TokensLimit = intHeader("x-ratelimit-limit-tokens", "anthropic-ratelimit-tokens-limit")

	resetNames := []string{
		"x-ratelimit-reset",
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-tokens-reset",
	}
	for _, name := range resetNames {
		v := headers.Get(name)
		if v == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.ResetAt = &secs
			hasAny = true
			break
		}
		// Anthropic reset headers are RFC 3339 timestamps.
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			secs := float64(t.UnixNano()) / float64(time.Second)
			info.ResetAt = &secs
			hasAny = true
			break
		}
	}

	if !hasAny {
		return nil
	}
	return info
}
