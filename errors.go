package omnillm

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// SDKError is the base for every error this package produces.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error { return e.Cause }

func (e *SDKError) message() string { return e.Message }

// ProviderError carries provider diagnostics for errors classified from an
// HTTP response. Kinds that originate upstream embed it; purely local kinds
// embed SDKError directly.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string

	// RetryAfter is the provider-requested delay in seconds. Attached only
	// to rate-limit errors.
	RetryAfter *float64

	// Raw is the decoded provider error body, kept for diagnostics. Not
	// serialized.
	Raw map[string]interface{}

	// Fallback marks an error built from a status code outside the known
	// classification table. Such errors default to retryable.
	Fallback bool
}

// Code identifies a bare ProviderError, the fail-open fallback kind.
func (e *ProviderError) Code() string { return "unknown" }

// Retryable reports the fail-open verdict for unclassified statuses.
func (e *ProviderError) Retryable() bool { return true }

func (e *ProviderError) details() *ProviderError { return e }

// Retryable error kinds.

// RateLimitError: the provider rejected the call for quota pacing (429).
type RateLimitError struct{ ProviderError }

func (e *RateLimitError) Code() string    { return "rate_limit" }
func (e *RateLimitError) Retryable() bool { return true }

// ServerError: the provider failed internally (5xx).
type ServerError struct{ ProviderError }

func (e *ServerError) Code() string    { return "server" }
func (e *ServerError) Retryable() bool { return true }

// RequestTimeoutError: the call exceeded its deadline, locally or upstream.
type RequestTimeoutError struct{ ProviderError }

func (e *RequestTimeoutError) Code() string    { return "request_timeout" }
func (e *RequestTimeoutError) Retryable() bool { return true }

// NetworkError: a transport fault before any HTTP status was received.
type NetworkError struct{ SDKError }

func (e *NetworkError) Code() string    { return "network" }
func (e *NetworkError) Retryable() bool { return true }

// StreamErrorType: a fault inside an already-open event stream.
type StreamErrorType struct{ SDKError }

func (e *StreamErrorType) Code() string    { return "stream" }
func (e *StreamErrorType) Retryable() bool { return true }

// Non-retryable error kinds.

// AuthenticationError: the credential was rejected (401).
type AuthenticationError struct{ ProviderError }

func (e *AuthenticationError) Code() string    { return "authentication" }
func (e *AuthenticationError) Retryable() bool { return false }

// AccessDeniedError: the credential is valid but not permitted (403).
type AccessDeniedError struct{ ProviderError }

func (e *AccessDeniedError) Code() string    { return "access_denied" }
func (e *AccessDeniedError) Retryable() bool { return false }

// NotFoundError: the model or endpoint does not exist (404).
type NotFoundError struct{ ProviderError }

func (e *NotFoundError) Code() string    { return "not_found" }
func (e *NotFoundError) Retryable() bool { return false }

// InvalidRequestError: the provider rejected the request shape, or its
// response was missing mandatory fields (400, 422).
type InvalidRequestError struct{ ProviderError }

func (e *InvalidRequestError) Code() string    { return "invalid_request" }
func (e *InvalidRequestError) Retryable() bool { return false }

// ContextLengthError: the request exceeds the model's context window (413).
type ContextLengthError struct{ ProviderError }

func (e *ContextLengthError) Code() string    { return "context_length" }
func (e *ContextLengthError) Retryable() bool { return false }

// QuotaExceededError: a billing or hard usage cap, distinct from pacing.
type QuotaExceededError struct{ ProviderError }

func (e *QuotaExceededError) Code() string    { return "quota_exceeded" }
func (e *QuotaExceededError) Retryable() bool { return false }

// ContentFilterError: the provider blocked the content for safety.
type ContentFilterError struct{ ProviderError }

func (e *ContentFilterError) Code() string    { return "content_filter" }
func (e *ContentFilterError) Retryable() bool { return false }

// ConfigurationError: the adapter was misconfigured before any call left
// the process.
type ConfigurationError struct{ SDKError }

func (e *ConfigurationError) Code() string    { return "configuration" }
func (e *ConfigurationError) Retryable() bool { return false }

// AbortError: the caller cancelled the call.
type AbortError struct{ SDKError }

func (e *AbortError) Code() string    { return "abort" }
func (e *AbortError) Retryable() bool { return false }

// InvalidToolCallError: the model produced a tool call the caller cannot
// execute (unknown tool, unparseable arguments).
type InvalidToolCallError struct{ SDKError }

func (e *InvalidToolCallError) Code() string    { return "invalid_tool_call" }
func (e *InvalidToolCallError) Retryable() bool { return false }

// NoObjectGeneratedError: structured output was requested but the response
// contained no parseable object.
type NoObjectGeneratedError struct{ SDKError }

func (e *NoObjectGeneratedError) Code() string    { return "no_object_generated" }
func (e *NoObjectGeneratedError) Retryable() bool { return false }

// Classified is implemented by every error kind in the taxonomy.
type Classified interface {
	error
	Code() string
	Retryable() bool
}

type messager interface{ message() string }

type detailer interface{ details() *ProviderError }

// ErrorCodes enumerates every code in the closed taxonomy, including the
// fail-open fallback. Classification tests iterate this list so that adding
// a kind without classifying it fails CI.
func ErrorCodes() []string {
	return []string{
		"rate_limit",
		"server",
		"request_timeout",
		"network",
		"stream",
		"authentication",
		"access_denied",
		"not_found",
		"invalid_request",
		"context_length",
		"quota_exceeded",
		"content_filter",
		"configuration",
		"abort",
		"invalid_tool_call",
		"no_object_generated",
		"unknown",
	}
}

// IsRetryable is the single authoritative retryability verdict. Errors
// outside the taxonomy report false.
func IsRetryable(err error) bool {
	var c Classified
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return false
}

// ErrorCode returns the taxonomy code for err, or "" for errors outside
// the taxonomy.
func ErrorCode(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// ErrorFromStatusCode classifies an HTTP error response by status code.
// Statuses outside the table produce a fail-open retryable error so that
// novel provider statuses are not silently treated as permanent failures.
// retryAfter is attached only to rate-limit errors.
func ErrorFromStatusCode(status int, message, provider, errorCode string, raw map[string]interface{}, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: status,
		ErrorCode:  errorCode,
		Raw:        raw,
	}

	switch status {
	case 400, 422:
		return &InvalidRequestError{pe}
	case 401:
		return &AuthenticationError{pe}
	case 403:
		return &AccessDeniedError{pe}
	case 404:
		return &NotFoundError{pe}
	case 408:
		return &RequestTimeoutError{pe}
	case 413:
		return &ContextLengthError{pe}
	case 429:
		pe.RetryAfter = retryAfter
		return &RateLimitError{pe}
	case 500, 502, 503, 504:
		return &ServerError{pe}
	default:
		pe.Fallback = true
		return &pe
	}
}

// ClassifyMessage classifies an error by message keywords. It is the
// fallback for errors with no status code, such as those surfaced inside a
// stream. Returns nil when no keyword matches; the caller keeps its generic
// error in that case.
func ClassifyMessage(text string) Classified {
	lower := strings.ToLower(text)
	pe := ProviderError{SDKError: SDKError{Message: text}}

	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"):
		return &NotFoundError{pe}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid key"):
		return &AuthenticationError{pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{pe}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "blocked") || strings.Contains(lower, "safety"):
		return &ContentFilterError{pe}
	}
	return nil
}

// errorWire is the serialized form of a classified error. Retryable is
// computed from the same predicate used at runtime so external consumers
// never re-derive it.
type errorWire struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Provider   string   `json:"provider,omitempty"`
	StatusCode int      `json:"status_code,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
	RetryAfter *float64 `json:"retry_after,omitempty"`
	Retryable  bool     `json:"retryable"`
}

// MarshalError serializes a classified error. Cause and Raw are diagnostics
// and do not survive the wire.
func MarshalError(err error) ([]byte, error) {
	var c Classified
	if !errors.As(err, &c) {
		return nil, fmt.Errorf("error is not part of the taxonomy: %v", err)
	}

	wire := errorWire{
		Code:      c.Code(),
		Retryable: c.Retryable(),
		Message:   c.Error(),
	}
	if m, ok := c.(messager); ok {
		wire.Message = m.message()
	}
	if d, ok := c.(detailer); ok {
		pe := d.details()
		wire.Provider = pe.Provider
		wire.StatusCode = pe.StatusCode
		wire.ErrorCode = pe.ErrorCode
		wire.RetryAfter = pe.RetryAfter
	}
	return json.Marshal(wire)
}

// UnmarshalError reconstructs a classified error from its wire form.
func UnmarshalError(data []byte) (Classified, error) {
	var wire errorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	base := SDKError{Message: wire.Message}
	pe := ProviderError{
		SDKError:   base,
		Provider:   wire.Provider,
		StatusCode: wire.StatusCode,
		ErrorCode:  wire.ErrorCode,
	}

	switch wire.Code {
	case "rate_limit":
		pe.RetryAfter = wire.RetryAfter
		return &RateLimitError{pe}, nil
	case "server":
		return &ServerError{pe}, nil
	case "request_timeout":
		return &RequestTimeoutError{pe}, nil
	case "network":
		return &NetworkError{base}, nil
	case "stream":
		return &StreamErrorType{base}, nil
	case "authentication":
		return &AuthenticationError{pe}, nil
	case "access_denied":
		return &AccessDeniedError{pe}, nil
	case "not_found":
		return &NotFoundError{pe}, nil
	case "invalid_request":
		return &InvalidRequestError{pe}, nil
	case "context_length":
		return &ContextLengthError{pe}, nil
	case "quota_exceeded":
		return &QuotaExceededError{pe}, nil
	case "content_filter":
		return &ContentFilterError{pe}, nil
	case "configuration":
		return &ConfigurationError{base}, nil
	case "abort":
		return &AbortError{base}, nil
	case "invalid_tool_call":
		return &InvalidToolCallError{base}, nil
	case "no_object_generated":
		return &NoObjectGeneratedError{base}, nil
	case "unknown":
		pe.Fallback = true
		return &pe, nil
	}
	return nil, fmt.Errorf("unknown error code %q", wire.Code)
}
