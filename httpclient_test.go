package omnillm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	result := parseRetryAfter("30")
	require.NotNil(t, result)
	assert.Equal(t, float64(30), *result)
}

func TestParseRetryAfterFloat(t *testing.T) {
	result := parseRetryAfter("1.5")
	require.NotNil(t, result)
	assert.Equal(t, 1.5, *result)
}

func TestParseRetryAfterRejectsHTTPDate(t *testing.T) {
	futureDate := time.Now().Add(60 * time.Second).UTC().Format(time.RFC1123)
	assert.Nil(t, parseRetryAfter(futureDate))
}

func TestParseRetryAfterRejectsNonPositive(t *testing.T) {
	assert.Nil(t, parseRetryAfter("0"))
	assert.Nil(t, parseRetryAfter("-5"))
}

func TestParseRetryAfterRejectsNonFinite(t *testing.T) {
	assert.Nil(t, parseRetryAfter("NaN"))
	assert.Nil(t, parseRetryAfter("Inf"))
	assert.Nil(t, parseRetryAfter("-Inf"))
}

func TestParseRetryAfterEmpty(t *testing.T) {
	assert.Nil(t, parseRetryAfter(""))
	assert.Nil(t, parseRetryAfter("not-a-number"))
}

func TestParseRateLimitHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("x-ratelimit-remaining-requests", "99")
	headers.Set("x-ratelimit-limit-requests", "100")
	headers.Set("x-ratelimit-remaining-tokens", "9999")
	headers.Set("x-ratelimit-limit-tokens", "10000")

	info := parseRateLimitHeaders(headers)
	require.NotNil(t, info)
	assert.Equal(t, 99, *info.RequestsRemaining)
	assert.Equal(t, 100, *info.RequestsLimit)
	assert.Equal(t, 9999, *info.TokensRemaining)
	assert.Equal(t, 10000, *info.TokensLimit)
}

func TestParseRateLimitHeadersAnthropicFamily(t *testing.T) {
	headers := http.Header{}
	headers.Set("anthropic-ratelimit-requests-remaining", "50")
	headers.Set("anthropic-ratelimit-requests-limit", "60")
	headers.Set("anthropic-ratelimit-requests-reset", "2026-01-02T15:04:05Z")

	info := parseRateLimitHeaders(headers)
	require.NotNil(t, info)
	assert.Equal(t, 50, *info.RequestsRemaining)
	assert.Equal(t, 60, *info.RequestsLimit)
	require.NotNil(t, info.ResetAt)

	expected, err := time.Parse(time.RFC3339, "2026-01-02T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, float64(expected.Unix()), *info.ResetAt)
}

func TestParseRateLimitHeadersNumericReset(t *testing.T) {
	headers := http.Header{}
	headers.Set("x-ratelimit-reset", "1767366245.5")

	info := parseRateLimitHeaders(headers)
	require.NotNil(t, info)
	require.NotNil(t, info.ResetAt)
	assert.Equal(t, 1767366245.5, *info.ResetAt)
}

func TestParseRateLimitHeadersPartial(t *testing.T) {
	headers := http.Header{}
	headers.Set("x-ratelimit-remaining-requests", "7")

	info := parseRateLimitHeaders(headers)
	require.NotNil(t, info)
	assert.Equal(t, 7, *info.RequestsRemaining)
	assert.Nil(t, info.RequestsLimit)
	assert.Nil(t, info.TokensRemaining)
	assert.Nil(t, info.ResetAt)
}

func TestParseRateLimitHeadersEmpty(t *testing.T) {
	assert.Nil(t, parseRateLimitHeaders(http.Header{}))
}

func TestPostJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	hc := newHTTPClient(server.URL, headers, zerolog.Nop())

	body, _, err := hc.postJSON(context.Background(), "/test", []byte(`{}`), nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPostJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	hc := newHTTPClient(server.URL, nil, zerolog.Nop())

	_, _, err := hc.postJSON(context.Background(), "/test", []byte(`{}`), nil, 0)
	require.Error(t, err)

	statusErr, ok := err.(*httpStatusError)
	require.True(t, ok)
	assert.Equal(t, 429, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "slow down")
}

func TestPostJSONTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	hc := newHTTPClient(server.URL, nil, zerolog.Nop())

	_, _, err := hc.postJSON(context.Background(), "/test", []byte(`{}`), nil, 50*time.Millisecond)
	require.Error(t, err)

	var timeoutErr *RequestTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestPostJSONCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	hc := newHTTPClient(server.URL, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := hc.postJSON(ctx, "/test", []byte(`{}`), nil, 0)
	require.Error(t, err)

	var abortErr *AbortError
	assert.ErrorAs(t, err, &abortErr)
}

func TestTranslateHTTPErrorExtractsMessage(t *testing.T) {
	err := translateHTTPError("openai", &httpStatusError{
		StatusCode: 401,
		Header:     http.Header{},
		Body:       []byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`),
	})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid api key", authErr.Message)
	assert.Equal(t, "invalid_request_error", authErr.ErrorCode)
	assert.Equal(t, "openai", authErr.Provider)
	assert.Equal(t, 401, authErr.StatusCode)
}

func TestTranslateHTTPErrorMistralDetail(t *testing.T) {
	err := translateHTTPError("mistral", &httpStatusError{
		StatusCode: 422,
		Header:     http.Header{},
		Body:       []byte(`{"detail":"field must not be null"}`),
	})

	var invalidErr *InvalidRequestError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "field must not be null", invalidErr.Message)
	assert.Equal(t, "mistral", invalidErr.Provider)
}

func TestTranslateHTTPErrorRetryAfter(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "12")

	err := translateHTTPError("openai", &httpStatusError{
		StatusCode: 429,
		Header:     headers,
		Body:       []byte(`{"error":{"message":"rate limited"}}`),
	})

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	require.NotNil(t, rlErr.RetryAfter)
	assert.Equal(t, float64(12), *rlErr.RetryAfter)
}

func TestTranslateHTTPErrorUnparseableBody(t *testing.T) {
	err := translateHTTPError("openai", &httpStatusError{
		StatusCode: 500,
		Header:     http.Header{},
		Body:       []byte("bad gateway text"),
	})

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Contains(t, serverErr.Message, "HTTP 500")
	assert.Contains(t, serverErr.Message, "bad gateway text")
}

func TestTranslateHTTPErrorPassesThroughTypedErrors(t *testing.T) {
	orig := &NetworkError{SDKError{Message: "connection refused"}}
	assert.Equal(t, error(orig), translateHTTPError("openai", orig))
}
