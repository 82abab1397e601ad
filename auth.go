package omnillm

import (
	"context"
	"sync"
	"time"
)

// Credential resolves an API token per call. Implementations must be safe
// for concurrent use: a single adapter is shared across unboundedly many
// calls and consults its credential on every one.
type Credential interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential is an immutable API key.
type StaticCredential struct {
	key string
}

// NewStaticCredential wraps a fixed API key.
func NewStaticCredential(key string) *StaticCredential {
	return &StaticCredential{key: key}
}

func (c *StaticCredential) Token(ctx context.Context) (string, error) {
	if c.key == "" {
		return "", &ConfigurationError{SDKError{Message: "credential has no API key"}}
	}
	return c.key, nil
}

// RefreshFunc obtains a fresh token. A zero expiry means the token never
// expires.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// refreshSkew renews tokens this long before their stated expiry.
const refreshSkew = 30 * time.Second

// RefreshingCredential is a dynamically-refreshed token, e.g. an OAuth
// access token. Concurrent callers that find the token expired coalesce on
// a single refresh; only one refresh request is ever in flight.
type RefreshingCredential struct {
	refresh RefreshFunc

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	pending   chan struct{}
	lastErr   error
}

// NewRefreshingCredential builds a credential around a refresh function.
func NewRefreshingCredential(refresh RefreshFunc) *RefreshingCredential {
	return &RefreshingCredential{refresh: refresh}
}

func (c *RefreshingCredential) valid() bool {
	if c.token == "" {
		return false
	}
	return c.expiresAt.IsZero() || time.Now().Before(c.expiresAt.Add(-refreshSkew))
}

// Token returns the cached token, refreshing it first if missing or near
// expiry. Waiters observe the leader's result rather than issuing their own
// refresh.
func (c *RefreshingCredential) Token(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		if c.valid() {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}

		if c.pending != nil {
			// A refresh is already in flight; wait for it.
			done := c.pending
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return "", &AbortError{SDKError{Message: "credential refresh cancelled", Cause: ctx.Err()}}
			}
			c.mu.Lock()
			if err := c.lastErr; err != nil {
				c.mu.Unlock()
				return "", err
			}
			c.mu.Unlock()
			continue
		}

		done := make(chan struct{})
		c.pending = done
		c.mu.Unlock()

		token, expiresAt, err := c.refresh(ctx)

		c.mu.Lock()
		c.pending = nil
		if err != nil {
			c.lastErr = &AuthenticationError{ProviderError{
				SDKError: SDKError{Message: "credential refresh failed", Cause: err},
			}}
		} else {
			c.lastErr = nil
			c.token = token
			c.expiresAt = expiresAt
		}
		lastErr := c.lastErr
		close(done)
		c.mu.Unlock()

		if lastErr != nil {
			return "", lastErr
		}
		return token, nil
	}
}

// Invalidate discards the cached token so the next call refreshes.
func (c *RefreshingCredential) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// bearerHeader renders a standard Authorization header value. Fails with a
// ConfigurationError when the token is empty or not header-safe.
func bearerHeader(token string) (string, error) {
	if err := validateToken(token); err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// validateToken rejects tokens that would corrupt an HTTP header.
func validateToken(token string) error {
	if token == "" {
		return &ConfigurationError{SDKError{Message: "auth token is empty"}}
	}
	for i := 0; i < len(token); i++ {
		if token[i] <= 0x20 || token[i] >= 0x7f {
			return &ConfigurationError{SDKError{Message: "auth token contains characters not allowed in a header"}}
		}
	}
	return nil
}
