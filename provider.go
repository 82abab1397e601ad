package omnillm

import "context"

// ProviderAdapter is the capability contract every provider backend
// implements. The contract is identical across providers so callers stay
// provider-agnostic. A single adapter instance is safe to share across
// concurrent calls: its configuration is immutable and its credential is
// concurrency-safe.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic",
	// "mistral").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events in the
	// provider's emission order. The channel closes after a terminal event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// SupportsToolChoice reports whether the provider honors the given
	// tool-choice mode.
	SupportsToolChoice(mode string) bool

	// ListModels fetches the provider's model listing normalized to
	// ModelInfo descriptors.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
