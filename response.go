package omnillm

import "strings"

// Finish reason values. The set is closed; Raw preserves the provider's
// verbatim stop signal.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	FinishOther         = "other"
)

// FinishReason is the normalized reason a generation stopped.
type FinishReason struct {
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// normalizeFinishReason forces tool_calls whenever the content contains a
// tool call, regardless of the provider's raw stop signal. Anthropic in
// particular reports stop_reason "end_turn" alongside tool_use blocks.
func normalizeFinishReason(fr FinishReason, content []ContentPart) FinishReason {
	for _, part := range content {
		if part.Kind == ContentToolCall {
			fr.Reason = FinishToolCalls
			return fr
		}
	}
	return fr
}

// Usage reports token accounting for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// ReasoningTokens is provider-reported when available, otherwise
	// estimated from thinking content. Nil when the response carried no
	// reasoning at all.
	ReasoningTokens *int `json:"reasoning_tokens,omitempty"`

	CacheReadTokens  *int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int `json:"cache_write_tokens,omitempty"`

	// Raw is the provider's usage object, untouched.
	Raw map[string]interface{} `json:"-"`
}

// estimateReasoningTokens approximates a reasoning-token count as the
// whitespace-token count of all thinking and redacted-thinking text. Returns
// nil when no such content exists; never returns a zero count.
func estimateReasoningTokens(content []ContentPart) *int {
	tokens := 0
	for _, part := range content {
		if part.Kind != ContentThinking && part.Kind != ContentRedactedThinking {
			continue
		}
		if part.Thinking != nil {
			tokens += len(strings.Fields(part.Thinking.Text))
		}
	}
	if tokens == 0 {
		return nil
	}
	return &tokens
}

// RateLimitInfo is the normalized view of provider-reported quota counters.
// Each field is independently optional; the whole structure is absent when
// no relevant header was present.
type RateLimitInfo struct {
	RequestsRemaining *int `json:"requests_remaining,omitempty"`
	RequestsLimit     *int `json:"requests_limit,omitempty"`
	TokensRemaining   *int `json:"tokens_remaining,omitempty"`
	TokensLimit       *int `json:"tokens_limit,omitempty"`

	// ResetAt is seconds since the Unix epoch, fractional.
	ResetAt *float64 `json:"reset_at,omitempty"`
}

// Response is the normalized result of a non-streaming call. It is
// constructed exactly once per call and never mutated afterwards.
type Response struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Provider string `json:"provider"`

	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`

	// Raw is the provider's response body, kept for diagnostics.
	Raw map[string]interface{} `json:"-"`

	Warnings  []string       `json:"warnings,omitempty"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
}

// Text concatenates the assistant message's text parts.
func (r *Response) Text() string {
	return r.Message.TextContent()
}

// Thinking concatenates the assistant message's non-redacted thinking parts.
func (r *Response) Thinking() string {
	var sb strings.Builder
	for _, part := range r.Message.Content {
		if part.Kind == ContentThinking && part.Thinking != nil {
			sb.WriteString(part.Thinking.Text)
		}
	}
	return sb.String()
}

// ToolCallsFromResponse returns the tool calls in generation order.
func (r *Response) ToolCallsFromResponse() []ToolCall {
	var calls []ToolCall
	for _, part := range r.Message.Content {
		if part.Kind == ContentToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}
