package omnillm

import json "github.com/goccy/go-json"

// StreamEventType discriminates StreamEvent variants.
type StreamEventType string

const (
	// StreamStart opens a stream.
	StreamStart StreamEventType = "stream_start"

	// TextStart, TextDelta and TextEnd delimit one text block, correlated
	// by TextID.
	TextStart StreamEventType = "text_start"
	TextDelta StreamEventType = "text_delta"
	TextEnd   StreamEventType = "text_end"

	// ToolCallStart, ToolCallDelta and ToolCallEnd delimit one tool call.
	// Deltas carry partial argument text; ToolCallEnd carries the complete
	// call with parsed arguments.
	ToolCallStart StreamEventType = "tool_call_start"
	ToolCallDelta StreamEventType = "tool_call_delta"
	ToolCallEnd   StreamEventType = "tool_call_end"

	// ReasoningStart, ReasoningDelta and ReasoningEnd delimit one thinking
	// block.
	ReasoningStart StreamEventType = "reasoning_start"
	ReasoningDelta StreamEventType = "reasoning_delta"
	ReasoningEnd   StreamEventType = "reasoning_end"

	// StreamUsage reports a token-count update before the terminal event.
	StreamUsage StreamEventType = "stream_usage"

	// StreamFinish is the terminal event of a successful stream. It carries
	// the finish reason, final usage, and the accumulated Response.
	StreamFinish StreamEventType = "stream_finish"

	// StreamError embeds a failure in the sequence. It may be terminal
	// (transport fault) or not (a single undecodable chunk).
	StreamError StreamEventType = "stream_error"
)

// StreamEvent is one discrete unit of a streaming call.
type StreamEvent struct {
	Type StreamEventType

	// TextID correlates TextStart/TextDelta/TextEnd events.
	TextID string

	// Delta is partial text or partial tool-call argument JSON.
	Delta string

	// ReasoningDelta is partial thinking text.
	ReasoningDelta string

	ToolCall     *ToolCall
	Usage        *Usage
	FinishReason *FinishReason
	Response     *Response
	Error        error
}

// StreamAccumulator rebuilds the assistant message from stream events in
// emission order, so StreamFinish can deliver a Response equivalent to the
// non-streaming call.
type StreamAccumulator struct {
	parts         []ContentPart
	textIndex     map[string]int
	thinkingIndex int
}

// NewStreamAccumulator returns an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{
		textIndex:     make(map[string]int),
		thinkingIndex: -1,
	}
}

// Process folds one event into the accumulated message. Only content-bearing
// events matter; everything else is ignored.
func (a *StreamAccumulator) Process(evt StreamEvent) {
	switch evt.Type {
	case TextStart:
		a.textIndex[evt.TextID] = len(a.parts)
		a.parts = append(a.parts, TextPart(""))

	case TextDelta:
		idx, ok := a.textIndex[evt.TextID]
		if !ok {
			idx = len(a.parts)
			a.textIndex[evt.TextID] = idx
			a.parts = append(a.parts, TextPart(""))
		}
		a.parts[idx].Text += evt.Delta

	case ReasoningStart:
		a.thinkingIndex = len(a.parts)
		a.parts = append(a.parts, ThinkingPart("", ""))

	case ReasoningDelta:
		if a.thinkingIndex < 0 {
			a.thinkingIndex = len(a.parts)
			a.parts = append(a.parts, ThinkingPart("", ""))
		}
		a.parts[a.thinkingIndex].Thinking.Text += evt.ReasoningDelta

	case ReasoningEnd:
		a.thinkingIndex = -1

	case ToolCallEnd:
		if evt.ToolCall != nil {
			tc := *evt.ToolCall
			if tc.CallType == "" {
				tc.CallType = "function"
			}
			if len(tc.Arguments) == 0 && tc.RawArguments != "" {
				tc.Arguments = json.RawMessage(tc.RawArguments)
			}
			a.parts = append(a.parts, ContentPart{Kind: ContentToolCall, ToolCall: &tc})
		}
	}
}

// Response returns the accumulated assistant message wrapped in a Response
// shell; the caller fills in identity, usage and finish reason.
func (a *StreamAccumulator) Response() *Response {
	content := make([]ContentPart, len(a.parts))
	copy(content, a.parts)
	return &Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: content,
		},
	}
}
