package omnillm

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAccumulatorText(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: TextStart, TextID: "t1"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "Hello, "})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "world."})

	resp := acc.Response()
	assert.Equal(t, RoleAssistant, resp.Message.Role)
	assert.Equal(t, "Hello, world.", resp.Text())
}

func TestStreamAccumulatorTextWithoutStart(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "implicit"})

	resp := acc.Response()
	assert.Equal(t, "implicit", resp.Text())
}

func TestStreamAccumulatorMultipleTextBlocks(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: TextStart, TextID: "t1"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "first"})
	acc.Process(StreamEvent{Type: TextStart, TextID: "t2"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t2", Delta: "second"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: " more"})

	resp := acc.Response()
	require.Len(t, resp.Message.Content, 2)
	assert.Equal(t, "first more", resp.Message.Content[0].Text)
	assert.Equal(t, "second", resp.Message.Content[1].Text)
}

func TestStreamAccumulatorReasoning(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: ReasoningStart})
	acc.Process(StreamEvent{Type: ReasoningDelta, ReasoningDelta: "thinking "})
	acc.Process(StreamEvent{Type: ReasoningDelta, ReasoningDelta: "hard"})
	acc.Process(StreamEvent{Type: ReasoningEnd})
	acc.Process(StreamEvent{Type: TextStart, TextID: "t1"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "answer"})

	resp := acc.Response()
	require.Len(t, resp.Message.Content, 2)
	assert.Equal(t, ContentThinking, resp.Message.Content[0].Kind)
	assert.Equal(t, "thinking hard", resp.Message.Content[0].Thinking.Text)
	assert.Equal(t, "answer", resp.Text())
}

func TestStreamAccumulatorToolCall(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
		ID:        "call_1",
		Name:      "get_weather",
		Arguments: json.RawMessage(`{"city":"Paris"}`),
	}})

	resp := acc.Response()
	calls := resp.ToolCallsFromResponse()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "function", calls[0].CallType)
	assert.JSONEq(t, `{"city":"Paris"}`, string(calls[0].Arguments))
}

func TestStreamAccumulatorToolCallFromRawArguments(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
		ID:           "call_1",
		Name:         "search",
		RawArguments: `{"q":"golang"}`,
	}})

	resp := acc.Response()
	calls := resp.ToolCallsFromResponse()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"q":"golang"}`, string(calls[0].Arguments))
}

func TestStreamAccumulatorIgnoresNonContentEvents(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: StreamStart})
	acc.Process(StreamEvent{Type: StreamUsage, Usage: &Usage{InputTokens: 5}})
	acc.Process(StreamEvent{Type: ToolCallDelta, Delta: `{"partial`})

	resp := acc.Response()
	assert.Empty(t, resp.Message.Content)
}

func TestStreamAccumulatorPreservesOrder(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: TextStart, TextID: "t1"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "before"})
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{ID: "c1", Name: "tool", Arguments: json.RawMessage(`{}`)}})
	acc.Process(StreamEvent{Type: TextStart, TextID: "t2"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t2", Delta: "after"})

	resp := acc.Response()
	require.Len(t, resp.Message.Content, 3)
	assert.Equal(t, ContentText, resp.Message.Content[0].Kind)
	assert.Equal(t, ContentToolCall, resp.Message.Content[1].Kind)
	assert.Equal(t, ContentText, resp.Message.Content[2].Kind)
}

func TestStreamAccumulatorResponseIsCopy(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Process(StreamEvent{Type: TextStart, TextID: "t1"})
	acc.Process(StreamEvent{Type: TextDelta, TextID: "t1", Delta: "snapshot"})

	first := acc.Response()
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{ID: "c1", Name: "tool", Arguments: json.RawMessage(`{}`)}})

	assert.Len(t, first.Message.Content, 1)
	assert.Len(t, acc.Response().Message.Content, 2)
}
