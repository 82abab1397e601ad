package omnillm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicAdapter(t *testing.T, handler http.HandlerFunc) *AnthropicAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewAnthropicAdapter("sk-ant-test", WithAnthropicBaseURL(server.URL))
	require.NoError(t, err)
	return adapter
}

func TestNewAnthropicAdapterRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicAdapter("")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestAnthropicComplete(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		reqBody, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(reqBody, &body))
		assert.Equal(t, "claude-sonnet-4-5", body["model"])
		// max_tokens is always present.
		assert.Equal(t, float64(anthropicDefaultMaxTokens), body["max_tokens"])
		// System text is hoisted out of the message list.
		system, ok := body["system"].([]interface{})
		require.True(t, ok)
		require.NotEmpty(t, system)
		messages, ok := body["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 1)

		w.Write([]byte(`{
			"id": "msg_123",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "Hello!"}],
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`))
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			SystemMessage("Be terse."),
			UserMessage("Say hello"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "Hello!", resp.Text())
	assert.Equal(t, FinishStop, resp.FinishReason.Reason)
	assert.Equal(t, "end_turn", resp.FinishReason.Raw)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestAnthropicCompleteToolUseOverridesStopReason(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "msg_tool",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [
				{"type": "text", "text": "Checking."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Paris"}}
			],
			"usage": {"input_tokens": 30, "output_tokens": 15}
		}`))
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Weather in Paris?")},
		ToolDefs: []ToolDefinition{{Name: "get_weather"}},
	})
	require.NoError(t, err)

	// A tool_use block forces tool_calls even when the provider said
	// end_turn.
	assert.Equal(t, FinishToolCalls, resp.FinishReason.Reason)
	assert.Equal(t, "end_turn", resp.FinishReason.Raw)

	calls := resp.ToolCallsFromResponse()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(calls[0].Arguments))
}

func TestAnthropicCompleteThinking(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "msg_think",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [
				{"type": "thinking", "thinking": "one two three four", "signature": "sig123"},
				{"type": "text", "text": "Four words."}
			],
			"usage": {"input_tokens": 5, "output_tokens": 25}
		}`))
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("count")},
	})
	require.NoError(t, err)

	assert.Equal(t, "one two three four", resp.Thinking())
	require.Len(t, resp.Message.Content, 2)
	assert.Equal(t, "sig123", resp.Message.Content[0].Thinking.Signature)

	// No provider-reported reasoning count, so the whitespace estimate
	// applies.
	require.NotNil(t, resp.Usage.ReasoningTokens)
	assert.Equal(t, 4, *resp.Usage.ReasoningTokens)
}

func TestAnthropicCompleteCacheUsage(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "msg_c",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "cached"}],
			"usage": {"input_tokens": 3, "output_tokens": 2, "cache_read_input_tokens": 1000, "cache_creation_input_tokens": 50}
		}`))
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Usage.CacheReadTokens)
	assert.Equal(t, 1000, *resp.Usage.CacheReadTokens)
	require.NotNil(t, resp.Usage.CacheWriteTokens)
	assert.Equal(t, 50, *resp.Usage.CacheWriteTokens)
}

func TestAnthropicCompleteMissingID(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "claude-sonnet-4-5", "content": []}`))
	})

	_, err := adapter.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("hi")},
	})

	var invalidErr *InvalidRequestError
	require.ErrorAs(t, err, &invalidErr)
	assert.False(t, IsRetryable(err))
}

func TestAnthropicRequestMergesConsecutiveRoles(t *testing.T) {
	var captured map[string]interface{}
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(reqBody, &captured))
		w.Write([]byte(`{"id":"msg_m","model":"claude-sonnet-4-5","stop_reason":"end_turn","content":[{"type":"text","text":"ok"}]}`))
	})

	_, err := adapter.Complete(context.Background(), Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			UserMessage("first"),
			UserMessage("second"),
			AssistantMessage("reply"),
			{Role: RoleAssistant, Content: []ContentPart{
				ToolCallPart("toolu_1", "lookup", json.RawMessage(`{}`)),
			}},
			ToolResultMessage("toolu_1", `{"found":true}`, false),
		},
	})
	require.NoError(t, err)

	messages, ok := captured["messages"].([]interface{})
	require.True(t, ok)
	// user+user merge, assistant+assistant merge, tool result is user.
	require.Len(t, messages, 3)

	first := messages[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
	assert.Len(t, first["content"].([]interface{}), 2)

	second := messages[1].(map[string]interface{})
	assert.Equal(t, "assistant", second["role"])

	third := messages[2].(map[string]interface{})
	assert.Equal(t, "user", third["role"])
	block := third["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "toolu_1", block["tool_use_id"])
}

func TestAnthropicRequestPromptCaching(t *testing.T) {
	var captured map[string]interface{}
	var betaHeader string
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		betaHeader = r.Header.Get("anthropic-beta")
		reqBody, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(reqBody, &captured))
		w.Write([]byte(`{"id":"msg_p","model":"claude-sonnet-4-5","stop_reason":"end_turn","content":[{"type":"text","text":"ok"}]}`))
	})

	_, err := adapter.Complete(context.Background(), Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			SystemMessage("long system prompt"),
			UserMessage("question"),
		},
		ToolDefs: []ToolDefinition{{Name: "lookup"}},
	})
	require.NoError(t, err)

	assert.Contains(t, betaHeader, promptCachingBeta)

	system := captured["system"].([]interface{})
	lastSystem := system[len(system)-1].(map[string]interface{})
	assert.NotNil(t, lastSystem["cache_control"])

	tools := captured["tools"].([]interface{})
	lastTool := tools[len(tools)-1].(map[string]interface{})
	assert.NotNil(t, lastTool["cache_control"])
}

func TestAnthropicStream(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":9}}}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		io.WriteString(w, "event: content_block_stop\ndata: {\"index\":0}\n\n")
		io.WriteString(w, "event: message_delta\ndata: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n")
		io.WriteString(w, "event: message_stop\ndata: {}\n\n")
	})

	events, err := adapter.Stream(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)

	var types []StreamEventType
	var text string
	var usageEvt *Usage
	var final *Response
	for evt := range events {
		types = append(types, evt.Type)
		if evt.Type == TextDelta {
			text += evt.Delta
		}
		if evt.Type == StreamUsage {
			usageEvt = evt.Usage
		}
		if evt.Type == StreamFinish {
			final = evt.Response
		}
	}

	assert.Equal(t, []StreamEventType{StreamStart, TextStart, TextDelta, TextDelta, TextEnd, StreamUsage, StreamFinish}, types)
	assert.Equal(t, "Hello", text)
	require.NotNil(t, usageEvt)
	assert.Equal(t, 9, usageEvt.InputTokens)
	assert.Equal(t, 2, usageEvt.OutputTokens)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Text())
	assert.Equal(t, FinishStop, final.FinishReason.Reason)
	assert.Equal(t, 11, final.Usage.TotalTokens)
}

func TestAnthropicStreamToolUse(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":20}}}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"get_weather\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"city\\\":\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"Paris\\\"}\"}}\n\n")
		io.WriteString(w, "event: content_block_stop\ndata: {\"index\":0}\n\n")
		io.WriteString(w, "event: message_delta\ndata: {\"delta\":{\"stop_reason\":\"tool_use\"},\"usage\":{\"output_tokens\":12}}\n\n")
	})

	events, err := adapter.Stream(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Weather?")},
		ToolDefs: []ToolDefinition{{Name: "get_weather"}},
	})
	require.NoError(t, err)

	var toolEnd *ToolCall
	var final *Response
	for evt := range events {
		if evt.Type == ToolCallEnd {
			toolEnd = evt.ToolCall
		}
		if evt.Type == StreamFinish {
			final = evt.Response
		}
	}

	require.NotNil(t, toolEnd)
	assert.Equal(t, "toolu_1", toolEnd.ID)
	assert.Equal(t, "get_weather", toolEnd.Name)
	assert.JSONEq(t, `{"city":"Paris"}`, string(toolEnd.Arguments))
	require.NotNil(t, final)
	assert.Equal(t, FinishToolCalls, final.FinishReason.Reason)
	assert.Equal(t, "tool_use", final.FinishReason.Raw)
}

func TestAnthropicStreamThinking(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"index\":0,\"content_block\":{\"type\":\"thinking\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"thinking_delta\",\"thinking\":\"let me think \"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"thinking_delta\",\"thinking\":\"carefully\"}}\n\n")
		io.WriteString(w, "event: content_block_stop\ndata: {\"index\":0}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"index\":1,\"content_block\":{\"type\":\"text\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"index\":1,\"delta\":{\"type\":\"text_delta\",\"text\":\"done\"}}\n\n")
		io.WriteString(w, "event: content_block_stop\ndata: {\"index\":1}\n\n")
		io.WriteString(w, "event: message_delta\ndata: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":10}}\n\n")
	})

	events, err := adapter.Stream(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("think")},
	})
	require.NoError(t, err)

	var reasoning string
	var final *Response
	for evt := range events {
		if evt.Type == ReasoningDelta {
			reasoning += evt.ReasoningDelta
		}
		if evt.Type == StreamFinish {
			final = evt.Response
		}
	}

	assert.Equal(t, "let me think carefully", reasoning)
	require.NotNil(t, final)
	assert.Equal(t, "let me think carefully", final.Thinking())
	assert.Equal(t, "done", final.Text())
	require.NotNil(t, final.Usage.ReasoningTokens)
	assert.Equal(t, 4, *final.Usage.ReasoningTokens)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n")
		io.WriteString(w, "event: error\ndata: {\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})

	events, err := adapter.Stream(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)

	var streamErr error
	for evt := range events {
		if evt.Type == StreamError {
			streamErr = evt.Error
		}
	}

	require.Error(t, streamErr)
	assert.Equal(t, "stream", ErrorCode(streamErr))
	assert.True(t, IsRetryable(streamErr))
}

func TestAnthropicRateLimitHeaders(t *testing.T) {
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("anthropic-ratelimit-requests-remaining", "42")
		w.Header().Set("anthropic-ratelimit-requests-reset", "2026-08-24T12:00:00Z")
		w.Write([]byte(`{"id":"msg_rl","model":"claude-sonnet-4-5","stop_reason":"end_turn","content":[{"type":"text","text":"ok"}]}`))
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.RateLimit)
	assert.Equal(t, 42, *resp.RateLimit.RequestsRemaining)
	require.NotNil(t, resp.RateLimit.ResetAt)
}

func TestAnthropicListModelsPaginates(t *testing.T) {
	page := 0
	adapter := newTestAnthropicAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		page++
		if page == 1 {
			assert.Empty(t, r.URL.Query().Get("after_id"))
			w.Write([]byte(`{"data":[{"type":"model","id":"claude-sonnet-4-5","display_name":"Claude Sonnet 4.5"}],"has_more":true,"last_id":"claude-sonnet-4-5"}`))
			return
		}
		assert.Equal(t, "claude-sonnet-4-5", r.URL.Query().Get("after_id"))
		w.Write([]byte(`{"data":[{"type":"model","id":"claude-haiku-4-5","display_name":"Claude Haiku 4.5"}],"has_more":false,"last_id":"claude-haiku-4-5"}`))
	})

	models, err := adapter.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, page)
	require.Len(t, models, 2)
	assert.Equal(t, "claude-sonnet-4-5", models[0].ID)
	assert.Equal(t, "Claude Sonnet 4.5", models[0].DisplayName)
	assert.Equal(t, "anthropic", models[0].Provider)
}
