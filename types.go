package omnillm

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the variants of a ContentPart.
type ContentKind string

const (
	ContentText             ContentKind = "text"
	ContentImage            ContentKind = "image"
	ContentToolCall         ContentKind = "tool_call"
	ContentToolResult       ContentKind = "tool_result"
	ContentThinking         ContentKind = "thinking"
	ContentRedactedThinking ContentKind = "redacted_thinking"
)

// ContentPart is one semantic unit of message content. Exactly one of the
// payload fields is set, selected by Kind. Part order within a message
// reflects generation order and is preserved end to end.
type ContentPart struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Image      *ImageData      `json:"image,omitempty"`
	ToolCall   *ToolCall       `json:"tool_call,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
	Thinking   *ThinkingData   `json:"thinking,omitempty"`
}

// ToolCall is a model-requested invocation of a caller-supplied tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// RawArguments holds the partially-accumulated argument text during
	// streaming, before it is a complete JSON document.
	RawArguments string `json:"raw_arguments,omitempty"`

	// CallType is the provider's call classification ("function" unless the
	// provider says otherwise).
	CallType string `json:"call_type,omitempty"`

	// ThoughtSignature carries an opaque provider signature binding the call
	// to preceding reasoning, for providers that issue one.
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

// ToolResultData is the caller's answer to a prior tool call.
type ToolResultData struct {
	ToolCallID string          `json:"tool_call_id"`
	Content    json.RawMessage `json:"content,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// ThinkingData is extended-reasoning content accompanying a response.
// Redacted thinking carries opaque provider-encrypted text in Text.
type ThinkingData struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`
}

// ImageData is image content, either by URL or as inline bytes.
type ImageData struct {
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`

	// Name optionally identifies the author within the role.
	Name string `json:"name,omitempty"`

	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// TextContent concatenates the message's text parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolChoice constrains how the model may use tools. Mode is one of
// "auto", "none", "required", or "named"; ToolName applies to "named".
type ToolChoice struct {
	Mode     string `json:"mode"`
	ToolName string `json:"tool_name,omitempty"`
}

// ResponseFormat requests structured output. Type is "json" or
// "json_schema".
type ResponseFormat struct {
	Type       string                 `json:"type"`
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
	Strict     bool                   `json:"strict,omitempty"`
}

// Request is a provider-neutral completion request. It is immutable once
// built: adapters only read it, and a single Request may be issued through
// any adapter.
type Request struct {
	Model    string
	Messages []Message

	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	StopSequences []string

	ToolDefs   []ToolDefinition
	ToolChoice *ToolChoice

	ResponseFormat  *ResponseFormat
	ReasoningEffort string

	// ProviderOptions passes provider-specific body fields through untouched,
	// keyed by provider name.
	ProviderOptions map[string]interface{}

	// Timeout bounds this call only. Zero means the transport default.
	Timeout time.Duration
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ToolCallPart builds a tool-call content part.
func ToolCallPart(id, name string, arguments json.RawMessage) ContentPart {
	return ContentPart{Kind: ContentToolCall, ToolCall: &ToolCall{
		ID:        id,
		Name:      name,
		Arguments: arguments,
		CallType:  "function",
	}}
}

// ThinkingPart builds a thinking content part.
func ThinkingPart(text, signature string) ContentPart {
	return ContentPart{Kind: ContentThinking, Thinking: &ThinkingData{
		Text:      text,
		Signature: signature,
	}}
}

// RedactedThinkingPart builds a redacted-thinking content part from the
// provider's opaque payload.
func RedactedThinkingPart(data string) ContentPart {
	return ContentPart{Kind: ContentRedactedThinking, Thinking: &ThinkingData{
		Text:     data,
		Redacted: true,
	}}
}

// ImageURLPart builds an image content part referencing a URL.
func ImageURLPart(url, mediaType, detail string) ContentPart {
	return ContentPart{Kind: ContentImage, Image: &ImageData{
		URL:       url,
		MediaType: mediaType,
		Detail:    detail,
	}}
}

// ImageDataPart builds an image content part from inline bytes.
func ImageDataPart(data []byte, mediaType string) ContentPart {
	return ContentPart{Kind: ContentImage, Image: &ImageData{
		Data:      data,
		MediaType: mediaType,
	}}
}

// SystemMessage builds a single-text system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserMessage builds a single-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage builds a single-text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// ToolResultMessage builds a tool message answering the given call.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Content: []ContentPart{{
			Kind: ContentToolResult,
			ToolResult: &ToolResultData{
				ToolCallID: toolCallID,
				Content:    json.RawMessage(content),
				IsError:    isError,
			},
		}},
	}
}
