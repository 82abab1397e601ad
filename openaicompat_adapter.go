package omnillm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// OpenAICompatAdapter implements ProviderAdapter against any server that
// speaks the OpenAI Chat Completions dialect (vLLM, Ollama, LiteLLM, OpenRouter,
// Together, and the rest). The caller names the provider and supplies the base
// URL; the adapter reports that name in responses and errors.
type OpenAICompatAdapter struct {
	providerName string
	cred         Credential
	baseURL      string
	http         *httpClient
	logger       zerolog.Logger
}

// OpenAICompatAdapterOption configures an OpenAICompatAdapter.
type OpenAICompatAdapterOption func(*OpenAICompatAdapter)

// WithOpenAICompatCredential replaces the static API key with a custom
// credential.
func WithOpenAICompatCredential(cred Credential) OpenAICompatAdapterOption {
	return func(a *OpenAICompatAdapter) {
		a.cred = cred
	}
}

// WithOpenAICompatLogger sets the adapter logger.
func WithOpenAICompatLogger(logger zerolog.Logger) OpenAICompatAdapterOption {
	return func(a *OpenAICompatAdapter) {
		a.logger = logger
	}
}

// NewOpenAICompatAdapter creates an adapter for an OpenAI-compatible Chat
// Completions endpoint. providerName labels responses and errors; baseURL is
// the server root (the adapter appends /v1/chat/completions). An empty apiKey
// is permitted for servers that do not authenticate.
func NewOpenAICompatAdapter(providerName, baseURL, apiKey string, opts ...OpenAICompatAdapterOption) (*OpenAICompatAdapter, error) {
	if providerName == "" {
		return nil, &ConfigurationError{SDKError{
			Message: "provider name is required",
		}}
	}
	if baseURL == "" {
		return nil, &ConfigurationError{SDKError{
			Message: "base URL is required",
		}}
	}

	a := &OpenAICompatAdapter{
		providerName: providerName,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cred == nil && apiKey != "" {
		a.cred = NewStaticCredential(apiKey)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	a.http = newHTTPClient(a.baseURL, headers, a.logger)

	return a, nil
}

func (a *OpenAICompatAdapter) Name() string { return a.providerName }

func (a *OpenAICompatAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	}
	return false
}

func (a *OpenAICompatAdapter) authHeaders(ctx context.Context) (http.Header, error) {
	headers := http.Header{}
	if a.cred == nil {
		return headers, nil
	}
	token, err := a.cred.Token(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := bearerHeader(token)
	if err != nil {
		return nil, err
	}
	headers.Set("Authorization", auth)
	return headers, nil
}

// Complete sends a blocking chat-completions request.
func (a *OpenAICompatAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.translateRequest(req, false)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	respBody, respHeaders, err := a.http.postJSON(ctx, "/v1/chat/completions", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError(a.providerName, err)
	}

	return a.translateResponse(respBody, parseRateLimitHeaders(respHeaders))
}

// Stream sends a streaming chat-completions request.
func (a *OpenAICompatAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := a.translateRequest(req, true)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	stream, respHeaders, err := a.http.postStream(ctx, "/v1/chat/completions", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError(a.providerName, err)
	}

	ch := make(chan StreamEvent, 64)
	go a.translateStream(ctx, stream, parseRateLimitHeaders(respHeaders), ch)
	return ch, nil
}

func (a *OpenAICompatAdapter) translateRequest(req Request, stream bool) ([]byte, error) {
	body := map[string]interface{}{
		"model":    req.Model,
		"messages": translateChatMessages(req.Messages),
	}

	if len(req.ToolDefs) > 0 {
		var tools []interface{}
		for _, td := range req.ToolDefs {
			tools = append(tools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        td.Name,
					"description": td.Description,
					"parameters":  td.Parameters,
				},
			})
		}
		body["tools"] = tools
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = translateChatToolChoice(req.ToolChoice)
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = req.StopSequences
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json":
			body["response_format"] = map[string]interface{}{"type": "json_object"}
		case "json_schema":
			body["response_format"] = map[string]interface{}{
				"type": "json_schema",
				"json_schema": map[string]interface{}{
					"name":   "response",
					"schema": req.ResponseFormat.JSONSchema,
					"strict": req.ResponseFormat.Strict,
				},
			}
		}
	}

	if req.ReasoningEffort != "" {
		body["reasoning_effort"] = req.ReasoningEffort
	}

	if stream {
		body["stream"] = true
		body["stream_options"] = map[string]interface{}{"include_usage": true}
	}

	if opts, ok := req.ProviderOptions[a.providerName].(map[string]interface{}); ok {
		for k, v := range opts {
			body[k] = v
		}
	}

	return json.Marshal(body)
}

// translateChatMessages maps neutral messages onto the Chat Completions
// message array. System and developer roles pass through as-is, assistant
// tool calls become the tool_calls array, and tool results become role:"tool"
// messages.
func translateChatMessages(messages []Message) []map[string]interface{} {
	var out []map[string]interface{}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			out = append(out, map[string]interface{}{
				"role":    string(msg.Role),
				"content": msg.TextContent(),
			})
		case RoleUser:
			out = append(out, translateChatUserMessage(msg))
		case RoleAssistant:
			out = append(out, translateChatAssistantMessage(msg))
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					out = append(out, map[string]interface{}{
						"role":         "tool",
						"tool_call_id": part.ToolResult.ToolCallID,
						"content":      string(part.ToolResult.Content),
					})
				}
			}
		}
	}
	return out
}

func translateChatUserMessage(msg Message) map[string]interface{} {
	hasImage := false
	for _, part := range msg.Content {
		if part.Kind == ContentImage {
			hasImage = true
			break
		}
	}
	// Plain text keeps the string form, which every compatible server
	// accepts; multimodal content needs the part-array form.
	if !hasImage {
		return map[string]interface{}{
			"role":    "user",
			"content": msg.TextContent(),
		}
	}

	var content []interface{}
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			content = append(content, map[string]interface{}{
				"type": "text",
				"text": part.Text,
			})
		case ContentImage:
			if part.Image == nil {
				continue
			}
			url := part.Image.URL
			if url == "" && len(part.Image.Data) > 0 {
				mediaType := part.Image.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				url = "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(part.Image.Data)
			}
			imageURL := map[string]interface{}{"url": url}
			if part.Image.Detail != "" {
				imageURL["detail"] = part.Image.Detail
			}
			content = append(content, map[string]interface{}{
				"type":      "image_url",
				"image_url": imageURL,
			})
		}
	}
	return map[string]interface{}{
		"role":    "user",
		"content": content,
	}
}

func translateChatAssistantMessage(msg Message) map[string]interface{} {
	out := map[string]interface{}{"role": "assistant"}

	var toolCalls []interface{}
	for _, part := range msg.Content {
		if part.Kind == ContentToolCall && part.ToolCall != nil {
			args := string(part.ToolCall.Arguments)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   part.ToolCall.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      part.ToolCall.Name,
					"arguments": args,
				},
			})
		}
	}

	if text := msg.TextContent(); text != "" || len(toolCalls) == 0 {
		out["content"] = text
	}
	if len(toolCalls) > 0 {
		out["tool_calls"] = toolCalls
	}
	return out
}

func translateChatToolChoice(tc *ToolChoice) interface{} {
	switch tc.Mode {
	case "auto", "none", "required":
		return tc.Mode
	case "named":
		return map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name": tc.ToolName,
			},
		}
	}
	return "auto"
}

func (a *OpenAICompatAdapter) translateResponse(bodyBytes []byte, rateLimit *RateLimitInfo) (*Response, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse response JSON", Cause: err},
			Provider: a.providerName,
		}}
	}

	response := &Response{
		Provider: a.providerName,
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}

	id, _ := raw["id"].(string)
	model, _ := raw["model"].(string)
	if id == "" || model == "" {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "response is missing id or model"},
			Provider: a.providerName,
			Raw:      raw,
		}}
	}
	response.ID = id
	response.Model = model

	finishRaw := ""
	choices, _ := raw["choices"].([]interface{})
	if len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			finishRaw, _ = choice["finish_reason"].(string)
			if message, ok := choice["message"].(map[string]interface{}); ok {
				response.Message.Content = parseChatMessageContent(message)
			}
		}
	}

	response.FinishReason = normalizeFinishReason(mapChatFinishReason(finishRaw), response.Message.Content)
	response.Usage = parseChatUsage(raw, response.Message.Content)
	response.RateLimit = rateLimit

	return response, nil
}

func parseChatMessageContent(message map[string]interface{}) []ContentPart {
	var parts []ContentPart

	// Some compatible servers surface reasoning under reasoning_content.
	if reasoning, ok := message["reasoning_content"].(string); ok && reasoning != "" {
		parts = append(parts, ThinkingPart(reasoning, ""))
	}

	if content, ok := message["content"].(string); ok && content != "" {
		parts = append(parts, TextPart(content))
	}

	if toolCalls, ok := message["tool_calls"].([]interface{}); ok {
		for _, tc := range toolCalls {
			tcMap, ok := tc.(map[string]interface{})
			if !ok {
				continue
			}
			callID, _ := tcMap["id"].(string)
			fn, _ := tcMap["function"].(map[string]interface{})
			name, _ := fn["name"].(string)
			args, _ := fn["arguments"].(string)
			if args == "" {
				args = "{}"
			}
			parts = append(parts, ToolCallPart(callID, name, json.RawMessage(args)))
		}
	}

	return parts
}

func mapChatFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishReason{Reason: FinishStop, Raw: reason}
	case "length":
		return FinishReason{Reason: FinishLength, Raw: reason}
	case "tool_calls", "function_call":
		return FinishReason{Reason: FinishToolCalls, Raw: reason}
	case "content_filter":
		return FinishReason{Reason: FinishContentFilter, Raw: reason}
	default:
		return FinishReason{Reason: FinishOther, Raw: reason}
	}
}

func parseChatUsage(raw map[string]interface{}, content []ContentPart) Usage {
	usage := Usage{}
	usageMap, ok := raw["usage"].(map[string]interface{})
	if !ok {
		usage.ReasoningTokens = estimateReasoningTokens(content)
		return usage
	}

	if v, ok := usageMap["prompt_tokens"].(float64); ok {
		usage.InputTokens = int(v)
	}
	if v, ok := usageMap["completion_tokens"].(float64); ok {
		usage.OutputTokens = int(v)
	}
	if v, ok := usageMap["total_tokens"].(float64); ok {
		usage.TotalTokens = int(v)
	} else {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	if details, ok := usageMap["completion_tokens_details"].(map[string]interface{}); ok {
		if v, ok := details["reasoning_tokens"].(float64); ok && v > 0 {
			rt := int(v)
			usage.ReasoningTokens = &rt
		}
	}
	if usage.ReasoningTokens == nil {
		usage.ReasoningTokens = estimateReasoningTokens(content)
	}

	if details, ok := usageMap["prompt_tokens_details"].(map[string]interface{}); ok {
		if v, ok := details["cached_tokens"].(float64); ok {
			ct := int(v)
			usage.CacheReadTokens = &ct
		}
	}

	usage.Raw = usageMap
	return usage
}

// chatToolCallAccumulator rebuilds one streamed tool call from delta
// fragments keyed by the provider's choice index.
type chatToolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func (a *OpenAICompatAdapter) translateStream(ctx context.Context, body io.ReadCloser, rateLimit *RateLimitInfo, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	reader := newSSEReader(body)
	accumulator := NewStreamAccumulator()

	var usage Usage
	var usageSeen bool
	var responseID, responseModel string
	var finishRaw string
	toolCalls := map[int]*chatToolCallAccumulator{}
	var toolCallOrder []int
	textOpen := false
	reasoningOpen := false
	started := false

	closeToolCalls := func() {
		sort.Ints(toolCallOrder)
		for _, idx := range toolCallOrder {
			acc := toolCalls[idx]
			args := acc.args.String()
			if args == "" {
				args = "{}"
			}
			tc := &ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: json.RawMessage(args),
			}
			evt := StreamEvent{Type: ToolCallEnd, ToolCall: tc}
			ch <- evt
			accumulator.Process(evt)
		}
		toolCalls = map[int]*chatToolCallAccumulator{}
		toolCallOrder = nil
	}

	finish := func() {
		if textOpen {
			ch <- StreamEvent{Type: TextEnd, TextID: "text_0"}
			textOpen = false
		}
		if reasoningOpen {
			evt := StreamEvent{Type: ReasoningEnd}
			ch <- evt
			accumulator.Process(evt)
			reasoningOpen = false
		}
		closeToolCalls()

		accResp := accumulator.Response()
		fr := normalizeFinishReason(mapChatFinishReason(finishRaw), accResp.Message.Content)
		if !usageSeen {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
		if usage.ReasoningTokens == nil {
			usage.ReasoningTokens = estimateReasoningTokens(accResp.Message.Content)
		}
		accResp.ID = responseID
		accResp.Model = responseModel
		accResp.Provider = a.providerName
		accResp.Usage = usage
		accResp.FinishReason = fr
		accResp.RateLimit = rateLimit
		ch <- StreamEvent{
			Type:         StreamFinish,
			FinishReason: &fr,
			Usage:        &usage,
			Response:     accResp,
		}
	}

	for {
		select {
		case <-ctx.Done():
			ch <- StreamEvent{Type: StreamError, Error: &AbortError{SDKError{Message: "stream cancelled", Cause: ctx.Err()}}}
			return
		default:
		}

		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			ch <- StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError{Message: "stream read error", Cause: err}}}
			return
		}

		if event.done() {
			finish()
			return
		}

		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError{Message: "undecodable stream chunk", Cause: err}}}
			continue
		}

		if id, ok := chunk["id"].(string); ok && id != "" {
			responseID = id
		}
		if model, ok := chunk["model"].(string); ok && model != "" {
			responseModel = model
		}

		if !started {
			started = true
			ch <- StreamEvent{Type: StreamStart}
		}

		// The final usage chunk has an empty choices array.
		if usageMap, ok := chunk["usage"].(map[string]interface{}); ok && usageMap != nil {
			usage = parseChatUsage(chunk, nil)
			usageSeen = true
			u := usage
			ch <- StreamEvent{Type: StreamUsage, Usage: &u}
		}

		choices, _ := chunk["choices"].([]interface{})
		if len(choices) == 0 {
			continue
		}
		choice, ok := choices[0].(map[string]interface{})
		if !ok {
			continue
		}

		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			finishRaw = fr
		}

		delta, ok := choice["delta"].(map[string]interface{})
		if !ok {
			continue
		}

		if reasoning, ok := delta["reasoning_content"].(string); ok && reasoning != "" {
			if !reasoningOpen {
				reasoningOpen = true
				evt := StreamEvent{Type: ReasoningStart}
				ch <- evt
				accumulator.Process(evt)
			}
			evt := StreamEvent{Type: ReasoningDelta, ReasoningDelta: reasoning}
			ch <- evt
			accumulator.Process(evt)
		}

		if text, ok := delta["content"].(string); ok && text != "" {
			if reasoningOpen {
				evt := StreamEvent{Type: ReasoningEnd}
				ch <- evt
				accumulator.Process(evt)
				reasoningOpen = false
			}
			if !textOpen {
				textOpen = true
				evt := StreamEvent{Type: TextStart, TextID: "text_0"}
				ch <- evt
				accumulator.Process(evt)
			}
			evt := StreamEvent{Type: TextDelta, Delta: text, TextID: "text_0"}
			ch <- evt
			accumulator.Process(evt)
		}

		if tcs, ok := delta["tool_calls"].([]interface{}); ok {
			for _, tc := range tcs {
				tcMap, ok := tc.(map[string]interface{})
				if !ok {
					continue
				}
				idx := 0
				if v, ok := tcMap["index"].(float64); ok {
					idx = int(v)
				}
				acc, exists := toolCalls[idx]
				if !exists {
					acc = &chatToolCallAccumulator{}
					toolCalls[idx] = acc
					toolCallOrder = append(toolCallOrder, idx)
				}
				if id, ok := tcMap["id"].(string); ok && id != "" {
					acc.id = id
				}
				if fn, ok := tcMap["function"].(map[string]interface{}); ok {
					if name, ok := fn["name"].(string); ok && name != "" {
						if !exists {
							ch <- StreamEvent{
								Type:     ToolCallStart,
								ToolCall: &ToolCall{ID: acc.id, Name: name},
							}
						}
						acc.name = name
					}
					if args, ok := fn["arguments"].(string); ok && args != "" {
						acc.args.WriteString(args)
						ch <- StreamEvent{
							Type:     ToolCallDelta,
							Delta:    args,
							ToolCall: &ToolCall{ID: acc.id, Name: acc.name},
						}
					}
				}
			}
		}
	}

	// Stream ended without the [DONE] sentinel; finish with what we have.
	finish()
}

// ListModels fetches /v1/models. The compatible-listing shape carries ids
// only, so every capability flag stays false.
func (a *OpenAICompatAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body, _, err := a.http.getJSON(ctx, "/v1/models", headers)
	if err != nil {
		return nil, translateHTTPError(a.providerName, err)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: fmt.Sprintf("failed to parse model listing: %v", err)},
			Provider: a.providerName,
		}}
	}

	var models []ModelInfo
	for _, m := range listing.Data {
		if m.ID == "" {
			continue
		}
		models = append(models, ModelInfo{
			ID:       m.ID,
			Provider: a.providerName,
		})
	}
	return models, nil
}
