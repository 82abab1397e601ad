package omnillm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	anthropicVersion = "2023-06-01"

	// anthropicDefaultMaxTokens backs the required max_tokens field when the
	// caller did not set one.
	anthropicDefaultMaxTokens = 4096

	promptCachingBeta = "prompt-caching-2024-07-31"
)

// AnthropicAdapter implements ProviderAdapter for the Anthropic Messages
// API. Anthropic authenticates with an x-api-key header rather than a
// bearer Authorization header.
type AnthropicAdapter struct {
	cred    Credential
	baseURL string
	http    *httpClient
	logger  zerolog.Logger
}

// AnthropicAdapterOption configures an AnthropicAdapter.
type AnthropicAdapterOption func(*AnthropicAdapter)

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicAdapterOption {
	return func(a *AnthropicAdapter) {
		a.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAnthropicCredential replaces the static API key with a custom
// credential.
func WithAnthropicCredential(cred Credential) AnthropicAdapterOption {
	return func(a *AnthropicAdapter) {
		a.cred = cred
	}
}

// WithAnthropicLogger sets the adapter logger.
func WithAnthropicLogger(logger zerolog.Logger) AnthropicAdapterOption {
	return func(a *AnthropicAdapter) {
		a.logger = logger
	}
}

// NewAnthropicAdapter creates a new Anthropic adapter using the Messages
// API. An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicAdapterOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	a := &AnthropicAdapter{
		baseURL: "https://api.anthropic.com",
		logger:  zerolog.Nop(),
	}

	if envURL := os.Getenv("ANTHROPIC_BASE_URL"); envURL != "" {
		a.baseURL = strings.TrimRight(envURL, "/")
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cred == nil {
		if apiKey == "" {
			return nil, &ConfigurationError{SDKError{
				Message: "ANTHROPIC_API_KEY is required",
			}}
		}
		a.cred = NewStaticCredential(apiKey)
	}

	headers := http.Header{}
	headers.Set("content-type", "application/json")
	headers.Set("anthropic-version", anthropicVersion)
	a.http = newHTTPClient(a.baseURL, headers, a.logger)

	return a, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	}
	return false
}

func (a *AnthropicAdapter) authHeaders(ctx context.Context, betaHeaders []string) (http.Header, error) {
	token, err := a.cred.Token(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateToken(token); err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("x-api-key", token)
	if len(betaHeaders) > 0 {
		headers.Set("anthropic-beta", strings.Join(betaHeaders, ","))
	}
	return headers, nil
}

// Complete sends a blocking request to the Anthropic Messages API.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, betaHeaders, err := a.translateRequest(req, false)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx, betaHeaders)
	if err != nil {
		return nil, err
	}

	respBody, respHeaders, err := a.http.postJSON(ctx, "/v1/messages", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError("anthropic", err)
	}

	return a.translateResponse(respBody, parseRateLimitHeaders(respHeaders))
}

// Stream sends a streaming request to the Anthropic Messages API.
func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, betaHeaders, err := a.translateRequest(req, true)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx, betaHeaders)
	if err != nil {
		return nil, err
	}

	stream, respHeaders, err := a.http.postStream(ctx, "/v1/messages", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError("anthropic", err)
	}

	ch := make(chan StreamEvent, 64)
	go a.translateStream(ctx, stream, parseRateLimitHeaders(respHeaders), ch)
	return ch, nil
}

func (a *AnthropicAdapter) translateRequest(req Request, stream bool) ([]byte, []string, error) {
	body := map[string]interface{}{
		"model": req.Model,
	}

	var betaHeaders []string
	hasCacheControl := false

	autoCache := true
	var providerOpts map[string]interface{}
	if opts, ok := req.ProviderOptions["anthropic"].(map[string]interface{}); ok {
		providerOpts = opts
		if ac, ok := opts["auto_cache"].(bool); ok {
			autoCache = ac
		}
		if bh, ok := opts["beta_headers"].([]interface{}); ok {
			for _, h := range bh {
				if s, ok := h.(string); ok {
					betaHeaders = append(betaHeaders, s)
				}
			}
		}
		if thinking, ok := opts["thinking"]; ok {
			body["thinking"] = thinking
		}
	}

	// System-role messages become the top-level system field and are
	// excluded from the message list.
	var systemBlocks []interface{}
	var messages []map[string]interface{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			for _, part := range msg.Content {
				if part.Kind == ContentText {
					systemBlocks = append(systemBlocks, map[string]interface{}{
						"type": "text",
						"text": part.Text,
					})
				}
			}
		case RoleUser:
			messages = append(messages, a.translateUserMessage(msg))
		case RoleAssistant:
			messages = append(messages, a.translateAssistantMessage(msg))
		case RoleTool:
			// Tool results travel as user-role messages.
			messages = append(messages, a.translateToolMessage(msg))
		}
	}

	// Strict user/assistant alternation: merge consecutive same-role
	// messages.
	messages = mergeConsecutiveMessages(messages)

	var tools []interface{}
	if req.ToolChoice == nil || req.ToolChoice.Mode != "none" {
		for _, td := range req.ToolDefs {
			tools = append(tools, map[string]interface{}{
				"name":         td.Name,
				"description":  td.Description,
				"input_schema": td.Parameters,
			})
		}
	}

	// Prompt caching: mark the last tool, the last system block, and the
	// last block of the conversation prefix as cache breakpoints.
	if autoCache && len(tools) > 0 {
		hasCacheControl = true
		if lastTool, ok := tools[len(tools)-1].(map[string]interface{}); ok {
			lastTool["cache_control"] = map[string]interface{}{"type": "ephemeral"}
		}
	}
	if autoCache && len(systemBlocks) > 0 {
		hasCacheControl = true
		if lastBlock, ok := systemBlocks[len(systemBlocks)-1].(map[string]interface{}); ok {
			lastBlock["cache_control"] = map[string]interface{}{"type": "ephemeral"}
		}
	}
	if autoCache && len(messages) >= 2 {
		hasCacheControl = true
		secondToLast := messages[len(messages)-2]
		if secondToLast["role"] == "user" {
			if content, ok := secondToLast["content"].([]interface{}); ok && len(content) > 0 {
				if lastBlock, ok := content[len(content)-1].(map[string]interface{}); ok {
					lastBlock["cache_control"] = map[string]interface{}{"type": "ephemeral"}
				}
			}
		}
	}

	if hasCacheControl {
		found := false
		for _, h := range betaHeaders {
			if h == promptCachingBeta {
				found = true
				break
			}
		}
		if !found {
			betaHeaders = append(betaHeaders, promptCachingBeta)
		}
	}

	if len(systemBlocks) > 0 {
		body["system"] = systemBlocks
	}
	body["messages"] = messages

	if len(tools) > 0 {
		body["tools"] = tools
	}
	if req.ToolChoice != nil && len(tools) > 0 {
		if tc := a.translateToolChoice(req.ToolChoice); tc != nil {
			body["tool_choice"] = tc
		}
	}

	// max_tokens is required by the Messages API.
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	body["max_tokens"] = maxTokens

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}

	if stream {
		body["stream"] = true
	}

	if providerOpts != nil {
		for k, v := range providerOpts {
			switch k {
			case "auto_cache", "beta_headers", "thinking":
				continue
			default:
				body[k] = v
			}
		}
	}

	data, err := json.Marshal(body)
	return data, betaHeaders, err
}

func (a *AnthropicAdapter) translateUserMessage(msg Message) map[string]interface{} {
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
			if part.Image.URL != "" {
				content = append(content, map[string]interface{}{
					"type": "image",
					"source": map[string]interface{}{
						"type": "url",
						"url":  part.Image.URL,
					},
				})
			} else if len(part.Image.Data) > 0 {
				mediaType := part.Image.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				content = append(content, map[string]interface{}{
					"type": "image",
					"source": map[string]interface{}{
						"type":       "base64",
						"media_type": mediaType,
						"data":       base64.StdEncoding.EncodeToString(part.Image.Data),
					},
				})
			}
		}
	}
	if len(content) == 0 {
		content = append(content, map[string]interface{}{
			"type": "text",
			"text": "",
		})
	}
	return map[string]interface{}{
		"role":    "user",
		"content": content,
	}
}

func (a *AnthropicAdapter) translateAssistantMessage(msg Message) map[string]interface{} {
	var content []interface{}
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			content = append(content, map[string]interface{}{
				"type": "text",
				"text": part.Text,
			})
		case ContentToolCall:
			if part.ToolCall != nil {
				var input interface{}
				if err := json.Unmarshal(part.ToolCall.Arguments, &input); err != nil {
					input = map[string]interface{}{}
				}
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    part.ToolCall.ID,
					"name":  part.ToolCall.Name,
					"input": input,
				})
			}
		case ContentThinking:
			if part.Thinking != nil {
				block := map[string]interface{}{
					"type":     "thinking",
					"thinking": part.Thinking.Text,
				}
				if part.Thinking.Signature != "" {
					block["signature"] = part.Thinking.Signature
				}
				content = append(content, block)
			}
		case ContentRedactedThinking:
			if part.Thinking != nil {
				content = append(content, map[string]interface{}{
					"type": "redacted_thinking",
					"data": part.Thinking.Text,
				})
			}
		}
	}
	if len(content) == 0 {
		content = append(content, map[string]interface{}{
			"type": "text",
			"text": "",
		})
	}
	return map[string]interface{}{
		"role":    "assistant",
		"content": content,
	}
}

func (a *AnthropicAdapter) translateToolMessage(msg Message) map[string]interface{} {
	var content []interface{}
	for _, part := range msg.Content {
		if part.Kind == ContentToolResult && part.ToolResult != nil {
			block := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": part.ToolResult.ToolCallID,
				"content":     string(part.ToolResult.Content),
			}
			if part.ToolResult.IsError {
				block["is_error"] = true
			}
			content = append(content, block)
		}
	}
	return map[string]interface{}{
		"role":    "user",
		"content": content,
	}
}

func mergeConsecutiveMessages(messages []map[string]interface{}) []map[string]interface{} {
	if len(messages) <= 1 {
		return messages
	}

	var merged []map[string]interface{}
	for _, msg := range messages {
		if len(merged) > 0 {
			last := merged[len(merged)-1]
			if last["role"] == msg["role"] {
				lastContent, _ := last["content"].([]interface{})
				msgContent, _ := msg["content"].([]interface{})
				last["content"] = append(lastContent, msgContent...)
				continue
			}
		}
		merged = append(merged, msg)
	}
	return merged
}

func (a *AnthropicAdapter) translateToolChoice(tc *ToolChoice) interface{} {
	switch tc.Mode {
	case "auto":
		return map[string]interface{}{"type": "auto"}
	case "none":
		// Tools are omitted entirely for "none" (handled in
		// translateRequest).
		return nil
	case "required":
		return map[string]interface{}{"type": "any"}
	case "named":
		return map[string]interface{}{
			"type": "tool",
			"name": tc.ToolName,
		}
	}
	return map[string]interface{}{"type": "auto"}
}

func (a *AnthropicAdapter) translateResponse(bodyBytes []byte, rateLimit *RateLimitInfo) (*Response, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse response JSON", Cause: err},
			Provider: "anthropic",
		}}
	}

	response := &Response{
		Provider: "anthropic",
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}

	id, _ := raw["id"].(string)
	model, _ := raw["model"].(string)
	if id == "" || model == "" {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "response is missing id or model"},
			Provider: "anthropic",
			Raw:      raw,
		}}
	}
	response.ID = id
	response.Model = model

	if content, ok := raw["content"].([]interface{}); ok {
		for _, block := range content {
			blockMap, ok := block.(map[string]interface{})
			if !ok {
				continue
			}
			blockType, _ := blockMap["type"].(string)
			switch blockType {
			case "text":
				if text, ok := blockMap["text"].(string); ok {
					response.Message.Content = append(response.Message.Content, TextPart(text))
				}
			case "tool_use":
				name, _ := blockMap["name"].(string)
				callID, _ := blockMap["id"].(string)
				var args json.RawMessage
				if input, ok := blockMap["input"]; ok {
					args, _ = json.Marshal(input)
				}
				response.Message.Content = append(response.Message.Content, ToolCallPart(callID, name, args))
			case "thinking":
				text, _ := blockMap["thinking"].(string)
				sig, _ := blockMap["signature"].(string)
				response.Message.Content = append(response.Message.Content, ThinkingPart(text, sig))
			case "redacted_thinking":
				data, _ := blockMap["data"].(string)
				response.Message.Content = append(response.Message.Content, RedactedThinkingPart(data))
			}
			// Unknown block types are ignored for forward compatibility.
		}
	}

	stopReason, _ := raw["stop_reason"].(string)
	response.FinishReason = normalizeFinishReason(a.mapFinishReason(stopReason), response.Message.Content)
	response.Usage = a.parseUsage(raw, response.Message.Content)
	response.RateLimit = rateLimit

	return response, nil
}

func (a *AnthropicAdapter) mapFinishReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishReason{Reason: FinishStop, Raw: reason}
	case "max_tokens":
		return FinishReason{Reason: FinishLength, Raw: reason}
	case "tool_use":
		return FinishReason{Reason: FinishToolCalls, Raw: reason}
	case "refusal":
		return FinishReason{Reason: FinishContentFilter, Raw: reason}
	default:
		return FinishReason{Reason: FinishOther, Raw: reason}
	}
}

func (a *AnthropicAdapter) parseUsage(raw map[string]interface{}, content []ContentPart) Usage {
	usage := Usage{}
	usageMap, ok := raw["usage"].(map[string]interface{})
	if !ok {
		return usage
	}

	if v, ok := usageMap["input_tokens"].(float64); ok {
		usage.InputTokens = int(v)
	}
	if v, ok := usageMap["output_tokens"].(float64); ok {
		usage.OutputTokens = int(v)
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	if v, ok := usageMap["cache_read_input_tokens"].(float64); ok {
		ct := int(v)
		usage.CacheReadTokens = &ct
	}
	if v, ok := usageMap["cache_creation_input_tokens"].(float64); ok {
		ct := int(v)
		usage.CacheWriteTokens = &ct
	}

	// Anthropic reports no separate reasoning count; estimate from
	// thinking content.
	usage.ReasoningTokens = estimateReasoningTokens(content)

	usage.Raw = usageMap
	return usage
}

func (a *AnthropicAdapter) translateStream(ctx context.Context, body io.ReadCloser, rateLimit *RateLimitInfo, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	reader := newSSEReader(body)
	accumulator := NewStreamAccumulator()

	var usage Usage
	var responseID, responseModel string
	var currentBlockType string
	var currentBlockIndex int
	var currentToolCallID string
	var currentToolCallName string
	var toolCallArgs strings.Builder

	finish := func(fr FinishReason) {
		accResp := accumulator.Response()
		fr = normalizeFinishReason(fr, accResp.Message.Content)
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		if usage.ReasoningTokens == nil {
			usage.ReasoningTokens = estimateReasoningTokens(accResp.Message.Content)
		}
		accResp.ID = responseID
		accResp.Model = responseModel
		accResp.Provider = "anthropic"
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

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(event.Data), &data); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError{Message: "undecodable stream chunk", Cause: err}}}
			continue
		}

		switch event.Event {
		case "message_start":
			if msgData, ok := data["message"].(map[string]interface{}); ok {
				if id, ok := msgData["id"].(string); ok {
					responseID = id
				}
				if model, ok := msgData["model"].(string); ok {
					responseModel = model
				}
				if usageData, ok := msgData["usage"].(map[string]interface{}); ok {
					if v, ok := usageData["input_tokens"].(float64); ok {
						usage.InputTokens = int(v)
					}
					if v, ok := usageData["cache_read_input_tokens"].(float64); ok {
						ct := int(v)
						usage.CacheReadTokens = &ct
					}
					if v, ok := usageData["cache_creation_input_tokens"].(float64); ok {
						ct := int(v)
						usage.CacheWriteTokens = &ct
					}
				}
			}
			ch <- StreamEvent{Type: StreamStart}

		case "content_block_start":
			cb, ok := data["content_block"].(map[string]interface{})
			if !ok {
				continue
			}
			blockType, _ := cb["type"].(string)
			currentBlockType = blockType
			if idx, ok := data["index"].(float64); ok {
				currentBlockIndex = int(idx)
			}

			switch blockType {
			case "text":
				evt := StreamEvent{Type: TextStart, TextID: fmt.Sprintf("text_%d", currentBlockIndex)}
				ch <- evt
				accumulator.Process(evt)
			case "tool_use":
				currentToolCallID, _ = cb["id"].(string)
				currentToolCallName, _ = cb["name"].(string)
				toolCallArgs.Reset()
				ch <- StreamEvent{
					Type: ToolCallStart,
					ToolCall: &ToolCall{
						ID:   currentToolCallID,
						Name: currentToolCallName,
					},
				}
			case "thinking":
				evt := StreamEvent{Type: ReasoningStart}
				ch <- evt
				accumulator.Process(evt)
			}

		case "content_block_delta":
			delta, ok := data["delta"].(map[string]interface{})
			if !ok {
				continue
			}
			deltaType, _ := delta["type"].(string)
			switch deltaType {
			case "text_delta":
				text, _ := delta["text"].(string)
				evt := StreamEvent{Type: TextDelta, Delta: text, TextID: fmt.Sprintf("text_%d", currentBlockIndex)}
				ch <- evt
				accumulator.Process(evt)
			case "input_json_delta":
				jsonDelta, _ := delta["partial_json"].(string)
				toolCallArgs.WriteString(jsonDelta)
				ch <- StreamEvent{
					Type:  ToolCallDelta,
					Delta: jsonDelta,
					ToolCall: &ToolCall{
						ID:   currentToolCallID,
						Name: currentToolCallName,
					},
				}
			case "thinking_delta":
				thinking, _ := delta["thinking"].(string)
				evt := StreamEvent{Type: ReasoningDelta, ReasoningDelta: thinking}
				ch <- evt
				accumulator.Process(evt)
			}

		case "content_block_stop":
			switch currentBlockType {
			case "text":
				ch <- StreamEvent{Type: TextEnd, TextID: fmt.Sprintf("text_%d", currentBlockIndex)}
			case "tool_use":
				tc := &ToolCall{
					ID:        currentToolCallID,
					Name:      currentToolCallName,
					Arguments: json.RawMessage(toolCallArgs.String()),
				}
				evt := StreamEvent{Type: ToolCallEnd, ToolCall: tc}
				ch <- evt
				accumulator.Process(evt)
			case "thinking":
				evt := StreamEvent{Type: ReasoningEnd}
				ch <- evt
				accumulator.Process(evt)
			}

		case "message_delta":
			if usageData, ok := data["usage"].(map[string]interface{}); ok {
				if v, ok := usageData["output_tokens"].(float64); ok {
					usage.OutputTokens = int(v)
					u := usage
					u.TotalTokens = u.InputTokens + u.OutputTokens
					ch <- StreamEvent{Type: StreamUsage, Usage: &u}
				}
			}
			if delta, ok := data["delta"].(map[string]interface{}); ok {
				if stopReason, ok := delta["stop_reason"].(string); ok {
					finish(a.mapFinishReason(stopReason))
					return
				}
			}

		case "message_stop":
			finish(FinishReason{Reason: FinishStop})
			return

		case "error":
			errMsg := "stream error"
			if errData, ok := data["error"].(map[string]interface{}); ok {
				if msg, ok := errData["message"].(string); ok {
					errMsg = msg
				}
			}
			// No status code mid-stream; classify by message keywords.
			streamErr := error(&StreamErrorType{SDKError{Message: errMsg}})
			if classified := ClassifyMessage(errMsg); classified != nil {
				streamErr = classified
			}
			ch <- StreamEvent{Type: StreamError, Error: streamErr}
			return
		}
	}

	// Stream ended without message_stop.
	finish(FinishReason{Reason: FinishStop})
}

// ListModels fetches /v1/models, following pagination. Anthropic's listing
// exposes display names but no capability metadata, so the flags default to
// false.
func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	headers, err := a.authHeaders(ctx, nil)
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	afterID := ""
	for page := 0; page < 10; page++ {
		path := "/v1/models?limit=100"
		if afterID != "" {
			path += "&after_id=" + url.QueryEscape(afterID)
		}

		body, _, err := a.http.getJSON(ctx, path, headers)
		if err != nil {
			return nil, translateHTTPError("anthropic", err)
		}

		var listing struct {
			Data []struct {
				Type        string `json:"type"`
				ID          string `json:"id"`
				DisplayName string `json:"display_name"`
			} `json:"data"`
			HasMore bool   `json:"has_more"`
			LastID  string `json:"last_id"`
		}
		if err := json.Unmarshal(body, &listing); err != nil {
			return nil, &InvalidRequestError{ProviderError{
				SDKError: SDKError{Message: "failed to parse model listing", Cause: err},
				Provider: "anthropic",
			}}
		}

		for _, m := range listing.Data {
			if m.Type != "model" {
				continue
			}
			models = append(models, ModelInfo{
				ID:          m.ID,
				Provider:    "anthropic",
				DisplayName: m.DisplayName,
			})
		}

		if !listing.HasMore || listing.LastID == "" {
			break
		}
		afterID = listing.LastID
	}
	return models, nil
}
