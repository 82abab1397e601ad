package omnillm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// OpenAIAdapter implements ProviderAdapter for the OpenAI Responses API.
type OpenAIAdapter struct {
	cred    Credential
	baseURL string
	org     string
	project string
	http    *httpClient
	logger  zerolog.Logger
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*OpenAIAdapter)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(url string) OpenAIAdapterOption {
	return func(a *OpenAIAdapter) {
		a.baseURL = strings.TrimRight(url, "/")
	}
}

// WithOpenAICredential replaces the static API key with a custom credential.
func WithOpenAICredential(cred Credential) OpenAIAdapterOption {
	return func(a *OpenAIAdapter) {
		a.cred = cred
	}
}

// WithOpenAIOrganization sets the OpenAI-Organization header.
func WithOpenAIOrganization(org string) OpenAIAdapterOption {
	return func(a *OpenAIAdapter) {
		a.org = org
	}
}

// WithOpenAIProject sets the OpenAI-Project header.
func WithOpenAIProject(project string) OpenAIAdapterOption {
	return func(a *OpenAIAdapter) {
		a.project = project
	}
}

// WithOpenAILogger sets the adapter logger.
func WithOpenAILogger(logger zerolog.Logger) OpenAIAdapterOption {
	return func(a *OpenAIAdapter) {
		a.logger = logger
	}
}

// NewOpenAIAdapter creates a new OpenAI adapter using the Responses API.
// An empty apiKey falls back to OPENAI_API_KEY.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	a := &OpenAIAdapter{
		baseURL: "https://api.openai.com",
		logger:  zerolog.Nop(),
	}

	if envURL := os.Getenv("OPENAI_BASE_URL"); envURL != "" {
		a.baseURL = strings.TrimRight(envURL, "/")
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cred == nil {
		if apiKey == "" {
			return nil, &ConfigurationError{SDKError{
				Message: "OPENAI_API_KEY is required",
			}}
		}
		a.cred = NewStaticCredential(apiKey)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if a.org != "" {
		headers.Set("OpenAI-Organization", a.org)
	}
	if a.project != "" {
		headers.Set("OpenAI-Project", a.project)
	}
	a.http = newHTTPClient(a.baseURL, headers, a.logger)

	return a, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	}
	return false
}

func (a *OpenAIAdapter) authHeaders(ctx context.Context) (http.Header, error) {
	token, err := a.cred.Token(ctx)
	if err != nil {
		return nil, err
	}
	bearer, err := bearerHeader(token)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", bearer)
	return headers, nil
}

// Complete sends a blocking request to the OpenAI Responses API.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.translateRequest(req, false)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	respBody, respHeaders, err := a.http.postJSON(ctx, "/v1/responses", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError("openai", err)
	}

	return a.translateResponse(respBody, parseRateLimitHeaders(respHeaders))
}

// Stream sends a streaming request to the OpenAI Responses API.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := a.translateRequest(req, true)
	if err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	stream, respHeaders, err := a.http.postStream(ctx, "/v1/responses", body, headers, req.Timeout)
	if err != nil {
		return nil, translateHTTPError("openai", err)
	}

	ch := make(chan StreamEvent, 64)
	go a.translateStream(ctx, stream, parseRateLimitHeaders(respHeaders), ch)
	return ch, nil
}

func (a *OpenAIAdapter) translateRequest(req Request, stream bool) ([]byte, error) {
	body := map[string]interface{}{
		"model": req.Model,
	}

	// The Responses API takes system/developer text as top-level
	// instructions, not as input items.
	var instructions []string
	var input []interface{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			instructions = append(instructions, msg.TextContent())
		case RoleUser:
			input = append(input, a.translateUserMessage(msg))
		case RoleAssistant:
			input = append(input, a.translateAssistantMessage(msg)...)
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					input = append(input, map[string]interface{}{
						"type":    "function_call_output",
						"call_id": part.ToolResult.ToolCallID,
						"output":  string(part.ToolResult.Content),
					})
				}
			}
		}
	}

	if len(instructions) > 0 {
		body["instructions"] = strings.Join(instructions, "\n\n")
	}
	if len(input) > 0 {
		body["input"] = input
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
		body["tool_choice"] = a.translateToolChoice(req.ToolChoice)
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_output_tokens"] = *req.MaxTokens
	}

	if req.ReasoningEffort != "" {
		body["reasoning"] = map[string]interface{}{
			"effort": req.ReasoningEffort,
		}
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_schema":
			body["text"] = map[string]interface{}{
				"format": map[string]interface{}{
					"type":        "json_schema",
					"json_schema": req.ResponseFormat.JSONSchema,
					"strict":      req.ResponseFormat.Strict,
				},
			}
		case "json":
			body["text"] = map[string]interface{}{
				"format": map[string]interface{}{
					"type": "json_object",
				},
			}
		}
	}

	if stream {
		body["stream"] = true
	}

	if opts, ok := req.ProviderOptions["openai"].(map[string]interface{}); ok {
		for k, v := range opts {
			body[k] = v
		}
	}

	return json.Marshal(body)
}

func (a *OpenAIAdapter) translateUserMessage(msg Message) map[string]interface{} {
	var content []interface{}
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			content = append(content, map[string]interface{}{
				"type": "input_text",
				"text": part.Text,
			})
		case ContentImage:
			if part.Image == nil {
				continue
			}
			var imageURL string
			if part.Image.URL != "" {
				imageURL = part.Image.URL
			} else if len(part.Image.Data) > 0 {
				mediaType := part.Image.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				imageURL = fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(part.Image.Data))
			}
			if imageURL != "" {
				content = append(content, map[string]interface{}{
					"type":      "input_image",
					"image_url": imageURL,
				})
			}
		}
	}

	return map[string]interface{}{
		"type":    "message",
		"role":    "user",
		"content": content,
	}
}

func (a *OpenAIAdapter) translateAssistantMessage(msg Message) []interface{} {
	var items []interface{}

	var textParts []interface{}
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			textParts = append(textParts, map[string]interface{}{
				"type": "output_text",
				"text": part.Text,
			})
		case ContentToolCall:
			if part.ToolCall != nil {
				items = append(items, map[string]interface{}{
					"type":      "function_call",
					"id":        part.ToolCall.ID,
					"name":      part.ToolCall.Name,
					"arguments": string(part.ToolCall.Arguments),
				})
			}
		}
	}

	if len(textParts) > 0 {
		items = append([]interface{}{map[string]interface{}{
			"type":    "message",
			"role":    "assistant",
			"content": textParts,
		}}, items...)
	}

	return items
}

func (a *OpenAIAdapter) translateToolChoice(tc *ToolChoice) interface{} {
	switch tc.Mode {
	case "auto":
		return "auto"
	case "none":
		return "none"
	case "required":
		return "required"
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

func (a *OpenAIAdapter) translateResponse(bodyBytes []byte, rateLimit *RateLimitInfo) (*Response, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse response JSON", Cause: err},
			Provider: "openai",
		}}
	}

	response := &Response{
		Provider: "openai",
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}

	id, _ := raw["id"].(string)
	model, _ := raw["model"].(string)
	if id == "" || model == "" {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "response is missing id or model"},
			Provider: "openai",
			Raw:      raw,
		}}
	}
	response.ID = id
	response.Model = model

	if output, ok := raw["output"].([]interface{}); ok {
		for _, item := range output {
			itemMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			itemType, _ := itemMap["type"].(string)
			switch itemType {
			case "message":
				if content, ok := itemMap["content"].([]interface{}); ok {
					for _, c := range content {
						cMap, ok := c.(map[string]interface{})
						if !ok {
							continue
						}
						if cType, _ := cMap["type"].(string); cType == "output_text" {
							if text, ok := cMap["text"].(string); ok {
								response.Message.Content = append(response.Message.Content, TextPart(text))
							}
						}
					}
				}
			case "function_call":
				name, _ := itemMap["name"].(string)
				callID, _ := itemMap["id"].(string)
				argsStr, _ := itemMap["arguments"].(string)
				response.Message.Content = append(response.Message.Content, ToolCallPart(callID, name, json.RawMessage(argsStr)))
			}
			// Unknown output item types are ignored for forward
			// compatibility.
		}
	}

	status, _ := raw["status"].(string)
	response.FinishReason = normalizeFinishReason(a.mapFinishReason(status), response.Message.Content)
	response.Usage = a.parseUsage(raw, response.Message.Content)
	response.RateLimit = rateLimit

	return response, nil
}

func (a *OpenAIAdapter) mapFinishReason(status string) FinishReason {
	switch status {
	case "completed":
		return FinishReason{Reason: FinishStop, Raw: status}
	case "incomplete":
		return FinishReason{Reason: FinishLength, Raw: status}
	default:
		return FinishReason{Reason: FinishOther, Raw: status}
	}
}

func (a *OpenAIAdapter) parseUsage(raw map[string]interface{}, content []ContentPart) Usage {
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

	if details, ok := usageMap["output_tokens_details"].(map[string]interface{}); ok {
		if v, ok := details["reasoning_tokens"].(float64); ok {
			rt := int(v)
			usage.ReasoningTokens = &rt
		}
	}
	if usage.ReasoningTokens == nil {
		usage.ReasoningTokens = estimateReasoningTokens(content)
	}

	if details, ok := usageMap["input_tokens_details"].(map[string]interface{}); ok {
		if v, ok := details["cached_tokens"].(float64); ok {
			ct := int(v)
			usage.CacheReadTokens = &ct
		}
	}

	usage.Raw = usageMap
	return usage
}

func (a *OpenAIAdapter) translateStream(ctx context.Context, body io.ReadCloser, rateLimit *RateLimitInfo, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	reader := newSSEReader(body)
	textStarted := false
	var currentToolCall *ToolCall
	accumulator := NewStreamAccumulator()

	ch <- StreamEvent{Type: StreamStart}

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
			break
		}

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(event.Data), &data); err != nil {
			// A single undecodable chunk is surfaced but does not kill the
			// stream; later chunks may still be usable.
			ch <- StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError{Message: "undecodable stream chunk", Cause: err}}}
			continue
		}

		switch event.Event {
		case "response.output_text.delta":
			delta, _ := data["delta"].(string)
			if !textStarted {
				evt := StreamEvent{Type: TextStart, TextID: "default"}
				ch <- evt
				accumulator.Process(evt)
				textStarted = true
			}
			evt := StreamEvent{Type: TextDelta, Delta: delta, TextID: "default"}
			ch <- evt
			accumulator.Process(evt)

		case "response.function_call_arguments.delta":
			delta, _ := data["delta"].(string)
			callID, _ := data["item_id"].(string)
			name, _ := data["name"].(string)

			if currentToolCall == nil || currentToolCall.ID != callID {
				currentToolCall = &ToolCall{ID: callID, Name: name, RawArguments: delta}
				ch <- StreamEvent{
					Type:     ToolCallStart,
					ToolCall: &ToolCall{ID: callID, Name: name},
				}
			} else {
				currentToolCall.RawArguments += delta
			}
			ch <- StreamEvent{Type: ToolCallDelta, Delta: delta, ToolCall: &ToolCall{ID: callID, Name: name}}

		case "response.output_item.done":
			itemType, _ := data["type"].(string)
			if itemType == "function_call" || isFunctionCallItem(data["item"]) {
				if currentToolCall != nil {
					if item, ok := data["item"].(map[string]interface{}); ok {
						if args, ok := item["arguments"].(string); ok {
							currentToolCall.Arguments = json.RawMessage(args)
						}
						if name, ok := item["name"].(string); ok {
							currentToolCall.Name = name
						}
						if callID, ok := item["id"].(string); ok {
							currentToolCall.ID = callID
						}
					}
					evt := StreamEvent{Type: ToolCallEnd, ToolCall: currentToolCall}
					ch <- evt
					accumulator.Process(evt)
					currentToolCall = nil
				}
			} else if textStarted {
				ch <- StreamEvent{Type: TextEnd, TextID: "default"}
				textStarted = false
			}

		case "response.completed":
			parsedResp, ok := data["response"].(map[string]interface{})
			if !ok {
				parsedResp = data
			}

			accResp := accumulator.Response()
			usage := a.parseUsage(parsedResp, accResp.Message.Content)

			status, _ := parsedResp["status"].(string)
			fr := normalizeFinishReason(a.mapFinishReason(status), accResp.Message.Content)

			accResp.Provider = "openai"
			accResp.Raw = parsedResp
			accResp.Usage = usage
			accResp.FinishReason = fr
			accResp.RateLimit = rateLimit
			if id, ok := parsedResp["id"].(string); ok {
				accResp.ID = id
			}
			if model, ok := parsedResp["model"].(string); ok {
				accResp.Model = model
			}

			ch <- StreamEvent{
				Type:         StreamFinish,
				FinishReason: &fr,
				Usage:        &usage,
				Response:     accResp,
			}
			return

		case "response.failed":
			message := "response failed"
			if respData, ok := data["response"].(map[string]interface{}); ok {
				if errData, ok := respData["error"].(map[string]interface{}); ok {
					if msg, ok := errData["message"].(string); ok {
						message = msg
					}
				}
			}
			streamErr := error(&StreamErrorType{SDKError{Message: message}})
			if classified := ClassifyMessage(message); classified != nil {
				streamErr = classified
			}
			ch <- StreamEvent{Type: StreamError, Error: streamErr}
			return
		}
	}

	// Stream ended without a response.completed event.
	accResp := accumulator.Response()
	accResp.Provider = "openai"
	accResp.RateLimit = rateLimit
	fr := normalizeFinishReason(FinishReason{Reason: FinishStop}, accResp.Message.Content)
	accResp.FinishReason = fr
	ch <- StreamEvent{
		Type:         StreamFinish,
		FinishReason: &fr,
		Response:     accResp,
	}
}

func isFunctionCallItem(item interface{}) bool {
	m, ok := item.(map[string]interface{})
	if !ok {
		return false
	}
	t, _ := m["type"].(string)
	return t == "function_call"
}

// openAI's model listing carries no capability metadata, so every flag
// defaults to false. Non-completion families are filtered out.
func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body, _, err := a.http.getJSON(ctx, "/v1/models", headers)
	if err != nil {
		return nil, translateHTTPError("openai", err)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse model listing", Cause: err},
			Provider: "openai",
		}}
	}

	var models []ModelInfo
	for _, m := range listing.Data {
		if idContainsAny(m.ID, "embedding", "whisper", "tts", "dall-e", "moderation", "audio", "transcribe", "image") {
			continue
		}
		models = append(models, ModelInfo{
			ID:          m.ID,
			Provider:    "openai",
			DisplayName: m.ID,
		})
	}
	return models, nil
}
