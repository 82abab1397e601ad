package omnillm

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// MistralAdapter implements ProviderAdapter for the Mistral chat completions
// API. The dialect is close to OpenAI's but stricter: Mistral rejects
// explicit nulls, so absent request fields must be omitted entirely, and the
// model listing carries a capabilities object the normalizer maps onto
// ModelInfo flags.
type MistralAdapter struct {
	cred    Credential
	baseURL string
	http    *httpClient
	logger  zerolog.Logger
}

// MistralAdapterOption configures a MistralAdapter.
type MistralAdapterOption func(*MistralAdapter)

// WithMistralBaseURL sets a custom base URL.
func WithMistralBaseURL(url string) MistralAdapterOption {
	return func(a *MistralAdapter) {
		a.baseURL = strings.TrimRight(url, "/")
	}
}

// WithMistralCredential replaces the static API key with a custom credential.
func WithMistralCredential(cred Credential) MistralAdapterOption {
	return func(a *MistralAdapter) {
		a.cred = cred
	}
}

// WithMistralLogger sets the adapter logger.
func WithMistralLogger(logger zerolog.Logger) MistralAdapterOption {
	return func(a *MistralAdapter) {
		a.logger = logger
	}
}

// NewMistralAdapter creates a new Mistral adapter. An empty apiKey falls back
// to MISTRAL_API_KEY.
func NewMistralAdapter(apiKey string, opts ...MistralAdapterOption) (*MistralAdapter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("MISTRAL_API_KEY")
	}

	a := &MistralAdapter{
		baseURL: "https://api.mistral.ai",
		logger:  zerolog.Nop(),
	}

	if envURL := os.Getenv("MISTRAL_BASE_URL"); envURL != "" {
		a.baseURL = strings.TrimRight(envURL, "/")
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cred == nil {
		if apiKey == "" {
			return nil, &ConfigurationError{SDKError{
				Message: "MISTRAL_API_KEY is required",
			}}
		}
		a.cred = NewStaticCredential(apiKey)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	a.http = newHTTPClient(a.baseURL, headers, a.logger)

	return a, nil
}

func (a *MistralAdapter) Name() string { return "mistral" }

func (a *MistralAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	}
	return false
}

func (a *MistralAdapter) authHeaders(ctx context.Context) (http.Header, error) {
	token, err := a.cred.Token(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := bearerHeader(token)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", auth)
	return headers, nil
}

// Complete sends a blocking request to the Mistral chat completions API.
func (a *MistralAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
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
		return nil, translateHTTPError("mistral", err)
	}

	return a.translateResponse(respBody, parseRateLimitHeaders(respHeaders))
}

// Stream sends a streaming request to the Mistral chat completions API.
func (a *MistralAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
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
		return nil, translateHTTPError("mistral", err)
	}

	ch := make(chan StreamEvent, 64)
	go a.translateStream(ctx, stream, parseRateLimitHeaders(respHeaders), ch)
	return ch, nil
}

// translateRequest builds the request body. Every optional field is set only
// when the caller provided it; Mistral rejects explicit nulls.
func (a *MistralAdapter) translateRequest(req Request, stream bool) ([]byte, error) {
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
		body["tool_choice"] = a.translateToolChoice(req.ToolChoice)
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

	if stream {
		body["stream"] = true
	}

	if opts, ok := req.ProviderOptions["mistral"].(map[string]interface{}); ok {
		for k, v := range opts {
			body[k] = v
		}
	}

	return json.Marshal(body)
}

func (a *MistralAdapter) translateToolChoice(tc *ToolChoice) interface{} {
	switch tc.Mode {
	case "auto", "none":
		return tc.Mode
	case "required":
		// Mistral spells forced tool use "any".
		return "any"
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

func (a *MistralAdapter) translateResponse(bodyBytes []byte, rateLimit *RateLimitInfo) (*Response, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse response JSON", Cause: err},
			Provider: "mistral",
		}}
	}

	response := &Response{
		Provider: "mistral",
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}

	id, _ := raw["id"].(string)
	model, _ := raw["model"].(string)
	if id == "" || model == "" {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "response is missing id or model"},
			Provider: "mistral",
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

	response.FinishReason = normalizeFinishReason(a.mapFinishReason(finishRaw), response.Message.Content)
	response.Usage = parseChatUsage(raw, response.Message.Content)
	response.RateLimit = rateLimit

	return response, nil
}

func (a *MistralAdapter) mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishReason{Reason: FinishStop, Raw: reason}
	case "length", "model_length":
		return FinishReason{Reason: FinishLength, Raw: reason}
	case "tool_calls":
		return FinishReason{Reason: FinishToolCalls, Raw: reason}
	default:
		return FinishReason{Reason: FinishOther, Raw: reason}
	}
}

func (a *MistralAdapter) translateStream(ctx context.Context, body io.ReadCloser, rateLimit *RateLimitInfo, ch chan<- StreamEvent) {
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
	started := false

	finish := func() {
		if textOpen {
			ch <- StreamEvent{Type: TextEnd, TextID: "text_0"}
		}
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

		accResp := accumulator.Response()
		fr := normalizeFinishReason(a.mapFinishReason(finishRaw), accResp.Message.Content)
		if !usageSeen {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
		accResp.ID = responseID
		accResp.Model = responseModel
		accResp.Provider = "mistral"
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

		// Mistral delivers usage on the final chunk.
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

		if text, ok := delta["content"].(string); ok && text != "" {
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

	finish()
}

// ListModels fetches /v1/models and maps Mistral's capabilities object onto
// the uniform descriptor. Deprecated and non-chat models are dropped.
func (a *MistralAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body, _, err := a.http.getJSON(ctx, "/v1/models", headers)
	if err != nil {
		return nil, translateHTTPError("mistral", err)
	}

	var listing struct {
		Data []struct {
			ID           string   `json:"id"`
			Name         string   `json:"name"`
			Description  string   `json:"description"`
			Deprecation  *string  `json:"deprecation"`
			Aliases      []string `json:"aliases"`
			MaxContext   int      `json:"max_context_length"`
			Capabilities struct {
				CompletionChat  bool `json:"completion_chat"`
				FunctionCalling bool `json:"function_calling"`
				Vision          bool `json:"vision"`
			} `json:"capabilities"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &InvalidRequestError{ProviderError{
			SDKError: SDKError{Message: "failed to parse model listing", Cause: err},
			Provider: "mistral",
		}}
	}

	var models []ModelInfo
	for _, m := range listing.Data {
		if m.ID == "" || m.Deprecation != nil || !m.Capabilities.CompletionChat {
			continue
		}
		if idContainsAny(m.ID, "embed", "moderation", "ocr", "transcribe") {
			continue
		}
		models = append(models, ModelInfo{
			ID:             m.ID,
			Provider:       "mistral",
			DisplayName:    m.Name,
			ContextWindow:  m.MaxContext,
			SupportsTools:  m.Capabilities.FunctionCalling,
			SupportsVision: m.Capabilities.Vision,
			Aliases:        m.Aliases,
		})
	}
	return models, nil
}
