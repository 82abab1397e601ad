// Package omnillm is a unified LLM client SDK with native HTTP provider
// adapters for the OpenAI Responses API, OpenAI-compatible Chat Completions
// endpoints, the Anthropic Messages API, and the Mistral Chat Completions
// API, presenting a single provider-agnostic interface.
//
// # Architecture
//
// The package follows a three-layer architecture:
//
//   - Shared types: Request, Message, ContentPart, Response, StreamEvent,
//     Usage, and the closed error taxonomy
//   - Provider utilities: HTTP transport, SSE parsing, rate-limit header
//     parsing, error classification, credential resolution
//   - Provider adapters: one ProviderAdapter implementation per upstream API,
//     composing the utilities with provider-specific translation
//
// # Quick Start
//
//	adapter, _ := omnillm.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"))
//
//	resp, err := adapter.Complete(ctx, omnillm.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []omnillm.Message{omnillm.UserMessage("Hello")},
//	})
//	if err != nil {
//	    if omnillm.IsRetryable(err) {
//	        // schedule a retry; this package never retries on its own
//	    }
//	    return err
//	}
//	fmt.Println(resp.Text())
//
// # Streaming
//
// Stream returns a channel of StreamEvent values in the provider's emission
// order. The channel is closed after a terminal StreamFinish or StreamError
// event. Cancelling the context abandons the stream without side effects:
//
//	ch, err := adapter.Stream(ctx, req)
//	for evt := range ch {
//	    if evt.Type == omnillm.TextDelta {
//	        fmt.Print(evt.Delta)
//	    }
//	}
//
// # Errors
//
// Every failure is a typed error with a single authoritative retryability
// verdict. Callers branch with errors.As on the concrete kinds, or consult
// IsRetryable for the verdict alone. Retry policy itself lives outside this
// package.
//
// # Tool Calling
//
// Tool definitions travel on the Request; tool calls come back as ToolCall
// content parts, and tool results return to the model as ToolResultMessage
// values. A response containing any tool call always reports the tool_calls
// finish reason, regardless of the provider's raw stop signal.
package omnillm
