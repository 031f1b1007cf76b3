// Package llmadapter implements executor.LLMStream over internal/providers'
// Provider interface. spec.md §1 names "LLM provider adapters' internals"
// as external-collaborator territory but is explicit that the wire format
// itself is in scope ("the wire format is implemented, but provider
// accounts/keys are operator-supplied") — this package is that wire format:
// it drives the model's own tool-use turn loop (providers.Provider has no
// concept of ToolExecFunc; it answers one request/response round and hands
// back any requested tool calls for the caller to execute and feed back),
// grounded on internal/agent/loop.go's iterate-until-no-tool-calls shape,
// replumbed onto executor.LLMStream's chunk/exec contract.
package llmadapter

import (
	"context"
	"fmt"

	"github.com/openclaw/runtime/internal/executor"
	"github.com/openclaw/runtime/internal/providers"
)

// ProviderStream adapts a providers.Provider into an executor.LLMStream.
// model selection is entirely the caller's: Stream's model argument is
// passed straight through to the provider's request, so a single
// ProviderStream can serve every agent config sharing one LLM_BASE_URL.
type ProviderStream struct {
	provider providers.Provider
}

func New(provider providers.Provider) *ProviderStream {
	return &ProviderStream{provider: provider}
}

// Stream implements executor.LLMStream by repeatedly calling the
// provider's ChatStream, executing any tool calls the model requests via
// exec, and feeding the results back as tool-role messages — up to
// maxSteps turns, matching the Coordinator/Executor Loop's MaxTurns limit.
func (s *ProviderStream) Stream(ctx context.Context, model string, messages []executor.Message, tools []executor.ToolDef, maxSteps int, exec executor.ToolExecFunc, onChunk func(executor.StreamChunk)) error {
	req := providers.ChatRequest{
		Model:    model,
		Messages: toProviderMessages(messages),
		Tools:    toProviderTools(tools),
	}

	var totalUsage executor.Usage
	for step := 0; step < maxSteps; step++ {
		resp, err := s.provider.ChatStream(ctx, req, func(c providers.StreamChunk) {
			if c.Content != "" {
				onChunk(executor.StreamChunk{Kind: executor.ChunkTextDelta, TextDelta: c.Content})
			}
			if c.Thinking != "" {
				onChunk(executor.StreamChunk{Kind: executor.ChunkReasoningDelta, ReasoningDelta: c.Thinking})
			}
		})
		if err != nil {
			return fmt.Errorf("llmadapter: %s: %w", s.provider.Name(), err)
		}
		if resp.Usage != nil {
			totalUsage.InputTokens += resp.Usage.PromptTokens
			totalUsage.OutputTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			onChunk(executor.StreamChunk{Kind: executor.ChunkUsage, Usage: &totalUsage})
			return nil
		}

		req.Messages = append(req.Messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			onChunk(executor.StreamChunk{Kind: executor.ChunkToolCall, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Arguments})
			result, isError := exec(ctx, tc.ID, tc.Name, tc.Arguments)
			onChunk(executor.StreamChunk{Kind: executor.ChunkToolResult, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: result})
			_ = isError // provider wire format has no separate tool-error channel; result carries it
			req.Messages = append(req.Messages, providers.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
	onChunk(executor.StreamChunk{Kind: executor.ChunkUsage, Usage: &totalUsage})
	return fmt.Errorf("llmadapter: %s: exceeded max turns (%d) without a final answer", s.provider.Name(), maxSteps)
}

func toProviderMessages(messages []executor.Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, providers.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID})
	}
	return out
}

func toProviderTools(tools []executor.ToolDef) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
