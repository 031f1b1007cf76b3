// Package executor implements the recursive Coordinator/Executor Loop: one
// top-level agent (the coordinator) per run and zero-or-more delegated
// sub-agent executors, each driving an LLMStream, dispatching tool calls
// (including recursive delegation), and persisting messages/tasks/usage via
// PersistenceRPC.
//
// Heavily adapted from internal/agent/loop.go's Run/runLoop: the iterate-
// until-no-tool-calls structure, the sequential-vs-parallel tool dispatch
// split, and the FIFO tool-call/tool-result pairing idiom are carried over
// almost directly, replumbed to emit eventlog.Event into a broker.Run
// instead of invoking a local onEvent callback, and to persist through
// PersistenceRPC instead of a local session store.
package executor

import "context"

// Message is one turn in the conversation sent to the LLM.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
}

// ToolDef is the schema handed to the LLM for one available tool.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamChunk is one piece of an LLMStream response. Exactly one of the
// Kind-specific fields is meaningful per chunk, matching the tagged-chunk
// style of internal/providers/types.go's StreamChunk plus the tool-call
// fields internal/agent/loop.go accumulates while iterating a stream.
type StreamChunk struct {
	Kind ChunkKind

	TextDelta      string
	ReasoningDelta string

	// ToolCallID may be empty; the loop re-attaches it via FIFO-by-name
	// when the stream omits it, per spec.md §4.2's pairing invariant.
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any
	ToolResult string

	Usage *Usage

	Err error
}

type ChunkKind int

const (
	ChunkTextDelta ChunkKind = iota
	ChunkReasoningDelta
	ChunkToolCall
	ChunkToolResult
	ChunkUsage
	ChunkError
	ChunkDone
)

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ToolExecFunc is how an LLMStream implementation invokes a tool the model
// requested. The Loop supplies this callback (wrapping the Tool Registry,
// the Plugin Execution Guard, and delegate_to_agent's special handling);
// the concrete provider adapter (out of scope here) calls it whenever the
// model emits a tool-use request and feeds the string result back to the
// model to continue the turn.
type ToolExecFunc func(ctx context.Context, toolCallID, toolName string, args map[string]any) (result string, isError bool)

// LLMStream is the external collaborator boundary for one model call. The
// implementation owns the network round-trip(s) with the provider and the
// model's own internal tool-use loop (bounded by maxSteps); it calls exec
// for every tool the model invokes and streams every chunk — including
// tool-call/tool-result chunks — to onChunk for the Loop to translate into
// run events. The model's own SDK may omit a tool-call id on the paired
// result chunk; the Loop (not this interface) re-attaches it via FIFO.
//
// Candidate fallback (trying the next model in a configured list) is the
// Loop's responsibility, per spec.md §4.2: a candidate may only be swapped
// out before it has emitted any chunk.
type LLMStream interface {
	Stream(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error
}
