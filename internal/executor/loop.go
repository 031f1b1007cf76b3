package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/eventlog"
	"github.com/openclaw/runtime/internal/policy"
	"github.com/openclaw/runtime/internal/toolregistry"
	"github.com/openclaw/runtime/internal/tracing"
)

const delegateToolName = "delegate_to_agent"

// delegateToolDef is delegate_to_agent's schema, handled specially by
// buildToolExec rather than looked up in the Tool Registry (it has no
// toolregistry.Tool implementation), but the LLM still needs its
// definition to be able to call it — so it's added to every task's defs
// list directly, subject to the same allow/deny policy as any other tool.
var delegateToolDef = ToolDef{
	Name:        delegateToolName,
	Description: "Delegate a sub-task to another agent and return its result",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agentId": map[string]any{
				"type":        "string",
				"description": "ID of the agent to delegate to",
			},
			"instruction": map[string]any{
				"type":        "string",
				"description": "Instruction/task for the delegated agent",
			},
		},
		"required": []string{"agentId", "instruction"},
	},
}

// Loop drives the Coordinator/Executor algorithm. One Loop instance is
// shared across all runs; per-run state lives on the task struct passed
// through runAgent's recursion, never on the Loop itself.
type Loop struct {
	registry    *toolregistry.Registry
	guard       *toolregistry.Guard
	persistence Persistence
	llm         LLMStream
	tracer      tracing.Tracer
}

// New builds a Loop. tracer may be nil, in which case spans are skipped —
// tests construct a Loop without standing up a TracerProvider.
func New(registry *toolregistry.Registry, guard *toolregistry.Guard, persistence Persistence, llm LLMStream, tracer tracing.Tracer) *Loop {
	return &Loop{registry: registry, guard: guard, persistence: persistence, llm: llm, tracer: tracer}
}

// agentTask carries one coordinator or executor invocation's parameters
// through the recursive algorithm. TaskID is empty for the coordinator.
type agentTask struct {
	RunID        string
	AgentID      string
	Instruction  string
	TaskID       string
	ParentTaskID string
	Depth        int
	Sandbox      policy.Sandbox
	Emit         broker.EmitFunc
}

// Starter returns a broker.StarterFunc that runs the coordinator for one
// run. Pass it to Broker.StartRun.
func (l *Loop) Starter(ctx context.Context) broker.StarterFunc {
	return func(runID string, params broker.RunParams, emit broker.EmitFunc) error {
		_, err := l.runAgent(ctx, agentTask{
			RunID:       runID,
			AgentID:     params.CoordinatorAgentID,
			Instruction: params.UserRequest,
			Emit:        emit,
		})
		return err
	}
}

// runAgent implements spec.md §4.2's numbered algorithm and returns the
// accumulated assistant text (used by a parent delegate call as the
// child's {result}). The coordinator and every delegated executor share
// this one method; TaskID == "" marks the coordinator.
func (l *Loop) runAgent(ctx context.Context, task agentTask) (result string, err error) {
	isCoordinator := task.TaskID == ""

	if l.tracer != nil {
		var span trace.Span
		if isCoordinator {
			ctx, span = tracing.StartRunSpan(ctx, l.tracer, task.RunID, task.AgentID)
		} else {
			ctx, span = tracing.StartTaskSpan(ctx, l.tracer, task.TaskID, task.AgentID, task.Depth)
		}
		defer func() { tracing.EndWithError(span, err) }()
	}

	cfg, err := l.persistence.GetAgentConfig(ctx, task.AgentID)
	if err != nil {
		return "", fmt.Errorf("get agent config: %w", err)
	}

	sandbox := task.Sandbox
	if isCoordinator {
		sandbox = cfg.Sandbox
	}

	messageID := uuid.NewString()
	task.Emit(eventlog.MessageStart{MessageID: messageID})

	defer func() {
		if err != nil && !isCoordinator {
			task.Emit(eventlog.TaskFailed{TaskID: task.TaskID, Error: err.Error()})
			_ = l.persistence.UpdateTask(ctx, task.TaskID, "failed", 0, "")
		}
		task.Emit(eventlog.MessageEnd{MessageID: messageID})
	}()

	toolset := l.registry.BuildToolset(sandbox.Tools)
	defs := make([]ToolDef, 0, len(toolset)+1)
	for name, t := range toolset {
		defs = append(defs, ToolDef{Name: name, Description: t.Description(), Parameters: t.Parameters()})
	}
	if policy.IsAllowed(delegateToolName, sandbox.Tools) {
		defs = append(defs, delegateToolDef)
	}

	messages := []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: task.Instruction},
	}

	pairer := newFIFOPairer()
	var accumulated string
	var usage Usage
	recordedUsage := map[string]bool{}

	onChunk := func(c StreamChunk) {
		switch c.Kind {
		case ChunkTextDelta:
			accumulated += c.TextDelta
			task.Emit(eventlog.TextDelta{Text: accumulated, Delta: c.TextDelta})
		case ChunkReasoningDelta:
			if c.ReasoningDelta != "" {
				task.Emit(eventlog.ReasoningDelta{Delta: c.ReasoningDelta})
			}
		case ChunkToolCall:
			id := pairer.carry(c.ToolName, c.ToolCallID)
			task.Emit(eventlog.ToolCall{ToolCallID: id, ToolName: c.ToolName, Args: c.ToolArgs})
		case ChunkToolResult:
			id := c.ToolCallID
			if id == "" {
				id = pairer.pop(c.ToolName)
			}
			task.Emit(eventlog.ToolResult{ToolCallID: id, ToolName: c.ToolName, Result: c.ToolResult, Status: "success"})
		case ChunkUsage:
			if c.Usage != nil {
				usage = *c.Usage
			}
		}
	}

	exec := l.buildToolExec(ctx, toolset, task, sandbox)

	streamErr := l.streamWithFallback(ctx, cfg, messages, defs, sandbox.MaxTurns, exec, onChunk)
	if streamErr != nil {
		return "", streamErr
	}

	scope := "run"
	if !isCoordinator {
		scope = "task:" + task.TaskID
	}
	if !recordedUsage[scope] {
		recordedUsage[scope] = true
		task.Emit(eventlog.Usage{Scope: scope, InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, TotalTokens: usage.TotalTokens})
		if isCoordinator {
			_ = l.persistence.RecordRunUsage(ctx, task.RunID, scope, usage)
		} else {
			_ = l.persistence.RecordTaskUsage(ctx, task.TaskID, scope, usage)
		}
	}

	if accumulated != "" {
		_ = l.persistence.AppendMessage(ctx, task.RunID, "assistant", accumulated)
	}

	if !isCoordinator {
		task.Emit(eventlog.TaskComplete{TaskID: task.TaskID, Result: accumulated})
		_ = l.persistence.UpdateTask(ctx, task.TaskID, "completed", 100, accumulated)
	}
	return accumulated, nil
}

// streamWithFallback tries cfg.Model, then each of cfg.ModelCandidates in
// order. A candidate may only be replaced before it has emitted any chunk
// (spec.md §4.2); once text has flowed, fallback is disabled for the rest
// of this call.
func (l *Loop) streamWithFallback(ctx context.Context, cfg *AgentConfig, messages []Message, defs []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error {
	candidates := append([]string{cfg.Model}, cfg.ModelCandidates...)
	var lastErr error
	for _, model := range candidates {
		emittedAny := false
		wrapped := func(c StreamChunk) {
			emittedAny = true
			onChunk(c)
		}
		err := l.llm.Stream(ctx, model, messages, defs, maxSteps, exec, wrapped)
		if err == nil {
			return nil
		}
		if emittedAny {
			return err // fallback disabled once a byte has been emitted
		}
		lastErr = err
	}
	return lastErr
}

// fifoPairer re-attaches a tool-call id to its result when the LLM stream
// omits it on the result chunk, using a per-tool-name FIFO queue of
// pending ids, per spec.md §4.2's pairing invariant.
type fifoPairer struct {
	mu      sync.Mutex
	pending map[string][]string
}

func newFIFOPairer() *fifoPairer { return &fifoPairer{pending: make(map[string][]string)} }

// carry records a tool-call id (assigning one if the stream didn't supply
// it) and returns the id to use on the emitted event.
func (p *fifoPairer) carry(toolName, id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	p.pending[toolName] = append(p.pending[toolName], id)
	return id
}

// pop returns and removes the oldest pending id for toolName.
func (p *fifoPairer) pop(toolName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.pending[toolName]
	if len(q) == 0 {
		return ""
	}
	id := q[0]
	p.pending[toolName] = q[1:]
	return id
}
