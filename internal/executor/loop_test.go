package executor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/eventlog"
	"github.com/openclaw/runtime/internal/policy"
	"github.com/openclaw/runtime/internal/toolregistry"
)

type fakeLLM struct {
	stream func(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error
}

func (f *fakeLLM) Stream(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error {
	return f.stream(ctx, model, messages, tools, maxSteps, exec, onChunk)
}

type fakePersistence struct {
	mu       sync.Mutex
	cfgs     map[string]*AgentConfig
	messages []string
	tasks    map[string]string // taskID -> status
	nextTask int
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{cfgs: make(map[string]*AgentConfig), tasks: make(map[string]string)}
}

func (p *fakePersistence) GetAgentConfig(ctx context.Context, agentID string) (*AgentConfig, error) {
	return p.cfgs[agentID], nil
}
func (p *fakePersistence) AppendMessage(ctx context.Context, runID, role, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, content)
	return nil
}
func (p *fakePersistence) CreateTask(ctx context.Context, runID, parentTaskID, agentID, instruction string, depth int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTask++
	id := "task-" + string(rune('0'+p.nextTask))
	p.tasks[id] = "running"
	return id, nil
}
func (p *fakePersistence) UpdateTask(ctx context.Context, taskID, status string, progress int, result string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[taskID] = status
	return nil
}
func (p *fakePersistence) RecordRunUsage(ctx context.Context, runID, scope string, usage Usage) error {
	return nil
}
func (p *fakePersistence) RecordTaskUsage(ctx context.Context, taskID, scope string, usage Usage) error {
	return nil
}

type fakeTool struct{ name string }

func (f fakeTool) Name() string               { return f.name }
func (f fakeTool) Description() string        { return "" }
func (f fakeTool) Parameters() map[string]any { return map[string]any{} }
func (f fakeTool) PluginID() string           { return "" }
func (f fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "", nil
}

func hasToolDef(defs []ToolDef, name string) bool {
	for _, d := range defs {
		if d.Name == name {
			return true
		}
	}
	return false
}

func drainEvents(sub *broker.Subscription, n int) []eventlog.Envelope {
	var out []eventlog.Envelope
	for i := 0; i < n; i++ {
		out = append(out, <-sub.Events)
	}
	return out
}

func TestLoopSimpleTextRun(t *testing.T) {
	b := broker.New(broker.WithCleanupInterval(broker.MinCleanupInterval))
	defer b.Close()

	persistence := newFakePersistence()
	persistence.cfgs["coord"] = &AgentConfig{
		AgentID: "coord", SystemPrompt: "be helpful", Model: "gpt-5",
		Sandbox: policy.Sandbox{Tools: policy.ToolPolicy{Allow: []string{"*"}}, MaxTurns: 10, MaxSpawnDepth: 2},
	}

	llm := &fakeLLM{stream: func(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error {
		onChunk(StreamChunk{Kind: ChunkTextDelta, TextDelta: "hello"})
		onChunk(StreamChunk{Kind: ChunkUsage, Usage: &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}})
		return nil
	}}

	loop := New(toolregistry.New(), toolregistry.NewGuard(toolregistry.DefaultGuardConfig()), persistence, llm, nil)

	runID, _, err := b.CreateRuntimeRun(broker.RunParams{CoordinatorAgentID: "coord", UserRequest: "hi"}, "", "", func() (string, error) {
		return broker.NewRunID(), nil
	})
	if err != nil {
		t.Fatalf("CreateRuntimeRun: %v", err)
	}

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.StartRun(runID, loop.Starter(context.Background())); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	events := drainEvents(sub, 5)

	kinds := []string{}
	for i := 0; i < 5; i++ {
		kinds = append(kinds, typeName(events[i].Payload))
	}
	want := []string{"message-start", "text-delta", "usage", "message-end", "done"}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event %d: want %s, got %s (all: %v)", i, k, kinds[i], kinds)
		}
	}

	if len(persistence.messages) != 1 || persistence.messages[0] != "hello" {
		t.Fatalf("expected assistant message persisted, got %v", persistence.messages)
	}
}

func typeName(e eventlog.Event) string {
	switch e.(type) {
	case eventlog.MessageStart:
		return "message-start"
	case eventlog.TextDelta:
		return "text-delta"
	case eventlog.ReasoningDelta:
		return "reasoning-delta"
	case eventlog.ToolCall:
		return "tool-call"
	case eventlog.ToolResult:
		return "tool-result"
	case eventlog.AgentSwitch:
		return "agent-switch"
	case eventlog.TaskComplete:
		return "task-complete"
	case eventlog.TaskFailed:
		return "task-failed"
	case eventlog.Usage:
		return "usage"
	case eventlog.MessageEnd:
		return "message-end"
	case eventlog.Done:
		return "done"
	case eventlog.Error:
		return "error"
	default:
		return "unknown"
	}
}

func TestDelegationDepthCap(t *testing.T) {
	b := broker.New(broker.WithCleanupInterval(broker.MinCleanupInterval))
	defer b.Close()

	persistence := newFakePersistence()
	sandbox := policy.Sandbox{Tools: policy.ToolPolicy{Allow: []string{"*"}}, MaxTurns: 10, MaxSpawnDepth: 1}
	persistence.cfgs["coord"] = &AgentConfig{AgentID: "coord", Model: "m1", Sandbox: sandbox}
	persistence.cfgs["sub"] = &AgentConfig{AgentID: "sub", Model: "m1", Sandbox: sandbox}

	var leafResult string
	llm := &fakeLLM{stream: func(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error {
		// Detect whether this is the top-level call (targets "sub") or the
		// recursive sub-agent call (tries to delegate again) by inspecting
		// the user instruction.
		instruction := messages[len(messages)-1].Content
		if instruction == "top" {
			onChunk(StreamChunk{Kind: ChunkToolCall, ToolName: "delegate_to_agent", ToolCallID: "c1"})
			res, isErr := exec(ctx, "c1", "delegate_to_agent", map[string]any{"agentId": "sub", "instruction": "leaf"})
			onChunk(StreamChunk{Kind: ChunkToolResult, ToolCallID: "c1", ToolName: "delegate_to_agent", ToolResult: res})
			if isErr {
				t.Fatalf("expected first delegation (depth 0->1) to succeed, got error: %s", res)
			}
			onChunk(StreamChunk{Kind: ChunkTextDelta, TextDelta: "done"})
			return nil
		}
		// leaf: try to delegate again, should be denied
		onChunk(StreamChunk{Kind: ChunkToolCall, ToolName: "delegate_to_agent", ToolCallID: "c2"})
		res, isErr := exec(ctx, "c2", "delegate_to_agent", map[string]any{"agentId": "sub", "instruction": "deeper"})
		leafResult = res
		if !isErr {
			t.Fatalf("expected max-depth delegation to fail, got success: %s", res)
		}
		onChunk(StreamChunk{Kind: ChunkToolResult, ToolCallID: "c2", ToolName: "delegate_to_agent", ToolResult: res})
		onChunk(StreamChunk{Kind: ChunkTextDelta, TextDelta: "leaf done"})
		return nil
	}}

	loop := New(toolregistry.New(), toolregistry.NewGuard(toolregistry.DefaultGuardConfig()), persistence, llm, nil)

	runID, _, err := b.CreateRuntimeRun(broker.RunParams{CoordinatorAgentID: "coord", UserRequest: "top"}, "", "", func() (string, error) {
		return broker.NewRunID(), nil
	})
	if err != nil {
		t.Fatalf("CreateRuntimeRun: %v", err)
	}
	if err := b.StartRun(runID, loop.Starter(context.Background())); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for {
		env := <-sub.Events
		if _, ok := env.Payload.(eventlog.Done); ok {
			break
		}
	}
	if !strings.Contains(leafResult, "Max spawn depth") {
		t.Fatalf("expected max spawn depth error message, got %s", leafResult)
	}
}

// TestDelegationAppliesLeafDenyAtChildDepth regresses a delegate.go off-by-one
// where the leaf-deny set (policy.LeafDenyTools) was evaluated against the
// parent's own depth, a value CanDelegate's check makes unreachable at that
// call site — so the deny set was silently never applied to any real
// sub-agent. It must be applied to the child once the child's own depth
// reaches MaxSpawnDepth.
func TestDelegationAppliesLeafDenyAtChildDepth(t *testing.T) {
	b := broker.New(broker.WithCleanupInterval(broker.MinCleanupInterval))
	defer b.Close()

	registry := toolregistry.New()
	registry.RegisterBuiltin(fakeTool{name: "sessions_list"})

	persistence := newFakePersistence()
	sandbox := policy.Sandbox{Tools: policy.ToolPolicy{Allow: []string{"*"}}, MaxTurns: 10, MaxSpawnDepth: 1}
	persistence.cfgs["coord"] = &AgentConfig{AgentID: "coord", Model: "m1", Sandbox: sandbox}
	persistence.cfgs["sub"] = &AgentConfig{AgentID: "sub", Model: "m1", Sandbox: sandbox}

	var sawCoordinatorTools, sawLeafTools []ToolDef
	llm := &fakeLLM{stream: func(ctx context.Context, model string, messages []Message, tools []ToolDef, maxSteps int, exec ToolExecFunc, onChunk func(StreamChunk)) error {
		instruction := messages[len(messages)-1].Content
		if instruction == "top" {
			sawCoordinatorTools = tools
			onChunk(StreamChunk{Kind: ChunkToolCall, ToolName: "delegate_to_agent", ToolCallID: "c1"})
			res, isErr := exec(ctx, "c1", "delegate_to_agent", map[string]any{"agentId": "sub", "instruction": "leaf"})
			onChunk(StreamChunk{Kind: ChunkToolResult, ToolCallID: "c1", ToolName: "delegate_to_agent", ToolResult: res})
			if isErr {
				t.Fatalf("expected depth 0->1 delegation to succeed, got error: %s", res)
			}
			onChunk(StreamChunk{Kind: ChunkTextDelta, TextDelta: "done"})
			return nil
		}
		sawLeafTools = tools
		onChunk(StreamChunk{Kind: ChunkTextDelta, TextDelta: "leaf done"})
		return nil
	}}

	loop := New(registry, toolregistry.NewGuard(toolregistry.DefaultGuardConfig()), persistence, llm, nil)

	runID, _, err := b.CreateRuntimeRun(broker.RunParams{CoordinatorAgentID: "coord", UserRequest: "top"}, "", "", func() (string, error) {
		return broker.NewRunID(), nil
	})
	if err != nil {
		t.Fatalf("CreateRuntimeRun: %v", err)
	}
	if err := b.StartRun(runID, loop.Starter(context.Background())); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for {
		env := <-sub.Events
		if _, ok := env.Payload.(eventlog.Done); ok {
			break
		}
	}

	if !hasToolDef(sawCoordinatorTools, "sessions_list") {
		t.Fatal("expected coordinator (depth 0) to retain sessions_list")
	}
	if hasToolDef(sawLeafTools, "sessions_list") {
		t.Fatal("expected leaf sub-agent at MaxSpawnDepth to have sessions_list denied")
	}
}
