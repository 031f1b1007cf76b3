package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/runtime/internal/eventlog"
	"github.com/openclaw/runtime/internal/policy"
	"github.com/openclaw/runtime/internal/toolregistry"
	"github.com/openclaw/runtime/internal/tracing"
)

// buildToolExec returns the ToolExecFunc handed to the LLMStream for this
// agentTask. delegate_to_agent is handled specially (depth check, task
// creation, recursive runAgent call); every other tool is looked up in the
// registry and, if it carries a PluginID, routed through the Guard.
//
// This closure-over-runAgent is the injected-executor-function pattern
// spec.md §9 prescribes to avoid a delegate↔executor import cycle — here
// there is no package-boundary cycle to begin with (delegate handling lives
// inside the same package as runAgent), but the call is still made through
// an explicit function value rather than a global lookup, preserving the
// same dependency-injection discipline.
func (l *Loop) buildToolExec(ctx context.Context, toolset map[string]toolregistry.Tool, task agentTask, sandbox policy.Sandbox) ToolExecFunc {
	ctx = policy.WithSandbox(ctx, sandbox)
	return func(_ context.Context, toolCallID, toolName string, args map[string]any) (string, bool) {
		if toolName == delegateToolName {
			return l.delegate(ctx, task, sandbox, args)
		}

		t, ok := toolset[toolName]
		if !ok {
			return fmt.Sprintf(`{"error":"unknown tool %q"}`, toolName), true
		}

		spanCtx := ctx
		var endSpan func(error)
		if l.tracer != nil {
			var span trace.Span
			spanCtx, span = tracing.StartToolSpan(ctx, l.tracer, t.PluginID(), toolName)
			endSpan = func(err error) { tracing.EndWithError(span, err) }
		}

		if t.PluginID() == "" {
			out, err := t.Execute(spanCtx, args)
			if endSpan != nil {
				endSpan(err)
			}
			if err != nil {
				return err.Error(), true
			}
			return out, false
		}

		res := l.guard.Invoke(spanCtx, t.PluginID(), toolName, func(ctx context.Context) (string, error) {
			return t.Execute(ctx, args)
		})
		if endSpan != nil {
			var guardErr error
			if res.Error != "" {
				guardErr = fmt.Errorf("%s", res.Error)
			}
			endSpan(guardErr)
		}
		if res.Error != "" {
			b, _ := json.Marshal(map[string]any{
				"error": res.Error, "errorCode": res.ErrorCode, "pluginId": res.PluginID, "toolName": res.ToolName,
			})
			return string(b), true
		}
		return res.Output, false
	}
}

// delegate implements the delegate_to_agent tool body from spec.md §4.2.
func (l *Loop) delegate(ctx context.Context, task agentTask, sandbox policy.Sandbox, args map[string]any) (string, bool) {
	targetAgentID, _ := args["agentId"].(string)
	instruction, _ := args["instruction"].(string)

	if !policy.CanDelegate(task.Depth, sandbox.MaxSpawnDepth) {
		msg := fmt.Sprintf("Max spawn depth (%d) reached — cannot delegate further", sandbox.MaxSpawnDepth)
		b, _ := json.Marshal(map[string]string{"error": msg})
		return string(b), true
	}

	task.Emit(eventlog.AgentSwitch{AgentID: targetAgentID})

	taskID, err := l.persistence.CreateTask(ctx, task.RunID, task.TaskID, targetAgentID, instruction, task.Depth+1)
	if err != nil {
		b, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("failed to create delegation task: %v", err)})
		return string(b), true
	}
	task.Emit(eventlog.AgentSwitch{AgentID: targetAgentID, TaskID: taskID})

	childSandbox := policy.NarrowSandboxForSubagent(sandbox, task.Depth+1, sandbox.MaxSpawnDepth)
	child := agentTask{
		RunID:        task.RunID,
		AgentID:      targetAgentID,
		Instruction:  instruction,
		TaskID:       taskID,
		ParentTaskID: task.TaskID,
		Depth:        task.Depth + 1,
		Sandbox:      childSandbox,
		Emit:         task.Emit,
	}

	result, err := l.runAgent(ctx, child)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error()), true
	}
	b, _ := json.Marshal(map[string]string{"result": result})
	return string(b), false
}
