// Package toolregistry builds the per-task toolset by composing built-in
// tools with workspace plugin tools, resolving name collisions
// deterministically, and filtering the result through the Policy Sandbox.
// It also implements the Plugin Execution Guard that wraps every plugin
// tool invocation with concurrency limits, timeouts, and a failure-cooldown
// circuit breaker.
//
// Grounded on dohr-michael-ozzie/internal/plugins/registry.go's name-indexed
// tool composition (there keyed by WASM export, here generalized to any
// PluginToolHost-backed tool) and internal/channels/ratelimit.go's bounded
// sliding-window map, generalized into the Guard's failure-cooldown state.
package toolregistry

import (
	"context"
	"fmt"

	"github.com/openclaw/runtime/internal/policy"
)

// Tool is anything invocable by the executor loop: a built-in (fs, web
// search, delegate_to_agent) or a workspace plugin tool reached through a
// PluginToolHost.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// PluginID is empty for built-ins; non-empty plugin tools are routed
	// through the execution Guard keyed by this id.
	PluginID() string
	// Execute runs the tool and returns the content handed back to the LLM.
	// Built-in tools return their own errors; plugin tools are additionally
	// wrapped by a Guard at the call site, which converts a returned error
	// into a structured {error, errorCode, pluginId, toolName} result
	// rather than letting it propagate into the LLM loop.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry composes the final per-task toolset.
type Registry struct {
	builtins map[string]Tool
	plugins  map[string]Tool
}

func New() *Registry {
	return &Registry{builtins: make(map[string]Tool), plugins: make(map[string]Tool)}
}

// RegisterBuiltin adds a built-in tool under its reserved name. Built-in
// names always win name collisions against plugin tools.
func (r *Registry) RegisterBuiltin(t Tool) {
	r.builtins[t.Name()] = t
}

// RegisterPlugin adds a workspace plugin tool. If its name collides with an
// already-registered tool (built-in or plugin), it is registered under a
// deterministic "_2", "_3", ... suffix instead, so no tool is ever silently
// dropped.
func (r *Registry) RegisterPlugin(t Tool) string {
	name := t.Name()
	if !r.taken(name) {
		r.plugins[name] = t
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !r.taken(candidate) {
			r.plugins[candidate] = t
			return candidate
		}
	}
}

// Unregister removes a previously registered plugin tool by its registered
// name (the value RegisterPlugin returned), used by the plugin-sync
// hot-reload path to retire a tool before its replacement is registered.
// A no-op if name is not a plugin tool.
func (r *Registry) Unregister(name string) {
	delete(r.plugins, name)
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.builtins[name]; ok {
		return true
	}
	_, ok := r.plugins[name]
	return ok
}

// BuildToolset composes built-ins and plugin tools, filtered through the
// supplied tool policy. Reserves built-in names first (RegisterBuiltin/
// RegisterPlugin already resolved collisions at registration time), then
// subtracts anything the policy denies.
func (r *Registry) BuildToolset(toolPolicy policy.ToolPolicy) map[string]Tool {
	out := make(map[string]Tool, len(r.builtins)+len(r.plugins))
	for name, t := range r.builtins {
		if policy.IsAllowed(name, toolPolicy) {
			out[name] = t
		}
	}
	for name, t := range r.plugins {
		if policy.IsAllowed(name, toolPolicy) {
			out[name] = t
		}
	}
	return out
}
