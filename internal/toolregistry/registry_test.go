package toolregistry

import (
	"context"
	"testing"

	"github.com/openclaw/runtime/internal/policy"
)

type fakeTool struct {
	name     string
	pluginID string
}

func (f fakeTool) Name() string               { return f.name }
func (f fakeTool) Description() string        { return "" }
func (f fakeTool) Parameters() map[string]any { return map[string]any{} }
func (f fakeTool) PluginID() string           { return f.pluginID }
func (f fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "", nil
}

func TestBuiltinNamesWinCollisions(t *testing.T) {
	r := New()
	r.RegisterBuiltin(fakeTool{name: "read_file"})
	got := r.RegisterPlugin(fakeTool{name: "read_file", pluginID: "p1"})
	if got != "read_file_2" {
		t.Fatalf("expected plugin tool suffixed to read_file_2, got %s", got)
	}
}

func TestPluginCollisionSuffixIncrements(t *testing.T) {
	r := New()
	r.RegisterPlugin(fakeTool{name: "search", pluginID: "p1"})
	second := r.RegisterPlugin(fakeTool{name: "search", pluginID: "p2"})
	third := r.RegisterPlugin(fakeTool{name: "search", pluginID: "p3"})
	if second != "search_2" || third != "search_3" {
		t.Fatalf("expected deterministic suffixing, got %s, %s", second, third)
	}
}

func TestBuildToolsetFiltersByPolicy(t *testing.T) {
	r := New()
	r.RegisterBuiltin(fakeTool{name: "read_file"})
	r.RegisterBuiltin(fakeTool{name: "exec"})
	toolset := r.BuildToolset(policy.ToolPolicy{Deny: []string{"exec"}})
	if _, ok := toolset["exec"]; ok {
		t.Fatal("expected exec filtered out by deny policy")
	}
	if _, ok := toolset["read_file"]; !ok {
		t.Fatal("expected read_file retained")
	}
}
