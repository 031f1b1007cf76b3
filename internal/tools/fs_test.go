package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/runtime/internal/policy"
)

func withFSPolicy(paths ...string) context.Context {
	return policy.WithSandbox(context.Background(), policy.Sandbox{FS: policy.FSPolicy{AllowedPaths: paths}})
}

func TestFSReadToolRejectsPathOutsideAllowedPrefixes(t *testing.T) {
	tool := NewFSReadTool()
	_, err := tool.Execute(withFSPolicy("/workspace"), map[string]any{"path": "/etc/passwd"})
	if err == nil {
		t.Fatal("expected error for path outside allowed prefixes")
	}
}

func TestFSReadToolReadsAllowedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewFSReadTool()
	out, err := tool.Execute(withFSPolicy(dir), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected %q, got %q", "hello", out)
	}
}

func TestFSReadToolRequiresPath(t *testing.T) {
	tool := NewFSReadTool()
	if _, err := tool.Execute(withFSPolicy("/"), map[string]any{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFSWriteToolRejectsPathOutsideAllowedPrefixes(t *testing.T) {
	tool := NewFSWriteTool()
	_, err := tool.Execute(withFSPolicy("/workspace"), map[string]any{"path": "/etc/shadow", "content": "x"})
	if err == nil {
		t.Fatal("expected error for path outside allowed prefixes")
	}
}

func TestFSWriteToolWritesAllowedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	tool := NewFSWriteTool()
	if _, err := tool.Execute(withFSPolicy(dir), map[string]any{"path": path, "content": "data"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "data" {
		t.Fatalf("expected %q, got %q", "data", string(got))
	}
}

func TestFSReadToolRejectsDotDotEvenInsideAllowedPrefix(t *testing.T) {
	tool := NewFSReadTool()
	_, err := tool.Execute(withFSPolicy("/workspace"), map[string]any{"path": "/workspace/../etc/passwd"})
	if err == nil {
		t.Fatal("expected .. segment rejected regardless of prefix")
	}
}
