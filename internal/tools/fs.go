// fs_read and fs_write are the filesystem pair of the four built-ins
// spec.md §2/§3 name the Tool Registry must compose ("fs read/write,
// knowledge search, web search via gateway, delegate_to_agent"). Grounded
// on internal/tools/filesystem.go's ReadFileTool/path-validation shape, with
// the teacher's sandbox.Manager container routing and managed-mode virtual
// FS interceptors dropped (see DESIGN.md) in favor of the Policy Sandbox's
// FSPolicy, read back from ctx via policy.SandboxFromContext since the
// toolregistry.Tool interface carries no sandbox parameter.
package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/openclaw/runtime/internal/policy"
)

// FSReadTool implements the fs_read built-in.
type FSReadTool struct{}

func NewFSReadTool() *FSReadTool { return &FSReadTool{} }

func (t *FSReadTool) Name() string        { return "fs_read" }
func (t *FSReadTool) Description() string { return "Read the contents of a file" }
func (t *FSReadTool) PluginID() string    { return "" }

func (t *FSReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *FSReadTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	fsPolicy := policy.SandboxFromContext(ctx).FS
	if !policy.IsPathAllowed(path, fsPolicy) {
		return "", fmt.Errorf("fs_read: path %q is not allowed by the run's sandbox", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fs_read: %w", err)
	}
	return string(data), nil
}

// FSWriteTool implements the fs_write built-in.
type FSWriteTool struct{}

func NewFSWriteTool() *FSWriteTool { return &FSWriteTool{} }

func (t *FSWriteTool) Name() string        { return "fs_write" }
func (t *FSWriteTool) Description() string { return "Write content to a file, creating or overwriting it" }
func (t *FSWriteTool) PluginID() string    { return "" }

func (t *FSWriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *FSWriteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	content, _ := args["content"].(string)
	fsPolicy := policy.SandboxFromContext(ctx).FS
	if !policy.IsPathAllowed(path, fsPolicy) {
		return "", fmt.Errorf("fs_write: path %q is not allowed by the run's sandbox", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("fs_write: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}
