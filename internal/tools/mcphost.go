// Package tools adapts plugin manifests onto the Model Context Protocol,
// providing the concrete toolregistry.PluginToolHost the gateway's plugin
// sync handler wires in. One MCP stdio client is spawned per plugin
// (`node <entry>`, an MCP server over stdio) and kept alive across
// invocations, mirroring internal/mcp/manager.go's (superseded)
// per-server connection lifecycle — generalized from "one static config
// file's worth of servers" to "one server per hot-loaded plugin manifest".
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/openclaw/runtime/internal/toolregistry"
)

// MCPPluginHost implements toolregistry.PluginToolHost by running each
// plugin's JS entry as a child process speaking MCP over stdio, per
// SPEC_FULL.md's DOMAIN STACK commitment to wire mark3labs/mcp-go into a
// PluginToolHost.
type MCPPluginHost struct {
	nodeBin string

	mu      sync.Mutex
	clients map[string]*mcpclient.Client // keyed by PluginManifest.ID
}

// NewMCPPluginHost builds a host that spawns plugin entries with nodeBin
// (e.g. "node"). An empty nodeBin defaults to "node".
func NewMCPPluginHost(nodeBin string) *MCPPluginHost {
	if nodeBin == "" {
		nodeBin = "node"
	}
	return &MCPPluginHost{nodeBin: nodeBin, clients: make(map[string]*mcpclient.Client)}
}

// Invoke connects to (or reuses) the plugin's MCP stdio server and calls
// its exported tool, per spec.md §7's runtime.tool.{entry,exportName}.
func (h *MCPPluginHost) Invoke(ctx context.Context, manifest *toolregistry.PluginManifest, args map[string]any) (string, error) {
	client, err := h.clientFor(ctx, manifest)
	if err != nil {
		return "", fmt.Errorf("connect plugin %s: %w", manifest.ID, err)
	}

	toolName := manifest.Runtime.Tool.ExportName
	if toolName == "" {
		toolName = "default"
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	res, err := client.CallTool(ctx, req)
	if err != nil {
		h.drop(manifest.ID)
		return "", fmt.Errorf("call tool %s on plugin %s: %w", toolName, manifest.ID, err)
	}
	if res.IsError {
		return "", fmt.Errorf("plugin %s tool %s reported an error: %s", manifest.ID, toolName, contentText(res.Content))
	}
	return contentText(res.Content), nil
}

// clientFor returns a connected client for manifest, spawning and
// initializing one if this is the first call for that plugin ID.
func (h *MCPPluginHost) clientFor(ctx context.Context, manifest *toolregistry.PluginManifest) (*mcpclient.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[manifest.ID]; ok {
		return c, nil
	}

	entry := filepath.Join(manifest.InstallRoot, manifest.Runtime.Tool.Entry)
	client, err := mcpclient.NewStdioMCPClient(h.nodeBin, nil, entry)
	if err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "openclaw-runtime", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	h.clients[manifest.ID] = client
	return client, nil
}

// drop closes and forgets the cached client for pluginID, so the next
// Invoke reconnects rather than reusing a connection that just errored.
func (h *MCPPluginHost) drop(pluginID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[pluginID]; ok {
		_ = c.Close()
		delete(h.clients, pluginID)
	}
}

// Close shuts down every live plugin connection. Called on process exit.
func (h *MCPPluginHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for id, c := range h.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.clients, id)
	}
	return firstErr
}

func contentText(content []mcpgo.Content) string {
	for _, c := range content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
