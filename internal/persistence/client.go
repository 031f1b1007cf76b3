// Package persistence implements the PersistenceRPC collaborator client:
// the runtime-side stub for the out-of-scope service that owns the
// canonical long-lived tables (runs, tasks, messages, usage, plugin
// registry). The wire transport is HTTP+JSON, consistent with the
// teacher's existing inter-service HTTP calls (gateway reply delivery in
// internal/gateway/server.go); error semantics use the real gRPC status
// package rather than a hand-rolled code enum, per spec.md §6's
// "gRPC-style status codes" requirement; no generated protobuf stubs are
// used.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openclaw/runtime/internal/executor"
	"github.com/openclaw/runtime/internal/policy"
)

// Client implements executor.Persistence plus the remainder of spec.md §6's
// PersistenceRPC method list not needed by the executor loop directly
// (resume-context lookup, run status, plugin registry/usage reporting).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return status.Errorf(codes.Internal, "marshal request: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return status.Errorf(codes.Internal, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return status.Errorf(codes.Unavailable, "persistence rpc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return status.Error(codes.InvalidArgument, readErrMessage(resp.Body))
	}
	if resp.StatusCode == http.StatusNotFound {
		return status.Error(codes.NotFound, readErrMessage(resp.Body))
	}
	if resp.StatusCode >= 300 {
		return status.Errorf(codes.Unknown, "persistence rpc %s %s: status %d: %s", method, path, resp.StatusCode, readErrMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readErrMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}

// --- executor.Persistence ---

type agentConfigWire struct {
	AgentID         string   `json:"agentId"`
	SystemPrompt    string   `json:"systemPrompt"`
	Model           string   `json:"model"`
	ModelCandidates []string `json:"modelCandidates"`
	ToolAllow       []string `json:"toolAllow"`
	ToolDeny        []string `json:"toolDeny"`
	WorkspaceOnly   bool     `json:"workspaceOnly"`
	AllowedPaths    []string `json:"allowedPaths"`
	ExecAllowList   []string `json:"execAllowList"`
	MaxTurns        int      `json:"maxTurns"`
	MaxSpawnDepth   int      `json:"maxSpawnDepth"`
	TimeoutMs       int64    `json:"timeoutMs"`
}

func (c *Client) GetAgentConfig(ctx context.Context, agentID string) (*executor.AgentConfig, error) {
	var wire agentConfigWire
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/internal/agents/%s", agentID), nil, &wire); err != nil {
		return nil, err
	}
	return &executor.AgentConfig{
		AgentID:         wire.AgentID,
		SystemPrompt:    wire.SystemPrompt,
		Model:           wire.Model,
		ModelCandidates: wire.ModelCandidates,
		Sandbox: policy.Sandbox{
			Tools:         policy.ToolPolicy{Allow: wire.ToolAllow, Deny: wire.ToolDeny},
			FS:            policy.FSPolicy{WorkspaceOnly: wire.WorkspaceOnly, AllowedPaths: wire.AllowedPaths},
			ExecAllowList: wire.ExecAllowList,
			MaxTurns:      wire.MaxTurns,
			MaxSpawnDepth: wire.MaxSpawnDepth,
			Timeout:       time.Duration(wire.TimeoutMs) * time.Millisecond,
		},
	}, nil
}

func (c *Client) AppendMessage(ctx context.Context, runID, role, content string) error {
	return c.call(ctx, http.MethodPost, "/internal/messages", map[string]string{
		"runId": runID, "role": role, "content": content,
	}, nil)
}

func (c *Client) CreateTask(ctx context.Context, runID, parentTaskID, agentID, instruction string, depth int) (string, error) {
	var out struct {
		TaskID string `json:"taskId"`
	}
	err := c.call(ctx, http.MethodPost, "/internal/tasks", map[string]any{
		"runId": runID, "parentTaskId": parentTaskID, "agentId": agentID, "instruction": instruction, "depth": depth,
	}, &out)
	return out.TaskID, err
}

func (c *Client) UpdateTask(ctx context.Context, taskID, status string, progress int, result string) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/internal/tasks/%s", taskID), map[string]any{
		"status": status, "progress": progress, "result": result,
	}, nil)
}

func (c *Client) RecordRunUsage(ctx context.Context, runID, scope string, usage executor.Usage) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/internal/runs/%s/usage", runID), map[string]any{
		"scope": scope, "inputTokens": usage.InputTokens, "outputTokens": usage.OutputTokens, "totalTokens": usage.TotalTokens,
	}, nil)
}

func (c *Client) RecordTaskUsage(ctx context.Context, taskID, scope string, usage executor.Usage) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/internal/tasks/%s/usage", taskID), map[string]any{
		"scope": scope, "inputTokens": usage.InputTokens, "outputTokens": usage.OutputTokens, "totalTokens": usage.TotalTokens,
	}, nil)
}

// --- remainder of spec.md §6's PersistenceRPC method list ---

// ContinueContext is the resume payload returned by the two
// GetContinueContextBy* lookups.
type ContinueContext struct {
	RunID       string   `json:"runId"`
	SessionID   string   `json:"sessionId"`
	Messages    []string `json:"messages"`
}

func (c *Client) GetContinueContextByMessage(ctx context.Context, messageID string) (*ContinueContext, error) {
	var out ContinueContext
	if err := c.call(ctx, http.MethodGet, "/internal/continue-context/by-message/"+messageID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetContinueContextByRun(ctx context.Context, runID string) (*ContinueContext, error) {
	var out ContinueContext
	if err := c.call(ctx, http.MethodGet, "/internal/continue-context/by-run/"+runID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRun(ctx context.Context, sessionID, workspaceID, userRequest, coordinatorAgentID string) (string, error) {
	var out struct {
		RunID string `json:"runId"`
	}
	err := c.call(ctx, http.MethodPost, "/internal/runs", map[string]string{
		"sessionId": sessionID, "workspaceId": workspaceID, "userRequest": userRequest, "coordinatorAgentId": coordinatorAgentID,
	}, &out)
	return out.RunID, err
}

func (c *Client) UpdateRunStatus(ctx context.Context, runID, state string) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/internal/runs/%s/status", runID), map[string]string{"state": state}, nil)
}

// PluginUsageEvent is the plugin-usage.v1 envelope from spec.md §6.
type PluginUsageEvent struct {
	SpecVersion   string         `json:"specVersion"`
	PluginName    string         `json:"pluginName"`
	PluginVersion string         `json:"pluginVersion"`
	EventID       string         `json:"eventId"`
	EventType     string         `json:"eventType"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	WorkspaceID   string         `json:"workspaceId"`
	RunID         string         `json:"runId"`
	Status        string         `json:"status"` // success|failure|partial
	Metrics       map[string]any `json:"metrics"`
	Payload       map[string]any `json:"payload"`
}

func (c *Client) ReportPluginUsageEvents(ctx context.Context, events []PluginUsageEvent) error {
	return c.call(ctx, http.MethodPost, "/internal/plugin-usage", map[string]any{"events": events}, nil)
}

type RuntimePlugin struct {
	InstalledPluginID string `json:"installedPluginId"`
	PluginID          string `json:"pluginId"`
	WorkspaceID       string `json:"workspaceId"`
	InstallPath       string `json:"installPath"`
}

func (c *Client) ListRuntimePlugins(ctx context.Context, workspaceID string) ([]RuntimePlugin, error) {
	var out struct {
		Plugins []RuntimePlugin `json:"plugins"`
	}
	err := c.call(ctx, http.MethodGet, "/internal/plugins?workspaceId="+workspaceID, nil, &out)
	return out.Plugins, err
}

func (c *Client) ReportRuntimePluginLoad(ctx context.Context, installedPluginID string, ok bool, errMsg string) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/internal/plugins/%s/load-status", installedPluginID), map[string]any{
		"ok": ok, "error": errMsg,
	}, nil)
}
