package executor

import (
	"context"

	"github.com/openclaw/runtime/internal/policy"
)

// AgentConfig is the subset of persisted agent configuration the loop needs
// to build a sandbox and drive an LLMStream.
type AgentConfig struct {
	AgentID         string
	SystemPrompt    string
	Model           string
	ModelCandidates []string // additional fallback models, tried in order
	Sandbox         policy.Sandbox
}

// Persistence is the slice of PersistenceRPC the executor loop calls
// directly. Defined at the consumer per Go idiom; internal/persistence
// implements the full PersistenceRPC surface and satisfies this narrower
// interface too.
type Persistence interface {
	GetAgentConfig(ctx context.Context, agentID string) (*AgentConfig, error)
	AppendMessage(ctx context.Context, runID, role, content string) error
	CreateTask(ctx context.Context, runID, parentTaskID, agentID, instruction string, depth int) (taskID string, err error)
	UpdateTask(ctx context.Context, taskID, status string, progress int, result string) error
	RecordRunUsage(ctx context.Context, runID, scope string, usage Usage) error
	RecordTaskUsage(ctx context.Context, taskID, scope string, usage Usage) error
}
