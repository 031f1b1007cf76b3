// Package broker implements the Run Broker: the in-memory state machine
// that creates and deduplicates runs, serializes agent-emitted events into a
// monotonic per-run event log, fans events out to subscribers with
// replay-from-cursor, and sweeps expired idempotency entries and inactive
// runs in the background.
//
// Grounded on internal/agent/loop.go's per-run goroutine + activeRuns
// accounting and internal/channels/ratelimit.go's bounded-map-with-sweep
// idiom; the per-entry-mutex / short-critical-section-global-mutex split is
// exactly the concurrency model spec.md §5 asks for.
package broker

import (
	"time"

	"github.com/openclaw/runtime/internal/eventlog"
)

// RunState is the lifecycle state of a Run. Terminal iff state is one of
// Completed, Failed, Cancelled.
type RunState string

const (
	StateQueued    RunState = "queued"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
	StateCancelled RunState = "cancelled"
)

func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// RunParams are the caller-supplied parameters for a run, persisted via the
// canonical createFn and carried on the transient Run Entry for the
// worker's use.
type RunParams struct {
	SessionID            string
	WorkspaceID           string
	UserRequest           string
	CoordinatorAgentID    string
	StartCandidateOffset  int
	ResumeFromMessageID   string
	ResumeFromRunID       string
	ResumeMode            string
}

// Snapshot is the point-in-time view returned by GetSnapshot and on
// Subscribe attach.
type Snapshot struct {
	State     RunState `json:"state"`
	Terminal  bool     `json:"terminal"`
	LastSeq   uint64   `json:"lastSeq"`
	Truncated bool     `json:"truncated"`
}

// EmitFunc is the signature a run worker uses to push events into its own
// run's event log.
type EmitFunc func(eventlog.Event)

// StarterFunc drives one run's agent work. It receives an EmitFunc bound to
// this run so it never needs the broker or runID directly. A returned error
// is materialized by the broker as a synthetic error+done pair if the
// worker has not already admitted a terminal event.
type StarterFunc func(runID string, params RunParams, emit EmitFunc) error

// CreateFunc persists the canonical run row (via PersistenceRPC) and
// returns the assigned runId.
type CreateFunc func() (string, error)

type idempotencyEntry struct {
	runID       string
	fingerprint string
	createdAt   time.Time
}
