package toolregistry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// GuardConfig tunes one plugin's execution guard.
type GuardConfig struct {
	MaxConcurrency    int64
	QueueTimeout      time.Duration
	ExecutionTimeout  time.Duration
	FailureThreshold  int
	FailureCooldown   time.Duration
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxConcurrency:   4,
		QueueTimeout:     5 * time.Second,
		ExecutionTimeout: 30 * time.Second,
		FailureThreshold: 5,
		FailureCooldown:  60 * time.Second,
	}
}

// GuardError identifies one of the guard's own failure modes, distinct from
// the tool's own execution error. Values match spec.md §7's PluginGuard
// error kind names exactly so they round-trip as tool-result error codes.
type GuardError string

const (
	ErrCodeQueueTimeout     GuardError = "plugin_queue_timeout"
	ErrCodeExecutionTimeout GuardError = "plugin_execution_timeout"
	ErrCodeCooldownActive   GuardError = "plugin_cooldown_active"
	ErrCodeExecutionError   GuardError = "plugin_execution_error"
)

func (e GuardError) Error() string { return string(e) }

// GuardResult is the structured, never-thrown result every guarded
// invocation produces.
type GuardResult struct {
	Output   string
	Error    string
	ErrorCode GuardError
	PluginID  string
	ToolName  string
	Meta      GuardMeta
}

// GuardMeta is the telemetry the guard always reports, per spec.md §4.4.
type GuardMeta struct {
	QueueWaitMs         int64
	ExecutionMs         int64
	TimeoutMs           int64
	MaxConcurrency      int64
	FailureStreak       int
	CooldownUntilMs     int64
	CooldownRemainingMs int64
}

type pluginState struct {
	sem            *semaphore.Weighted
	mu             sync.Mutex
	failureStreak  int
	cooldownUntil  time.Time
	cfg            GuardConfig
}

// Guard wraps every plugin tool invocation with a per-plugin semaphore,
// queue/execution timeouts, and a consecutive-failure cooldown breaker.
type Guard struct {
	mu      sync.Mutex
	plugins map[string]*pluginState
	cfg     GuardConfig
}

func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{plugins: make(map[string]*pluginState), cfg: cfg}
}

func (g *Guard) stateFor(pluginID string) *pluginState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.plugins[pluginID]
	if !ok {
		st = &pluginState{sem: semaphore.NewWeighted(g.cfg.MaxConcurrency), cfg: g.cfg}
		g.plugins[pluginID] = st
	}
	return st
}

// Invoke runs fn under the plugin's guard. fn must itself respect ctx
// cancellation; Invoke enforces the execution timeout by wrapping ctx, not
// by leaking a goroutine past fn's return (fn is expected to return
// promptly after ctx.Done()).
func (g *Guard) Invoke(ctx context.Context, pluginID, toolName string, fn func(context.Context) (string, error)) GuardResult {
	st := g.stateFor(pluginID)

	st.mu.Lock()
	if !st.cooldownUntil.IsZero() && time.Now().Before(st.cooldownUntil) {
		remaining := time.Until(st.cooldownUntil)
		streak := st.failureStreak
		st.mu.Unlock()
		return GuardResult{
			Error: "plugin is in cooldown after repeated failures", ErrorCode: ErrCodeCooldownActive,
			PluginID: pluginID, ToolName: toolName,
			Meta: GuardMeta{
				TimeoutMs: st.cfg.ExecutionTimeout.Milliseconds(), MaxConcurrency: st.cfg.MaxConcurrency,
				FailureStreak: streak, CooldownUntilMs: st.cooldownUntil.UnixMilli(),
				CooldownRemainingMs: remaining.Milliseconds(),
			},
		}
	}
	st.mu.Unlock()

	queueStart := time.Now()
	qctx, qcancel := context.WithTimeout(ctx, st.cfg.QueueTimeout)
	defer qcancel()
	if err := st.sem.Acquire(qctx, 1); err != nil {
		return GuardResult{
			Error: "timed out waiting to acquire plugin concurrency slot", ErrorCode: ErrCodeQueueTimeout,
			PluginID: pluginID, ToolName: toolName,
			Meta: GuardMeta{QueueWaitMs: time.Since(queueStart).Milliseconds(), TimeoutMs: st.cfg.QueueTimeout.Milliseconds(), MaxConcurrency: st.cfg.MaxConcurrency},
		}
	}
	defer st.sem.Release(1)
	queueWait := time.Since(queueStart)

	execCtx, execCancel := context.WithTimeout(ctx, st.cfg.ExecutionTimeout)
	defer execCancel()

	type outcome struct {
		out string
		err error
	}
	resultCh := make(chan outcome, 1)
	execStart := time.Now()
	go func() {
		out, err := fn(execCtx)
		resultCh <- outcome{out, err}
	}()

	select {
	case res := <-resultCh:
		execMs := time.Since(execStart).Milliseconds()
		if res.err != nil {
			streak := st.recordFailure()
			return GuardResult{
				Error: res.err.Error(), ErrorCode: ErrCodeExecutionError, PluginID: pluginID, ToolName: toolName,
				Meta: g.metaFor(st, queueWait, execMs, streak),
			}
		}
		st.recordSuccess()
		return GuardResult{Output: res.out, PluginID: pluginID, ToolName: toolName, Meta: g.metaFor(st, queueWait, execMs, 0)}
	case <-execCtx.Done():
		streak := st.recordFailure()
		return GuardResult{
			Error: "plugin execution exceeded its timeout", ErrorCode: ErrCodeExecutionTimeout,
			PluginID: pluginID, ToolName: toolName,
			Meta: g.metaFor(st, queueWait, time.Since(execStart).Milliseconds(), streak),
		}
	}
}

func (g *Guard) metaFor(st *pluginState, queueWait time.Duration, execMs int64, streak int) GuardMeta {
	st.mu.Lock()
	defer st.mu.Unlock()
	m := GuardMeta{
		QueueWaitMs:    queueWait.Milliseconds(),
		ExecutionMs:    execMs,
		TimeoutMs:      st.cfg.ExecutionTimeout.Milliseconds(),
		MaxConcurrency: st.cfg.MaxConcurrency,
		FailureStreak:  st.failureStreak,
	}
	if !st.cooldownUntil.IsZero() && time.Now().Before(st.cooldownUntil) {
		m.CooldownUntilMs = st.cooldownUntil.UnixMilli()
		m.CooldownRemainingMs = time.Until(st.cooldownUntil).Milliseconds()
	}
	return m
}

func (st *pluginState) recordSuccess() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failureStreak = 0
	st.cooldownUntil = time.Time{}
}

func (st *pluginState) recordFailure() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failureStreak++
	if st.failureStreak >= st.cfg.FailureThreshold {
		st.cooldownUntil = time.Now().Add(st.cfg.FailureCooldown)
	}
	return st.failureStreak
}
