package policy

import "time"

// Sandbox is the immutable per-run snapshot handed to the coordinator and
// every executor spawned from it. It is built once from agent configuration
// at run start and never mutated; NarrowForSubagent derives a child copy
// rather than modifying the parent in place.
type Sandbox struct {
	Tools         ToolPolicy
	FS            FSPolicy
	ExecAllowList []string
	MaxTurns      int
	MaxSpawnDepth int
	Timeout       time.Duration
}

// NarrowSandboxForSubagent derives the sandbox passed to a delegated
// sub-agent: the tool policy is narrowed per NarrowForSubagent, exec
// allow-list and limits are carried through unchanged (depth is tracked by
// the caller, not stored on the sandbox itself).
func NarrowSandboxForSubagent(parent Sandbox, depth, maxDepth int) Sandbox {
	child := parent
	child.Tools = NarrowForSubagent(parent.Tools, depth, maxDepth)
	return child
}

// IsExecAllowed reports whether a command is present in the sandbox's exec
// allow-list. An empty allow-list denies all exec (unlike tool policy, there
// is no allow-all-when-empty default for process execution).
func (s Sandbox) IsExecAllowed(cmd string) bool {
	for _, c := range s.ExecAllowList {
		if c == cmd {
			return true
		}
	}
	return false
}
