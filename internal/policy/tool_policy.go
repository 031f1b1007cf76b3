// Package policy implements the Policy Sandbox: the immutable per-run bundle
// of tool allow/deny globs, filesystem allow-prefixes, exec allow-list, and
// turn/depth/timeout limits, derived from agent configuration at run start.
//
// The matching pipeline is deliberately simpler than the teacher's
// internal/tools/policy.go (no profiles, groups, or aliases — the spec names
// a plain allow/deny glob pair), but the deny-wins evaluation order and the
// subagent narrowing deny-lists are grounded directly on that file.
package policy

import "strings"

// ToolPolicy is an allow/deny glob pair. Glob grammar: "*" matches any tool
// name; "foo*" is a prefix match; "*foo" is a suffix match; anything else is
// an exact match.
type ToolPolicy struct {
	Allow []string
	Deny  []string
}

func globMatch(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*") && strings.HasPrefix(pattern, "*"):
		// e.g. "*foo*" — not named in the grammar but handled defensively
		// as a substring match rather than panicking on the empty inner.
		inner := strings.Trim(pattern, "*")
		return inner == "" || strings.Contains(name, inner)
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	default:
		return pattern == name
	}
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if globMatch(p, name) {
			return true
		}
	}
	return false
}

// IsAllowed evaluates deny-wins: a deny match always wins; an empty allow
// list means allow-all; otherwise an allow match is required.
func IsAllowed(name string, p ToolPolicy) bool {
	if matchAny(p.Deny, name) {
		return false
	}
	if len(p.Allow) == 0 {
		return true
	}
	return matchAny(p.Allow, name)
}

// LeafDenyTools is the configured deny-set applied, in addition to the
// always-denied delegation tool, once a sub-agent has reached maxSpawnDepth.
// Grounded on internal/tools/policy.go's leafSubagentDenyList.
var LeafDenyTools = []string{
	"delegate_to_agent",
	"sessions_list",
	"sessions_history",
	"sessions_spawn",
}

const delegateToolName = "delegate_to_agent"

// NarrowForSubagent derives the child policy for a delegated sub-agent.
// delegate_to_agent is always added to deny (a sub-agent never re-delegates
// past the point its own depth is evaluated by the caller); once depth has
// reached maxDepth, the leaf-deny set is additionally applied. allow is never
// widened — only deny ever grows.
func NarrowForSubagent(parent ToolPolicy, depth, maxDepth int) ToolPolicy {
	deny := append([]string{}, parent.Deny...)
	deny = appendUnique(deny, delegateToolName)
	if depth >= maxDepth {
		for _, t := range LeafDenyTools {
			deny = appendUnique(deny, t)
		}
	}
	return ToolPolicy{Allow: append([]string{}, parent.Allow...), Deny: deny}
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

// CanDelegate reports whether a call to delegate_to_agent at the given depth
// is permitted by the spawn-depth limit alone (tool-policy deny is checked
// separately by IsAllowed).
func CanDelegate(depth, maxSpawnDepth int) bool {
	return depth < maxSpawnDepth
}
