package channelpipeline

import (
	"sort"
	"strings"
)

// RoutingRule matches an inbound parsed message to a target agent. Rules on
// a channel are evaluated in priority order (lowest Priority value first);
// the first match wins. Pattern "*" matches unconditionally and is
// typically the catch-all last rule.
type RoutingRule struct {
	Priority int
	Pattern  string // "*", a prefix ("cmd:*"), or an exact string
	AgentID  string
}

// Match evaluates rules in priority order and returns the first matching
// AgentID, or ("", false) if none match.
func Match(rules []RoutingRule, content string) (string, bool) {
	sorted := make([]RoutingRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	for _, r := range sorted {
		if ruleMatches(r.Pattern, content) {
			return r.AgentID, true
		}
	}
	return "", false
}

func ruleMatches(pattern, content string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(content, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == content
	}
}
