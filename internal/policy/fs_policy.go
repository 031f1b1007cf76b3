package policy

import (
	"path"
	"strings"
)

// FSPolicy bounds filesystem tool access for a run. Grounded on the
// workspace/allowedPrefixes checks in internal/tools/filesystem.go, with the
// teacher's container-level sandbox.Manager dropped (see DESIGN.md) — path
// containment is enforced purely in-process here.
type FSPolicy struct {
	WorkspaceOnly bool
	AllowedPaths  []string
}

// IsPathAllowed rejects any ".." segment of the raw path outright, then
// normalizes it and requires a prefix match against AllowedPaths when
// non-empty, or (when WorkspaceOnly) requires the path be absolute.
func IsPathAllowed(p string, policy FSPolicy) bool {
	raw := strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return false
		}
	}
	norm := path.Clean(raw)
	if len(policy.AllowedPaths) > 0 {
		for _, prefix := range policy.AllowedPaths {
			if strings.HasPrefix(norm, path.Clean(prefix)) {
				return true
			}
		}
		return false
	}
	if policy.WorkspaceOnly {
		return strings.HasPrefix(norm, "/")
	}
	return true
}
