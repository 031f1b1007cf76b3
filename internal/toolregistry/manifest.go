package toolregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// PluginManifest is the parsed `openclaw.plugin.json` describing one
// workspace tool plugin, per spec.md §7. Parsed with json5 (not
// encoding/json) since hand-edited manifests in development commonly carry
// comments and trailing commas.
type PluginManifest struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	ConfigSchema map[string]any `json:"configSchema"`
	Runtime      struct {
		Tool struct {
			Entry      string `json:"entry"`
			ExportName string `json:"exportName"`
		} `json:"tool"`
	} `json:"runtime"`
	Permissions *ManifestPermissions `json:"permissions,omitempty"`

	// InstallRoot is the directory LoadManifest read this manifest from, not
	// part of the on-disk JSON. A PluginToolHost needs it to resolve
	// runtime.tool.entry to an absolute path when spawning the plugin.
	InstallRoot string `json:"-"`
}

// ManifestPermissions declares what a plugin tool may touch, mirrored onto
// the policy.Sandbox the hosting workspace applies to it.
type ManifestPermissions struct {
	Network bool     `json:"network,omitempty"`
	FSRead  []string `json:"fsRead,omitempty"`
	FSWrite []string `json:"fsWrite,omitempty"`
	Exec    []string `json:"exec,omitempty"`
}

var validEntryExt = map[string]bool{".js": true, ".mjs": true, ".cjs": true}

// LoadManifest reads and validates the manifest at installRoot/openclaw.plugin.json,
// enforcing spec.md §7's entry-path safety rules: entry must be a relative
// path inside the plugin root with no "." or ".." segments, end in a
// recognized JS extension, and resolve to an existing file.
func LoadManifest(installRoot string) (*PluginManifest, error) {
	path := filepath.Join(installRoot, "openclaw.plugin.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest: %w", err)
	}

	var m PluginManifest
	if err := json5.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}

	if m.ID == "" || m.Name == "" || m.Version == "" {
		return nil, fmt.Errorf("plugin manifest missing required field (id, name, version)")
	}
	if m.Kind != "tool" {
		return nil, fmt.Errorf("plugin manifest kind %q is not supported (only \"tool\")", m.Kind)
	}
	if err := validateEntry(installRoot, m.Runtime.Tool.Entry); err != nil {
		return nil, err
	}
	if m.Runtime.Tool.ExportName != "" && m.Runtime.Tool.ExportName != "default" && !isValidIdentifier(m.Runtime.Tool.ExportName) {
		return nil, fmt.Errorf("plugin manifest exportName %q is not a valid identifier", m.Runtime.Tool.ExportName)
	}

	m.InstallRoot = installRoot
	return &m, nil
}

func validateEntry(installRoot, entry string) error {
	if entry == "" {
		return fmt.Errorf("plugin manifest missing runtime.tool.entry")
	}
	if filepath.IsAbs(entry) {
		return fmt.Errorf("plugin manifest entry %q must be a relative path", entry)
	}
	for _, seg := range strings.Split(filepath.ToSlash(entry), "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("plugin manifest entry %q must not contain . or .. segments", entry)
		}
	}
	ext := filepath.Ext(entry)
	if !validEntryExt[ext] {
		return fmt.Errorf("plugin manifest entry %q must end in .js, .mjs, or .cjs", entry)
	}

	resolved := filepath.Join(installRoot, entry)
	if _, err := os.Stat(resolved); err != nil {
		return fmt.Errorf("plugin manifest entry %q does not exist: %w", entry, err)
	}
	return nil
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}
