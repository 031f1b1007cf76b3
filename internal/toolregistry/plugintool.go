package toolregistry

import "context"

// PluginToolHost invokes one plugin's exported tool function out-of-process
// (the manifest's runtime.tool.{entry,exportName} resolve to a JS module
// run by a sidecar; this package only defines the boundary, not the
// sidecar transport). Defined at the consumer per Go idiom.
type PluginToolHost interface {
	Invoke(ctx context.Context, manifest *PluginManifest, args map[string]any) (string, error)
}

// ManifestTool adapts one loaded PluginManifest into the Tool interface,
// routing Execute through a PluginToolHost. The executor's tool dispatch
// (internal/executor/delegate.go) wraps each plugin call with the Guard.
type ManifestTool struct {
	manifest *PluginManifest
	host     PluginToolHost
}

func NewManifestTool(manifest *PluginManifest, host PluginToolHost) *ManifestTool {
	return &ManifestTool{manifest: manifest, host: host}
}

func (t *ManifestTool) Name() string { return t.manifest.Name }

func (t *ManifestTool) Description() string {
	return "Plugin tool " + t.manifest.ID + "@" + t.manifest.Version
}

func (t *ManifestTool) Parameters() map[string]any { return t.manifest.ConfigSchema }

func (t *ManifestTool) PluginID() string { return t.manifest.ID }

func (t *ManifestTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.host.Invoke(ctx, t.manifest, args)
}
