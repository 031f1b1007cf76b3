package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclaw/runtime/internal/toolregistry"
)

// PluginSyncer applies a `POST /runtime/plugins/sync` action against the
// live Tool Registry. Defined at the consumer (gateway) per Go idiom so
// tests can substitute a fake without pulling in toolregistry's plugin
// loading machinery.
type PluginSyncer interface {
	Sync(ctx context.Context, installedPluginID, action, pluginID, installPath string) error
}

// RegistrySync is the production PluginSyncer, grounded on
// internal/toolregistry/registry.go's RegisterPlugin/Unregister pair. It
// serializes actions per installed plugin so a reload can't race itself.
type RegistrySync struct {
	registry *toolregistry.Registry
	loader   func(ctx context.Context, pluginID, installPath string) (toolregistry.Tool, error)

	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	registered map[string]string // installedPluginID -> registered tool name
}

func NewRegistrySync(registry *toolregistry.Registry, loader func(ctx context.Context, pluginID, installPath string) (toolregistry.Tool, error)) *RegistrySync {
	return &RegistrySync{registry: registry, loader: loader, locks: make(map[string]*sync.Mutex), registered: make(map[string]string)}
}

// ManifestLoader builds a RegistrySync loader that reads and validates the
// plugin's openclaw.plugin.json from installPath and adapts it into a
// ManifestTool served by host.
func ManifestLoader(host toolregistry.PluginToolHost) func(ctx context.Context, pluginID, installPath string) (toolregistry.Tool, error) {
	return func(ctx context.Context, pluginID, installPath string) (toolregistry.Tool, error) {
		manifest, err := toolregistry.LoadManifest(installPath)
		if err != nil {
			return nil, err
		}
		if manifest.ID != pluginID {
			return nil, fmt.Errorf("plugin manifest id %q does not match requested pluginId %q", manifest.ID, pluginID)
		}
		return toolregistry.NewManifestTool(manifest, host), nil
	}
}

func (rs *RegistrySync) lockFor(installedPluginID string) *sync.Mutex {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	l, ok := rs.locks[installedPluginID]
	if !ok {
		l = &sync.Mutex{}
		rs.locks[installedPluginID] = l
	}
	return l
}

func (rs *RegistrySync) registeredName(installedPluginID string) (string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	name, ok := rs.registered[installedPluginID]
	return name, ok
}

func (rs *RegistrySync) setRegisteredName(installedPluginID, name string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.registered[installedPluginID] = name
}

func (rs *RegistrySync) clearRegisteredName(installedPluginID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.registered, installedPluginID)
}

// Sync applies one of spec.md §6's plugin-sync actions (`load`, `reload`,
// `unload`, `bootstrap`) for one installed plugin: `unload`/`reload` first
// retire the existing tool registration; `load`/`bootstrap`/`reload` then
// load the manifest and register the new tool.
func (rs *RegistrySync) Sync(ctx context.Context, installedPluginID, action, pluginID, installPath string) error {
	l := rs.lockFor(installedPluginID)
	l.Lock()
	defer l.Unlock()

	switch action {
	case "unload":
		if name, ok := rs.registeredName(installedPluginID); ok {
			rs.registry.Unregister(name)
			rs.clearRegisteredName(installedPluginID)
		}
		return nil
	case "load", "bootstrap", "reload":
		if name, ok := rs.registeredName(installedPluginID); ok {
			rs.registry.Unregister(name)
			rs.clearRegisteredName(installedPluginID)
		}
		tool, err := rs.loader(ctx, pluginID, installPath)
		if err != nil {
			return fmt.Errorf("load plugin %s: %w", pluginID, err)
		}
		name := rs.registry.RegisterPlugin(tool)
		rs.setRegisteredName(installedPluginID, name)
		return nil
	default:
		return fmt.Errorf("unknown plugin sync action %q", action)
	}
}
