package dispatch

import (
	"context"

	"github.com/conductor-html/conductor/internal/logging"
)

// Host is the narrow capability surface handed to plugin OnRegister
// hooks. Plugins extend the manager through it instead of holding the
// manager itself, so a hook cannot reach state it has no business
// mutating.
type Host interface {
	// Register adds a command owned by the plugin.
	Register(name string, cb Callback) (string, error)
	// Use attaches middleware owned by the plugin.
	Use(hook Hook, fn Middleware)
	// Dispatch routes a command through the standard pipeline.
	Dispatch(ctx context.Context, req Request) (*Result, error)
}

// Plugin bundles commands and middleware under one name.
type Plugin struct {
	// Name uniquely identifies the plugin.
	Name string
	// Hooks maps lifecycle points to middleware contributed by the
	// plugin. Registration order within a hook follows plugin
	// registration order.
	Hooks map[Hook]Middleware
	// OnRegister runs once when the plugin is registered.
	OnRegister func(host Host) error
}

// pluginHost scopes Host operations to one plugin name.
type pluginHost struct {
	manager *Manager
	plugin  string
}

func (h *pluginHost) Register(name string, cb Callback) (string, error) {
	normalized, err := h.manager.registerAs(name, cb, false, h.plugin)
	if err != nil {
		return "", err
	}
	h.manager.recordPluginCommand(h.plugin, normalized)
	return normalized, nil
}

func (h *pluginHost) Use(hook Hook, fn Middleware) {
	h.manager.hooks.add(hook, h.plugin, fn)
}

func (h *pluginHost) Dispatch(ctx context.Context, req Request) (*Result, error) {
	return h.manager.Dispatch(ctx, req)
}

// RegisterPlugin installs a plugin: its middleware is added in hook
// order and its OnRegister hook runs against a scoped host. A plugin
// re-registered under the same name replaces the previous
// registration with a warning.
func (m *Manager) RegisterPlugin(p *Plugin) error {
	if p == nil || p.Name == "" {
		return ErrInvalidName
	}

	m.pluginMu.Lock()
	if _, exists := m.plugins[p.Name]; exists {
		m.pluginMu.Unlock()
		logging.Warn().Str("plugin", p.Name).Msg("replacing registered plugin")
		m.UnregisterPlugin(p.Name)
		m.pluginMu.Lock()
	}
	m.plugins[p.Name] = p
	m.pluginMu.Unlock()

	for hook, fn := range p.Hooks {
		m.hooks.add(hook, p.Name, fn)
	}

	if p.OnRegister != nil {
		host := &pluginHost{manager: m, plugin: p.Name}
		if err := p.OnRegister(host); err != nil {
			m.UnregisterPlugin(p.Name)
			return err
		}
	}
	return nil
}

// UnregisterPlugin removes a plugin, its middleware, and its
// commands. Unregistering an unknown name is a no-op with a warning.
func (m *Manager) UnregisterPlugin(name string) {
	m.pluginMu.Lock()
	_, exists := m.plugins[name]
	delete(m.plugins, name)
	commands := m.pluginCommands[name]
	delete(m.pluginCommands, name)
	m.pluginMu.Unlock()

	if !exists {
		logging.Warn().Str("plugin", name).Msg("unregister of unknown plugin ignored")
		return
	}

	m.hooks.removePlugin(name)
	for _, cmd := range commands {
		m.Unregister(cmd)
	}
}

// Plugins returns the names of registered plugins.
func (m *Manager) Plugins() []string {
	m.pluginMu.Lock()
	defer m.pluginMu.Unlock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}

func (m *Manager) recordPluginCommand(plugin, command string) {
	m.pluginMu.Lock()
	defer m.pluginMu.Unlock()
	m.pluginCommands[plugin] = append(m.pluginCommands[plugin], command)
}
