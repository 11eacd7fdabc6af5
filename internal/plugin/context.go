package plugin

import (
	"bastproxy/internal/capability"
	"bastproxy/internal/command"
	"bastproxy/internal/eventbus"
	"bastproxy/internal/settings"
	"bastproxy/internal/timer"
	"bastproxy/internal/trigger"
)

// Context bundles the subsystems a plugin's Registrar wires itself into.
// It is handed to Initialize/Uninitialize/Save instead of each plugin
// reaching for process-wide globals, so tests can construct a throwaway
// Context per case.
type Context struct {
	Bus          *eventbus.Bus
	Capabilities *capability.Registry
	Commands     *command.Engine
	Triggers     *trigger.Engine
	Timers       *timer.Scheduler
	Settings     *settings.Store
}

// Registrar is what a compiled-in plugin implements. Go has no runtime
// equivalent of attaching metadata to a method and discovering it via
// reflection at import time, so instead of scanning for decorated
// functions the way a dynamic-language proxy would, each plugin
// registers a Registrar factory under its manifest id at package init
// time (see RegisterFactory) and the loader calls Initialize to let it
// populate ctx explicitly.
type Registrar interface {
	// Initialize runs once after load (and again after each reload),
	// registering the plugin's capabilities, event callbacks, commands,
	// triggers, timers and settings against ctx.
	Initialize(pluginID string, ctx *Context) error

	// Uninitialize runs before unload; any state the Initialize call
	// didn't register with ctx (and therefore isn't cleaned up
	// automatically by the loader's UnloadOwner sweep) must be released
	// here.
	Uninitialize(pluginID string, ctx *Context) error

	// Save is called by Reload and ReloadBatch so the plugin can flush
	// in-memory state to its settings before the loader tears it down.
	Save(pluginID string, ctx *Context) error
}

// NopRegistrar is a Registrar whose hooks all succeed without doing
// anything; the loader uses it for a manifest that has no registered
// factory.
type NopRegistrar struct{}

func (NopRegistrar) Initialize(string, *Context) error   { return nil }
func (NopRegistrar) Uninitialize(string, *Context) error { return nil }
func (NopRegistrar) Save(string, *Context) error         { return nil }

var factories = make(map[string]func() Registrar)

// RegisterFactory associates a plugin id with the Registrar constructor
// that implements it. Called from each plugin package's init().
func RegisterFactory(id string, factory func() Registrar) {
	factories[id] = factory
}
