// Package plugin implements discovery, dependency-ordered loading, and
// hot-reload of proxy plugins: directories under a search root containing a
// manifest.toml plus Go-registered callback tables for events, commands,
// triggers, timers, capabilities, and settings.
package plugin

import "time"

// State is a plugin's tri-state runtime status. Go has no "imported but not
// instantiated" moment the way a dynamically-imported module does, so this
// maps the closest equivalent: RegisterFactory (called from a plugin
// package's init) stands in for "imported", and Load/Unload toggle the rest.
type State string

const (
	// StateLoaded means Load has run and Unload has not undone it.
	StateLoaded State = "loaded"
	// StateImportedOnly means a Registrar factory is registered for this id
	// (its package's init has run) but Load has never run, or it was
	// unloaded again.
	StateImportedOnly State = "imported-only"
	// StateNotImported means only the manifest was discovered; no compiled-in
	// Registrar claims this id at all.
	StateNotImported State = "not-imported"
)

// Info describes a single loaded (or discovered-but-not-loaded) plugin.
type Info struct {
	ID           string
	Name         string
	Version      int
	Required     bool
	Author       string
	Purpose      string
	Dir          string
	ManifestPath string
	Checksum     string
	Dependencies []string
	Priority     int

	// Files lists every file under Dir at discovery time, relative to Dir.
	Files []string

	State      State
	Loaded     bool
	LoadedAt   time.Time
	ReloadedAt time.Time

	// Instance is the Registrar currently backing this plugin; nil unless
	// State is StateLoaded.
	Instance Registrar

	// OnLoadHook, OnUnloadHook and OnReloadHook name external scripts (relative
	// to Dir) run as a side channel alongside the Go initialize/uninitialize
	// callbacks, for operators who want to hook plugin lifecycle without
	// writing Go code (e.g. notifying an external process).
	OnLoadHook   string
	OnUnloadHook string
	OnReloadHook string
}

// Manifest mirrors the on-disk manifest.toml shape for a plugin.
type Manifest struct {
	ID           string   `toml:"id"`
	Name         string   `toml:"name"`
	Version      int      `toml:"version"`
	Required     bool     `toml:"required"`
	Author       string   `toml:"author"`
	Purpose      string   `toml:"purpose"`
	Dependencies []string `toml:"dependencies"`
	Priority     int      `toml:"priority"`
	OnLoadHook   string   `toml:"on_load_hook"`
	OnUnloadHook string   `toml:"on_unload_hook"`
	OnReloadHook string   `toml:"on_reload_hook"`

	// Dir is set by the loader after decoding; it is not part of the
	// on-disk TOML.
	Dir string `toml:"-"`

	// Files lists every file under Dir, relative to Dir, populated by
	// discoverManifests; it is not part of the on-disk TOML.
	Files []string `toml:"-"`
}
