// Package basedir owns the proxy's base-directory metadata file: the
// small piece of on-disk state (plugin search roots, settings database
// filename, log directory name) that has to survive across restarts but
// is too small and too global to belong to any one plugin's settings
// store.
package basedir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFileName is the base-directory metadata file, analogous to a
// project's top-level config file.
const MetadataFileName = "metadata.json"

// legacyMetadataFileName is the name used by installs predating the
// metadata.json rename; Load migrates it forward transparently.
const legacyMetadataFileName = "bastproxy.json"

// Metadata is the on-disk, per-base-directory configuration the proxy
// needs before the settings store itself can be opened (the settings
// store's own location is derived from these fields).
type Metadata struct {
	SettingsDB    string   `json:"settings_db"`
	LogDir        string   `json:"log_dir"`
	PluginRoots   []string `json:"plugin_roots,omitempty"`
	CommandPrefix string   `json:"command_prefix,omitempty"`
}

// Default returns the metadata used when a base directory is initialized
// for the first time.
func Default() *Metadata {
	return &Metadata{
		SettingsDB:    "settings.db",
		LogDir:        "logs",
		PluginRoots:   []string{"plugins"},
		CommandPrefix: "#bp",
	}
}

func metadataPath(baseDir string) string {
	return filepath.Join(baseDir, MetadataFileName)
}

// Load reads metadata.json from baseDir. If it does not exist but a
// legacy bastproxy.json does, the legacy file is parsed, saved under the
// new name, and removed. Returns (nil, nil) if neither file exists.
func Load(baseDir string) (*Metadata, error) {
	path := metadataPath(baseDir)

	data, err := os.ReadFile(path) // #nosec G304 -- baseDir is an operator-supplied startup argument
	if os.IsNotExist(err) {
		legacyPath := filepath.Join(baseDir, legacyMetadataFileName)
		data, err = os.ReadFile(legacyPath) // #nosec G304 -- same as above
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("basedir: reading legacy metadata: %w", err)
		}

		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("basedir: parsing legacy metadata: %w", err)
		}
		if err := m.Save(baseDir); err != nil {
			return nil, fmt.Errorf("basedir: migrating metadata to %s: %w", MetadataFileName, err)
		}
		_ = os.Remove(legacyPath)
		return &m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("basedir: reading metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("basedir: parsing metadata: %w", err)
	}
	return &m, nil
}

// Save writes m to <baseDir>/metadata.json.
func (m *Metadata) Save(baseDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("basedir: marshaling metadata: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("basedir: creating base directory: %w", err)
	}
	if err := os.WriteFile(metadataPath(baseDir), data, 0o600); err != nil {
		return fmt.Errorf("basedir: writing metadata: %w", err)
	}
	return nil
}

// SettingsDBPath returns the absolute path of the settings database file.
func (m *Metadata) SettingsDBPath(baseDir string) string {
	if m.SettingsDB == "" {
		return filepath.Join(baseDir, "settings.db")
	}
	return filepath.Join(baseDir, m.SettingsDB)
}

// LogDirPath returns the absolute path of the log directory.
func (m *Metadata) LogDirPath(baseDir string) string {
	if m.LogDir == "" {
		return filepath.Join(baseDir, "logs")
	}
	return filepath.Join(baseDir, m.LogDir)
}

// ResolvedPluginRoots returns the plugin search roots as absolute paths
// under baseDir, defaulting to a single "plugins" directory.
func (m *Metadata) ResolvedPluginRoots(baseDir string) []string {
	roots := m.PluginRoots
	if len(roots) == 0 {
		roots = []string{"plugins"}
	}
	out := make([]string, len(roots))
	for i, r := range roots {
		if filepath.IsAbs(r) {
			out[i] = r
		} else {
			out[i] = filepath.Join(baseDir, r)
		}
	}
	return out
}

// Prefix returns the configured command prefix, defaulting to "#bp".
func (m *Metadata) Prefix() string {
	if m.CommandPrefix == "" {
		return "#bp"
	}
	return m.CommandPrefix
}
