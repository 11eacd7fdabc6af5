// Package settings implements the proxy's typed, per-plugin, persisted
// settings store: a registry of SettingSpecs with global name uniqueness,
// a validator per declared type, and change-event emission through the
// event bus.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bastproxy/internal/colorcode"
	"bastproxy/internal/eventbus"
	"bastproxy/internal/settings/persistence"
)

// DefaultSentinel, when written as a setting's value, resets it to its
// declared default instead of being parsed as a literal value.
const DefaultSentinel = "default"

// Type names the built-in coercions a SettingSpec may declare.
type Type string

const (
	TypeStr      Type = "str"
	TypeInt      Type = "int"
	TypeBool     Type = "bool"
	TypeColor    Type = "color"
	TypeDuration Type = "duration"
)

// Coercer validates and normalizes a raw string into the type's canonical
// stored form, or returns an error describing why the value is rejected.
type Coercer func(raw string) (string, error)

var builtinCoercers = map[Type]Coercer{
	TypeStr: func(raw string) (string, error) { return raw, nil },
	TypeInt: func(raw string) (string, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", fmt.Errorf("settings: %q is not an integer", raw)
		}
		return strconv.FormatInt(n, 10), nil
	},
	TypeBool: func(raw string) (string, error) {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes", "on", "1":
			return "true", nil
		case "false", "no", "off", "0":
			return "false", nil
		}
		return "", fmt.Errorf("settings: %q is not a boolean", raw)
	},
	TypeColor: func(raw string) (string, error) {
		if raw == "" {
			return raw, nil
		}
		ansi := colorcode.ToANSI(raw)
		if ansi == raw {
			return "", fmt.Errorf("settings: %q is not a recognized color code", raw)
		}
		return raw, nil
	},
	TypeDuration: func(raw string) (string, error) {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			if n, nerr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); nerr == nil {
				return strconv.FormatInt(n, 10) + "s", nil
			}
			return "", fmt.Errorf("settings: %q is not a duration", raw)
		}
		return d.String(), nil
	},
}

// Spec describes one registered setting.
type Spec struct {
	PluginID       string
	Name           string
	Type           Type
	Default        string
	Help           string
	ReadOnly       bool
	Hidden         bool
	AfterSetMsg    string
	Coercer        Coercer // overrides the built-in coercer for Type, if set
	Source         string  // display-only: where this value currently came from
}

// FullName is the globally-unique key a Spec is registered under.
func (s Spec) FullName() string {
	return s.PluginID + "." + s.Name
}

func (s Spec) coercer() Coercer {
	if s.Coercer != nil {
		return s.Coercer
	}
	if c, ok := builtinCoercers[s.Type]; ok {
		return c
	}
	return builtinCoercers[TypeStr]
}

// Store is the process-wide settings registry. One Store serves every
// plugin; persisted values are segregated by plugin id in the Provider.
type Store struct {
	mu       sync.RWMutex
	specs    map[string]*Spec // keyed by FullName()
	values   map[string]string
	provider persistence.Provider
	bus      *eventbus.Bus
}

// New creates a store backed by provider, raising change events on bus.
func New(provider persistence.Provider, bus *eventbus.Bus) *Store {
	return &Store{
		specs:    make(map[string]*Spec),
		values:   make(map[string]string),
		provider: provider,
		bus:      bus,
	}
}

// Register adds spec to the registry and loads its persisted value, if
// any, falling back to its default. Fails if the name is already taken by
// any plugin.
func (s *Store) Register(ctx context.Context, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := spec.FullName()
	if _, exists := s.specs[full]; exists {
		return fmt.Errorf("settings: %q is already registered", full)
	}

	cp := spec
	s.specs[full] = &cp

	stored, ok, err := s.provider.Get(ctx, spec.PluginID, spec.Name)
	if err != nil {
		return fmt.Errorf("settings: loading %q: %w", full, err)
	}
	if ok {
		s.values[full] = stored
	} else {
		s.values[full] = spec.Default
	}
	return nil
}

// Unregister removes every setting owned by pluginID, used at plugin
// unload.
func (s *Store) Unregister(pluginID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	prefix := pluginID + "."
	for full := range s.specs {
		if strings.HasPrefix(full, prefix) {
			delete(s.specs, full)
			delete(s.values, full)
			removed++
		}
	}
	return removed
}

// Get returns the current coerced value of (pluginID, name).
func (s *Store) Get(pluginID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	full := pluginID + "." + name
	if _, ok := s.specs[full]; !ok {
		return "", fmt.Errorf("settings: no such setting %q", full)
	}
	return s.values[full], nil
}

// Set validates raw against the setting's type (or resets to default if
// raw == DefaultSentinel), persists it, flushes, and raises its
// change event unless the setting is hidden.
func (s *Store) Set(ctx context.Context, pluginID, name, raw string) error {
	s.mu.Lock()
	full := pluginID + "." + name
	spec, ok := s.specs[full]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("settings: no such setting %q", full)
	}
	if spec.ReadOnly {
		s.mu.Unlock()
		return fmt.Errorf("settings: %q is read-only", full)
	}

	oldValue := s.values[full]

	var newValue string
	if raw == DefaultSentinel {
		newValue = spec.Default
	} else {
		coerced, err := spec.coercer()(raw)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		newValue = coerced
	}
	s.values[full] = newValue
	hidden := spec.Hidden
	s.mu.Unlock()

	if err := s.provider.Put(ctx, pluginID, name, newValue); err != nil {
		return fmt.Errorf("settings: persisting %q: %w", full, err)
	}
	if err := s.provider.Flush(ctx); err != nil {
		return fmt.Errorf("settings: flushing after %q: %w", full, err)
	}

	if !hidden && s.bus != nil {
		eventName := fmt.Sprintf("ev_%s_var_%s_modified", pluginID, name)
		s.bus.EnsureEvent(eventbus.Definition{Name: eventName, Creator: pluginID})
		_, _ = s.bus.Raise(ctx, eventName, eventbus.Data{
			"var":      name,
			"oldvalue": oldValue,
			"newvalue": newValue,
		}, pluginID, nil, "")
	}
	return nil
}

// Save flushes the provider; called by the plugin loader at unload (and
// so on every reload) and by the app at shutdown. No callback on
// ev_plugin_save calls it.
func (s *Store) Save(ctx context.Context) error {
	return s.provider.Flush(ctx)
}

// List returns the full names of every registered setting, optionally
// restricted to one plugin id (pass "" for all), sorted.
func (s *Store) List(pluginID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for full, spec := range s.specs {
		if pluginID == "" || spec.PluginID == pluginID {
			out = append(out, full)
		}
	}
	sort.Strings(out)
	return out
}

// Detail returns a copy of the Spec for fullName, or nil.
func (s *Store) Detail(fullName string) *Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[fullName]
	if !ok {
		return nil
	}
	cp := *spec
	return &cp
}
