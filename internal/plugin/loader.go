package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bastproxy/internal/logging"
)

const (
	EventPluginLoaded   = "ev_plugin_loaded"
	EventPluginUnloaded = "ev_plugin_unloaded"
	EventPluginSaved    = "ev_plugin_save"
)

// Loader discovers manifests under a set of search roots, resolves load
// order by declared dependency, and owns the loaded Info table.
type Loader struct {
	mu         sync.Mutex
	roots      []string
	ctx        *Context
	loaded     map[string]*Info
	manifests  map[string]*Manifest
	registrars map[string]Registrar
}

// New creates a Loader bound to ctx's subsystems, searching roots for
// plugin directories.
func New(ctx *Context, roots []string) *Loader {
	return &Loader{
		roots:      roots,
		ctx:        ctx,
		loaded:     make(map[string]*Info),
		manifests:  make(map[string]*Manifest),
		registrars: make(map[string]Registrar),
	}
}

// Discover re-scans the search roots for manifest.toml files, without
// loading anything. Call LoadAll or Load afterward.
func (l *Loader) Discover() error {
	found, err := discoverManifests(l.roots)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.manifests = found
	l.mu.Unlock()
	return nil
}

// LoadAll discovers manifests and loads every plugin in dependency order.
// A plugin whose dependency set has a cycle is reported and skipped along
// with everything that (transitively) depends on it.
func (l *Loader) LoadAll(ctx context.Context) error {
	if err := l.Discover(); err != nil {
		return err
	}

	l.mu.Lock()
	order, cyclic := topoSort(l.manifests)
	l.mu.Unlock()

	for id, reason := range cyclic {
		logging.Warnf("plugin", "skipping %s: %s", id, reason)
	}

	for _, id := range order {
		if err := l.Load(ctx, id); err != nil {
			logging.Fault("plugin", id, "load", err)
		}
	}
	return nil
}

// topoSort returns a dependency-respecting load order (Kahn's algorithm)
// plus a map of ids excluded due to a cycle or a missing dependency.
func topoSort(manifests map[string]*Manifest) (order []string, excluded map[string]string) {
	excluded = make(map[string]string)
	indegree := make(map[string]int)
	dependents := make(map[string][]string)

	ids := make([]string, 0, len(manifests))
	for id := range manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		for _, dep := range manifests[id].Dependencies {
			if _, ok := manifests[dep]; !ok {
				excluded[id] = fmt.Sprintf("missing dependency %q", dep)
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for _, id := range ids {
		if _, bad := excluded[id]; bad {
			continue
		}
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if _, bad := excluded[dep]; bad {
				continue
			}
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	loadedSet := make(map[string]bool, len(order))
	for _, id := range order {
		loadedSet[id] = true
	}
	for _, id := range ids {
		if !loadedSet[id] {
			if _, already := excluded[id]; !already {
				excluded[id] = "circular dependency"
			}
		}
	}
	return order, excluded
}

// Load instantiates and initializes one plugin by id. Dependencies are
// not loaded transitively here; use LoadAll for that.
func (l *Loader) Load(ctx context.Context, id string) error {
	l.mu.Lock()
	m, ok := l.manifests[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("plugin: unknown id %q (run Discover first)", id)
	}
	if info, already := l.loaded[id]; already && info.Loaded {
		l.mu.Unlock()
		return nil
	}
	factory := factories[id]
	l.mu.Unlock()

	var reg Registrar = NopRegistrar{}
	if factory != nil {
		reg = factory()
	}

	if err := reg.Initialize(id, l.ctx); err != nil {
		return fmt.Errorf("plugin: %s Initialize: %w", id, err)
	}

	info := &Info{
		ID:           m.ID,
		Name:         m.Name,
		Version:      m.Version,
		Required:     m.Required,
		Author:       m.Author,
		Purpose:      m.Purpose,
		Dir:          m.Dir,
		ManifestPath: m.Dir + "/" + ManifestFileName,
		Dependencies: m.Dependencies,
		Priority:     m.Priority,
		Files:        m.Files,
		OnLoadHook:   m.OnLoadHook,
		OnUnloadHook: m.OnUnloadHook,
		OnReloadHook: m.OnReloadHook,
		State:        StateLoaded,
		Loaded:       true,
		LoadedAt:     nowOrZero(),
		Instance:     reg,
	}

	if info.OnLoadHook != "" {
		if err := RunSync(info, HookOnLoad); err != nil {
			logging.Fault("plugin", id, "on_load_hook", err)
		}
	}

	l.mu.Lock()
	l.loaded[id] = info
	l.registrars[id] = reg
	l.mu.Unlock()

	if l.ctx.Bus != nil {
		_, _ = l.ctx.Bus.Raise(ctx, EventPluginLoaded, map[string]interface{}{"plugin": id}, "plugin-loader", nil, "")
	}
	return nil
}

// Unload tears down one loaded plugin: runs Uninitialize, then strips
// every capability, callback, command, trigger, timer and setting it
// registered under its id.
func (l *Loader) Unload(ctx context.Context, id string) error {
	l.mu.Lock()
	info, ok := l.loaded[id]
	reg := l.registrars[id]
	l.mu.Unlock()
	if !ok || !info.Loaded {
		return fmt.Errorf("plugin: %s is not loaded", id)
	}
	if reg == nil {
		reg = NopRegistrar{}
	}

	if err := reg.Uninitialize(id, l.ctx); err != nil {
		logging.Fault("plugin", id, "Uninitialize", err)
	}

	if l.ctx.Capabilities != nil {
		l.ctx.Capabilities.Remove(id)
	}
	if l.ctx.Bus != nil {
		l.ctx.Bus.UnregisterOwner(id)
	}
	if l.ctx.Commands != nil {
		l.ctx.Commands.UnloadOwner(id)
	}
	if l.ctx.Triggers != nil {
		l.ctx.Triggers.UnloadOwner(id)
	}
	if l.ctx.Timers != nil {
		l.ctx.Timers.UnloadOwner(id)
	}
	if l.ctx.Settings != nil {
		l.ctx.Settings.Unregister(id)
		if err := l.ctx.Settings.Save(ctx); err != nil {
			logging.Fault("plugin", id, "settings flush", err)
		}
	}

	if info.OnUnloadHook != "" {
		if err := RunSync(info, HookOnUnload); err != nil {
			logging.Fault("plugin", id, "on_unload_hook", err)
		}
	}

	l.mu.Lock()
	info.Loaded = false
	info.State = notLoadedState(id)
	info.Instance = nil
	delete(l.registrars, id)
	l.mu.Unlock()

	if l.ctx.Bus != nil {
		_, _ = l.ctx.Bus.Raise(ctx, EventPluginUnloaded, map[string]interface{}{"plugin": id}, "plugin-loader", nil, "")
	}
	return nil
}

// Reload saves, unloads, re-reads the manifest and loads the plugin
// again. Settings values registered through ctx.Settings persist across
// reload because Unregister only drops the in-memory Spec table, not the
// underlying persisted values.
func (l *Loader) Reload(ctx context.Context, id string) error {
	l.mu.Lock()
	info, ok := l.loaded[id]
	reg := l.registrars[id]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin: %s is not loaded", id)
	}
	if reg != nil {
		if err := reg.Save(id, l.ctx); err != nil {
			logging.Fault("plugin", id, "Save", err)
		}
	}
	if l.ctx.Bus != nil {
		_, _ = l.ctx.Bus.Raise(ctx, EventPluginSaved, map[string]interface{}{"plugin": id}, "plugin-loader", nil, "")
	}

	if err := l.Unload(ctx, id); err != nil {
		return err
	}

	fresh, err := loadManifest(info.Dir)
	if err != nil {
		return fmt.Errorf("plugin: reload %s: re-reading manifest: %w", id, err)
	}
	fresh.Dir = info.Dir

	l.mu.Lock()
	l.manifests[id] = fresh
	l.mu.Unlock()

	if err := l.Load(ctx, id); err != nil {
		return err
	}

	l.mu.Lock()
	if reloaded, ok := l.loaded[id]; ok {
		reloaded.ReloadedAt = nowOrZero()
		if reloaded.OnReloadHook != "" {
			if err := RunSync(reloaded, HookOnReload); err != nil {
				logging.Fault("plugin", id, "on_reload_hook", err)
			}
		}
	}
	l.mu.Unlock()
	return nil
}

// ReloadBatch reloads every id in ids. To match the spec's ordering
// decision for simultaneous reloads (e.g. a hot-reload sweep catching
// several changed manifests at once), every plugin in the batch is fully
// unloaded first, then every plugin's Initialize hook runs only after
// all peers have finished unloading — so a plugin's Initialize never
// observes a batch peer mid-teardown.
func (l *Loader) ReloadBatch(ctx context.Context, ids []string) {
	type pending struct {
		id  string
		dir string
	}
	var batch []pending

	for _, id := range ids {
		l.mu.Lock()
		info, ok := l.loaded[id]
		reg := l.registrars[id]
		l.mu.Unlock()
		if !ok {
			continue
		}
		if reg != nil {
			if err := reg.Save(id, l.ctx); err != nil {
				logging.Fault("plugin", id, "Save", err)
			}
		}
		if err := l.Unload(ctx, id); err != nil {
			logging.Fault("plugin", id, "reload-batch unload", err)
			continue
		}
		batch = append(batch, pending{id: id, dir: info.Dir})
	}

	for _, p := range batch {
		fresh, err := loadManifest(p.dir)
		if err != nil {
			logging.Fault("plugin", p.id, "reload-batch re-manifest", err)
			continue
		}
		fresh.Dir = p.dir
		l.mu.Lock()
		l.manifests[p.id] = fresh
		l.mu.Unlock()
	}

	for _, p := range batch {
		if err := l.Load(ctx, p.id); err != nil {
			logging.Fault("plugin", p.id, "reload-batch load", err)
		}
	}
}

// List returns a snapshot of every known plugin's Info, loaded or not.
func (l *Loader) List() []*Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Info, 0, len(l.manifests))
	for id, m := range l.manifests {
		if info, ok := l.loaded[id]; ok {
			cp := *info
			out = append(out, &cp)
			continue
		}
		out = append(out, &Info{
			ID:           m.ID,
			Name:         m.Name,
			Version:      m.Version,
			Required:     m.Required,
			Dir:          m.Dir,
			Dependencies: m.Dependencies,
			Priority:     m.Priority,
			Files:        m.Files,
			State:        notLoadedState(id),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one plugin's Info, or nil if unknown.
func (l *Loader) Get(id string) *Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	if info, ok := l.loaded[id]; ok {
		cp := *info
		return &cp
	}
	return nil
}

// notLoadedState reports the tri-state runtime status for an id that is
// not currently loaded: imported-only if a compiled-in Registrar factory
// claims it, not-imported if the manifest has no backing Go package at all.
func notLoadedState(id string) State {
	if factories[id] != nil {
		return StateImportedOnly
	}
	return StateNotImported
}

func nowOrZero() time.Time { return timeNow() }

// timeNow is indirected only so tests could substitute it if ever needed;
// production always uses the wall clock.
var timeNow = time.Now
