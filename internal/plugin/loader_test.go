package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bastproxy/internal/capability"
	"bastproxy/internal/command"
	"bastproxy/internal/eventbus"
	"bastproxy/internal/settings"
	"bastproxy/internal/settings/persistence"
	"bastproxy/internal/timer"
	"bastproxy/internal/trigger"
)

func writeManifest(t *testing.T, root, id string, deps []string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := "id = \"" + id + "\"\nname = \"" + id + "\"\nversion = 1\n"
	for _, d := range deps {
		body += "dependencies = [\"" + d + "\"]\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(body), 0o644))
	return dir
}

func newTestContext() *Context {
	return &Context{
		Bus:          eventbus.New(100),
		Capabilities: capability.New(),
		Commands:     command.New("#bp"),
		Triggers:     trigger.New(),
		Timers:       timer.New(),
		Settings:     settings.New(persistence.NewMemory(), eventbus.New(100)),
	}
}

type recordingRegistrar struct {
	initCalls, uninitCalls, saveCalls *int
}

func (r recordingRegistrar) Initialize(id string, ctx *Context) error {
	*r.initCalls++
	return ctx.Capabilities.Add(id, "marker", id, "marker", capability.ScopeProcessWide,
		func(caller string, args ...interface{}) (interface{}, error) { return nil, nil }, false)
}
func (r recordingRegistrar) Uninitialize(id string, ctx *Context) error {
	*r.uninitCalls++
	return nil
}
func (r recordingRegistrar) Save(id string, ctx *Context) error {
	*r.saveCalls++
	return nil
}

func TestDiscoverFindsManifests(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "alpha", nil)

	l := New(newTestContext(), []string{root})
	require.NoError(t, l.Discover())
	require.Len(t, l.manifests, 1)
}

func TestLoadAllOrdersByDependency(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "base", nil)
	writeManifest(t, root, "derived", []string{"base"})

	var order []string
	initA, uninitA, saveA := 0, 0, 0
	RegisterFactory("base", func() Registrar {
		order = append(order, "base")
		return recordingRegistrar{initCalls: &initA, uninitCalls: &uninitA, saveCalls: &saveA}
	})
	initB, uninitB, saveB := 0, 0, 0
	RegisterFactory("derived", func() Registrar {
		order = append(order, "derived")
		return recordingRegistrar{initCalls: &initB, uninitCalls: &uninitB, saveCalls: &saveB}
	})

	l := New(newTestContext(), []string{root})
	require.NoError(t, l.LoadAll(context.Background()))

	require.Equal(t, []string{"base", "derived"}, order)
	require.Equal(t, 1, initA)
	require.Equal(t, 1, initB)
	require.True(t, l.Get("base").Loaded)
	require.True(t, l.Get("derived").Loaded)
	require.Equal(t, StateLoaded, l.Get("base").State)
	require.NotNil(t, l.Get("base").Instance)
	require.Equal(t, 1, l.Get("base").Version)
}

func TestUnloadStripsCapabilities(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "alpha", nil)

	initN, uninitN, saveN := 0, 0, 0
	RegisterFactory("alpha", func() Registrar {
		return recordingRegistrar{initCalls: &initN, uninitCalls: &uninitN, saveCalls: &saveN}
	})

	ctx := newTestContext()
	l := New(ctx, []string{root})
	require.NoError(t, l.LoadAll(context.Background()))
	require.True(t, ctx.Capabilities.Has("alpha:marker"))

	require.NoError(t, l.Unload(context.Background(), "alpha"))
	require.Equal(t, 1, uninitN)
	require.False(t, ctx.Capabilities.Has("alpha:marker"))
	require.False(t, l.Get("alpha").Loaded)
	require.Equal(t, StateImportedOnly, l.Get("alpha").State)
	require.Nil(t, l.Get("alpha").Instance)
}

func TestListReportsNotImportedForManifestWithNoFactory(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "orphan", nil)

	l := New(newTestContext(), []string{root})
	require.NoError(t, l.Discover())

	infos := l.List()
	require.Len(t, infos, 1)
	require.Equal(t, StateNotImported, infos[0].State)
	require.Contains(t, infos[0].Files, ManifestFileName)
}

func TestReloadCallsSaveThenReinitializes(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "alpha", nil)

	initN, uninitN, saveN := 0, 0, 0
	RegisterFactory("alpha", func() Registrar {
		return recordingRegistrar{initCalls: &initN, uninitCalls: &uninitN, saveCalls: &saveN}
	})

	l := New(newTestContext(), []string{root})
	require.NoError(t, l.LoadAll(context.Background()))
	require.NoError(t, l.Reload(context.Background(), "alpha"))

	require.Equal(t, 1, saveN)
	require.Equal(t, 1, uninitN)
	require.Equal(t, 2, initN)
	require.True(t, l.Get("alpha").Loaded)
	require.False(t, l.Get("alpha").ReloadedAt.IsZero())
}

func TestReloadLeavesDependentCapabilitiesIntact(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "parent", nil)
	writeManifest(t, root, "child", []string{"parent"})

	_, parentUninit, parentSave := 0, 0, 0
	RegisterFactory("parent", func() Registrar {
		return recordingRegistrar{initCalls: new(int), uninitCalls: &parentUninit, saveCalls: &parentSave}
	})
	childInit, childUninit, childSave := 0, 0, 0
	RegisterFactory("child", func() Registrar {
		return recordingRegistrar{initCalls: &childInit, uninitCalls: &childUninit, saveCalls: &childSave}
	})

	ctx := newTestContext()
	l := New(ctx, []string{root})
	require.NoError(t, l.LoadAll(context.Background()))
	require.True(t, ctx.Capabilities.Has("child:marker"))

	require.NoError(t, l.Reload(context.Background(), "parent"))

	require.Equal(t, 1, parentUninit)
	require.Equal(t, 0, childUninit)
	require.Equal(t, 0, childSave)
	require.True(t, l.Get("child").Loaded)
	require.True(t, ctx.Capabilities.Has("child:marker"))
	require.True(t, ctx.Capabilities.Has("parent:marker"))
}

func TestTopoSortExcludesCycles(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {ID: "a", Dependencies: []string{"b"}},
		"b": {ID: "b", Dependencies: []string{"a"}},
		"c": {ID: "c"},
	}
	order, excluded := topoSort(manifests)
	require.Equal(t, []string{"c"}, order)
	require.Contains(t, excluded, "a")
	require.Contains(t, excluded, "b")
}

func TestTopoSortExcludesMissingDependency(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {ID: "a", Dependencies: []string{"ghost"}},
	}
	order, excluded := topoSort(manifests)
	require.Empty(t, order)
	require.Contains(t, excluded["a"], "missing dependency")
}
