package plugin

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func TestRunSyncNoScriptConfigured(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows test runner")
	}
	r := newHookRunner()
	info := &Info{ID: "weather", Dir: t.TempDir()}
	require.NoError(t, r.RunSync(info, HookOnLoad))
}

func TestRunSyncMissingScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows test runner")
	}
	r := newHookRunner()
	info := &Info{ID: "weather", Dir: t.TempDir(), OnLoadHook: "missing.sh"}
	require.NoError(t, r.RunSync(info, HookOnLoad))
}

func TestRunSyncExecutesScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows test runner")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	writeExecutable(t, dir, "on_load.sh", "#!/bin/sh\ncat > "+marker+"\n")

	r := newHookRunner()
	info := &Info{ID: "weather", Version: 1, Dir: dir, OnLoadHook: "on_load.sh"}
	require.NoError(t, r.RunSync(info, HookOnLoad))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Contains(t, string(data), "weather")
	require.Contains(t, string(data), "on_load")
}

func TestRunSyncNonExecutableSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows test runner")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "on_load.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o644))

	r := newHookRunner()
	info := &Info{ID: "weather", Dir: dir, OnLoadHook: "on_load.sh"}
	require.NoError(t, r.RunSync(info, HookOnLoad))
}
