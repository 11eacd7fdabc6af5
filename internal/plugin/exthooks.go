package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// HookEvent names the plugin lifecycle transition an external hook script
// is invoked for.
type HookEvent string

const (
	HookOnLoad   HookEvent = "on_load"
	HookOnUnload HookEvent = "on_unload"
	HookOnReload HookEvent = "on_reload"
)

// hookTimeout bounds how long an external lifecycle script may run before
// its process group is killed; plugin load/unload must never hang on a
// misbehaving script.
const hookTimeout = 10 * time.Second

// hookRunner executes a plugin's external lifecycle scripts, if configured
// in its manifest. Scripts are fire-and-forget from the caller's point of
// view: RunSync blocks and returns the error, but a failure never aborts
// the plugin load/unload/reload it is attached to, only gets logged.
type hookRunner struct {
	timeout time.Duration
}

func newHookRunner() *hookRunner {
	return &hookRunner{timeout: hookTimeout}
}

func (r *hookRunner) scriptFor(info *Info, event HookEvent) string {
	var name string
	switch event {
	case HookOnLoad:
		name = info.OnLoadHook
	case HookOnUnload:
		name = info.OnUnloadHook
	case HookOnReload:
		name = info.OnReloadHook
	}
	if name == "" {
		return ""
	}
	return filepath.Join(info.Dir, name)
}

// hookPayload is what a lifecycle script receives on stdin as JSON.
type hookPayload struct {
	Event   string `json:"event"`
	Plugin  string `json:"plugin"`
	Version int    `json:"version"`
	Dir     string `json:"dir"`
}

// RunSync executes the script configured for event, if any, and waits for
// it to finish. Returns nil if no script is configured, does not exist, or
// is not executable.
func (r *hookRunner) RunSync(info *Info, event HookEvent) error {
	path := r.scriptFor(info, event)
	if path == "" {
		return nil
	}

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil
	}
	if fi.Mode()&0o111 == 0 {
		return nil
	}

	payload, err := json.Marshal(hookPayload{
		Event:   string(event),
		Plugin:  info.ID,
		Version: info.Version,
		Dir:     info.Dir,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return runHook(ctx, path, payload)
}

// RunSync runs info's script for event using a throwaway hookRunner. The
// loader calls this rather than holding a shared hookRunner since lifecycle
// hooks fire rarely and carry no state worth keeping between calls.
func RunSync(info *Info, event HookEvent) error {
	return newHookRunner().RunSync(info, event)
}
