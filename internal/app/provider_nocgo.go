//go:build !cgo

package app

import (
	"context"

	"bastproxy/internal/logging"
	"bastproxy/internal/settings/persistence"
)

// newProvider falls back to the in-memory settings backend when built
// without cgo (the embedded dolt engine is unavailable). Settings do not
// survive a restart in this configuration; operators who need persistence
// must build with cgo enabled.
func newProvider(ctx context.Context, dbPath string, ephemeral bool) (persistence.Provider, error) {
	if !ephemeral {
		logging.Warnf("app", "built without cgo: settings at %s will not persist across restarts", dbPath)
	}
	return persistence.NewMemory(), nil
}
