//go:build cgo

package app

import (
	"context"

	"bastproxy/internal/settings/persistence"
)

// newProvider opens the embedded-dolt settings backend at dbPath, unless
// ephemeral asks for the in-memory provider instead (the `--ephemeral`
// flag, for a run whose settings should not survive restart). Built only
// when cgo is available, since the embedded dolt engine links against its
// own C dependencies; see provider_nocgo.go for the fallback.
func newProvider(ctx context.Context, dbPath string, ephemeral bool) (persistence.Provider, error) {
	if ephemeral {
		return persistence.NewMemory(), nil
	}
	return persistence.OpenDolt(ctx, dbPath)
}
