// Package persistence implements the settings store's on-disk backend:
// one keyed container per plugin with a get/put/iterate/flush interface.
// The settings package above this one owns typed validation and
// change-event raising; this package only persists already-coerced string
// values.
package persistence

import "context"

// Provider is the minimal interface the settings store requires of a
// backend, per the spec's external-interfaces section: get, put, iterate,
// flush. On-disk format is otherwise unconstrained.
type Provider interface {
	// Get returns the stored value for (pluginID, key), and whether it
	// was present.
	Get(ctx context.Context, pluginID, key string) (string, bool, error)

	// Put stores value for (pluginID, key).
	Put(ctx context.Context, pluginID, key, value string) error

	// Iterate calls fn for every stored (key, value) pair owned by
	// pluginID, in unspecified order. Stops early if fn returns false.
	Iterate(ctx context.Context, pluginID string, fn func(key, value string) bool) error

	// Flush durably persists any buffered writes.
	Flush(ctx context.Context) error

	// Close releases underlying resources (file handles, connections).
	Close() error
}
