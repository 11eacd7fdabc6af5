// Package fatal is the sole abort path for internal invariant violations:
// state the rest of the proxy assumes can never happen (a locked record
// mutated in place, a popped event stack frame that wasn't on top, a
// plugin table left inconsistent after unload). Every other error
// category in the proxy's taxonomy is recoverable and handled locally;
// this one is not.
package fatal

import (
	"fmt"
	"os"

	"bastproxy/internal/logging"
)

// Crash logs diagnostic and terminates the process immediately. It must
// never be called for a recoverable fault (configuration error, plugin
// callback fault, plugin lifecycle fault, network fault, contract
// violation) — those are logged and handled in place by their owning
// subsystem instead.
func Crash(diagnostic string, args ...interface{}) {
	msg := fmt.Sprintf(diagnostic, args...)
	logging.Warnf("fatal", "internal invariant violation: %s", msg)
	fmt.Fprintf(os.Stderr, "bastproxy: fatal: %s\n", msg)
	os.Exit(2)
}
