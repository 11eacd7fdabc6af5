package main

import "os"

// writeFile writes data to path with the same permissions basedir.Metadata
// uses for its own files: operator-only, since config can carry a client
// password.
func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}
