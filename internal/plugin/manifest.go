package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// ManifestFileName is the file every plugin directory must contain.
const ManifestFileName = "manifest.toml"

// loadManifest reads and decodes dir/manifest.toml.
func loadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("plugin: decoding %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("plugin: %s missing required id field", path)
	}
	return &m, nil
}

// discoverManifests walks each root looking for immediate subdirectories
// that contain a manifest.toml, mirroring the one-plugin-per-directory
// layout. It does not recurse past the plugin directory itself.
func discoverManifests(roots []string) (map[string]*Manifest, error) {
	found := make(map[string]*Manifest)
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("plugin: reading root %s: %w", root, err)
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			dir := filepath.Join(root, ent.Name())
			manifestPath := filepath.Join(dir, ManifestFileName)
			if _, err := os.Stat(manifestPath); err != nil {
				continue
			}
			m, err := loadManifest(dir)
			if err != nil {
				return nil, err
			}
			m.Dir = dir
			files, err := listFiles(dir)
			if err != nil {
				return nil, fmt.Errorf("plugin: listing files under %s: %w", dir, err)
			}
			m.Files = files
			found[m.ID] = m
		}
	}
	return found, nil
}

// listFiles returns every regular file under dir, relative to dir and
// sorted, for Info/Manifest's Files field.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
