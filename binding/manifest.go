package binding

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Manifest records the files written by a generation run, grouped by directory.
type Manifest struct {
	dirs map[string]map[string]bool
}

func NewManifest() *Manifest {
	return &Manifest{dirs: make(map[string]map[string]bool)}
}

// Add records file as an output of dir.
func (m *Manifest) Add(dir, file string) {
	dir = filepath.Clean(dir)
	files, ok := m.dirs[dir]
	if !ok {
		files = make(map[string]bool)
		m.dirs[dir] = files
	}
	files[file] = true
}

// Has reports whether file was recorded for dir.
func (m *Manifest) Has(dir, file string) bool {
	return m.dirs[filepath.Clean(dir)][file]
}

// Dirs returns the recorded directories, sorted.
func (m *Manifest) Dirs() []string {
	dirs := make([]string, 0, len(m.dirs))
	for d := range m.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Files returns the files recorded for dir, sorted.
func (m *Manifest) Files(dir string) []string {
	var files []string
	for f := range m.dirs[filepath.Clean(dir)] {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Stale deletes every regular file in the manifest's directories that the
// manifest does not list, and returns the deleted paths.
func (m *Manifest) Stale() ([]string, error) {
	var removed []string
	for _, dir := range m.Dirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || m.Has(dir, e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("removing %s: %w", path, err)
			}
			removed = append(removed, path)
		}
	}
	return removed, nil
}

// AddOutputFile records a generated file.
func (c *Collector) AddOutputFile(dir, file string) {
	c.manifest.Add(dir, file)
}

// Manifest returns the output manifest of the run.
func (c *Collector) Manifest() *Manifest { return c.manifest }

// Cleanup removes stale files from the output directories, forgets them in
// the generation store when one is attached, and runs the Cleanup hooks.
func (c *Collector) Cleanup() ([]string, error) {
	removed, err := c.manifest.Stale()
	for _, path := range removed {
		c.infof("remove stale file %s", path)
		if c.store != nil {
			if ferr := c.store.Forget(path); ferr != nil {
				log.Warningf("%s", ferr)
			}
		}
	}
	c.runHooks("cleanup", func(p Process) { p.Cleanup(c) })
	return removed, err
}
