package bridge

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// PathResolver resolves module ids against a source root. Ids starting with
// "./" or "../" are relative to the importing module; all others are
// relative to the root. A module resolves to an existing file, the id plus
// one of the extensions, or an index file inside a directory.
type PathResolver struct {
	fsys fs.FS
	exts []string
}

// NewPathResolver returns a resolver over fsys trying exts in order; the
// default is ".js".
func NewPathResolver(fsys fs.FS, exts ...string) *PathResolver {
	if len(exts) == 0 {
		exts = []string{".js"}
	}
	return &PathResolver{fsys: fsys, exts: exts}
}

// Resolve maps id imported from parent to a path inside the root.
func (r *PathResolver) Resolve(parent, id string) (string, error) {
	var p string
	if strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../") {
		p = path.Join(path.Dir(parent), id)
	} else {
		p = path.Clean(strings.TrimPrefix(id, "/"))
	}
	if p == ".." || strings.HasPrefix(p, "../") || !fs.ValidPath(p) {
		return "", fmt.Errorf("%w: %q from %q", ErrOutOfRoot, id, parent)
	}

	if r.isFile(p) {
		return p, nil
	}
	for _, ext := range r.exts {
		if r.isFile(p + ext) {
			return p + ext, nil
		}
	}
	for _, ext := range r.exts {
		if index := path.Join(p, "index"+ext); r.isFile(index) {
			return index, nil
		}
	}
	return "", fmt.Errorf("resolving module %q from %q: %w", id, parent, fs.ErrNotExist)
}

// Load reads a resolved module.
func (r *PathResolver) Load(name string) ([]byte, error) {
	return fs.ReadFile(r.fsys, name)
}

func (r *PathResolver) isFile(name string) bool {
	info, err := fs.Stat(r.fsys, name)
	return err == nil && !info.IsDir()
}
