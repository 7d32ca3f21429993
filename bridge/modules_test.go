package bridge

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
)

func TestPathResolver_Resolve(t *testing.T) {
	fsys := fstest.MapFS{
		"main.js":             {Data: []byte("import './lib/util'")},
		"lib/util.js":         {Data: []byte("export {}")},
		"lib/math/index.js":   {Data: []byte("export {}")},
		"lib/data.json":       {Data: []byte("{}")},
		"vendor/left-pad.mjs": {Data: []byte("export {}")},
	}
	r := NewPathResolver(fsys, ".js", ".mjs")

	tests := []struct {
		name   string
		parent string
		id     string
		want   string
	}{
		{"relative with extension added", "main.js", "./lib/util", "lib/util.js"},
		{"exact file", "main.js", "./lib/data.json", "lib/data.json"},
		{"directory index", "main.js", "./lib/math", "lib/math/index.js"},
		{"parent relative", "lib/math/index.js", "../util", "lib/util.js"},
		{"root relative", "lib/util.js", "vendor/left-pad", "vendor/left-pad.mjs"},
		{"leading slash", "lib/util.js", "/lib/util", "lib/util.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.parent, tt.id)
			if err != nil {
				t.Fatalf("Resolve(%q, %q): %v", tt.parent, tt.id, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.parent, tt.id, got, tt.want)
			}
		})
	}
}

func TestPathResolver_Errors(t *testing.T) {
	r := NewPathResolver(fstest.MapFS{"main.js": {}})

	for _, id := range []string{"../secret", "./../../etc/passwd", ".."} {
		if _, err := r.Resolve("main.js", id); !errors.Is(err, ErrOutOfRoot) {
			t.Errorf("Resolve(%q) = %v, want ErrOutOfRoot", id, err)
		}
	}
	if _, err := r.Resolve("main.js", "./missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Resolve(missing) = %v, want ErrNotExist", err)
	}
}

func TestPathResolver_Load(t *testing.T) {
	r := NewPathResolver(fstest.MapFS{"a.js": {Data: []byte("1")}})
	data, err := r.Load("a.js")
	if err != nil || string(data) != "1" {
		t.Errorf("Load = %q, %v", data, err)
	}
}
