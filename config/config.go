// Package config handles hostbind.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/hostbind/binding"
	"github.com/chazu/hostbind/typedesc"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "hostbind.toml"

// Config represents a hostbind.toml project configuration.
type Config struct {
	Project    Project     `toml:"project"`
	Modules    Modules     `toml:"modules"`
	Types      Types       `toml:"types"`
	Output     Output      `toml:"output"`
	Naming     Naming      `toml:"naming"`
	Options    Options     `toml:"options"`
	Transforms []Transform `toml:"transform"`

	// Dir is the directory containing the hostbind.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project names the project and the Go packages it binds.
type Project struct {
	Name string `toml:"name"`
	// Packages are go/packages patterns, relative to Dir.
	Packages []string `toml:"packages"`
	Target   string   `toml:"target"`
}

// Modules declares module sets. Modules are Go package paths.
type Modules struct {
	Implicit []string `toml:"implicit"`
	Explicit []string `toml:"explicit"`
	Blocked  []string `toml:"blocked"`
}

// Types holds type-level policy, by full name.
type Types struct {
	Blacklist        []string            `toml:"blacklist"`
	Whitelist        []string            `toml:"whitelist"`
	PrefixBlacklist  []string            `toml:"prefix-blacklist"`
	PlatformPrefixes map[string][]string `toml:"platform-prefixes"`
}

// Output configures generated files.
type Output struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
	Log    string `toml:"log"`
	Store  string `toml:"store"`
}

// Naming configures script-facing names.
type Naming struct {
	Style         string   `toml:"style"`
	BindingPrefix string   `toml:"binding-prefix"`
	Keywords      []string `toml:"keywords"`
}

// Options holds generation switches.
type Options struct {
	OperatorOverloading *bool `toml:"operator-overloading"`
}

// Transform customizes one type.
type Transform struct {
	Type                string            `toml:"type"`
	Rename              string            `toml:"rename"`
	Block               []string          `toml:"block"`
	RenameMethods       map[string]string `toml:"rename-methods"`
	Redirects           map[string]string `toml:"redirects"`
	Capabilities        []string          `toml:"capabilities"`
	Declarations        []string          `toml:"declarations"`
	Disposable          bool              `toml:"disposable"`
	EditorOnly          bool              `toml:"editor-only"`
	SystemRuntime       bool              `toml:"system-runtime"`
	NoConstructors      bool              `toml:"no-constructors"`
	Hotfix              string            `toml:"hotfix"`
	OperatorOverloading *bool             `toml:"operator-overloading"`
	Pusher              string            `toml:"pusher"`
}

// Load parses a hostbind.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return cfg, nil
}

// Parse decodes a configuration and applies defaults. Dir is left empty.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if len(c.Project.Packages) == 0 {
		c.Project.Packages = []string{"./..."}
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "bindings"
	}
	if c.Output.Format == "" {
		c.Output.Format = "cbor"
	}
	if c.Naming.Style == "" {
		c.Naming.Style = string(binding.NamingPreserve)
	}
	if c.Naming.BindingPrefix == "" {
		c.Naming.BindingPrefix = binding.DefaultBindingPrefix
	}
	if c.Options.OperatorOverloading == nil {
		on := true
		c.Options.OperatorOverloading = &on
	}
}

// FindAndLoad walks up from startDir to find a hostbind.toml file, then
// loads and returns it. Returns nil if no configuration is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves p against the configuration directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// OutputDir is the absolute output directory.
func (c *Config) OutputDir() string { return c.Path(c.Output.Dir) }

// CollectorOptions converts the configuration to collector options.
func (c *Config) CollectorOptions() (binding.Options, error) {
	opts := binding.DefaultOptions()
	opts.ImplicitModules = c.Modules.Implicit
	opts.ExplicitModules = c.Modules.Explicit
	opts.BlockedModules = c.Modules.Blocked
	opts.Blacklist = c.Types.Blacklist
	opts.Whitelist = c.Types.Whitelist
	opts.PrefixBlacklist = c.Types.PrefixBlacklist
	opts.PlatformPrefixes = c.Types.PlatformPrefixes
	opts.Target = c.Project.Target
	opts.BindingPrefix = c.Naming.BindingPrefix
	opts.Keywords = c.Naming.Keywords
	opts.LogPath = c.Path(c.Output.Log)
	if c.Options.OperatorOverloading != nil {
		opts.OperatorOverloading = *c.Options.OperatorOverloading
	}

	switch style := binding.NamingStyle(c.Naming.Style); style {
	case binding.NamingPreserve, binding.NamingCamel:
		opts.Naming = style
	default:
		return opts, fmt.Errorf("unknown naming style %q", c.Naming.Style)
	}
	return opts, nil
}

// Apply registers the configured transforms with c. Every transform is
// attempted; the first error is returned.
func (c *Config) Apply(col *binding.Collector) error {
	var first error
	for _, t := range c.Transforms {
		if err := t.apply(col); err != nil {
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (t Transform) apply(col *binding.Collector) error {
	tt, err := col.TransformByName(t.Type)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	reg := col.Registry()
	typ := reg.Type(tt.Type())

	if t.Rename != "" {
		tt.Rename(t.Rename)
	}
	tt.SetMemberBlocked(t.Block...)
	for host, script := range t.RenameMethods {
		found := false
		for _, m := range typ.Methods {
			if m.Name == host {
				tt.RenameMethod(script, m.Name, typedesc.ParamTypes(m.Params)...)
				found = true
			}
		}
		if !found {
			return fmt.Errorf("transform %s: no method %s", t.Type, host)
		}
	}
	for from, to := range t.Redirects {
		tt.AddRedirectMethod(from, to)
	}
	tt.AddRequiredCapabilities(t.Capabilities...)
	tt.AddDeclaration(t.Declarations...)
	if t.Disposable {
		tt.SetDisposable()
	}
	if t.EditorOnly {
		tt.EditorOnly()
	}
	if t.SystemRuntime {
		tt.SystemRuntime()
	}
	if t.NoConstructors {
		tt.SetAllConstructorsBlocked()
	}
	if t.OperatorOverloading != nil {
		tt.EnableOperatorOverloading(*t.OperatorOverloading)
	}
	if t.Hotfix != "" {
		flags, err := ParseHotfix(t.Hotfix)
		if err != nil {
			return fmt.Errorf("transform %s: %w", t.Type, err)
		}
		tt.SetHotfix(flags)
	}
	if t.Pusher != "" {
		col.Classifier().SetPusher(typ.ID, t.Pusher)
	}
	return nil
}

// ParseHotfix parses "before", "after" or "before,after"; "all" selects both.
func ParseHotfix(s string) (typedesc.HotfixFlags, error) {
	var flags typedesc.HotfixFlags
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "before":
			flags |= typedesc.HotfixBefore
		case "after":
			flags |= typedesc.HotfixAfter
		case "all":
			flags |= typedesc.HotfixBefore | typedesc.HotfixAfter
		default:
			return 0, fmt.Errorf("unknown hotfix flag %q", part)
		}
	}
	return flags, nil
}
